// Package normalize maps raw listing rows into candidate records, handling
// messy real-world date and count cells.
package normalize

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"go.uber.org/zap"

	"github.com/BD4L/breachwatch/internal/pipeline"
)

// Affected-count bounds. Values outside are almost always a stray year or a
// row index misread as a count.
const (
	minAffectedCount = 1
	maxAffectedCount = 100_000_000
)

var (
	firstIntPattern = regexp.MustCompile(`\d[\d,]*`)
	// Separators seen in date cells that hold ranges or lists.
	dateSeparators = []string{",", " to ", "–", " - "}
)

// Normalizer turns raw rows into candidate records.
type Normalizer struct {
	logger *zap.Logger
}

// New builds a Normalizer.
func New(logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{logger: logger}
}

// Normalize applies the adapter's column mapping to one raw row. It returns
// pipeline.ErrDiscard when both the organization name and every date field
// fail to parse; such a row cannot be deduplicated or rate-limited usefully.
func (n *Normalizer) Normalize(sourceID string, row pipeline.RawRow, mapping pipeline.ColumnMapping) (pipeline.CandidateRecord, error) {
	rec := pipeline.CandidateRecord{
		SourceID:  sourceID,
		SourceRow: row,
	}

	rec.OrganizationName = strings.TrimSpace(firstValue(row, mapping.Organization))

	reportedRaw := firstValue(row, mapping.ReportedDate)
	incidentRaw := firstValue(row, mapping.IncidentDate)
	rec.ReportedDate = n.parseDate(sourceID, reportedRaw)
	rec.IncidentDate = n.parseDate(sourceID, incidentRaw)
	if rec.ReportedDate == nil && rec.IncidentDate == nil {
		rec.RawDateText = strings.TrimSpace(reportedRaw)
		if rec.RawDateText == "" {
			rec.RawDateText = strings.TrimSpace(incidentRaw)
		}
	}

	if raw := firstValue(row, mapping.AffectedCount); raw != "" {
		if count, ok := ParseCount(raw); ok {
			rec.AffectedCount = &count
			rec.CountProvenance = "listing"
		}
	}

	rec.DocumentURL = strings.TrimSpace(firstValue(row, mapping.DocumentURL))

	if rec.OrganizationName == "" && rec.ReportedDate == nil && rec.IncidentDate == nil && rec.RawDateText == "" {
		return pipeline.CandidateRecord{}, fmt.Errorf("%w: no organization and no date in row", pipeline.ErrDiscard)
	}
	return rec, nil
}

// parseDate attempts a flexible parse, then retries on the first segment
// after splitting on common list separators. Total failure yields nil; the
// raw text is kept elsewhere for identity computation.
func (n *Normalizer) parseDate(sourceID, raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if t, err := dateparse.ParseAny(raw); err == nil {
		t = t.UTC()
		return &t
	}
	for _, sep := range dateSeparators {
		if !strings.Contains(raw, sep) {
			continue
		}
		head := strings.TrimSpace(strings.SplitN(raw, sep, 2)[0])
		if head == "" {
			continue
		}
		if t, err := dateparse.ParseAny(head); err == nil {
			t = t.UTC()
			return &t
		}
	}
	n.logger.Debug("unparsable date cell", zap.String("source_id", sourceID), zap.String("raw", raw))
	return nil
}

// ParseCount extracts the first integer token from free text, stripping
// thousands separators, and rejects values outside the sane bound.
func ParseCount(raw string) (int64, bool) {
	token := firstIntPattern.FindString(raw)
	if token == "" {
		return 0, false
	}
	token = strings.ReplaceAll(token, ",", "")
	v, err := strconv.ParseInt(token, 10, 64)
	if err != nil {
		return 0, false
	}
	if v < minAffectedCount || v > maxAffectedCount {
		return 0, false
	}
	return v, true
}

func firstValue(row pipeline.RawRow, keys []string) string {
	for _, k := range keys {
		if v, ok := row[k]; ok && strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
