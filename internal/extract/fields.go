package extract

import (
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/araddon/dateparse"

	"github.com/BD4L/breachwatch/internal/normalize"
	"github.com/BD4L/breachwatch/internal/pipeline"
)

// CountResult is the affected-count extraction outcome. Value is nil when no
// rule matched.
type CountResult struct {
	Value *int64
	Ref   pipeline.FieldRef
}

// TextSpanResult is the narrative extraction outcome. Value is empty when no
// rule matched.
type TextSpanResult struct {
	Value string
	Ref   pipeline.FieldRef
}

// CategoryResult is the data-category extraction outcome.
type CategoryResult struct {
	Values []string
	Ref    pipeline.FieldRef
}

// DateResult is one timeline date mined from the document.
type DateResult struct {
	Kind  string // "discovered" or "occurred"
	Value time.Time
	Ref   pipeline.FieldRef
}

// countRule matches an affected count. Pattern must have exactly one capture
// group holding the number.
type countRule struct {
	id         string
	confidence pipeline.Confidence
	pattern    *regexp.Regexp
}

// spanRule matches a narrative span. Pattern must have exactly one capture
// group holding the span.
type spanRule struct {
	id         string
	confidence pipeline.Confidence
	pattern    *regexp.Regexp
}

// Narrative length bounds. Matches under the minimum are almost always
// section headers picked up as false positives; the capture itself is
// open-ended and capped in code after sentinel truncation.
const (
	minNarrativeLen = 30
	maxNarrativeLen = 4000
)

// Sentinel phrases that begin the next logical section of a notice. A
// narrative capture stops at the first one so a run-on match does not
// swallow the rest of the document.
var narrativeSentinels = []string{
	"what we are doing",
	"what you can do",
	"what information was involved",
	"for more information",
	"steps you can take",
}

var fourDigitYear = regexp.MustCompile(`^(19|20)\d{2}$`)

// FieldExtractor runs ordered pattern rules over document text. Rules are
// evaluated in order; the first rule that matches and passes validation
// wins, and later lower-confidence rules are never consulted.
type FieldExtractor struct {
	countRules []countRule
	spanRules  []spanRule
	categories map[string]*regexp.Regexp
}

// NewFieldExtractor builds an extractor with the default rule sets.
func NewFieldExtractor() *FieldExtractor {
	return &FieldExtractor{
		countRules: []countRule{
			{
				id:         "count.individuals-affected",
				confidence: pipeline.ConfidenceHigh,
				pattern: regexp.MustCompile(
					`(?i)(?:approximately\s+|about\s+|roughly\s+)?([\d,]+)\s+(?:individuals|persons|people|residents|consumers|patients|customers)\s+(?:were|was|may\s+have\s+been|have\s+been|had\s+been)?\s*(?:affected|impacted|notified|involved)`),
			},
			{
				id:         "count.affecting",
				confidence: pipeline.ConfidenceMedium,
				pattern: regexp.MustCompile(
					`(?i)(?:affecting|impacting|affected|impacted|involving)\s+(?:approximately\s+|about\s+|up\s+to\s+)?([\d,]+)`),
			},
			{
				id:         "count.total-individuals",
				confidence: pipeline.ConfidenceMedium,
				pattern: regexp.MustCompile(
					`(?i)total\s+(?:number\s+of\s+)?(?:individuals|persons|people|residents)\D{0,20}?([\d,]+)`),
			},
			{
				id:         "count.records",
				confidence: pipeline.ConfidenceLow,
				pattern: regexp.MustCompile(
					`(?i)([\d,]+)\s+(?:records|accounts|files)`),
			},
		},
		spanRules: []spanRule{
			{
				id:         "narrative.what-happened",
				confidence: pipeline.ConfidenceHigh,
				pattern:    regexp.MustCompile(`(?is)what\s+happened\??:?\s*(.{15,})`),
			},
			{
				id:         "narrative.incident-description",
				confidence: pipeline.ConfidenceMedium,
				pattern:    regexp.MustCompile(`(?is)(?:incident|event)\s+(?:description|summary|overview):?\s*(.{15,})`),
			},
			{
				id:         "narrative.first-breach-sentence",
				confidence: pipeline.ConfidenceLow,
				pattern:    regexp.MustCompile(`(?i)([^.]{15,400}(?:unauthorized|breach|compromis|ransomware)[^.]{0,400}\.)`),
			},
		},
		categories: map[string]*regexp.Regexp{
			"ssn":            regexp.MustCompile(`(?i)social\s+security\s+number|\bSSN\b`),
			"dob":            regexp.MustCompile(`(?i)date(?:s)?\s+of\s+birth|birth\s*date`),
			"medical":        regexp.MustCompile(`(?i)medical|health\s+(?:record|information|insurance)|diagnos|treatment`),
			"financial":      regexp.MustCompile(`(?i)financial\s+(?:account|information)|bank\s+account|routing\s+number`),
			"payment_card":   regexp.MustCompile(`(?i)credit\s+card|debit\s+card|payment\s+card|card\s+number`),
			"driver_license": regexp.MustCompile(`(?i)driver'?s?\s+licen[cs]e`),
			"passport":       regexp.MustCompile(`(?i)passport\s+number`),
			"email":          regexp.MustCompile(`(?i)e-?mail\s+address`),
			"password":       regexp.MustCompile(`(?i)password|login\s+credential`),
			"name_address":   regexp.MustCompile(`(?i)(?:name|address)(?:es)?\s+(?:and|,)`),
		},
	}
}

// AffectedCount returns the first valid count match by rule order.
func (f *FieldExtractor) AffectedCount(text string) CountResult {
	for _, rule := range f.countRules {
		m := rule.pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		token := m[1]
		// A bare 4-digit year sails through the numeric bounds; reject
		// it so "in 2024" never becomes a count. A thousands separator
		// marks the token as a written-out count, not a year.
		if !strings.Contains(token, ",") && fourDigitYear.MatchString(token) {
			continue
		}
		v, ok := normalize.ParseCount(token)
		if !ok {
			continue
		}
		return CountResult{
			Value: &v,
			Ref: pipeline.FieldRef{
				RuleID:     rule.id,
				RawMatch:   strings.TrimSpace(m[0]),
				Confidence: rule.confidence,
			},
		}
	}
	return CountResult{Ref: pipeline.FieldRef{Confidence: pipeline.ConfidenceNone}}
}

// Narrative returns the first narrative span by rule order, truncated at the
// first sentinel phrase.
func (f *FieldExtractor) Narrative(text string) TextSpanResult {
	for _, rule := range f.spanRules {
		m := rule.pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		span := truncateAtSentinel(m[1])
		span = strings.TrimSpace(span)
		if len(span) < minNarrativeLen {
			continue
		}
		span = firstN(span, maxNarrativeLen)
		return TextSpanResult{
			Value: span,
			Ref: pipeline.FieldRef{
				RuleID:     rule.id,
				RawMatch:   firstN(m[0], 120),
				Confidence: rule.confidence,
			},
		}
	}
	return TextSpanResult{Ref: pipeline.FieldRef{Confidence: pipeline.ConfidenceNone}}
}

// DataCategories scans for canonical compromised-data labels.
func (f *FieldExtractor) DataCategories(text string) CategoryResult {
	var found []string
	for label, pattern := range f.categories {
		if pattern.MatchString(text) {
			found = append(found, label)
		}
	}
	if len(found) == 0 {
		return CategoryResult{Ref: pipeline.FieldRef{Confidence: pipeline.ConfidenceNone}}
	}
	sort.Strings(found)
	return CategoryResult{
		Values: found,
		Ref: pipeline.FieldRef{
			RuleID:     "categories.keywords",
			Confidence: pipeline.ConfidenceHigh,
		},
	}
}

var timelinePatterns = []struct {
	kind    string
	pattern *regexp.Regexp
}{
	{"discovered", regexp.MustCompile(`(?i)(?:discovered|learned\s+of|became\s+aware\s+of)[^.]{0,80}?\bon\s+(\w+\s+\d{1,2},\s+\d{4}|\d{1,2}/\d{1,2}/\d{2,4})`)},
	{"occurred", regexp.MustCompile(`(?i)(?:occurred|took\s+place|began)[^.]{0,80}?\bon\s+(\w+\s+\d{1,2},\s+\d{4}|\d{1,2}/\d{1,2}/\d{2,4})`)},
}

// TimelineDates mines discovery/occurrence dates from the document.
func (f *FieldExtractor) TimelineDates(text string) []DateResult {
	var out []DateResult
	for _, tp := range timelinePatterns {
		m := tp.pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		t, err := dateparse.ParseAny(m[1])
		if err != nil {
			continue
		}
		out = append(out, DateResult{
			Kind:  tp.kind,
			Value: t.UTC(),
			Ref: pipeline.FieldRef{
				RuleID:     "timeline." + tp.kind,
				RawMatch:   strings.TrimSpace(m[0]),
				Confidence: pipeline.ConfidenceMedium,
			},
		})
	}
	return out
}

func truncateAtSentinel(span string) string {
	lower := strings.ToLower(span)
	cut := len(span)
	for _, s := range narrativeSentinels {
		if i := strings.Index(lower, s); i >= 0 && i < cut {
			cut = i
		}
	}
	return span[:cut]
}

func firstN(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
