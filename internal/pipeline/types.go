// Package pipeline defines core types shared across subsystems and drives
// one ingestion run per source: listing fetch, row normalization, document
// enrichment, identity computation, and merge-aware persistence.
package pipeline

import (
	"strings"
	"time"
)

// Confidence ranks how much an extracted value should be trusted.
type Confidence string

// Confidence tiers, lowest to highest. Failed marks an extraction that was
// attempted and could not produce anything usable.
const (
	ConfidenceFailed Confidence = "failed"
	ConfidenceNone   Confidence = "none"
	ConfidenceLow    Confidence = "low"
	ConfidenceMedium Confidence = "medium"
	ConfidenceHigh   Confidence = "high"
)

// Rank orders confidence tiers so merges never downgrade a value.
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceHigh:
		return 4
	case ConfidenceMedium:
		return 3
	case ConfidenceLow:
		return 2
	case ConfidenceNone:
		return 1
	default:
		return 0
	}
}

// Tier selects how much enrichment work a run performs.
type Tier string

// Processing tiers. Basic stops after normalization, Enhanced skips the
// latency-heavy narrative extraction, Full runs everything.
const (
	TierBasic    Tier = "basic"
	TierEnhanced Tier = "enhanced"
	TierFull     Tier = "full"
)

// RawRow is one listing-page row as the source adapter saw it, key by
// column header. Preserved verbatim in the persisted envelope for audit.
type RawRow map[string]string

// ColumnMapping names the raw-row keys that hold each canonical field.
// Multiple candidates per field are tried in order.
type ColumnMapping struct {
	Organization  []string `mapstructure:"organization"`
	ReportedDate  []string `mapstructure:"reported_date"`
	IncidentDate  []string `mapstructure:"incident_date"`
	AffectedCount []string `mapstructure:"affected_count"`
	DocumentURL   []string `mapstructure:"document_url"`
}

// CandidateRecord is one listing row after normalization.
type CandidateRecord struct {
	SourceID         string     `json:"source_id"`
	OrganizationName string     `json:"organization_name"`
	ReportedDate     *time.Time `json:"reported_date,omitempty"`
	IncidentDate     *time.Time `json:"incident_date,omitempty"`
	// RawDateText keeps the unparsed date cell so identity can still be
	// computed when both date parses fail.
	RawDateText   string `json:"raw_date_text,omitempty"`
	AffectedCount *int64 `json:"affected_count,omitempty"`
	// CountProvenance records where the affected count came from
	// ("listing" or a field-extraction rule id).
	CountProvenance string `json:"count_provenance,omitempty"`
	DocumentURL     string `json:"document_url,omitempty"`
	SourceRow       RawRow `json:"source_row"`
}

// BestDate returns the reported date, falling back to the incident date,
// falling back to the raw unparsed date text.
func (c CandidateRecord) BestDate() string {
	if c.ReportedDate != nil {
		return c.ReportedDate.Format("2006-01-02")
	}
	if c.IncidentDate != nil {
		return c.IncidentDate.Format("2006-01-02")
	}
	return strings.TrimSpace(c.RawDateText)
}

// EnrichedRecord is a CandidateRecord plus document-derived fields. A failed
// enrichment stage adds to EnhancementErrors; it never clears candidate
// fields.
type EnrichedRecord struct {
	CandidateRecord

	ExtractedText        string              `json:"extracted_text,omitempty"`
	TextConfidence       Confidence          `json:"text_confidence,omitempty"`
	DataCategories       []string            `json:"data_categories,omitempty"`
	NarrativeExcerpt     string              `json:"narrative_excerpt,omitempty"`
	ExtractionConfidence Confidence          `json:"extraction_confidence,omitempty"`
	FieldAudit           map[string]FieldRef `json:"field_audit,omitempty"`
	EnhancementErrors    []string            `json:"enhancement_errors,omitempty"`
	ArchiveURI           string              `json:"archive_uri,omitempty"`
}

// FieldRef records which rule produced a field value and what it matched,
// so an auditor can see exactly why a value was chosen.
type FieldRef struct {
	RuleID     string     `json:"rule_id"`
	RawMatch   string     `json:"raw_match"`
	Confidence Confidence `json:"confidence"`
}

// Envelope is the three-tier raw-data envelope persisted with each record.
type Envelope struct {
	// Source is the verbatim listing row (tier 1).
	Source RawRow `json:"source"`
	// Derived holds computed metadata: identity, run id, enhancement
	// status and errors (tier 2).
	Derived map[string]any `json:"derived"`
	// Analysis holds document-analysis output: backend used, field audit,
	// archive URI (tier 3).
	Analysis map[string]any `json:"analysis"`
}

// PersistedRecord is an EnrichedRecord plus store-assigned fields.
type PersistedRecord struct {
	EnrichedRecord

	ID          int64     `json:"id"`
	Key         string    `json:"key"`
	Identity    string    `json:"identity"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
	Raw         Envelope  `json:"raw"`
}

// UpsertOutcome reports what the store did with a record.
type UpsertOutcome string

// Upsert outcomes.
const (
	OutcomeInserted  UpsertOutcome = "inserted"
	OutcomeUpdated   UpsertOutcome = "updated"
	OutcomeUnchanged UpsertOutcome = "unchanged"
)

// RunCounts tallies per-run row outcomes for the run report.
type RunCounts struct {
	Processed         int `json:"processed"`
	Inserted          int `json:"inserted"`
	Updated           int `json:"updated"`
	Unchanged         int `json:"unchanged"`
	Discarded         int `json:"discarded"`
	SkippedRecency    int `json:"skipped_recency"`
	SkippedEnrichment int `json:"skipped_enrichment"`
	StoreErrors       int `json:"store_errors"`
}

// RunReport summarizes one orchestrator run for one source.
type RunReport struct {
	RunID      string    `json:"run_id"`
	SourceID   string    `json:"source_id"`
	SourceName string    `json:"source_name"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Counts     RunCounts `json:"counts"`
	// Errors lists recoverable enrichment failures for post-hoc review.
	Errors []string `json:"errors,omitempty"`
}
