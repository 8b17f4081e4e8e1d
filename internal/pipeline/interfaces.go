package pipeline

import (
	"context"
	"time"
)

// SourceAdapter supplies everything site-specific: the listing page, the
// column mapping, and the companion-document link filter. The core never
// embeds per-site selectors.
type SourceAdapter interface {
	SourceID() string
	Name() string
	FetchListing(ctx context.Context) ([]RawRow, error)
	Mapping() ColumnMapping
	// AcceptDocument filters companion-document links, excluding
	// irrelevant files such as unrelated annual reports.
	AcceptDocument(href, linkText string) bool
}

// Store exposes the three persistence primitives the pipeline needs.
// FindByKey returns nil when no record matches.
type Store interface {
	FindByKey(ctx context.Context, key string) (*PersistedRecord, error)
	Insert(ctx context.Context, rec PersistedRecord) (int64, error)
	Update(ctx context.Context, id int64, rec PersistedRecord) error
}

// Dispatcher consumes newly inserted records, e.g. to publish notifications.
type Dispatcher interface {
	RecordInserted(ctx context.Context, rec PersistedRecord) error
}

// DocumentFetcher retrieves companion-document bytes, applying the
// per-source rate limit and retry policy.
type DocumentFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// TextExtractor turns document bytes into plain text with a confidence tag.
type TextExtractor interface {
	Extract(data []byte) (string, Confidence)
}

// RowNormalizer maps a raw listing row into the canonical record shape.
// Returns an error wrapping ErrDiscard when the row lacks the minimum
// required fields.
type RowNormalizer interface {
	Normalize(sourceID string, row RawRow, mapping ColumnMapping) (CandidateRecord, error)
}

// FieldsResult bundles every field-extraction outcome for one document.
type FieldsResult struct {
	AffectedCount  *int64
	CountRef       FieldRef
	Narrative      string
	NarrativeRef   FieldRef
	Categories     []string
	CategoriesRef  FieldRef
	DiscoveredDate *time.Time
	OccurredDate   *time.Time
}

// FieldMiner runs the confidence-ranked pattern rules over extracted text.
type FieldMiner interface {
	Mine(text string, full bool) FieldsResult
}

// Archive stores raw fetched document bytes and returns a URI.
type Archive interface {
	Put(ctx context.Context, path, contentType string, data []byte) (string, error)
}

// Clock returns the current time (swapped for a fake in tests).
type Clock interface {
	Now() time.Time
}
