package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

type fakeStore struct {
	byKey   map[string]*PersistedRecord
	nextID  int64
	inserts int
	updates int
}

func newFakeStore() *fakeStore {
	return &fakeStore{byKey: map[string]*PersistedRecord{}}
}

func (s *fakeStore) FindByKey(_ context.Context, key string) (*PersistedRecord, error) {
	rec, ok := s.byKey[key]
	if !ok {
		return nil, nil
	}
	out := *rec
	return &out, nil
}

func (s *fakeStore) Insert(_ context.Context, rec PersistedRecord) (int64, error) {
	s.nextID++
	s.inserts++
	rec.ID = s.nextID
	stored := rec
	s.byKey[rec.Key] = &stored
	return rec.ID, nil
}

func (s *fakeStore) Update(_ context.Context, id int64, rec PersistedRecord) error {
	s.updates++
	rec.ID = id
	stored := rec
	s.byKey[rec.Key] = &stored
	return nil
}

func baseRecord() PersistedRecord {
	reported := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	return PersistedRecord{
		Key:      "http://x/acme.pdf",
		Identity: "token123",
		EnrichedRecord: EnrichedRecord{
			CandidateRecord: CandidateRecord{
				SourceID:         "ag-test",
				OrganizationName: "Acme Inc",
				ReportedDate:     &reported,
				DocumentURL:      "http://x/acme.pdf",
			},
			ExtractionConfidence: ConfidenceNone,
		},
	}
}

func TestUpsert_InsertThenUnchanged(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	u := NewUpserter(store, &fakeClock{now: time.Unix(100, 0)})
	ctx := context.Background()

	outcome, err := u.Upsert(ctx, baseRecord())
	require.NoError(t, err)
	require.Equal(t, OutcomeInserted, outcome)
	require.Equal(t, 1, store.inserts)

	outcome, err = u.Upsert(ctx, baseRecord())
	require.NoError(t, err)
	require.Equal(t, OutcomeUnchanged, outcome)
	require.Equal(t, 1, store.inserts)
	require.Equal(t, 0, store.updates)
}

func TestUpsert_AdditiveMergeFillsGaps(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	u := NewUpserter(store, &fakeClock{now: time.Unix(100, 0)})
	ctx := context.Background()

	_, err := u.Upsert(ctx, baseRecord())
	require.NoError(t, err)

	count := int64(1234)
	enriched := baseRecord()
	enriched.AffectedCount = &count
	enriched.NarrativeExcerpt = "unauthorized access to a file server"
	enriched.ExtractionConfidence = ConfidenceHigh

	outcome, err := u.Upsert(ctx, enriched)
	require.NoError(t, err)
	require.Equal(t, OutcomeUpdated, outcome)

	stored := store.byKey[enriched.Key]
	require.NotNil(t, stored.AffectedCount)
	require.EqualValues(t, 1234, *stored.AffectedCount)
	require.Equal(t, ConfidenceHigh, stored.ExtractionConfidence)
}

func TestUpsert_NeverOverwritesWithEmpty(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	u := NewUpserter(store, &fakeClock{now: time.Unix(100, 0)})
	ctx := context.Background()

	count := int64(1234)
	full := baseRecord()
	full.AffectedCount = &count
	full.NarrativeExcerpt = "a detailed narrative of the incident"
	full.ExtractionConfidence = ConfidenceHigh
	_, err := u.Upsert(ctx, full)
	require.NoError(t, err)

	sparse := baseRecord()
	outcome, err := u.Upsert(ctx, sparse)
	require.NoError(t, err)
	require.Equal(t, OutcomeUnchanged, outcome)

	stored := store.byKey[full.Key]
	require.NotNil(t, stored.AffectedCount)
	require.Equal(t, "a detailed narrative of the incident", stored.NarrativeExcerpt)
	require.Equal(t, ConfidenceHigh, stored.ExtractionConfidence)
}

func TestUpsert_ErrorToSuccessTransitionReplacesEnrichment(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	u := NewUpserter(store, &fakeClock{now: time.Unix(100, 0)})
	ctx := context.Background()

	degraded := baseRecord()
	degraded.EnhancementErrors = []string{"document fetch: http status 502"}
	degraded.ExtractionConfidence = ConfidenceNone
	_, err := u.Upsert(ctx, degraded)
	require.NoError(t, err)

	clean := baseRecord()
	clean.ExtractedText = "Approximately 1,234 individuals were affected."
	clean.TextConfidence = ConfidenceHigh
	clean.ExtractionConfidence = ConfidenceHigh
	outcome, err := u.Upsert(ctx, clean)
	require.NoError(t, err)
	require.Equal(t, OutcomeUpdated, outcome)

	stored := store.byKey[clean.Key]
	require.Empty(t, stored.EnhancementErrors)
	require.Equal(t, ConfidenceHigh, stored.ExtractionConfidence)
	require.Contains(t, stored.ExtractedText, "1,234 individuals")
}

func TestUpsert_NoAttemptRunKeepsErrorTrail(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	u := NewUpserter(store, &fakeClock{now: time.Unix(100, 0)})
	ctx := context.Background()

	degraded := baseRecord()
	degraded.EnhancementErrors = []string{"document fetch: http status 502"}
	degraded.Raw.Analysis = map[string]any{"text_confidence": "low"}
	_, err := u.Upsert(ctx, degraded)
	require.NoError(t, err)

	// A basic-tier run carries no errors because it never tried; it must
	// not count as an error-to-success transition.
	plain := baseRecord()
	outcome, err := u.Upsert(ctx, plain)
	require.NoError(t, err)
	require.Equal(t, OutcomeUnchanged, outcome)

	stored := store.byKey[plain.Key]
	require.Equal(t, []string{"document fetch: http status 502"}, stored.EnhancementErrors)
	require.Equal(t, "low", stored.Raw.Analysis["text_confidence"])
}

func TestUpsert_ConfidenceNeverDowngrades(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	u := NewUpserter(store, &fakeClock{now: time.Unix(100, 0)})
	ctx := context.Background()

	high := baseRecord()
	high.ExtractedText = "full text"
	high.TextConfidence = ConfidenceHigh
	high.ExtractionConfidence = ConfidenceHigh
	_, err := u.Upsert(ctx, high)
	require.NoError(t, err)

	low := baseRecord()
	low.ExtractedText = "garbled"
	low.TextConfidence = ConfidenceLow
	low.ExtractionConfidence = ConfidenceLow
	outcome, err := u.Upsert(ctx, low)
	require.NoError(t, err)
	require.Equal(t, OutcomeUnchanged, outcome)

	stored := store.byKey[high.Key]
	require.Equal(t, ConfidenceHigh, stored.ExtractionConfidence)
	require.Equal(t, "full text", stored.ExtractedText)
}
