package pipeline

import (
	"context"
)

// Upserter applies the strictly additive merge rule against the store:
// repeated runs over the same listing are idempotent, and later re-runs can
// fill gaps left by transient failures without duplicating the event.
type Upserter struct {
	store Store
	clock Clock
}

// NewUpserter builds an Upserter.
func NewUpserter(store Store, clock Clock) *Upserter {
	return &Upserter{store: store, clock: clock}
}

// Upsert looks the record up by its storage key and inserts or merges.
func (u *Upserter) Upsert(ctx context.Context, rec PersistedRecord) (UpsertOutcome, error) {
	existing, err := u.store.FindByKey(ctx, rec.Key)
	if err != nil {
		return "", &StoreError{Op: "find", Err: err}
	}

	now := u.clock.Now().UTC()
	if existing == nil {
		rec.FirstSeenAt = now
		rec.LastSeenAt = now
		id, err := u.store.Insert(ctx, rec)
		if err != nil {
			return "", &StoreError{Op: "insert", Err: err}
		}
		rec.ID = id
		return OutcomeInserted, nil
	}

	merged, changed := merge(*existing, rec)
	if !changed {
		return OutcomeUnchanged, nil
	}
	merged.LastSeenAt = now
	if err := u.store.Update(ctx, existing.ID, merged); err != nil {
		return "", &StoreError{Op: "update", Err: err}
	}
	return OutcomeUpdated, nil
}

// merge overwrites a field only when the existing value is absent and the
// new one is present, or when the existing enrichment recorded errors and
// the new attempt succeeded. It never downgrades a higher-confidence field.
func merge(existing, incoming PersistedRecord) (PersistedRecord, bool) {
	out := existing
	changed := false

	// Error→success transition: a clean re-run may replace enrichment
	// output from a run that recorded failures. The incoming record must
	// show a successful attempt; a run that never tried (basic tier, or a
	// document link filtered out) carries no errors either and must not
	// clear the stored trail.
	attempted := incoming.ExtractedText != "" ||
		incoming.ExtractionConfidence.Rank() > ConfidenceNone.Rank()
	errToSuccess := len(existing.EnhancementErrors) > 0 &&
		len(incoming.EnhancementErrors) == 0 && attempted

	setStr := func(dst *string, src string) {
		if src == "" {
			return
		}
		if *dst == "" || (errToSuccess && *dst != src) {
			*dst = src
			changed = true
		}
	}

	setStr(&out.OrganizationName, incoming.OrganizationName)
	setStr(&out.NarrativeExcerpt, incoming.NarrativeExcerpt)
	setStr(&out.DocumentURL, incoming.DocumentURL)
	setStr(&out.ArchiveURI, incoming.ArchiveURI)
	setStr(&out.RawDateText, incoming.RawDateText)

	if incoming.ReportedDate != nil && out.ReportedDate == nil {
		out.ReportedDate = incoming.ReportedDate
		changed = true
	}
	if incoming.IncidentDate != nil && out.IncidentDate == nil {
		out.IncidentDate = incoming.IncidentDate
		changed = true
	}
	if incoming.AffectedCount != nil && out.AffectedCount == nil {
		out.AffectedCount = incoming.AffectedCount
		out.CountProvenance = incoming.CountProvenance
		changed = true
	}
	if len(incoming.DataCategories) > 0 && len(out.DataCategories) == 0 {
		out.DataCategories = incoming.DataCategories
		changed = true
	}
	if incoming.ExtractedText != "" && (out.ExtractedText == "" || errToSuccess) {
		if out.ExtractedText != incoming.ExtractedText {
			out.ExtractedText = incoming.ExtractedText
			out.TextConfidence = incoming.TextConfidence
			changed = true
		}
	}

	// Confidence only ever moves up.
	if incoming.ExtractionConfidence.Rank() > out.ExtractionConfidence.Rank() {
		out.ExtractionConfidence = incoming.ExtractionConfidence
		changed = true
	}

	if errToSuccess {
		out.EnhancementErrors = nil
		for k, v := range incoming.FieldAudit {
			if out.FieldAudit == nil {
				out.FieldAudit = map[string]FieldRef{}
			}
			out.FieldAudit[k] = v
		}
		out.Raw.Analysis = incoming.Raw.Analysis
		changed = true
	} else {
		for k, v := range incoming.FieldAudit {
			if _, ok := out.FieldAudit[k]; !ok {
				if out.FieldAudit == nil {
					out.FieldAudit = map[string]FieldRef{}
				}
				out.FieldAudit[k] = v
				changed = true
			}
		}
	}

	return out, changed
}
