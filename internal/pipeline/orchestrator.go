package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BD4L/breachwatch/internal/identity"
	"github.com/BD4L/breachwatch/internal/metrics"
)

// Stored extracted text is sampled to keep row sizes bounded.
const maxStoredText = 20000

// OrchestratorConfig controls one source's run behavior.
type OrchestratorConfig struct {
	Tier    Tier
	Workers int
	// RecencyCutoff drops rows whose best parsed date is older. Zero
	// disables the filter. Rows with no parsed date are never filtered.
	RecencyCutoff time.Time
}

// Orchestrator drives one full ingestion run for one source. Multiple
// orchestrators may run concurrently; each source's network traffic is
// rate-limited by its own fetcher, so there is no shared mutable state
// between sources beyond the store.
type Orchestrator struct {
	adapter    SourceAdapter
	normalizer RowNormalizer
	fetcher    DocumentFetcher
	texts      TextExtractor
	fields     FieldMiner
	upserter   *Upserter
	dispatcher Dispatcher
	archive    Archive
	clock      Clock
	cfg        OrchestratorConfig
	logger     *zap.Logger
}

// NewOrchestrator wires a run. Dispatcher and archive may be nil.
func NewOrchestrator(
	adapter SourceAdapter,
	normalizer RowNormalizer,
	fetcher DocumentFetcher,
	texts TextExtractor,
	fields FieldMiner,
	upserter *Upserter,
	dispatcher Dispatcher,
	archive Archive,
	clock Clock,
	cfg OrchestratorConfig,
	logger *zap.Logger,
) *Orchestrator {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.Tier == "" {
		cfg.Tier = TierFull
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{
		adapter:    adapter,
		normalizer: normalizer,
		fetcher:    fetcher,
		texts:      texts,
		fields:     fields,
		upserter:   upserter,
		dispatcher: dispatcher,
		archive:    archive,
		clock:      clock,
		cfg:        cfg,
		logger:     logger,
	}
}

// Run fetches the listing and pushes every row through the pipeline. A
// failed listing fetch fails the run; everything past normalization
// degrades per row instead of aborting.
func (o *Orchestrator) Run(ctx context.Context) (RunReport, error) {
	report := RunReport{
		RunID:      uuid.NewString(),
		SourceID:   o.adapter.SourceID(),
		SourceName: o.adapter.Name(),
		StartedAt:  o.clock.Now().UTC(),
	}
	logger := o.logger.With(
		zap.String("run_id", report.RunID),
		zap.String("source_id", report.SourceID),
	)

	rows, err := o.adapter.FetchListing(ctx)
	if err != nil {
		report.FinishedAt = o.clock.Now().UTC()
		return report, fmt.Errorf("fetch listing: %w", err)
	}
	logger.Info("listing fetched", zap.Int("rows", len(rows)))

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Workers)
	for _, row := range rows {
		row := row
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			outcome := o.processRow(gctx, logger, row)
			mu.Lock()
			outcome.apply(&report)
			mu.Unlock()
			metrics.ObserveRow(report.SourceID, outcome.label())
			return nil
		})
	}
	runErr := g.Wait()

	report.FinishedAt = o.clock.Now().UTC()
	metrics.ObserveRunDuration(report.SourceID, report.FinishedAt.Sub(report.StartedAt))
	logger.Info("run finished",
		zap.Int("processed", report.Counts.Processed),
		zap.Int("inserted", report.Counts.Inserted),
		zap.Int("updated", report.Counts.Updated),
		zap.Int("unchanged", report.Counts.Unchanged),
		zap.Int("discarded", report.Counts.Discarded),
		zap.Int("skipped_enrichment", report.Counts.SkippedEnrichment),
		zap.Int("store_errors", report.Counts.StoreErrors),
	)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return report, runErr
	}
	return report, nil
}

// rowOutcome is the terminal disposition of one row.
type rowOutcome struct {
	discarded      bool
	skippedRecency bool
	skippedEnrich  bool
	storeError     bool
	upsert         UpsertOutcome
	errs           []string
}

func (r rowOutcome) label() string {
	switch {
	case r.discarded:
		return "discarded"
	case r.skippedRecency:
		return "skipped_recency"
	case r.storeError:
		return "store_error"
	case r.upsert != "":
		return string(r.upsert)
	default:
		return "unknown"
	}
}

func (r rowOutcome) apply(report *RunReport) {
	report.Counts.Processed++
	report.Errors = append(report.Errors, r.errs...)
	switch {
	case r.discarded:
		report.Counts.Discarded++
		return
	case r.skippedRecency:
		report.Counts.SkippedRecency++
		return
	}
	if r.skippedEnrich {
		report.Counts.SkippedEnrichment++
	}
	switch {
	case r.storeError:
		report.Counts.StoreErrors++
	case r.upsert == OutcomeInserted:
		report.Counts.Inserted++
	case r.upsert == OutcomeUpdated:
		report.Counts.Updated++
	case r.upsert == OutcomeUnchanged:
		report.Counts.Unchanged++
	}
}

func (o *Orchestrator) processRow(ctx context.Context, logger *zap.Logger, row RawRow) rowOutcome {
	var out rowOutcome

	cand, err := o.normalizer.Normalize(o.adapter.SourceID(), row, o.adapter.Mapping())
	if err != nil {
		if errors.Is(err, ErrDiscard) {
			logger.Debug("row discarded", zap.Error(err))
			out.discarded = true
			return out
		}
		out.discarded = true
		out.errs = append(out.errs, fmt.Sprintf("normalize: %v", err))
		return out
	}

	if o.tooOld(cand) {
		out.skippedRecency = true
		return out
	}

	enriched := o.enrich(ctx, logger, cand, &out)

	token := identity.Compute(cand.SourceID, cand.OrganizationName, cand.BestDate())
	key := cand.DocumentURL
	if key == "" {
		key = identity.SyntheticKey(cand.SourceID, token)
	}
	rec := PersistedRecord{
		EnrichedRecord: enriched,
		Key:            key,
		Identity:       token,
		Raw:            o.buildEnvelope(enriched, token),
	}

	outcome, err := o.upserter.Upsert(ctx, rec)
	if err != nil {
		logger.Error("upsert failed",
			zap.String("key", key),
			zap.String("organization", cand.OrganizationName),
			zap.Error(err),
		)
		out.storeError = true
		out.errs = append(out.errs, err.Error())
		return out
	}
	out.upsert = outcome

	if outcome == OutcomeInserted && o.dispatcher != nil {
		if err := o.dispatcher.RecordInserted(ctx, rec); err != nil {
			// Notification failure never affects persistence.
			metrics.ObserveDispatchFailure(cand.SourceID)
			logger.Warn("dispatch failed", zap.String("key", key), zap.Error(err))
			out.errs = append(out.errs, fmt.Sprintf("dispatch: %v", err))
		}
	}
	return out
}

// enrich runs document resolution, text extraction, and field extraction
// per the configured tier. Every failure degrades: it records an
// enhancement error and returns whatever was already known.
func (o *Orchestrator) enrich(ctx context.Context, logger *zap.Logger, cand CandidateRecord, out *rowOutcome) EnrichedRecord {
	enriched := EnrichedRecord{
		CandidateRecord:      cand,
		ExtractionConfidence: ConfidenceNone,
	}
	addErr := func(stage string, err error) {
		e := &EnrichmentError{Stage: stage, Err: err}
		enriched.EnhancementErrors = append(enriched.EnhancementErrors, e.Error())
		out.errs = append(out.errs, fmt.Sprintf("%s [%s]: %s", cand.OrganizationName, cand.SourceID, e.Error()))
	}

	if o.cfg.Tier == TierBasic {
		return enriched
	}
	if cand.DocumentURL == "" || !o.adapter.AcceptDocument(cand.DocumentURL, "") {
		return enriched
	}

	data, err := o.fetcher.Fetch(ctx, cand.DocumentURL)
	if err != nil {
		// DocumentURL is preserved so a later run can retry the fetch.
		addErr("document fetch", err)
		out.skippedEnrich = true
		return enriched
	}

	if o.archive != nil {
		uri, err := o.archive.Put(ctx, o.archivePath(cand), contentTypeFor(cand.DocumentURL), data)
		if err != nil {
			addErr("document archive", err)
		} else {
			enriched.ArchiveURI = uri
		}
	}

	text, conf := o.texts.Extract(data)
	enriched.TextConfidence = conf
	enriched.ExtractionConfidence = conf
	metrics.ObserveExtractionConfidence(cand.SourceID, string(conf))
	if conf == ConfidenceFailed {
		addErr("text extraction", errors.New("no backend produced text"))
		out.skippedEnrich = true
		return enriched
	}
	enriched.ExtractedText = sample(text, maxStoredText)

	fields := o.fields.Mine(text, o.cfg.Tier == TierFull)
	enriched.FieldAudit = map[string]FieldRef{}

	if fields.AffectedCount != nil && enriched.AffectedCount == nil {
		enriched.AffectedCount = fields.AffectedCount
		enriched.CountProvenance = fields.CountRef.RuleID
	}
	if fields.CountRef.RuleID != "" {
		enriched.FieldAudit["affected_count"] = fields.CountRef
	}
	if len(fields.Categories) > 0 {
		enriched.DataCategories = fields.Categories
		enriched.FieldAudit["data_categories"] = fields.CategoriesRef
	}
	if fields.Narrative != "" {
		enriched.NarrativeExcerpt = fields.Narrative
		enriched.FieldAudit["narrative"] = fields.NarrativeRef
	}
	if fields.OccurredDate != nil && enriched.IncidentDate == nil {
		enriched.IncidentDate = fields.OccurredDate
	}
	if fields.DiscoveredDate != nil && enriched.IncidentDate == nil {
		enriched.IncidentDate = fields.DiscoveredDate
	}

	logger.Debug("row enriched",
		zap.String("organization", cand.OrganizationName),
		zap.String("confidence", string(conf)),
	)
	return enriched
}

func (o *Orchestrator) tooOld(cand CandidateRecord) bool {
	if o.cfg.RecencyCutoff.IsZero() {
		return false
	}
	best := cand.ReportedDate
	if best == nil {
		best = cand.IncidentDate
	}
	if best == nil {
		// Unparsable dates are kept and flagged, never filtered.
		return false
	}
	return best.Before(o.cfg.RecencyCutoff)
}

func (o *Orchestrator) buildEnvelope(rec EnrichedRecord, token string) Envelope {
	derived := map[string]any{
		"identity":  token,
		"best_date": rec.BestDate(),
	}
	if len(rec.EnhancementErrors) > 0 {
		derived["enhancement_status"] = "degraded"
		derived["enhancement_errors"] = rec.EnhancementErrors
	} else {
		derived["enhancement_status"] = "ok"
	}
	analysis := map[string]any{}
	if rec.TextConfidence != "" {
		analysis["text_confidence"] = string(rec.TextConfidence)
	}
	if rec.ArchiveURI != "" {
		analysis["archive_uri"] = rec.ArchiveURI
	}
	if len(rec.FieldAudit) > 0 {
		analysis["field_audit"] = rec.FieldAudit
	}
	return Envelope{
		Source:   rec.SourceRow,
		Derived:  derived,
		Analysis: analysis,
	}
}

func (o *Orchestrator) archivePath(cand CandidateRecord) string {
	token := identity.Compute(cand.SourceID, cand.OrganizationName, cand.BestDate())
	ext := strings.ToLower(path.Ext(cand.DocumentURL))
	if ext == "" || len(ext) > 5 {
		ext = ".bin"
	}
	return fmt.Sprintf("%s/%s%s", cand.SourceID, token, ext)
}

func contentTypeFor(url string) string {
	switch strings.ToLower(path.Ext(url)) {
	case ".pdf":
		return "application/pdf"
	case ".html", ".htm":
		return "text/html; charset=utf-8"
	default:
		return "application/octet-stream"
	}
}

func sample(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	return text[:limit]
}
