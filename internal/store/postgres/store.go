// Package postgres provides the Postgres-backed persistent store.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/BD4L/breachwatch/internal/pipeline"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// Store persists breach records in the breach_records table.
//
// Schema:
//
//	CREATE TABLE breach_records (
//	    id BIGSERIAL PRIMARY KEY,
//	    record_key TEXT NOT NULL UNIQUE,
//	    identity TEXT NOT NULL,
//	    source_id TEXT NOT NULL,
//	    organization_name TEXT NOT NULL,
//	    reported_date DATE,
//	    incident_date DATE,
//	    raw_date_text TEXT,
//	    affected_count BIGINT,
//	    count_provenance TEXT,
//	    document_url TEXT,
//	    extracted_text TEXT,
//	    text_confidence TEXT,
//	    data_categories JSONB,
//	    narrative_excerpt TEXT,
//	    extraction_confidence TEXT,
//	    enhancement_errors JSONB,
//	    archive_uri TEXT,
//	    raw_source JSONB NOT NULL,
//	    raw_derived JSONB NOT NULL,
//	    raw_analysis JSONB NOT NULL,
//	    first_seen_at TIMESTAMPTZ NOT NULL,
//	    last_seen_at TIMESTAMPTZ NOT NULL
//	);
//	CREATE INDEX breach_records_identity_idx ON breach_records (identity);
type Store struct {
	pool pgxPool
}

// New connects a pool and returns the store.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// NewWithPool constructs a store from an existing pool (primarily for
// testing with pgxmock).
func NewWithPool(pool pgxPool) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

const selectColumns = `
	id, record_key, identity, source_id, organization_name,
	reported_date, incident_date, raw_date_text,
	affected_count, count_provenance, document_url,
	extracted_text, text_confidence, data_categories,
	narrative_excerpt, extraction_confidence, enhancement_errors,
	archive_uri, raw_source, raw_derived, raw_analysis,
	first_seen_at, last_seen_at`

// FindByKey implements pipeline.Store. Returns nil when no record matches.
func (s *Store) FindByKey(ctx context.Context, key string) (*pipeline.PersistedRecord, error) {
	query := `SELECT` + selectColumns + ` FROM breach_records WHERE record_key = $1`
	row := s.pool.QueryRow(ctx, query, key)

	var (
		rec        pipeline.PersistedRecord
		categories []byte
		enhErrors  []byte
		rawSource  []byte
		rawDerived []byte
		rawAnalyse []byte
	)
	err := row.Scan(
		&rec.ID, &rec.Key, &rec.Identity, &rec.SourceID, &rec.OrganizationName,
		&rec.ReportedDate, &rec.IncidentDate, &rec.RawDateText,
		&rec.AffectedCount, &rec.CountProvenance, &rec.DocumentURL,
		&rec.ExtractedText, &rec.TextConfidence, &categories,
		&rec.NarrativeExcerpt, &rec.ExtractionConfidence, &enhErrors,
		&rec.ArchiveURI, &rawSource, &rawDerived, &rawAnalyse,
		&rec.FirstSeenAt, &rec.LastSeenAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find by key: %w", err)
	}

	if err := unmarshalInto(categories, &rec.DataCategories); err != nil {
		return nil, err
	}
	if err := unmarshalInto(enhErrors, &rec.EnhancementErrors); err != nil {
		return nil, err
	}
	if err := unmarshalInto(rawSource, &rec.Raw.Source); err != nil {
		return nil, err
	}
	if err := unmarshalInto(rawDerived, &rec.Raw.Derived); err != nil {
		return nil, err
	}
	if err := unmarshalInto(rawAnalyse, &rec.Raw.Analysis); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Insert implements pipeline.Store.
func (s *Store) Insert(ctx context.Context, rec pipeline.PersistedRecord) (int64, error) {
	cols, err := marshalJSONColumns(rec)
	if err != nil {
		return 0, err
	}
	query := `
INSERT INTO breach_records (
	record_key, identity, source_id, organization_name,
	reported_date, incident_date, raw_date_text,
	affected_count, count_provenance, document_url,
	extracted_text, text_confidence, data_categories,
	narrative_excerpt, extraction_confidence, enhancement_errors,
	archive_uri, raw_source, raw_derived, raw_analysis,
	first_seen_at, last_seen_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
RETURNING id`

	var id int64
	err = s.pool.QueryRow(ctx, query,
		rec.Key, rec.Identity, rec.SourceID, rec.OrganizationName,
		rec.ReportedDate, rec.IncidentDate, rec.RawDateText,
		rec.AffectedCount, rec.CountProvenance, rec.DocumentURL,
		rec.ExtractedText, rec.TextConfidence, cols.categories,
		rec.NarrativeExcerpt, rec.ExtractionConfidence, cols.enhErrors,
		rec.ArchiveURI, cols.rawSource, cols.rawDerived, cols.rawAnalysis,
		rec.FirstSeenAt, rec.LastSeenAt,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert record: %w", err)
	}
	return id, nil
}

// Update implements pipeline.Store.
func (s *Store) Update(ctx context.Context, id int64, rec pipeline.PersistedRecord) error {
	cols, err := marshalJSONColumns(rec)
	if err != nil {
		return err
	}
	query := `
UPDATE breach_records SET
	organization_name = $1,
	reported_date = $2,
	incident_date = $3,
	raw_date_text = $4,
	affected_count = $5,
	count_provenance = $6,
	document_url = $7,
	extracted_text = $8,
	text_confidence = $9,
	data_categories = $10,
	narrative_excerpt = $11,
	extraction_confidence = $12,
	enhancement_errors = $13,
	archive_uri = $14,
	raw_derived = $15,
	raw_analysis = $16,
	last_seen_at = $17
WHERE id = $18`

	tag, err := s.pool.Exec(ctx, query,
		rec.OrganizationName,
		rec.ReportedDate, rec.IncidentDate, rec.RawDateText,
		rec.AffectedCount, rec.CountProvenance, rec.DocumentURL,
		rec.ExtractedText, rec.TextConfidence, cols.categories,
		rec.NarrativeExcerpt, rec.ExtractionConfidence, cols.enhErrors,
		rec.ArchiveURI, cols.rawDerived, cols.rawAnalysis,
		rec.LastSeenAt,
		id,
	)
	if err != nil {
		return fmt.Errorf("update record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update record %d: no row matched", id)
	}
	return nil
}

type jsonColumns struct {
	categories  []byte
	enhErrors   []byte
	rawSource   []byte
	rawDerived  []byte
	rawAnalysis []byte
}

func marshalJSONColumns(rec pipeline.PersistedRecord) (jsonColumns, error) {
	var cols jsonColumns
	var err error
	if cols.categories, err = json.Marshal(rec.DataCategories); err != nil {
		return cols, fmt.Errorf("marshal data_categories: %w", err)
	}
	if cols.enhErrors, err = json.Marshal(rec.EnhancementErrors); err != nil {
		return cols, fmt.Errorf("marshal enhancement_errors: %w", err)
	}
	if cols.rawSource, err = json.Marshal(rec.Raw.Source); err != nil {
		return cols, fmt.Errorf("marshal raw_source: %w", err)
	}
	if cols.rawDerived, err = json.Marshal(rec.Raw.Derived); err != nil {
		return cols, fmt.Errorf("marshal raw_derived: %w", err)
	}
	if cols.rawAnalysis, err = json.Marshal(rec.Raw.Analysis); err != nil {
		return cols, fmt.Errorf("marshal raw_analysis: %w", err)
	}
	return cols, nil
}

func unmarshalInto(data []byte, dst any) error {
	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("unmarshal json column: %w", err)
	}
	return nil
}
