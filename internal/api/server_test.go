package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BD4L/breachwatch/internal/pipeline"
)

func newTestServer(runs *pipeline.RunLog) *Server {
	sources := []SourceStatus{
		{ID: "ag-sample", Name: "Sample AG", ListingURL: "https://example.gov/breaches"},
	}
	return NewServer(runs, sources, zap.NewNop())
}

func sampleReport(runID string) pipeline.RunReport {
	return pipeline.RunReport{
		RunID:      runID,
		SourceID:   "ag-sample",
		SourceName: "Sample AG",
		StartedAt:  time.Unix(100, 0).UTC(),
		FinishedAt: time.Unix(160, 0).UTC(),
		Counts: pipeline.RunCounts{
			Processed: 10,
			Inserted:  7,
			Updated:   2,
			Unchanged: 1,
		},
	}
}

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	server := newTestServer(pipeline.NewRunLog(10))
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ok")
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_ListRuns(t *testing.T) {
	t.Parallel()

	runs := pipeline.NewRunLog(10)
	runs.Add(sampleReport("run-1"))
	runs.Add(sampleReport("run-2"))
	server := newTestServer(runs)

	req := httptest.NewRequest(http.MethodGet, "/v1/runs", nil)
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var payload struct {
		Runs []pipeline.RunReport `json:"runs"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Runs, 2)
	require.Equal(t, "run-1", payload.Runs[0].RunID)
	require.Equal(t, 7, payload.Runs[0].Counts.Inserted)
}

func TestServer_LatestRun(t *testing.T) {
	t.Parallel()

	runs := pipeline.NewRunLog(10)
	runs.Add(sampleReport("run-1"))
	runs.Add(sampleReport("run-2"))
	server := newTestServer(runs)

	req := httptest.NewRequest(http.MethodGet, "/v1/runs/latest", nil)
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var report pipeline.RunReport
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &report))
	require.Equal(t, "run-2", report.RunID)
}

func TestServer_LatestRun_EmptyLog(t *testing.T) {
	t.Parallel()

	server := newTestServer(pipeline.NewRunLog(10))
	req := httptest.NewRequest(http.MethodGet, "/v1/runs/latest", nil)
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "no runs recorded")
}

func TestServer_ListSources(t *testing.T) {
	t.Parallel()

	server := newTestServer(pipeline.NewRunLog(10))
	req := httptest.NewRequest(http.MethodGet, "/v1/sources", nil)
	rec := httptest.NewRecorder()

	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var payload struct {
		Sources []SourceStatus `json:"sources"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload.Sources, 1)
	require.Equal(t, "ag-sample", payload.Sources[0].ID)
}

func TestServer_RunLogEviction(t *testing.T) {
	t.Parallel()

	runs := pipeline.NewRunLog(2)
	runs.Add(sampleReport("run-1"))
	runs.Add(sampleReport("run-2"))
	runs.Add(sampleReport("run-3"))

	recent := runs.Recent()
	require.Len(t, recent, 2)
	require.Equal(t, "run-2", recent[0].RunID)
	require.Equal(t, "run-3", recent[1].RunID)
}
