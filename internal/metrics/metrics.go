// Package metrics exposes Prometheus collectors for the ingestion service.
package metrics

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	rowsTotal             *prometheus.CounterVec
	fetchRetriesTotal     *prometheus.CounterVec
	extractionConfidence  *prometheus.CounterVec
	runDurationSeconds    *prometheus.HistogramVec
	dispatchFailuresTotal *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call more than once.
func Init() {
	once.Do(func() {
		rowsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "breachwatch_rows_total",
				Help: "Listing rows processed, labeled by source and outcome.",
			},
			[]string{"source", "outcome"},
		)

		fetchRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "breachwatch_fetch_retries_total",
				Help: "Document fetch retry attempts, labeled by source.",
			},
			[]string{"source"},
		)

		extractionConfidence = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "breachwatch_extraction_confidence_total",
				Help: "Text extraction results, labeled by source and confidence tier.",
			},
			[]string{"source", "confidence"},
		)

		runDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "breachwatch_run_duration_seconds",
				Help:    "Histogram of per-source run durations.",
				Buckets: []float64{1, 5, 15, 60, 300, 900, 3600},
			},
			[]string{"source"},
		)

		dispatchFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "breachwatch_dispatch_failures_total",
				Help: "Notification dispatch failures, labeled by source.",
			},
			[]string{"source"},
		)
	})
}

// Handler returns an http.Handler exposing the Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveRow counts one row outcome.
func ObserveRow(source, outcome string) {
	if rowsTotal == nil {
		return
	}
	rowsTotal.WithLabelValues(source, outcome).Inc()
}

// ObserveFetchRetry counts one document fetch retry.
func ObserveFetchRetry(source string) {
	if fetchRetriesTotal == nil {
		return
	}
	fetchRetriesTotal.WithLabelValues(source).Inc()
}

// ObserveExtractionConfidence counts one text-extraction result.
func ObserveExtractionConfidence(source, confidence string) {
	if extractionConfidence == nil {
		return
	}
	extractionConfidence.WithLabelValues(source, confidence).Inc()
}

// ObserveRunDuration records one finished run.
func ObserveRunDuration(source string, d time.Duration) {
	if runDurationSeconds == nil {
		return
	}
	runDurationSeconds.WithLabelValues(source).Observe(d.Seconds())
}

// ObserveDispatchFailure counts one failed notification publish.
func ObserveDispatchFailure(source string) {
	if dispatchFailuresTotal == nil {
		return
	}
	dispatchFailuresTotal.WithLabelValues(source).Inc()
}
