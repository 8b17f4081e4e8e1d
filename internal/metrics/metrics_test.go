package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveBeforeInitIsNoop(t *testing.T) {
	// Collectors are nil until Init; observers must not panic.
	ObserveRow("ag-test", "inserted")
	ObserveFetchRetry("ag-test")
	ObserveExtractionConfidence("ag-test", "high")
	ObserveRunDuration("ag-test", time.Second)
	ObserveDispatchFailure("ag-test")
}

func TestInitAndObserve(t *testing.T) {
	Init()
	Init() // second call must be a no-op

	ObserveRow("ag-test", "inserted")
	ObserveRow("ag-test", "inserted")
	ObserveRow("ag-test", "discarded")
	if got := testutil.ToFloat64(rowsTotal.WithLabelValues("ag-test", "inserted")); got != 2 {
		t.Fatalf("expected 2 inserted rows, got %v", got)
	}
	if got := testutil.ToFloat64(rowsTotal.WithLabelValues("ag-test", "discarded")); got != 1 {
		t.Fatalf("expected 1 discarded row, got %v", got)
	}

	ObserveFetchRetry("ag-test")
	if got := testutil.ToFloat64(fetchRetriesTotal.WithLabelValues("ag-test")); got != 1 {
		t.Fatalf("expected 1 fetch retry, got %v", got)
	}

	ObserveExtractionConfidence("ag-test", "low")
	if got := testutil.ToFloat64(extractionConfidence.WithLabelValues("ag-test", "low")); got != 1 {
		t.Fatalf("expected 1 low-confidence extraction, got %v", got)
	}

	ObserveDispatchFailure("ag-test")
	if got := testutil.ToFloat64(dispatchFailuresTotal.WithLabelValues("ag-test")); got != 1 {
		t.Fatalf("expected 1 dispatch failure, got %v", got)
	}
}

func TestHandlerServesRegistry(t *testing.T) {
	Init()
	if Handler() == nil {
		t.Fatal("expected a metrics handler")
	}
}
