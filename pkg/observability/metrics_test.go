package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordSearch(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordSearch(8, 4, 12, 2, 50*time.Millisecond)
	m.RecordSearch(2, 4, 3, 1, 10*time.Millisecond)

	if got := testutil.ToFloat64(m.QueryBatchesTotal); got != 2 {
		t.Errorf("query batches = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.QueriesTotal); got != 10 {
		t.Errorf("queries = %v, want 10", got)
	}
}

func TestRecordSearchError(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordSearchError("probe")
	m.RecordSearchError("probe")
	m.RecordSearchError("scan")

	if got := testutil.ToFloat64(m.QueryErrors.WithLabelValues("probe")); got != 2 {
		t.Errorf("probe errors = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.QueryErrors.WithLabelValues("scan")); got != 1 {
		t.Errorf("scan errors = %v, want 1", got)
	}
}

func TestRecordBuild(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordBuild(1000, time.Second)
	m.RecordScanned(500)

	if got := testutil.ToFloat64(m.VectorsIndexed); got != 1000 {
		t.Errorf("vectors indexed = %v, want 1000", got)
	}
	if got := testutil.ToFloat64(m.VectorsScanned); got != 500 {
		t.Errorf("vectors scanned = %v, want 500", got)
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	m.RecordSearch(1, 1, 1, 1, time.Millisecond)
	m.RecordSearchError("probe")
	m.RecordScanned(1)
	m.RecordBuild(1, time.Millisecond)
}
