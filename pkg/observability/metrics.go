package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the search engine
type Metrics struct {
	// Query metrics
	QueryBatchesTotal prometheus.Counter
	QueriesTotal      prometheus.Counter
	QueryErrors       *prometheus.CounterVec
	SearchLatency     prometheus.Histogram

	// Probe metrics
	PartitionsProbed  prometheus.Histogram
	ActivePartitions  prometheus.Histogram

	// Scan metrics
	VectorsScanned prometheus.Counter
	NodesPerBatch  prometheus.Histogram

	// Build metrics
	BuildsTotal   prometheus.Counter
	BuildDuration prometheus.Histogram
	VectorsIndexed prometheus.Counter

	// Store metrics. Registered only: no store backend or engine code in
	// this module adds to them, so they stay at zero unless a caller does.
	StoreBytesRead    prometheus.Counter
	StoreBytesWritten prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics on reg
// (the default registerer if nil).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		QueryBatchesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "ivfgrid_query_batches_total",
			Help: "Total number of query batches dispatched",
		}),
		QueriesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "ivfgrid_queries_total",
			Help: "Total number of individual query vectors processed",
		}),
		QueryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ivfgrid_query_errors_total",
			Help: "Total number of failed query batches by phase",
		}, []string{"phase"}),
		SearchLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ivfgrid_search_latency_seconds",
			Help:    "End-to-end query batch latency in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}),
		PartitionsProbed: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ivfgrid_partitions_probed",
			Help:    "nprobe value per query batch",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 256},
		}),
		ActivePartitions: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ivfgrid_active_partitions",
			Help:    "Number of distinct partitions touched per query batch",
			Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 256, 512, 1024},
		}),
		VectorsScanned: factory.NewCounter(prometheus.CounterOpts{
			Name: "ivfgrid_vectors_scanned_total",
			Help: "Total number of vector columns scored",
		}),
		NodesPerBatch: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ivfgrid_nodes_per_batch",
			Help:    "Number of compute nodes a batch was sharded across",
			Buckets: []float64{1, 2, 4, 8, 16, 32},
		}),
		BuildsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "ivfgrid_builds_total",
			Help: "Total number of index builds",
		}),
		BuildDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ivfgrid_build_duration_seconds",
			Help:    "Index build duration in seconds",
			Buckets: []float64{.1, .5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		}),
		VectorsIndexed: factory.NewCounter(prometheus.CounterOpts{
			Name: "ivfgrid_vectors_indexed_total",
			Help: "Total number of vectors shuffled into the index",
		}),
		StoreBytesRead: factory.NewCounter(prometheus.CounterOpts{
			Name: "ivfgrid_store_bytes_read_total",
			Help: "Bytes read from the backing array store",
		}),
		StoreBytesWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "ivfgrid_store_bytes_written_total",
			Help: "Bytes written to the backing array store",
		}),
	}
}

// RecordSearch records a completed query batch.
func (m *Metrics) RecordSearch(numQueries, nprobe, activeParts, numNodes int, duration time.Duration) {
	if m == nil {
		return
	}
	m.QueryBatchesTotal.Inc()
	m.QueriesTotal.Add(float64(numQueries))
	m.SearchLatency.Observe(duration.Seconds())
	m.PartitionsProbed.Observe(float64(nprobe))
	m.ActivePartitions.Observe(float64(activeParts))
	m.NodesPerBatch.Observe(float64(numNodes))
}

// RecordSearchError records a failed query batch and the phase it failed in.
func (m *Metrics) RecordSearchError(phase string) {
	if m == nil {
		return
	}
	m.QueryErrors.WithLabelValues(phase).Inc()
}

// RecordScanned adds to the scored-vector counter.
func (m *Metrics) RecordScanned(n int) {
	if m == nil {
		return
	}
	m.VectorsScanned.Add(float64(n))
}

// RecordBuild records a completed index build.
func (m *Metrics) RecordBuild(numVectors int, duration time.Duration) {
	if m == nil {
		return
	}
	m.BuildsTotal.Inc()
	m.BuildDuration.Observe(duration.Seconds())
	m.VectorsIndexed.Add(float64(numVectors))
}
