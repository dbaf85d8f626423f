package registry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Import outcomes used as the "result" label on ImportsTotal.
const (
	resultSuccess   = "success"
	resultPartial   = "partial"
	resultEmpty     = "empty"
	resultRejected  = "rejected"
	resultCancelled = "cancelled"
	resultFailed    = "failed"
)

// Metrics provides observability for registry imports.
type Metrics struct {
	ImportsTotal    *prometheus.CounterVec
	RowsTotal       *prometheus.CounterVec
	SkippedTotal    *prometheus.CounterVec
	ChunksTotal     *prometheus.CounterVec
	ImportDuration  prometheus.Histogram
	ImportBytes     prometheus.Histogram
	ActiveImports   prometheus.Gauge
	StatusUpdates   prometheus.Counter
	RegistryCleared prometheus.Counter
}

// NewMetrics registers the import metrics with reg.
// A nil reg creates unregistered collectors, which is what tests want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ImportsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_imports_total",
			Help: "Total number of import runs by result",
		}, []string{"result"}),
		RowsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_import_rows_total",
			Help: "Rows written by committed chunks, by write result",
		}, []string{"result"}),
		SkippedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_import_rows_skipped_total",
			Help: "Rows discarded by the parser, by reason",
		}, []string{"reason"}),
		ChunksTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "registry_import_chunks_total",
			Help: "Import chunks processed, by result",
		}, []string{"result"}),
		ImportDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "registry_import_duration_seconds",
			Help:    "Duration of complete import runs",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}),
		ImportBytes: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "registry_import_bytes",
			Help:    "Size of imported files in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 4, 8),
		}),
		ActiveImports: factory.NewGauge(prometheus.GaugeOpts{
			Name: "registry_imports_active",
			Help: "Imports currently holding a slot",
		}),
		StatusUpdates: factory.NewCounter(prometheus.CounterOpts{
			Name: "registry_status_updates_total",
			Help: "Successful status updates",
		}),
		RegistryCleared: factory.NewCounter(prometheus.CounterOpts{
			Name: "registry_clears_total",
			Help: "Bulk clear operations executed",
		}),
	}
}

// ObserveImport records a finished run. outcome may be nil for hard failures.
func (m *Metrics) ObserveImport(result string, start time.Time, outcome *Outcome) {
	m.ImportsTotal.WithLabelValues(result).Inc()
	m.ImportDuration.Observe(time.Since(start).Seconds())
	if outcome == nil {
		return
	}
	m.RowsTotal.WithLabelValues(WriteInserted.String()).Add(float64(outcome.Inserted))
	m.RowsTotal.WithLabelValues(WriteUpdated.String()).Add(float64(outcome.Updated))
	m.ChunksTotal.WithLabelValues("committed").Add(float64(outcome.Chunks - outcome.Failed))
	m.ChunksTotal.WithLabelValues("rolled_back").Add(float64(outcome.Failed))
}

// ObserveParse records parser statistics.
func (m *Metrics) ObserveParse(stats ParseStats) {
	m.ImportBytes.Observe(float64(stats.Bytes))
	for reason, n := range stats.Skipped {
		m.SkippedTotal.WithLabelValues(string(reason)).Add(float64(n))
	}
}
