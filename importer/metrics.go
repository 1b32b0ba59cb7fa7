package importer

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the importer.
type Metrics struct {
	Registry          *prometheus.Registry
	FilesTotal        *prometheus.CounterVec
	ProductsParsed    prometheus.Counter
	ProductsInserted  prometheus.Counter
	ProductsSkipped   *prometheus.CounterVec
	ErrorsTotal       *prometheus.CounterVec
	ReconcileDuration prometheus.Histogram
}

// NewMetrics registers the importer collectors on registry, or on a fresh registry when nil.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	files := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_files_total",
			Help: "Catalog files processed, by result.",
		},
		[]string{"result"},
	)
	parsed := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_products_parsed_total",
			Help: "Product records built from catalog files.",
		},
	)
	inserted := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "catalog_products_inserted_total",
			Help: "Product records inserted into the store.",
		},
	)
	skipped := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_products_skipped_total",
			Help: "Product records not inserted, by reason.",
		},
		[]string{"reason"},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalog_errors_total",
			Help: "Catalog import errors by type.",
		},
		[]string{"error_type"},
	)
	reconcileDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "catalog_reconcile_duration_seconds",
			Help:    "Duration of reconciliation passes.",
			Buckets: prometheus.DefBuckets,
		},
	)

	registry.MustRegister(files, parsed, inserted, skipped, errorsTotal, reconcileDuration)

	return &Metrics{
		Registry:          registry,
		FilesTotal:        files,
		ProductsParsed:    parsed,
		ProductsInserted:  inserted,
		ProductsSkipped:   skipped,
		ErrorsTotal:       errorsTotal,
		ReconcileDuration: reconcileDuration,
	}
}

// IncFile counts a processed file.
func (m *Metrics) IncFile(result string) {
	if m == nil {
		return
	}
	m.FilesTotal.WithLabelValues(result).Inc()
}

// AddParsed counts built records.
func (m *Metrics) AddParsed(n int) {
	if m == nil {
		return
	}
	m.ProductsParsed.Add(float64(n))
}

// IncInserted counts an inserted record.
func (m *Metrics) IncInserted() {
	if m == nil {
		return
	}
	m.ProductsInserted.Inc()
}

// IncSkipped counts a record that was already stored.
func (m *Metrics) IncSkipped(reason string) {
	if m == nil {
		return
	}
	m.ProductsSkipped.WithLabelValues(reason).Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}

// ObserveReconcile records the duration of a reconciliation pass.
func (m *Metrics) ObserveReconcile(d time.Duration) {
	if m == nil {
		return
	}
	m.ReconcileDuration.Observe(d.Seconds())
}
