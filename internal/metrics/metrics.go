// Package metrics provides Prometheus metrics for the metadata store.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics of one store instance. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	// Store operation metrics
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	IDRetriesTotal    prometheus.Counter

	// Catalog size
	TargetsTotal     *prometheus.GaugeVec
	CollectionsTotal prometheus.Gauge

	// Flush metrics
	FlushesTotal *prometheus.CounterVec

	// HTTP API metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
}

// New creates the metrics on a fresh registry that also carries the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return NewWithRegistry(reg)
}

// NewWithRegistry creates and registers all metrics on reg.
func NewWithRegistry(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{registry: reg}

	m.OperationsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mdstore_operations_total",
			Help: "Total number of store operations",
		},
		[]string{"operation", "status"},
	)

	m.OperationDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mdstore_operation_duration_seconds",
			Help:    "Duration of store operations in seconds",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 5},
		},
		[]string{"operation"},
	)

	m.IDRetriesTotal = f.NewCounter(
		prometheus.CounterOpts{
			Name: "mdstore_id_allocation_retries_total",
			Help: "Identifier allocations retried after losing a race in the backing store",
		},
	)

	m.TargetsTotal = f.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "mdstore_targets",
			Help: "Number of live targets by kind",
		},
		[]string{"kind"},
	)

	m.CollectionsTotal = f.NewGauge(
		prometheus.GaugeOpts{
			Name: "mdstore_constraint_collections",
			Help: "Number of constraint collections",
		},
	)

	m.FlushesTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mdstore_flushes_total",
			Help: "Total number of flushes",
		},
		[]string{"status"},
	)

	m.HTTPRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mdstore_http_requests_total",
			Help: "Total number of HTTP API requests",
		},
		[]string{"route", "code"},
	)

	m.HTTPRequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mdstore_http_request_duration_seconds",
			Help:    "Duration of HTTP API requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route"},
	)

	return m
}

// Registry returns the registry the metrics live on.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordOperation records one store operation.
func (m *Metrics) RecordOperation(operation string, err error, duration time.Duration) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(operation, status(err)).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordIDRetry counts one allocation retry.
func (m *Metrics) RecordIDRetry() {
	if m == nil {
		return
	}
	m.IDRetriesTotal.Inc()
}

// RecordFlush counts one flush.
func (m *Metrics) RecordFlush(err error) {
	if m == nil {
		return
	}
	m.FlushesTotal.WithLabelValues(status(err)).Inc()
}

// SetCatalogSize updates the size gauges.
func (m *Metrics) SetCatalogSize(schemas, tables, columns, collections int) {
	if m == nil {
		return
	}
	m.TargetsTotal.WithLabelValues("schema").Set(float64(schemas))
	m.TargetsTotal.WithLabelValues("table").Set(float64(tables))
	m.TargetsTotal.WithLabelValues("column").Set(float64(columns))
	m.CollectionsTotal.Set(float64(collections))
}

// RecordHTTPRequest records one API request.
func (m *Metrics) RecordHTTPRequest(route, code string, duration time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(route, code).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
