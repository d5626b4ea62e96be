// Package metrics defines the Prometheus collectors of the catalog and exposes
// an HTTP handler for scraping.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	HTTPRequestsTotal    *prometheus.CounterVec
	HTTPRequestDuration  *prometheus.HistogramVec
	HTTPRequestsInFlight prometheus.Gauge
	QueriesTotal         *prometheus.CounterVec
	QueryLatency         prometheus.Histogram
	QueryResultsCount    prometheus.Histogram
	DocsIndexedTotal     prometheus.Counter
	IndexElementsTotal   prometheus.Counter
	ValuesSkippedTotal   prometheus.Counter
	ReindexRunsTotal     *prometheus.CounterVec
	ReindexDuration      prometheus.Histogram
	RegisteredIndexes    prometheus.Gauge

	gatherer prometheus.Gatherer
}

// New creates all collectors and registers them with reg.
// A nil reg uses a fresh registry, which keeps tests independent.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xmlcat_http_requests_total",
				Help: "Total number of HTTP requests by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "xmlcat_http_request_duration_seconds",
				Help:    "HTTP request latency in seconds.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),
		HTTPRequestsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "xmlcat_http_requests_in_flight",
				Help: "Number of HTTP requests currently being processed.",
			},
		),
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xmlcat_queries_total",
				Help: "Total queries by outcome (ok, empty, invalid, not_found, error).",
			},
			[]string{"outcome"},
		),
		QueryLatency: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "xmlcat_query_latency_seconds",
				Help:    "Query latency in seconds, parse to result.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
			},
		),
		QueryResultsCount: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "xmlcat_query_results_count",
				Help:    "Number of documents returned per query.",
				Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 500},
			},
		),
		DocsIndexedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "xmlcat_documents_indexed_total",
				Help: "Total documents indexed.",
			},
		),
		IndexElementsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "xmlcat_index_elements_written_total",
				Help: "Total index elements written.",
			},
		),
		ValuesSkippedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "xmlcat_index_values_skipped_total",
				Help: "Total node values dropped because they did not parse for the index type.",
			},
		),
		ReindexRunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "xmlcat_reindex_runs_total",
				Help: "Total reindex runs by status.",
			},
			[]string{"status"},
		),
		ReindexDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "xmlcat_reindex_duration_seconds",
				Help:    "Duration of reindex runs in seconds.",
				Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
			},
		),
		RegisteredIndexes: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "xmlcat_registered_indexes",
				Help: "Number of registered index definitions.",
			},
		),
		gatherer: reg,
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.HTTPRequestsInFlight,
		m.QueriesTotal,
		m.QueryLatency,
		m.QueryResultsCount,
		m.DocsIndexedTotal,
		m.IndexElementsTotal,
		m.ValuesSkippedTotal,
		m.ReindexRunsTotal,
		m.ReindexDuration,
		m.RegisteredIndexes,
	)

	return m
}

// Handler returns the Prometheus scrape HTTP handler for this registry
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

// ObserveQuery records one query
func (m *Metrics) ObserveQuery(outcome string, d time.Duration, results int) {
	if m == nil {
		return
	}
	m.QueriesTotal.WithLabelValues(outcome).Inc()
	m.QueryLatency.Observe(d.Seconds())
	if outcome == "ok" || outcome == "empty" {
		m.QueryResultsCount.Observe(float64(results))
	}
}

// ObserveIndexed records one indexed document
func (m *Metrics) ObserveIndexed(elements, skipped int) {
	if m == nil {
		return
	}
	m.DocsIndexedTotal.Inc()
	m.IndexElementsTotal.Add(float64(elements))
	m.ValuesSkippedTotal.Add(float64(skipped))
}

// ObserveReindex records one reindex run
func (m *Metrics) ObserveReindex(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.ReindexRunsTotal.WithLabelValues(status).Inc()
	m.ReindexDuration.Observe(d.Seconds())
}

// SetRegisteredIndexes records the current number of index definitions
func (m *Metrics) SetRegisteredIndexes(n int) {
	if m == nil {
		return
	}
	m.RegisteredIndexes.Set(float64(n))
}

// ObserveHTTP records one served request
func (m *Metrics) ObserveHTTP(method, path string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, path).Observe(d.Seconds())
}
