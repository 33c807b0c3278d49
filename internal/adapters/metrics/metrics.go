// Package metrics exposes request, query and domain counters in Prometheus format.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics owns a private registry so tests can create as many as they need.
type Metrics struct {
	registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	queryDuration   *prometheus.HistogramVec
	exports         *prometheus.CounterVec
	importedRows    prometheus.Counter
	discardedRows   prometheus.Counter
	authEvents      *prometheus.CounterVec
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "congregation_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		queryDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "congregation_db_query_duration_seconds",
			Help:    "Database statement duration in seconds.",
			Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1},
		}, []string{"op"}),
		exports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "congregation_exports_total",
			Help: "Directory exports by format.",
		}, []string{"format"}),
		importedRows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "congregation_import_rows_total",
			Help: "Member rows inserted by spreadsheet import.",
		}),
		discardedRows: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "congregation_import_discarded_rows_total",
			Help: "Spreadsheet rows discarded for missing names.",
		}),
		authEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "congregation_auth_events_total",
			Help: "Authentication outcomes by event.",
		}, []string{"event"}),
	}
	reg.MustRegister(m.requestDuration, m.queryDuration, m.exports, m.importedRows, m.discardedRows, m.authEvents)
	return m
}

// ObserveRequest records one served request.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	if route == "" {
		route = "unmatched"
	}
	m.requestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

// ObserveQuery records one database statement.
func (m *Metrics) ObserveQuery(op string, d time.Duration) {
	m.queryDuration.WithLabelValues(op).Observe(d.Seconds())
}

// CountExport records one download or print.
func (m *Metrics) CountExport(format string) {
	m.exports.WithLabelValues(format).Inc()
}

// CountImport records the outcome of one import.
func (m *Metrics) CountImport(imported, discarded int) {
	m.importedRows.Add(float64(imported))
	m.discardedRows.Add(float64(discarded))
}

// CountAuth records an authentication event such as login_success.
func (m *Metrics) CountAuth(event string) {
	m.authEvents.WithLabelValues(event).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
