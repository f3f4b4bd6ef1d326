// Package observability collects Prometheus metrics for the application.
package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics aggregates the Prometheus registry and application metrics.
type Metrics struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	txPosted        *prometheus.CounterVec
	buildsCommitted prometheus.Counter
	buildsGated     *prometheus.CounterVec
}

// NewMetrics initialises the registry and base metrics.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stocklot_http_requests_total",
		Help: "HTTP requests by route and status code.",
	}, []string{"route", "code"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stocklot_http_request_duration_seconds",
		Help:    "HTTP request duration per route.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route"})
	txPosted := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stocklot_inventory_transactions_total",
		Help: "Committed inventory transactions by type.",
	}, []string{"type"})
	buildsCommitted := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stocklot_builds_committed_total",
		Help: "Builds committed to the ledger.",
	})
	buildsGated := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stocklot_builds_gated_total",
		Help: "Builds stopped by an advisory gate.",
	}, []string{"gate"})
	registry.MustRegister(requests, duration, txPosted, buildsCommitted, buildsGated)
	return &Metrics{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestsTotal:   requests,
		requestDuration: duration,
		txPosted:        txPosted,
		buildsCommitted: buildsCommitted,
		buildsGated:     buildsGated,
	}
}

// Handler returns the http.Handler for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// Middleware records metrics for every HTTP request.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	if m == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(&recorder, r)
		route := routePattern(r)
		m.requestsTotal.WithLabelValues(route, strconv.Itoa(recorder.status)).Inc()
		m.requestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
	})
}

// TransactionPosted counts a committed ledger transaction.
func (m *Metrics) TransactionPosted(txType string) {
	if m == nil {
		return
	}
	m.txPosted.WithLabelValues(txType).Inc()
}

// BuildCommitted counts a committed build.
func (m *Metrics) BuildCommitted() {
	if m == nil {
		return
	}
	m.buildsCommitted.Inc()
}

// BuildGated counts a build stopped by the named advisory gate.
func (m *Metrics) BuildGated(gate string) {
	if m == nil {
		return
	}
	m.buildsGated.WithLabelValues(gate).Inc()
}

// Registerer exposes the registry for custom metric registration.
func (m *Metrics) Registerer() prometheus.Registerer {
	if m == nil {
		return prometheus.DefaultRegisterer
	}
	return m.registry
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func routePattern(r *http.Request) string {
	if routeCtx := chi.RouteContext(r.Context()); routeCtx != nil {
		if pattern := routeCtx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unknown"
}
