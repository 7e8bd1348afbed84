// Package observability is C9: the six Prometheus metric families named
// in the spec, plus health/readiness aggregation across C1 and the model
// fleet. Metrics live on a constructed Metrics value, never in package
// globals, so a process can construct (and in tests, discard) more than
// one without collector-registration panics.
package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// durationBuckets are in seconds; the spec states them in milliseconds
// {1,5,15,50,100,200,300,400,500,1000,2000,5000}.
var durationBuckets = []float64{
	0.001, 0.005, 0.015, 0.05, 0.1, 0.2, 0.3, 0.4, 0.5, 1, 2, 5,
}

var modelLatencyBuckets = []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60, 120}

// Metrics holds every registered collector. Constructed once at startup
// and injected wherever it is needed; never read or written via a package
// global.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal     *prometheus.CounterVec
	ErrorsTotal           *prometheus.CounterVec
	HTTPRequestDuration   *prometheus.HistogramVec
	ModelLatency          *prometheus.HistogramVec
	TokenUsageTotal       *prometheus.CounterVec
	ActiveConnections     prometheus.Gauge
}

// New constructs and registers every metric family on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		registry: reg,
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total HTTP requests processed by the gateway.",
		}, []string{"method", "status", "endpoint", "tier"}),
		ErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total errors returned by the gateway.",
		}, []string{"type", "endpoint", "tier", "code"}),
		HTTPRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: durationBuckets,
		}, []string{"method", "status", "endpoint", "tier"}),
		ModelLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "model_latency_seconds",
			Help:    "Upstream model call latency in seconds.",
			Buckets: modelLatencyBuckets,
		}, []string{"model", "operation", "status"}),
		TokenUsageTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "token_usage_total",
			Help: "Total tokens processed, by direction.",
		}, []string{"model", "type", "tier"}),
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "active_connections",
			Help: "Number of in-flight HTTP requests.",
		}),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.ErrorsTotal,
		m.HTTPRequestDuration,
		m.ModelLatency,
		m.TokenUsageTotal,
		m.ActiveConnections,
	)

	return m
}

// Handler returns the /metrics HTTP handler for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records the completion of one HTTP request.
func (m *Metrics) ObserveRequest(method, status, endpoint, tier string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, status, endpoint, tier).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, status, endpoint, tier).Observe(duration.Seconds())
}

// ObserveError records a gateway error of kind at endpoint/tier with the
// given HTTP status code.
func (m *Metrics) ObserveError(kind, endpoint, tier, code string) {
	m.ErrorsTotal.WithLabelValues(kind, endpoint, tier, code).Inc()
}

// ObserveModelLatency records one upstream call's latency.
func (m *Metrics) ObserveModelLatency(model, operation, status string, duration time.Duration) {
	m.ModelLatency.WithLabelValues(model, operation, status).Observe(duration.Seconds())
}

// ObserveTokens records input/output token counts for a billed call.
func (m *Metrics) ObserveTokens(model, tier string, inputTokens, outputTokens int) {
	if inputTokens > 0 {
		m.TokenUsageTotal.WithLabelValues(model, "input", tier).Add(float64(inputTokens))
	}
	if outputTokens > 0 {
		m.TokenUsageTotal.WithLabelValues(model, "output", tier).Add(float64(outputTokens))
	}
}

// ConnectionOpened/ConnectionClosed track the active_connections gauge
// across a request's lifetime (opened at pipeline entry, closed at the
// observability-close stage).
func (m *Metrics) ConnectionOpened() { m.ActiveConnections.Inc() }
func (m *Metrics) ConnectionClosed() { m.ActiveConnections.Dec() }
