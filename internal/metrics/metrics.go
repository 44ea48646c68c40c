// Package metrics holds the Prometheus collectors for the service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	registry *prometheus.Registry

	providerAttempts *prometheus.CounterVec
	providerLatency  *prometheus.HistogramVec
	fallbacks        *prometheus.CounterVec
	breakerState     *prometheus.GaugeVec
	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	quotaDecisions   *prometheus.CounterVec
	adEvents         *prometheus.CounterVec
}

// New registers the collectors on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		providerAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docexplain_provider_attempts_total",
			Help: "Backend invocations by provider, task and outcome.",
		}, []string{"provider", "task", "outcome"}),
		providerLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docexplain_provider_duration_seconds",
			Help:    "Backend invocation latency.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		}, []string{"provider", "task"}),
		fallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docexplain_fallbacks_total",
			Help: "Requests served by the secondary provider.",
		}, []string{"task"}),
		breakerState: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "docexplain_breaker_open",
			Help: "1 while a provider circuit breaker is open.",
		}, []string{"provider"}),
		httpRequests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docexplain_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "docexplain_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		quotaDecisions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docexplain_quota_decisions_total",
			Help: "Quota gate decisions.",
		}, []string{"decision"}),
		adEvents: f.NewCounterVec(prometheus.CounterOpts{
			Name: "docexplain_ad_events_total",
			Help: "Ad lifecycle transitions.",
		}, []string{"kind", "event"}),
	}
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) ObserveProvider(provider, task, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.providerAttempts.WithLabelValues(provider, task, outcome).Inc()
	m.providerLatency.WithLabelValues(provider, task).Observe(d.Seconds())
}

func (m *Metrics) Fallback(task string) {
	if m == nil {
		return
	}
	m.fallbacks.WithLabelValues(task).Inc()
}

// BreakerChanged matches provider.BreakerConfig.OnStateChange.
func (m *Metrics) BreakerChanged(provider, from, to string) {
	if m == nil {
		return
	}
	v := 0.0
	if to == "open" {
		v = 1
	}
	m.breakerState.WithLabelValues(provider).Set(v)
}

func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) QuotaDecision(decision string) {
	if m == nil {
		return
	}
	m.quotaDecisions.WithLabelValues(decision).Inc()
}

func (m *Metrics) AdEvent(kind, event string) {
	if m == nil {
		return
	}
	m.adEvents.WithLabelValues(kind, event).Inc()
}
