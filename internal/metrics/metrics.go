// Package metrics holds the Prometheus collectors for the service.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "fixbuddy"

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	StrategyRunsTotal   *prometheus.CounterVec
	SafetyBlocksTotal   *prometheus.CounterVec
	VideoFailuresTotal  prometheus.Counter
	JobsTotal           *prometheus.CounterVec
	PrunedTotal         prometheus.Counter
	RateLimitedTotal    *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// New registers the collectors on reg. A nil reg uses a fresh private registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	f := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "status"}),
		HTTPRequestDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		}, []string{"route"}),
		StrategyRunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "strategy_runs_total",
			Help:      "Diagnosis strategy attempts by strategy and outcome.",
		}, []string{"strategy", "outcome"}),
		SafetyBlocksTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "safety_blocks_total",
			Help:      "Results replaced by a professional referral, by trigger.",
		}, []string{"source"}),
		VideoFailuresTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "video_search_failures_total",
			Help:      "Tutorial searches that failed.",
		}),
		JobsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Background jobs processed by type and outcome.",
		}, []string{"type", "outcome"}),
		PrunedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "diagnoses_pruned_total",
			Help:      "Diagnoses evicted by the per-user cap.",
		}),
		RateLimitedTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter, by route.",
		}, []string{"route"}),
		gatherer: reg,
	}
}

func (m *Metrics) ObserveHTTP(route, method string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(d.Seconds())
}

func (m *Metrics) StrategyRun(strategy, outcome string) {
	if m == nil {
		return
	}
	m.StrategyRunsTotal.WithLabelValues(strategy, outcome).Inc()
}

func (m *Metrics) SafetyBlock(source string) {
	if m == nil {
		return
	}
	m.SafetyBlocksTotal.WithLabelValues(source).Inc()
}

func (m *Metrics) VideoSearchFailure() {
	if m == nil {
		return
	}
	m.VideoFailuresTotal.Inc()
}

func (m *Metrics) JobDone(jobType, outcome string) {
	if m == nil {
		return
	}
	m.JobsTotal.WithLabelValues(jobType, outcome).Inc()
}

func (m *Metrics) DiagnosesPruned(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.PrunedTotal.Add(float64(n))
}

func (m *Metrics) RateLimited(route string) {
	if m == nil {
		return
	}
	m.RateLimitedTotal.WithLabelValues(route).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
