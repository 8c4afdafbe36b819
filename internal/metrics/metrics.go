// Package metrics exposes Prometheus collectors for tool invocations. Each
// Metrics value owns a private registry so tests and embedded servers do not
// collide on the default one.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "insights_mcp"

type Metrics struct {
	registry        *prometheus.Registry
	invocations     *prometheus.CounterVec
	executorLatency *prometheus.HistogramVec
	tokenRequests   *prometheus.CounterVec
	unauthenticated *prometheus.CounterVec
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		invocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "invocations_total",
			Help:      "Tool invocations by resource, action and outcome.",
		}, []string{"resource", "action", "outcome"}),
		executorLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "executor_duration_seconds",
			Help:      "Upstream execution latency by executor.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"executor"}),
		tokenRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oauth_token_requests_total",
			Help:      "OAuth2 token resolutions by scheme and result.",
		}, []string{"scheme", "result"}),
		unauthenticated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unauthenticated_calls_total",
			Help:      "Calls sent without the credentials their security requirements ask for.",
		}, []string{"resource", "action"}),
	}
	m.registry.MustRegister(
		m.invocations,
		m.executorLatency,
		m.tokenRequests,
		m.unauthenticated,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) ObserveInvocation(resource, action, outcome string) {
	if m == nil {
		return
	}
	m.invocations.WithLabelValues(resource, action, outcome).Inc()
}

func (m *Metrics) ObserveExecutor(executor string, d time.Duration) {
	if m == nil {
		return
	}
	m.executorLatency.WithLabelValues(executor).Observe(d.Seconds())
}

// ObserveTokenRequest satisfies security.TokenObserver.
func (m *Metrics) ObserveTokenRequest(scheme, result string) {
	if m == nil {
		return
	}
	m.tokenRequests.WithLabelValues(scheme, result).Inc()
}

func (m *Metrics) ObserveUnauthenticated(resource, action string) {
	if m == nil {
		return
	}
	m.unauthenticated.WithLabelValues(resource, action).Inc()
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
