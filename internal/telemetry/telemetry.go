package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Telemetry bundles the Prometheus instruments used across the service.
// A nil *Telemetry is valid and records nothing, so components can take it
// as an optional dependency.
type Telemetry struct {
	providerCalls   *prometheus.CounterVec
	providerLatency *prometheus.HistogramVec
	upstreamFetches *prometheus.CounterVec
	cacheOps        *prometheus.CounterVec
	searches        *prometheus.CounterVec
}

// New registers the service metrics on reg.
func New(reg prometheus.Registerer) *Telemetry {
	factory := promauto.With(reg)
	return &Telemetry{
		providerCalls: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "answerhub_provider_calls_total",
			Help: "LLM provider calls by provider and outcome.",
		}, []string{"provider", "outcome"}),
		providerLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "answerhub_provider_latency_seconds",
			Help:    "LLM provider call latency.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider"}),
		upstreamFetches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "answerhub_upstream_fetches_total",
			Help: "Upstream data API fetches by api and status.",
		}, []string{"api", "status"}),
		cacheOps: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "answerhub_cache_ops_total",
			Help: "Cache lookups by namespace and outcome.",
		}, []string{"namespace", "outcome"}),
		searches: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "answerhub_searches_total",
			Help: "Search requests by intent.",
		}, []string{"intent"}),
	}
}

// ProviderCall records one LLM provider call.
func (t *Telemetry) ProviderCall(provider, outcome string, elapsed time.Duration) {
	if t == nil {
		return
	}
	t.providerCalls.WithLabelValues(provider, outcome).Inc()
	t.providerLatency.WithLabelValues(provider).Observe(elapsed.Seconds())
}

// UpstreamFetch records one upstream data API call.
func (t *Telemetry) UpstreamFetch(api, status string) {
	if t == nil {
		return
	}
	t.upstreamFetches.WithLabelValues(api, status).Inc()
}

// CacheOp records one cache lookup outcome ("hit" or "miss").
func (t *Telemetry) CacheOp(namespace, outcome string) {
	if t == nil {
		return
	}
	t.cacheOps.WithLabelValues(namespace, outcome).Inc()
}

// Search records one search request by detected intent.
func (t *Telemetry) Search(intent string) {
	if t == nil {
		return
	}
	t.searches.WithLabelValues(intent).Inc()
}
