package engine

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics mirrors the teacher's CloudRouterMetrics
// (internal/llm/cloud_router_metrics.go): one registry-scoped struct built
// with promauto.With(registry) so callers can mount multiple engines (or
// run tests) without clashing with the default global registry.
type Metrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	cacheHitRate    prometheus.Gauge
	costUSD         *prometheus.CounterVec
	tokensTotal     *prometheus.CounterVec
	providerErrors  *prometheus.CounterVec
	circuitState    *prometheus.GaugeVec

	mu         sync.Mutex
	cacheHits  int64
	cacheTotal int64
}

// NewMetrics registers the engine's Prometheus series against registry.
func NewMetrics(registry *prometheus.Registry) *Metrics {
	factory := promauto.With(registry)
	return &Metrics{
		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "claw_router_requests_total",
			Help: "Total routed completion requests by provider, model, and status.",
		}, []string{"provider", "model", "status"}),
		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "claw_router_request_duration_seconds",
			Help:    "Duration of a single provider attempt.",
			Buckets: prometheus.DefBuckets,
		}, []string{"provider", "model"}),
		cacheHitRate: factory.NewGauge(prometheus.GaugeOpts{
			Name: "claw_router_cache_hit_rate",
			Help: "Rolling cache hit rate across all routed requests.",
		}),
		costUSD: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "claw_router_cost_usd_total",
			Help: "Estimated cost in USD attributed to routed requests.",
		}, []string{"provider", "model"}),
		tokensTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "claw_router_tokens_total",
			Help: "Tokens consumed by routed requests.",
		}, []string{"provider", "model", "direction"}),
		providerErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "claw_router_provider_errors_total",
			Help: "Provider attempt failures by provider and reason.",
		}, []string{"provider", "reason"}),
		circuitState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "claw_router_circuit_state",
			Help: "Circuit breaker state per provider (0=closed, 0.5=half-open, 1=open).",
		}, []string{"provider"}),
	}
}

func (m *Metrics) RecordRequest(provider, model, status string, seconds float64) {
	m.requestsTotal.WithLabelValues(provider, model, status).Inc()
	m.requestDuration.WithLabelValues(provider, model).Observe(seconds)
}

func (m *Metrics) RecordCost(provider, model string, usd float64) {
	if usd > 0 {
		m.costUSD.WithLabelValues(provider, model).Add(usd)
	}
}

func (m *Metrics) RecordTokens(provider, model string, prompt, completion int) {
	m.tokensTotal.WithLabelValues(provider, model, "prompt").Add(float64(prompt))
	m.tokensTotal.WithLabelValues(provider, model, "completion").Add(float64(completion))
}

func (m *Metrics) RecordProviderError(provider, reason string) {
	m.providerErrors.WithLabelValues(provider, reason).Inc()
}

func (m *Metrics) RecordCircuitState(provider string, state CircuitState) {
	var v float64
	switch state {
	case CircuitHalfOpen:
		v = 0.5
	case CircuitOpen:
		v = 1
	}
	m.circuitState.WithLabelValues(provider).Set(v)
}

// UpdateCacheHitRate records one cache lookup outcome and refreshes the
// rolling-rate gauge.
func (m *Metrics) UpdateCacheHitRate(hit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cacheTotal++
	if hit {
		m.cacheHits++
	}
	if m.cacheTotal > 0 {
		m.cacheHitRate.Set(float64(m.cacheHits) / float64(m.cacheTotal))
	}
}
