package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics is a centralized set of Prometheus collectors tracking the
// chat engine's own hot path: provider requests, fallback usage,
// tool-loop guardrail trips, and turn latency.
type Metrics struct {
	// ProviderRequestDuration measures time spent inside one backend call.
	// Labels: provider, model.
	ProviderRequestDuration *prometheus.HistogramVec

	// ProviderRequestCounter counts backend calls by outcome.
	// Labels: provider, model, status (success|error|failover).
	ProviderRequestCounter *prometheus.CounterVec

	// ProviderTokensUsed tracks token consumption by type.
	// Labels: provider, model, type (prompt|completion).
	ProviderTokensUsed *prometheus.CounterVec

	// ProviderCostUSD accumulates estimated spend.
	// Labels: provider, model.
	ProviderCostUSD *prometheus.CounterVec

	// ToolCallDuration measures one tool-loop step's tool execution time.
	// Labels: tool_name.
	ToolCallDuration *prometheus.HistogramVec

	// ToolCallCounter counts tool invocations by outcome.
	// Labels: tool_name, status (success|error|timeout).
	ToolCallCounter *prometheus.CounterVec

	// GuardrailTripped counts a guardrail firing.
	// Labels: kind (budget_exhausted|step_timeout|tool_exec_timeout|call_capped).
	GuardrailTripped *prometheus.CounterVec

	// FallbackUsed counts a turn resolved via the deterministic or
	// constraint-safe fallback builder instead of a provider reply.
	// Labels: reason (empty_reply|constraint_violation).
	FallbackUsed *prometheus.CounterVec

	// DedupeSkipped counts inbound turns dropped by the duplicate-inbound filter.
	// Labels: carve_out.
	DedupeSkipped *prometheus.CounterVec

	// TurnLatency measures end-to-end turn duration.
	// Labels: domain.
	TurnLatency *prometheus.HistogramVec

	// ActiveSessions gauges sessions currently mid-turn.
	ActiveSessions prometheus.Gauge
}

// NewMetrics registers the collector set against reg and returns it. A
// nil reg registers against the default Prometheus registry, which is
// what every production call site wants; tests pass a fresh
// prometheus.NewRegistry() so repeated calls don't panic on duplicate
// registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		ProviderRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orchestrator_provider_request_duration_seconds",
				Help:    "Duration of chat provider requests in seconds",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"provider", "model"},
		),
		ProviderRequestCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_provider_requests_total",
				Help: "Total chat provider requests by provider, model, and status",
			},
			[]string{"provider", "model", "status"},
		),
		ProviderTokensUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_provider_tokens_total",
				Help: "Total tokens used by provider, model, and type",
			},
			[]string{"provider", "model", "type"},
		),
		ProviderCostUSD: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_provider_cost_usd_total",
				Help: "Estimated provider API cost in USD",
			},
			[]string{"provider", "model"},
		),
		ToolCallDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orchestrator_tool_call_duration_seconds",
				Help:    "Duration of tool-loop tool executions in seconds",
				Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30},
			},
			[]string{"tool_name"},
		),
		ToolCallCounter: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_tool_calls_total",
				Help: "Total tool invocations by tool name and status",
			},
			[]string{"tool_name", "status"},
		),
		GuardrailTripped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_guardrail_tripped_total",
				Help: "Total tool-loop guardrail trips by kind",
			},
			[]string{"kind"},
		),
		FallbackUsed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_fallback_used_total",
				Help: "Total turns resolved via a deterministic fallback reply",
			},
			[]string{"reason"},
		),
		DedupeSkipped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "orchestrator_dedupe_skipped_total",
				Help: "Total inbound turns dropped as duplicates",
			},
			[]string{"carve_out"},
		),
		TurnLatency: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "orchestrator_turn_latency_seconds",
				Help:    "End-to-end turn latency in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20},
			},
			[]string{"domain"},
		),
		ActiveSessions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "orchestrator_active_sessions",
				Help: "Current number of sessions mid-turn",
			},
		),
	}
}

// RecordProviderRequest records one backend call's outcome.
func (m *Metrics) RecordProviderRequest(provider, model, status string, durationSeconds float64, promptTokens, completionTokens int) {
	m.ProviderRequestCounter.WithLabelValues(provider, model, status).Inc()
	m.ProviderRequestDuration.WithLabelValues(provider, model).Observe(durationSeconds)
	if promptTokens > 0 {
		m.ProviderTokensUsed.WithLabelValues(provider, model, "prompt").Add(float64(promptTokens))
	}
	if completionTokens > 0 {
		m.ProviderTokensUsed.WithLabelValues(provider, model, "completion").Add(float64(completionTokens))
	}
}

// RecordToolCall records one tool-loop tool execution.
func (m *Metrics) RecordToolCall(toolName, status string, durationSeconds float64) {
	m.ToolCallCounter.WithLabelValues(toolName, status).Inc()
	m.ToolCallDuration.WithLabelValues(toolName).Observe(durationSeconds)
}

// RecordGuardrailTripped records one guardrail firing.
func (m *Metrics) RecordGuardrailTripped(kind string) {
	m.GuardrailTripped.WithLabelValues(kind).Inc()
}

// RecordFallbackUsed records one turn resolved by a deterministic fallback.
func (m *Metrics) RecordFallbackUsed(reason string) {
	m.FallbackUsed.WithLabelValues(reason).Inc()
}

// RecordDedupeSkipped records one duplicate-inbound drop.
func (m *Metrics) RecordDedupeSkipped(carveOut string) {
	m.DedupeSkipped.WithLabelValues(carveOut).Inc()
}

// RecordTurnLatency records end-to-end turn duration for domain.
func (m *Metrics) RecordTurnLatency(domain string, durationSeconds float64) {
	m.TurnLatency.WithLabelValues(domain).Observe(durationSeconds)
}

// RecordProviderCost accumulates estimated spend.
func (m *Metrics) RecordProviderCost(provider, model string, costUSD float64) {
	m.ProviderCostUSD.WithLabelValues(provider, model).Add(costUSD)
}

// SessionStarted / SessionEnded adjust the active-sessions gauge.
func (m *Metrics) SessionStarted() { m.ActiveSessions.Inc() }
func (m *Metrics) SessionEnded()   { m.ActiveSessions.Dec() }
