package observability

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestNewMetricsRegistersAgainstGivenRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)
	if m == nil {
		t.Fatal("expected non-nil Metrics")
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather: %v", err)
	}
	if len(families) == 0 {
		t.Fatal("expected registered metric families")
	}
}

func TestRecordProviderRequestIncrementsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordProviderRequest("anthropic", "claude-opus", "success", 1.5, 100, 50)

	got := counterValue(t, m.ProviderRequestCounter.WithLabelValues("anthropic", "claude-opus", "success"))
	if got != 1 {
		t.Fatalf("got counter %v, want 1", got)
	}
	prompt := counterValue(t, m.ProviderTokensUsed.WithLabelValues("anthropic", "claude-opus", "prompt"))
	if prompt != 100 {
		t.Fatalf("got prompt tokens %v, want 100", prompt)
	}
}

func TestRecordGuardrailTrippedAndFallbackUsed(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordGuardrailTripped("step_timeout")
	m.RecordFallbackUsed("empty_reply")
	m.RecordDedupeSkipped("ttl_repeat")

	if got := counterValue(t, m.GuardrailTripped.WithLabelValues("step_timeout")); got != 1 {
		t.Fatalf("got guardrail counter %v, want 1", got)
	}
	if got := counterValue(t, m.FallbackUsed.WithLabelValues("empty_reply")); got != 1 {
		t.Fatalf("got fallback counter %v, want 1", got)
	}
	if got := counterValue(t, m.DedupeSkipped.WithLabelValues("ttl_repeat")); got != 1 {
		t.Fatalf("got dedupe counter %v, want 1", got)
	}
}

func TestSessionStartedAndEndedAdjustGauge(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.SessionStarted()
	m.SessionStarted()
	m.SessionEnded()

	var metric dto.Metric
	if err := m.ActiveSessions.Write(&metric); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if got := metric.GetGauge().GetValue(); got != 1 {
		t.Fatalf("got gauge %v, want 1", got)
	}
}
