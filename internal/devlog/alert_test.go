package devlog

import (
	"log/slog"
	"testing"
	"time"
)

func TestAlertEvaluatorBelowMinSamplesNeverFires(t *testing.T) {
	e := NewAlertEvaluator(map[GuardrailKind]AlertThresholds{
		GuardrailBudgetExhausted: {MinSamples: 100, Rate: 0.1, Cooldown: time.Minute},
	}, slog.Default())

	now := time.Now()
	for i := 0; i < 10; i++ {
		e.Observe("user-1", GuardrailBudgetExhausted, true, now)
	}
	w := e.windows[key("user-1", GuardrailBudgetExhausted)]
	if w.lastWarn.IsZero() == false {
		t.Fatalf("expected no warning below min samples")
	}
}

func TestAlertEvaluatorFiresAboveThreshold(t *testing.T) {
	e := NewAlertEvaluator(map[GuardrailKind]AlertThresholds{
		GuardrailStepTimeout: {MinSamples: 5, Rate: 0.3, Cooldown: time.Minute},
	}, slog.Default())

	now := time.Now()
	for i := 0; i < 5; i++ {
		e.Observe("user-1", GuardrailStepTimeout, i < 3, now)
	}
	w := e.windows[key("user-1", GuardrailStepTimeout)]
	if w.lastWarn.IsZero() {
		t.Fatalf("expected a warning once rate crosses threshold")
	}
}

func TestAlertEvaluatorRespectsCooldown(t *testing.T) {
	e := NewAlertEvaluator(map[GuardrailKind]AlertThresholds{
		GuardrailCallCapped: {MinSamples: 2, Rate: 0.5, Cooldown: time.Hour},
	}, slog.Default())

	now := time.Now()
	e.Observe("user-1", GuardrailCallCapped, true, now)
	e.Observe("user-1", GuardrailCallCapped, true, now)
	w := e.windows[key("user-1", GuardrailCallCapped)]
	firstWarn := w.lastWarn
	if firstWarn.IsZero() {
		t.Fatalf("expected first warning to fire")
	}

	e.Observe("user-1", GuardrailCallCapped, true, now.Add(time.Minute))
	if !w.lastWarn.Equal(firstWarn) {
		t.Fatalf("expected cooldown to suppress a second warning")
	}
}

func TestAlertEvaluatorResetClearsWindows(t *testing.T) {
	e := NewAlertEvaluator(nil, nil)
	e.Observe("user-1", GuardrailBudgetExhausted, true, time.Now())
	e.Reset()
	if len(e.windows) != 0 {
		t.Fatalf("expected windows to be cleared after Reset")
	}
}
