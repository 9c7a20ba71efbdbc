package devlog

import (
	"log/slog"
	"sync"
	"time"
)

// GuardrailKind names one of the tool-loop guardrail rates tracked per
// user scope.
type GuardrailKind string

const (
	GuardrailBudgetExhausted GuardrailKind = "budget_exhausted"
	GuardrailStepTimeout     GuardrailKind = "step_timeout"
	GuardrailToolExecTimeout GuardrailKind = "tool_exec_timeout"
	GuardrailCallCapped      GuardrailKind = "call_capped"
)

// AlertThresholds configures when a guardrail rate is worth a warning.
type AlertThresholds struct {
	MinSamples int
	Rate       float64 // e.g. 0.2 for 20%
	Cooldown   time.Duration
}

// DefaultThresholds applies the same bound to every guardrail kind.
func DefaultThresholds() map[GuardrailKind]AlertThresholds {
	defaults := AlertThresholds{MinSamples: 20, Rate: 0.2, Cooldown: 5 * time.Minute}
	return map[GuardrailKind]AlertThresholds{
		GuardrailBudgetExhausted: defaults,
		GuardrailStepTimeout:     defaults,
		GuardrailToolExecTimeout: defaults,
		GuardrailCallCapped:      defaults,
	}
}

type window struct {
	total    int
	hits     int
	lastWarn time.Time
}

// AlertEvaluator keeps a sample window per (scope, guardrail kind) and
// decides whether a fresh observation should emit a warning — bounded by
// a minimum sample count and a per-window cooldown so a single bad
// minute doesn't page anyone twice. A window's counts accumulate until
// Reset clears them; individual samples do not age out on their own.
type AlertEvaluator struct {
	mu         sync.Mutex
	thresholds map[GuardrailKind]AlertThresholds
	windows    map[string]*window
	logger     *slog.Logger
}

// NewAlertEvaluator creates an evaluator. A nil thresholds map uses
// DefaultThresholds.
func NewAlertEvaluator(thresholds map[GuardrailKind]AlertThresholds, logger *slog.Logger) *AlertEvaluator {
	if thresholds == nil {
		thresholds = DefaultThresholds()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AlertEvaluator{thresholds: thresholds, windows: make(map[string]*window), logger: logger}
}

func key(scope string, kind GuardrailKind) string {
	return scope + "\x00" + string(kind)
}

// Observe records one sample for (scope, kind) — hit=true when the
// guardrail actually fired this turn — and emits a warn log if the
// window's hit rate (hits over all samples since the last Reset) reaches
// the threshold, respecting the cooldown.
func (e *AlertEvaluator) Observe(scope string, kind GuardrailKind, hit bool, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()

	k := key(scope, kind)
	w, ok := e.windows[k]
	if !ok {
		w = &window{}
		e.windows[k] = w
	}
	w.total++
	if hit {
		w.hits++
	}

	th, ok := e.thresholds[kind]
	if !ok || w.total < th.MinSamples {
		return
	}
	rate := float64(w.hits) / float64(w.total)
	if rate < th.Rate {
		return
	}
	if !w.lastWarn.IsZero() && now.Sub(w.lastWarn) < th.Cooldown {
		return
	}

	w.lastWarn = now
	e.logger.Warn("tool-loop guardrail rate exceeded threshold",
		"scope", scope, "guardrail", kind, "rate", rate, "samples", w.total)
}

// Reset clears every window, used by the TTL sweep scheduler so a
// guardrail rate from one period never bleeds into the next.
func (e *AlertEvaluator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.windows = make(map[string]*window)
}
