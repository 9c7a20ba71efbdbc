// Package toolloop implements the tool-loop guardrails (spec §4.9): a
// wall-clock budget for the whole loop, a per-step cap on concurrent tool
// calls, and timeout-error classification shared across provider
// backends.
package toolloop

import (
	"strings"
	"time"
)

// BudgetConfig configures a Budget.
type BudgetConfig struct {
	MaxDuration   time.Duration
	MinTimeout    time.Duration
}

// Budget tracks remaining wall-clock time for a tool loop run.
type Budget struct {
	deadline   time.Time
	minTimeout time.Duration
	now        func() time.Time
}

// NewBudget starts a Budget with the given config, using time.Now as the
// clock.
func NewBudget(cfg BudgetConfig) *Budget {
	return &Budget{
		deadline:   time.Now().Add(cfg.MaxDuration),
		minTimeout: cfg.MinTimeout,
		now:        time.Now,
	}
}

// NewBudgetAt is NewBudget with an explicit start time and clock, for
// deterministic tests.
func NewBudgetAt(cfg BudgetConfig, start time.Time, now func() time.Time) *Budget {
	return &Budget{
		deadline:   start.Add(cfg.MaxDuration),
		minTimeout: cfg.MinTimeout,
		now:        now,
	}
}

// IsExhausted reports whether the budget's deadline has passed.
func (b *Budget) IsExhausted() bool {
	return !b.now().Before(b.deadline)
}

func (b *Budget) remaining() time.Duration {
	d := b.deadline.Sub(b.now())
	if d < 0 {
		return 0
	}
	return d
}

// ResolveTimeoutMs returns the timeout, in milliseconds, to use for the
// next tool call: the lesser of desiredMs and the budget's remaining
// time, but never below floorMs — unless the budget is exhausted, in
// which case it returns 0 so the caller can fail fast instead of issuing
// a call doomed to be cut off mid-flight.
func (b *Budget) ResolveTimeoutMs(desiredMs, floorMs int) int {
	if b.IsExhausted() {
		return 0
	}
	remainingMs := int(b.remaining() / time.Millisecond)
	timeout := desiredMs
	if remainingMs < timeout {
		timeout = remainingMs
	}
	if timeout < floorMs {
		timeout = floorMs
	}
	return timeout
}

// CapResult is the outcome of CapToolCallsPerStep.
type CapResult struct {
	Capped        []int // indices of calls kept, in order
	WasCapped     bool
	RequestedCount int
	CappedCount    int
}

// CapToolCallsPerStep caps the number of tool calls considered for a
// single step at max, keeping the earliest ones. callCount is the number
// of tool calls the model requested this step.
func CapToolCallsPerStep(callCount, max int) CapResult {
	if max <= 0 || callCount <= max {
		kept := make([]int, callCount)
		for i := range kept {
			kept[i] = i
		}
		return CapResult{Capped: kept, WasCapped: false, RequestedCount: callCount, CappedCount: callCount}
	}
	kept := make([]int, max)
	for i := range kept {
		kept[i] = i
	}
	return CapResult{Capped: kept, WasCapped: true, RequestedCount: callCount, CappedCount: max}
}

var timeoutErrorMarkers = []string{
	"context deadline exceeded",
	"context canceled",
	"i/o timeout",
	"timeout",
	"timed out",
	"client.timeout exceeded",
}

// IsLikelyTimeoutError reports whether err's message matches the shapes
// commonly produced by HTTP clients and context cancellation when a
// provider call runs past its deadline. nil is never a timeout.
func IsLikelyTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range timeoutErrorMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
