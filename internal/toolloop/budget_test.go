package toolloop

import (
	"errors"
	"testing"
	"time"
)

func TestBudgetIsExhausted(t *testing.T) {
	start := time.Now()
	clock := start
	now := func() time.Time { return clock }

	b := NewBudgetAt(BudgetConfig{MaxDuration: time.Second}, start, now)
	if b.IsExhausted() {
		t.Fatalf("expected fresh budget to not be exhausted")
	}

	clock = start.Add(2 * time.Second)
	if !b.IsExhausted() {
		t.Fatalf("expected budget to be exhausted after deadline")
	}
}

func TestResolveTimeoutMsPrefersSmaller(t *testing.T) {
	start := time.Now()
	clock := start
	now := func() time.Time { return clock }

	b := NewBudgetAt(BudgetConfig{MaxDuration: 500 * time.Millisecond}, start, now)
	got := b.ResolveTimeoutMs(5000, 100)
	if got < 100 || got > 500 {
		t.Fatalf("got %d, want between 100 and 500", got)
	}
}

func TestResolveTimeoutMsNeverBelowFloor(t *testing.T) {
	start := time.Now()
	clock := start.Add(490 * time.Millisecond)
	now := func() time.Time { return clock }

	b := NewBudgetAt(BudgetConfig{MaxDuration: 500 * time.Millisecond}, start, now)
	got := b.ResolveTimeoutMs(5000, 250)
	if got != 250 {
		t.Fatalf("got %d, want 250 (floor)", got)
	}
}

func TestResolveTimeoutMsZeroWhenExhausted(t *testing.T) {
	start := time.Now()
	clock := start.Add(time.Second)
	now := func() time.Time { return clock }

	b := NewBudgetAt(BudgetConfig{MaxDuration: 500 * time.Millisecond}, start, now)
	got := b.ResolveTimeoutMs(5000, 100)
	if got != 0 {
		t.Fatalf("got %d, want 0 when budget exhausted", got)
	}
}

func TestCapToolCallsPerStepUnderLimit(t *testing.T) {
	res := CapToolCallsPerStep(3, 5)
	if res.WasCapped {
		t.Fatalf("expected not capped")
	}
	if len(res.Capped) != 3 {
		t.Fatalf("got %d calls, want 3", len(res.Capped))
	}
}

func TestCapToolCallsPerStepOverLimit(t *testing.T) {
	res := CapToolCallsPerStep(8, 5)
	if !res.WasCapped {
		t.Fatalf("expected capped")
	}
	if res.CappedCount != 5 || res.RequestedCount != 8 {
		t.Fatalf("got cappedCount=%d requestedCount=%d, want 5/8", res.CappedCount, res.RequestedCount)
	}
	if len(res.Capped) != 5 {
		t.Fatalf("got %d kept indices, want 5", len(res.Capped))
	}
}

func TestIsLikelyTimeoutError(t *testing.T) {
	if !IsLikelyTimeoutError(errors.New("context deadline exceeded")) {
		t.Fatalf("expected deadline exceeded to match")
	}
	if !IsLikelyTimeoutError(errors.New("Client.Timeout exceeded while awaiting headers")) {
		t.Fatalf("expected client timeout to match")
	}
	if IsLikelyTimeoutError(errors.New("invalid api key")) {
		t.Fatalf("expected unrelated error to not match")
	}
	if IsLikelyTimeoutError(nil) {
		t.Fatalf("expected nil to not match")
	}
}
