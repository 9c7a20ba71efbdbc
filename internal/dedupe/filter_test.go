package dedupe

import (
	"testing"
	"time"
)

func TestCheckDetectsDuplicateWithinTTL(t *testing.T) {
	f := New(time.Second)
	now := time.Now()
	k := Key("hud", "user-1", "ctx-1", "sess-1", "what's the weather")

	if f.CheckAt(k, now) {
		t.Fatalf("first occurrence should not be a duplicate")
	}
	if !f.CheckAt(k, now.Add(100*time.Millisecond)) {
		t.Fatalf("second occurrence within TTL should be a duplicate")
	}
}

func TestCheckAllowsAfterTTLExpires(t *testing.T) {
	f := New(time.Second)
	now := time.Now()
	k := Key("hud", "user-1", "ctx-1", "sess-1", "hello")

	f.CheckAt(k, now)
	if f.CheckAt(k, now.Add(2*time.Second)) {
		t.Fatalf("expected duplicate check to reset after TTL expires")
	}
}

func TestKeyDiffersOnText(t *testing.T) {
	k1 := Key("hud", "user-1", "ctx-1", "sess-1", "hello")
	k2 := Key("hud", "user-1", "ctx-1", "sess-1", "goodbye")
	if k1 == k2 {
		t.Fatalf("expected different text to produce different keys")
	}
}

func TestClassifyExplicitCryptoReportCarveOut(t *testing.T) {
	got := Classify("give me my crypto report", false)
	if got != CarveOutExplicitCryptoReport {
		t.Fatalf("got %q, want explicit crypto report carve-out", got)
	}
}

func TestClassifyMissionBuildCarveOut(t *testing.T) {
	got := Classify("build me a mission", true)
	if got != CarveOutMissionBuild {
		t.Fatalf("got %q, want mission build carve-out", got)
	}
}

func TestClassifyNonCriticalFollowUpCarveOut(t *testing.T) {
	got := Classify("yes", false)
	if got != CarveOutNonCriticalFollowUp {
		t.Fatalf("got %q, want non-critical follow-up carve-out", got)
	}
}

func TestClassifyNoneByDefault(t *testing.T) {
	got := Classify("what's the capital of France", false)
	if got != CarveOutNone {
		t.Fatalf("got %q, want no carve-out", got)
	}
}
