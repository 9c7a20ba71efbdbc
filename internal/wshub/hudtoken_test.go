package wshub

import (
	"errors"
	"testing"
	"time"
)

func TestIssueAndConsumeHudOpToken(t *testing.T) {
	issuer := NewHudTokenIssuer("test-secret", time.Minute)
	token, err := issuer.Issue("sess-1", "mission.destructive_step")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if err := issuer.ConsumeHudOpTokenForSensitiveAction(token, "sess-1", "mission.destructive_step"); err != nil {
		t.Fatalf("expected first consumption to succeed, got %v", err)
	}
}

func TestConsumeHudOpTokenRejectsReplay(t *testing.T) {
	issuer := NewHudTokenIssuer("test-secret", time.Minute)
	token, _ := issuer.Issue("sess-1", "mission.destructive_step")
	if err := issuer.ConsumeHudOpTokenForSensitiveAction(token, "sess-1", "mission.destructive_step"); err != nil {
		t.Fatalf("first consume: %v", err)
	}
	err := issuer.ConsumeHudOpTokenForSensitiveAction(token, "sess-1", "mission.destructive_step")
	if !errors.Is(err, ErrHudTokenAlreadyUsed) {
		t.Fatalf("got %v, want ErrHudTokenAlreadyUsed", err)
	}
}

func TestConsumeHudOpTokenRejectsWrongSessionOrAction(t *testing.T) {
	issuer := NewHudTokenIssuer("test-secret", time.Minute)
	token, _ := issuer.Issue("sess-1", "mission.destructive_step")

	if err := issuer.ConsumeHudOpTokenForSensitiveAction(token, "sess-2", "mission.destructive_step"); !errors.Is(err, ErrHudTokenInvalid) {
		t.Fatalf("got %v, want ErrHudTokenInvalid for mismatched session", err)
	}
	if err := issuer.ConsumeHudOpTokenForSensitiveAction(token, "sess-1", "other.action"); !errors.Is(err, ErrHudTokenInvalid) {
		t.Fatalf("got %v, want ErrHudTokenInvalid for mismatched action", err)
	}
}

func TestConsumeHudOpTokenRejectsExpired(t *testing.T) {
	issuer := NewHudTokenIssuer("test-secret", time.Millisecond)
	token, _ := issuer.Issue("sess-1", "mission.destructive_step")
	time.Sleep(10 * time.Millisecond)
	if err := issuer.ConsumeHudOpTokenForSensitiveAction(token, "sess-1", "mission.destructive_step"); !errors.Is(err, ErrHudTokenInvalid) {
		t.Fatalf("got %v, want ErrHudTokenInvalid for expired token", err)
	}
}

func TestConsumeHudOpTokenRejectsWrongSecret(t *testing.T) {
	issuer := NewHudTokenIssuer("test-secret", time.Minute)
	token, _ := issuer.Issue("sess-1", "mission.destructive_step")

	other := NewHudTokenIssuer("different-secret", time.Minute)
	if err := other.ConsumeHudOpTokenForSensitiveAction(token, "sess-1", "mission.destructive_step"); !errors.Is(err, ErrHudTokenInvalid) {
		t.Fatalf("got %v, want ErrHudTokenInvalid for wrong secret", err)
	}
}
