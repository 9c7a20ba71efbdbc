package pending

import (
	"testing"
	"time"

	"github.com/nova-run/orchestrator/pkg/models"
)

func TestSetOverwrites(t *testing.T) {
	s := New(time.Minute)
	s.Set("sess-1", models.PendingConfirmation{Kind: models.ConfirmationWeather, Prompt: "first"})
	s.Set("sess-1", models.PendingConfirmation{Kind: models.ConfirmationMission, Prompt: "second"})

	got, ok := s.Get("sess-1")
	if !ok {
		t.Fatalf("expected a pending confirmation")
	}
	if got.Prompt != "second" {
		t.Fatalf("got %q, want second (overwrite)", got.Prompt)
	}
}

func TestGetPurgesExpired(t *testing.T) {
	s := New(time.Minute)
	now := time.Now()
	s.Set("sess-1", models.PendingConfirmation{Kind: models.ConfirmationMission, CreatedAt: now})

	_, ok := s.GetAt("sess-1", now.Add(2*time.Minute))
	if ok {
		t.Fatalf("expected expired confirmation to be purged")
	}
	_, stillThere := s.GetAt("sess-1", now)
	if stillThere {
		t.Fatalf("expected purge to have removed the entry permanently")
	}
}

func TestClearRemoves(t *testing.T) {
	s := New(time.Minute)
	s.Set("sess-1", models.PendingConfirmation{Kind: models.ConfirmationWeather})
	s.Clear("sess-1")

	_, ok := s.Get("sess-1")
	if ok {
		t.Fatalf("expected no confirmation after Clear")
	}
}

func TestGetAbsentSession(t *testing.T) {
	s := New(time.Minute)
	_, ok := s.Get("nonexistent")
	if ok {
		t.Fatalf("expected no confirmation for unseen session")
	}
}

func TestDefaultTTLApplied(t *testing.T) {
	s := New(0)
	if s.ttl != defaultTTL {
		t.Fatalf("got ttl %v, want default %v", s.ttl, defaultTTL)
	}
}
