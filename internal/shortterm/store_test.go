package shortterm

import (
	"testing"
	"time"

	"github.com/nova-run/orchestrator/pkg/models"
)

func TestUpsertAndGet(t *testing.T) {
	s := New(time.Minute)
	now := time.Now()
	s.Upsert("u1", "c1", models.DomainMissionTask, models.ShortTermContext{
		TopicAffinityID: "task-42",
		Timestamp:       now,
	})

	got, ok := s.GetAt("u1", "c1", models.DomainMissionTask, now)
	if !ok {
		t.Fatalf("expected entry present")
	}
	if got.TopicAffinityID != "task-42" {
		t.Fatalf("got %q, want task-42", got.TopicAffinityID)
	}
}

func TestGetAbsenceIsNormal(t *testing.T) {
	s := New(time.Minute)
	_, ok := s.Get("u1", "c1", models.DomainCrypto)
	if ok {
		t.Fatalf("expected no entry for unseen key")
	}
}

func TestGetExpiresAfterTTL(t *testing.T) {
	s := New(time.Minute)
	now := time.Now()
	s.Upsert("u1", "c1", models.DomainAssistant, models.ShortTermContext{Timestamp: now})

	_, ok := s.GetAt("u1", "c1", models.DomainAssistant, now.Add(2*time.Minute))
	if ok {
		t.Fatalf("expected entry to have expired")
	}
}

func TestClearRemovesEntry(t *testing.T) {
	s := New(time.Minute)
	now := time.Now()
	s.Upsert("u1", "c1", models.DomainCrypto, models.ShortTermContext{Timestamp: now})
	s.Clear("u1", "c1", models.DomainCrypto)

	_, ok := s.GetAt("u1", "c1", models.DomainCrypto, now)
	if ok {
		t.Fatalf("expected entry to be cleared")
	}
}

func TestIsCancel(t *testing.T) {
	if !IsCancel("never mind") {
		t.Fatalf("expected never mind to cancel")
	}
	if IsCancel("what's the weather") {
		t.Fatalf("expected unrelated text to not cancel")
	}
}

func TestIsNewTopic(t *testing.T) {
	if !IsNewTopic("actually, can you help with something else") {
		t.Fatalf("expected actually-prefixed text to signal new topic")
	}
	if IsNewTopic("yes please continue") {
		t.Fatalf("expected plain follow-up to not signal new topic")
	}
}

func TestIsNonCriticalFollowUp(t *testing.T) {
	if !IsNonCriticalFollowUp("yes") {
		t.Fatalf("expected bare yes to be non-critical follow-up")
	}
	if IsNonCriticalFollowUp("yes, delete my entire account") {
		t.Fatalf("expected longer text to not match bare follow-up")
	}
}

func TestResolveTopicAffinityIDTiesFavorMission(t *testing.T) {
	now := time.Now()
	candidates := map[models.ContextDomain]models.ShortTermContext{
		models.DomainCrypto:      {TopicAffinityID: "crypto-1", Timestamp: now},
		models.DomainMissionTask: {TopicAffinityID: "mission-1", Timestamp: now},
	}
	got := ResolveTopicAffinityID(candidates)
	if got != "mission-1" {
		t.Fatalf("got %q, want mission-1 on equal-timestamp tie", got)
	}
}

func TestResolveTopicAffinityIDPicksNewest(t *testing.T) {
	now := time.Now()
	candidates := map[models.ContextDomain]models.ShortTermContext{
		models.DomainCrypto:      {TopicAffinityID: "crypto-1", Timestamp: now.Add(time.Minute)},
		models.DomainMissionTask: {TopicAffinityID: "mission-1", Timestamp: now},
	}
	got := ResolveTopicAffinityID(candidates)
	if got != "crypto-1" {
		t.Fatalf("got %q, want crypto-1 (newer)", got)
	}
}

func TestResolveTopicAffinityIDEmpty(t *testing.T) {
	got := ResolveTopicAffinityID(map[models.ContextDomain]models.ShortTermContext{})
	if got != "" {
		t.Fatalf("got %q, want empty", got)
	}
}
