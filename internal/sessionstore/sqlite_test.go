package sessionstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/nova-run/orchestrator/pkg/models"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "transcript.db")
	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSQLiteAppendAndHistoryRoundTrip(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	turns := []models.TranscriptTurn{
		{Role: models.TranscriptRoleUser, Text: "hello", Timestamp: time.Now()},
		{Role: models.TranscriptRoleAssistant, Text: "hi there", Provider: "anthropic", Model: "claude", PromptTokens: 10, CompletionTokens: 4},
	}
	for _, turn := range turns {
		if err := store.Append(ctx, "sess-1", turn); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	got, err := store.History(ctx, "sess-1", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d turns, want 2", len(got))
	}
	if got[0].Text != "hello" || got[1].Text != "hi there" {
		t.Fatalf("unexpected transcript order: %+v", got)
	}
	if got[1].Provider != "anthropic" || got[1].CompletionTokens != 4 {
		t.Fatalf("provider/token fields not round-tripped: %+v", got[1])
	}
}

func TestSQLiteHistoryRespectsLimit(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		turn := models.TranscriptTurn{Role: models.TranscriptRoleUser, Text: string(rune('a' + i))}
		if err := store.Append(ctx, "sess-1", turn); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}

	got, err := store.History(ctx, "sess-1", 2)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d turns, want 2", len(got))
	}
	if got[0].Text != "d" || got[1].Text != "e" {
		t.Fatalf("expected the last 2 turns in order, got %+v", got)
	}
}

func TestSQLiteHistoryEmptySessionReturnsEmptySlice(t *testing.T) {
	store := newTestSQLiteStore(t)
	got, err := store.History(context.Background(), "never-appended", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("got %d turns, want 0", len(got))
	}
}

func TestSQLiteAppendIsolatesSessionsBySessionKey(t *testing.T) {
	store := newTestSQLiteStore(t)
	ctx := context.Background()

	if err := store.Append(ctx, "sess-a", models.TranscriptTurn{Role: models.TranscriptRoleUser, Text: "a-turn"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := store.Append(ctx, "sess-b", models.TranscriptTurn{Role: models.TranscriptRoleUser, Text: "b-turn"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	gotA, err := store.History(ctx, "sess-a", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(gotA) != 1 || gotA[0].Text != "a-turn" {
		t.Fatalf("sess-a history leaked cross-session rows: %+v", gotA)
	}
}
