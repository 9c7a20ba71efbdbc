package sessionstore

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/nova-run/orchestrator/pkg/models"
)

func setupMockPostgresStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })

	mock.ExpectPrepare(`SELECT COALESCE\(MAX\(seq\), 0\)`)
	mock.ExpectPrepare(`INSERT INTO transcript_turns`)
	mock.ExpectPrepare(`SELECT role, text, provider, model, prompt_tokens, completion_tokens, nlp_diagnostics, created_at`)

	store := &PostgresStore{db: db}
	if err := store.prepare(); err != nil {
		t.Fatalf("prepare() error = %v", err)
	}
	return store, mock
}

func TestPostgresAppendAssignsNextSeq(t *testing.T) {
	store, mock := setupMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(seq\), 0\)`).
		WithArgs("sess-1").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(3))
	mock.ExpectExec(`INSERT INTO transcript_turns`).
		WithArgs("sess-1", 4, "user", "hello", "", "", 0, 0, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	err := store.Append(context.Background(), "sess-1", models.TranscriptTurn{
		Role: models.TranscriptRoleUser,
		Text: "hello",
	})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresAppendRollsBackOnInsertFailure(t *testing.T) {
	store, mock := setupMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(seq\), 0\)`).
		WithArgs("sess-1").
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(0))
	mock.ExpectExec(`INSERT INTO transcript_turns`).
		WillReturnError(context.DeadlineExceeded)
	mock.ExpectRollback()

	err := store.Append(context.Background(), "sess-1", models.TranscriptTurn{Role: models.TranscriptRoleUser, Text: "hello"})
	if err == nil {
		t.Fatal("expected an error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPostgresHistoryScansRowsInOrder(t *testing.T) {
	store, mock := setupMockPostgresStore(t)

	now := time.Now()
	rows := sqlmock.NewRows([]string{
		"role", "text", "provider", "model", "prompt_tokens", "completion_tokens", "nlp_diagnostics", "created_at",
	}).
		AddRow("user", "hi", "", "", 0, 0, nil, now).
		AddRow("assistant", "hello back", "anthropic", "claude", 5, 2, nil, now)

	mock.ExpectQuery(`SELECT role, text, provider, model, prompt_tokens, completion_tokens, nlp_diagnostics, created_at`).
		WithArgs("sess-1").
		WillReturnRows(rows)

	got, err := store.History(context.Background(), "sess-1", 0)
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d turns, want 2", len(got))
	}
	if got[0].Role != models.TranscriptRoleUser || got[1].Role != models.TranscriptRoleAssistant {
		t.Fatalf("unexpected role ordering: %+v", got)
	}
}
