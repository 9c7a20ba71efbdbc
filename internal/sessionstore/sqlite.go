package sessionstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/nova-run/orchestrator/pkg/models"
)

// SQLiteStore is the local/dev counterpart to PostgresStore: same
// `transcript_turns` shape and append-only sequencing, backed by a
// single-file database so a developer can run the engine without
// standing up Postgres.
type SQLiteStore struct {
	db *sql.DB

	stmtAppend  *sql.Stmt
	stmtMaxSeq  *sql.Stmt
	stmtHistory *sql.Stmt
}

// NewSQLiteStore opens (creating if absent) the database file at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, fmt.Errorf("sessionstore: path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: open: %w", err)
	}
	// SQLite serializes writers at the file level; a single open
	// connection avoids "database is locked" errors under concurrent
	// appends from multiple goroutines in the same process.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sessionstore: ping: %w", err)
	}
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sessionstore: ensure schema: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.prepare(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS transcript_turns (
	session_key       TEXT NOT NULL,
	seq               INTEGER NOT NULL,
	role              TEXT NOT NULL,
	text              TEXT NOT NULL,
	provider          TEXT NOT NULL DEFAULT '',
	model             TEXT NOT NULL DEFAULT '',
	prompt_tokens     INTEGER NOT NULL DEFAULT 0,
	completion_tokens INTEGER NOT NULL DEFAULT 0,
	nlp_diagnostics   TEXT,
	created_at        TIMESTAMP NOT NULL,
	PRIMARY KEY (session_key, seq)
)`

func (s *SQLiteStore) prepare() error {
	var err error
	s.stmtMaxSeq, err = s.db.Prepare(`SELECT COALESCE(MAX(seq), 0) FROM transcript_turns WHERE session_key = ?`)
	if err != nil {
		return fmt.Errorf("sessionstore: prepare max-seq: %w", err)
	}
	s.stmtAppend, err = s.db.Prepare(`
		INSERT INTO transcript_turns
			(session_key, seq, role, text, provider, model, prompt_tokens, completion_tokens, nlp_diagnostics, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("sessionstore: prepare append: %w", err)
	}
	s.stmtHistory, err = s.db.Prepare(`
		SELECT role, text, provider, model, prompt_tokens, completion_tokens, nlp_diagnostics, created_at
		FROM transcript_turns
		WHERE session_key = ?
		ORDER BY seq ASC
	`)
	if err != nil {
		return fmt.Errorf("sessionstore: prepare history: %w", err)
	}
	return nil
}

// Append mirrors PostgresStore.Append's read-max-then-insert sequencing,
// relying on the single-connection pool (rather than row locking) to
// serialize concurrent writers.
func (s *SQLiteStore) Append(ctx context.Context, sessionKey string, turn models.TranscriptTurn) error {
	nlpJSON, err := marshalNLP(turn.NLP)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sessionstore: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var maxSeq int
	if err := tx.StmtContext(ctx, s.stmtMaxSeq).QueryRowContext(ctx, sessionKey).Scan(&maxSeq); err != nil {
		return fmt.Errorf("sessionstore: read max seq: %w", err)
	}

	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now()
	}
	_, err = tx.StmtContext(ctx, s.stmtAppend).ExecContext(ctx,
		sessionKey, maxSeq+1, string(turn.Role), turn.Text, turn.Provider, turn.Model,
		turn.PromptTokens, turn.CompletionTokens, nlpJSON, turn.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("sessionstore: insert turn: %w", err)
	}

	return tx.Commit()
}

// History returns sessionKey's transcript oldest-first, trimmed to the
// most recent limit turns when limit > 0.
func (s *SQLiteStore) History(ctx context.Context, sessionKey string, limit int) ([]models.TranscriptTurn, error) {
	rows, err := s.stmtHistory.QueryContext(ctx, sessionKey)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: query history: %w", err)
	}
	defer rows.Close()

	var turns []models.TranscriptTurn
	for rows.Next() {
		var (
			role, text, provider, model     string
			promptTokens, completionTokens  int
			nlpJSON                          sql.NullString
			createdAt                        time.Time
		)
		if err := rows.Scan(&role, &text, &provider, &model, &promptTokens, &completionTokens, &nlpJSON, &createdAt); err != nil {
			return nil, fmt.Errorf("sessionstore: scan turn: %w", err)
		}
		turn := models.TranscriptTurn{
			Role:             models.TranscriptRole(role),
			Text:             text,
			Timestamp:        createdAt,
			Provider:         provider,
			Model:            model,
			PromptTokens:     promptTokens,
			CompletionTokens: completionTokens,
		}
		if nlpJSON.Valid && nlpJSON.String != "" {
			var diag models.NLPDiagnostics
			if err := json.Unmarshal([]byte(nlpJSON.String), &diag); err == nil {
				turn.NLP = &diag
			}
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return turns, nil
}

// Close releases the underlying connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

var _ Store = (*PostgresStore)(nil)
var _ Store = (*SQLiteStore)(nil)
