package sessionstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/nova-run/orchestrator/pkg/models"
)

// PostgresConfig configures the connection pool backing PostgresStore.
type PostgresConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration
}

// DefaultPostgresConfig returns sane pool defaults.
func DefaultPostgresConfig() PostgresConfig {
	return PostgresConfig{
		Host:            "localhost",
		Port:            5432,
		User:            "postgres",
		Database:        "orchestrator",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnectTimeout:  10 * time.Second,
	}
}

// PostgresStore persists transcripts to a `transcript_turns` table with
// an append-only unique (session_key, seq) constraint.
type PostgresStore struct {
	db *sql.DB

	stmtAppend  *sql.Stmt
	stmtMaxSeq  *sql.Stmt
	stmtHistory *sql.Stmt
}

// NewPostgresStore opens a connection pool and prepares statements.
func NewPostgresStore(cfg PostgresConfig) (*PostgresStore, error) {
	if cfg.Host == "" {
		cfg = DefaultPostgresConfig()
	}
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s connect_timeout=%d",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.Database, cfg.SSLMode, int(cfg.ConnectTimeout.Seconds()),
	)
	return newPostgresStoreWithDSN(dsn, cfg)
}

// NewPostgresStoreFromDSN opens a store from a raw DSN/connection URL.
func NewPostgresStoreFromDSN(dsn string, cfg PostgresConfig) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("sessionstore: dsn is required")
	}
	return newPostgresStoreWithDSN(dsn, cfg)
}

func newPostgresStoreWithDSN(dsn string, cfg PostgresConfig) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: open: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	timeout := cfg.ConnectTimeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("sessionstore: ping: %w", err)
	}

	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sessionstore: ensure schema: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.prepare(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

const postgresSchema = `
CREATE TABLE IF NOT EXISTS transcript_turns (
	session_key       TEXT NOT NULL,
	seq               INTEGER NOT NULL,
	role              TEXT NOT NULL,
	text              TEXT NOT NULL,
	provider          TEXT NOT NULL DEFAULT '',
	model             TEXT NOT NULL DEFAULT '',
	prompt_tokens     INTEGER NOT NULL DEFAULT 0,
	completion_tokens INTEGER NOT NULL DEFAULT 0,
	nlp_diagnostics   JSONB,
	created_at        TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (session_key, seq)
)`

func (s *PostgresStore) prepare() error {
	var err error
	s.stmtMaxSeq, err = s.db.Prepare(`SELECT COALESCE(MAX(seq), 0) FROM transcript_turns WHERE session_key = $1`)
	if err != nil {
		return fmt.Errorf("sessionstore: prepare max-seq: %w", err)
	}
	s.stmtAppend, err = s.db.Prepare(`
		INSERT INTO transcript_turns
			(session_key, seq, role, text, provider, model, prompt_tokens, completion_tokens, nlp_diagnostics, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`)
	if err != nil {
		return fmt.Errorf("sessionstore: prepare append: %w", err)
	}
	s.stmtHistory, err = s.db.Prepare(`
		SELECT role, text, provider, model, prompt_tokens, completion_tokens, nlp_diagnostics, created_at
		FROM transcript_turns
		WHERE session_key = $1
		ORDER BY seq ASC
	`)
	if err != nil {
		return fmt.Errorf("sessionstore: prepare history: %w", err)
	}
	return nil
}

// Append assigns the next sequence number for sessionKey under a
// transaction so a concurrent append can't reuse a seq value.
func (s *PostgresStore) Append(ctx context.Context, sessionKey string, turn models.TranscriptTurn) error {
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

// History returns the transcript for sessionKey, oldest turn first. If
// limit > 0, only the most recent limit turns are returned (still in
// oldest-first order).
func (s *PostgresStore) History(ctx context.Context, sessionKey string, limit int) ([]models.TranscriptTurn, error) {
	rows, err := s.stmtHistory.QueryContext(ctx, sessionKey)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: query history: %w", err)
	}
	defer rows.Close()

	var turns []models.TranscriptTurn
	for rows.Next() {
		var (
			role, text, provider, model string
			promptTokens, completionTokens int
			nlpJSON                         sql.NullString
			createdAt                       time.Time
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

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func marshalNLP(diag *models.NLPDiagnostics) ([]byte, error) {
	if diag == nil {
		return nil, nil
	}
	b, err := json.Marshal(diag)
	if err != nil {
		return nil, fmt.Errorf("sessionstore: marshal nlp diagnostics: %w", err)
	}
	return b, nil
}
