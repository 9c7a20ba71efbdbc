// Package sessionstore persists a session's transcript: the append-only
// sequence of user/assistant turns the chat execution engine appends to.
// The engine does not read History back when it assembles a prompt. Two backends implement the same Store
// interface — Postgres for production, SQLite for local/dev runs — so
// the engine never branches on which one is wired in.
package sessionstore

import (
	"context"
	"errors"

	"github.com/nova-run/orchestrator/pkg/models"
)

// ErrSessionNotFound is not returned by either backend's History: a
// session key with no transcript rows is not an error, and History
// returns an empty slice for it.
var ErrSessionNotFound = errors.New("sessionstore: session not found")

// Store persists and retrieves a session's transcript.
//
// Append must enforce the "monotonic append, never edit prior turns"
// invariant structurally: each implementation assigns turns an
// increasing per-session sequence number under a uniqueness
// constraint, so a concurrent double-append can race for a seq value
// but never silently overwrite an existing row.
type Store interface {
	// Append adds turn as the next entry in sessionKey's transcript.
	Append(ctx context.Context, sessionKey string, turn models.TranscriptTurn) error

	// History returns up to limit of the most recent turns for
	// sessionKey, oldest first. limit <= 0 means "no limit".
	History(ctx context.Context, sessionKey string, limit int) ([]models.TranscriptTurn, error)

	// Close releases the underlying connection pool.
	Close() error
}
