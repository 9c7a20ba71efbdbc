package engine

import (
	"context"

	"github.com/nova-run/orchestrator/pkg/models"
)

// ToolRuntime is the set of tools available for a tool-loop run. A nil
// ToolRuntime on the Engine means the tool loop is never entered,
// regardless of what the turn policy wants.
type ToolRuntime interface {
	Tools() []models.ToolDefinition
	Execute(ctx context.Context, call models.ToolCall) (models.ToolResult, error)
}

// FastPathWeather answers a weather fast-path request once a location is
// known, bypassing the LLM entirely (spec §4.2.2).
type FastPathWeather interface {
	Lookup(ctx context.Context, location string) (string, error)
}

// FastPathCrypto answers a crypto portfolio/report fast-path request.
type FastPathCrypto interface {
	Report(ctx context.Context, userContextID string) (string, error)
}

// PersonaSource renders the base agent persona plus any per-workspace
// overlay for a turn (prompt assembly §1).
type PersonaSource interface {
	BasePersona(ctx context.Context, turn models.Turn) (string, error)
}

// PreferenceMemory surfaces and captures user preference facts (prompt
// assembly §3).
type PreferenceMemory interface {
	TopPreferences(ctx context.Context, userContextID string) (string, error)
	CaptureFromUtterance(ctx context.Context, userContextID, text string)
}

// IdentitySignals derives identity intelligence from the current turn
// (prompt assembly §4).
type IdentitySignals interface {
	Derive(ctx context.Context, turn models.Turn) (string, error)
}

// PersonalityCalibration renders a personality-engine overlay (prompt
// assembly §5).
type PersonalityCalibration interface {
	Calibrate(ctx context.Context, userContextID string) (string, error)
}

// WebSearcher performs the live web-search enrichment task.
type WebSearcher interface {
	MatchesPreloadIntent(text string) bool
	Search(ctx context.Context, query string) (string, error)
}

// LinkFetcher performs the link-understanding enrichment task.
type LinkFetcher interface {
	HasURL(text string) bool
	Fetch(ctx context.Context, text string) (string, error)
}

// MemoryRecallSource performs the live memory-recall enrichment task.
type MemoryRecallSource interface {
	Qualifies(turn models.Turn) bool
	Recall(ctx context.Context, userContextID string) (string, error)
}
