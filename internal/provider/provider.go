// Package provider presents a uniform surface over every chat-completion
// backend the orchestrator can call — Anthropic's messages API,
// OpenAI-compatible chat completions, Bedrock-hosted models, and Gemini —
// so the engine and tool loop never branch on which backend is in play
// (spec §4.10).
package provider

import (
	"context"
	"time"

	"github.com/nova-run/orchestrator/pkg/models"
)

// StreamDelta is one incremental piece of a streaming completion.
type StreamDelta struct {
	Text     string
	ToolCall *models.ToolCall
	Done     bool
	Err      error
}

// ChatProvider is the uniform surface every backend implements.
type ChatProvider interface {
	// Name identifies the backend ("anthropic", "openai", "bedrock", "gemini").
	Name() string

	// Create performs a non-streaming completion.
	Create(ctx context.Context, req models.CompletionRequest) (models.Completion, error)

	// Stream performs a streaming completion, invoking onDelta for each
	// chunk as it arrives. It returns once the stream ends or onDelta
	// returns a non-nil error, in which case that error is returned.
	Stream(ctx context.Context, req models.CompletionRequest, onDelta func(StreamDelta) error) error

	// SupportsTools reports whether this backend can be handed tool
	// definitions at all.
	SupportsTools() bool

	// EstimateCost estimates USD cost for the given token usage against
	// model's published rate. Returns 0 when the model's rate is
	// unknown rather than guessing.
	EstimateCost(model string, usage models.CompletionUsage) float64
}

// DefaultCallTimeout bounds any single backend call absent a more
// specific deadline from the caller's context.
const DefaultCallTimeout = 45 * time.Second

// WithTimeout runs fn under a context bounded by timeout (or
// DefaultCallTimeout if timeout is zero), returning a FailoverError
// tagged with label and ReasonTimeout if fn's own context is exceeded.
func WithTimeout(ctx context.Context, label string, timeout time.Duration, fn func(context.Context) error) error {
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := fn(cctx)
	if err == nil {
		return nil
	}
	if cctx.Err() != nil && ctx.Err() == nil {
		return &FailoverError{Err: err, Reason: ReasonTimeout, Code: label}
	}
	return err
}

// ExtractEmptyReplyRecovery inspects a Completion and reports whether its
// text is empty enough to warrant the fallback ladder (§4.11) rather than
// returning the empty string to the user. Whitespace-only and
// single-punctuation replies both count as empty.
func ExtractEmptyReplyRecovery(c models.Completion) bool {
	trimmed := trimmedNonPunct(c.Text)
	return trimmed == ""
}

func trimmedNonPunct(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch r {
		case ' ', '\t', '\n', '\r', '.', '!', '?', '-', '_':
			continue
		default:
			out = append(out, r)
		}
	}
	return string(out)
}
