package provider

import (
	"context"
	"fmt"

	"github.com/nova-run/orchestrator/pkg/models"
)

// Registry resolves a ranked list of model candidates down to one
// ChatProvider + completion, trying each candidate in order until one
// succeeds.
type Registry struct {
	backends map[string]ChatProvider
}

// NewRegistry builds a Registry from named backends (the Name() each
// ChatProvider reports: "anthropic", "openai", "bedrock", "gemini").
func NewRegistry(backends ...ChatProvider) *Registry {
	r := &Registry{backends: make(map[string]ChatProvider, len(backends))}
	for _, b := range backends {
		r.backends[b.Name()] = b
	}
	return r
}

// Backend returns the named backend, or nil if it was never registered.
func (r *Registry) Backend(name string) ChatProvider {
	return r.backends[name]
}

// ResolveChatRuntime tries each candidate in order, returning the first
// successful completion along with which candidate produced it. If every
// candidate fails, it returns ErrAllCandidatesFailed wrapping the last
// attempt's error.
func (r *Registry) ResolveChatRuntime(ctx context.Context, candidates []ModelCandidate, req models.CompletionRequest) (models.Completion, ModelCandidate, error) {
	var lastErr error
	for _, cand := range candidates {
		backend, ok := r.backends[cand.Provider]
		if !ok {
			continue
		}

		attemptReq := req
		attemptReq.Model = cand.Model

		completion, err := backend.Create(ctx, attemptReq)
		if err == nil {
			return completion, cand, nil
		}

		lastErr = err
		if !IsFailoverError(err) {
			return models.Completion{}, cand, err
		}
	}

	if lastErr == nil {
		return models.Completion{}, ModelCandidate{}, ErrAllCandidatesFailed
	}
	return models.Completion{}, ModelCandidate{}, &FailoverError{Err: fmt.Errorf("%w: %w", ErrAllCandidatesFailed, lastErr), Reason: ReasonUnavailable}
}
