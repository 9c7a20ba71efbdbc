package engine

import (
	"context"

	"github.com/nova-run/orchestrator/internal/provider"
	"github.com/nova-run/orchestrator/internal/wshub"
	"github.com/nova-run/orchestrator/pkg/models"
)

// runProviderCall implements spec §4.2.4: picks one of the three call
// modes (non-streaming direct, streaming direct, tool loop) and runs it
// against the ranked candidate list via provider.Registry.
func (e *Engine) runProviderCall(ctx context.Context, st *runState) (enginePhase, error) {
	if len(st.candidates) == 0 {
		return phaseDone, ErrNoProviderConnected
	}

	maxTokens := adaptiveMaxCompletionTokens(st.turn.Text, st.constraints)
	req := models.CompletionRequest{
		System:    st.systemPrompt,
		Messages:  st.messages,
		MaxTokens: maxTokens,
	}
	if e.ToolRuntime != nil {
		req.Tools = e.ToolRuntime.Tools()
	}

	switch {
	case st.constraints.Active():
		completion, cand, err := e.Registry.ResolveChatRuntime(ctx, st.candidates, req)
		if err != nil {
			return phaseDone, err
		}
		st.completion = completion
		st.usedProvider, st.usedModel = cand.Provider, cand.Model
		st.reply = completion.Text

	case st.execPolicy.CanRunToolLoop && st.policy.ToolLoopCandidate:
		completion, cand, err := e.runToolLoop(ctx, st, req)
		if err != nil {
			return phaseDone, err
		}
		st.completion = completion
		st.usedProvider, st.usedModel = cand.Provider, cand.Model
		st.reply = completion.Text

	default:
		completion, cand, err := e.runStreamingDirect(ctx, st, req)
		if err != nil {
			return phaseDone, err
		}
		st.completion = completion
		st.usedProvider, st.usedModel = cand.Provider, cand.Model
		st.reply = completion.Text
	}

	st.hadCandidateBeforeFallback = st.reply != ""
	return phaseRefusalRecovery, nil
}

// runStreamingDirect performs the streaming mode of §4.2.4 for non-tool
// turns: deltas are forwarded to the broadcaster as they arrive, and the
// final text/usage come from the stream's terminal delta.
func (e *Engine) runStreamingDirect(ctx context.Context, st *runState, req models.CompletionRequest) (models.Completion, provider.ModelCandidate, error) {
	var lastErr error
	for _, cand := range st.candidates {
		backend := e.Registry.Backend(cand.Provider)
		if backend == nil {
			continue
		}
		attempt := req
		attempt.Model = cand.Model

		streamID := ""
		if e.Broadcaster != nil {
			streamID = wshub.NewStreamID()
			e.Broadcaster.BroadcastAssistantStreamStart(st.turn.SessionKey, streamID)
		}

		var text string
		var usage models.CompletionUsage
		var toolCalls []models.ToolCall
		err := backend.Stream(ctx, attempt, func(d provider.StreamDelta) error {
			if d.Err != nil {
				return d.Err
			}
			if d.Text != "" {
				text += d.Text
				if e.Broadcaster != nil {
					e.Broadcaster.BroadcastAssistantStreamDelta(st.turn.SessionKey, streamID, d.Text)
				}
			}
			if d.ToolCall != nil {
				toolCalls = append(toolCalls, *d.ToolCall)
			}
			return nil
		})
		if e.Broadcaster != nil && streamID != "" {
			e.Broadcaster.BroadcastAssistantStreamDone(st.turn.SessionKey, streamID)
		}
		if err != nil {
			lastErr = err
			if provider.IsFailoverError(err) {
				continue
			}
			return models.Completion{}, cand, err
		}
		st.streamID = streamID
		return models.Completion{Text: text, ToolCalls: toolCalls, Usage: usage}, cand, nil
	}
	if lastErr == nil {
		lastErr = provider.ErrAllCandidatesFailed
	}
	return models.Completion{}, provider.ModelCandidate{}, lastErr
}
