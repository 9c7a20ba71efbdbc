package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/nova-run/orchestrator/internal/provider"
	"github.com/nova-run/orchestrator/internal/toolloop"
	"github.com/nova-run/orchestrator/pkg/models"
)

// runToolLoop implements spec §4.2.5: a bounded, guardrailed loop over
// the first candidate, switching once to the next candidate on a
// transport failure during the first step.
func (e *Engine) runToolLoop(ctx context.Context, st *runState, req models.CompletionRequest) (models.Completion, provider.ModelCandidate, error) {
	budget := toolloop.NewBudget(toolloop.BudgetConfig{
		MaxDuration: e.Config.ToolLoopMaxDuration,
		MinTimeout:  time.Second,
	})
	snapshot := &models.ToolLoopSnapshot{}
	st.toolLoopSnapshot = snapshot

	candIdx := 0
	cand := st.candidates[candIdx]
	backend := e.Registry.Backend(cand.Provider)
	if backend == nil {
		return models.Completion{}, cand, ErrNoProviderConnected
	}

	messages := append([]models.CompletionMessage{}, req.Messages...)
	switchedFallback := false

	for step := 0; step < e.Config.MaxToolSteps; step++ {
		if budget.IsExhausted() {
			snapshot.BudgetExhausted = true
			return e.recoveryCompletion(ctx, backend, cand, req, messages)
		}

		timeoutMs := budget.ResolveTimeoutMs(int(e.Config.ToolStepTimeout/time.Millisecond), 1000)
		stepCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
		attempt := req
		attempt.Model = cand.Model
		attempt.Messages = messages

		completion, err := backend.Create(stepCtx, attempt)
		cancel()
		snapshot.Steps++

		if err != nil {
			if step == 0 && !switchedFallback && toolloop.IsLikelyTimeoutError(err) && len(st.candidates) > candIdx+1 {
				switchedFallback = true
				candIdx++
				cand = st.candidates[candIdx]
				backend = e.Registry.Backend(cand.Provider)
				st.retryLadder = append(st.retryLadder, models.RetryLadderEntry{
					Stage: "tool_loop_first_step", FromModel: st.candidates[candIdx-1].String(), ToModel: cand.String(), Reason: "transport_timeout",
				})
				if backend == nil {
					return models.Completion{}, cand, err
				}
				step--
				continue
			}
			if toolloop.IsLikelyTimeoutError(err) {
				snapshot.StepTimeouts++
			}
			return models.Completion{}, cand, err
		}

		if len(completion.ToolCalls) == 0 {
			return completion, cand, nil
		}

		messages = append(messages, models.CompletionMessage{Role: "assistant", Content: completion.Text, ToolCalls: completion.ToolCalls})
		results, forcedReply := e.executeToolCalls(ctx, st, completion.ToolCalls, snapshot)
		if forcedReply != "" {
			return models.Completion{Text: forcedReply}, cand, nil
		}
		messages = append(messages, models.CompletionMessage{Role: "tool", ToolResults: results})
	}

	return e.recoveryCompletion(ctx, backend, cand, req, messages)
}

// executeToolCalls runs each capped tool call and returns the results to
// feed back to the model. If a call fails with one of the fatal shapes
// classified by toolloop.ClassifyForcedFallback (missing search API key,
// rate-limited web search, disconnected Gmail, missing scope), it stops
// immediately and returns a non-empty forcedReply instead — the caller
// must exit the loop with that reply rather than feeding the error back
// to the model for another attempt.
func (e *Engine) executeToolCalls(ctx context.Context, st *runState, calls []models.ToolCall, snapshot *models.ToolLoopSnapshot) (results []models.ToolResult, forcedReply string) {
	capRes := toolloop.CapToolCallsPerStep(len(calls), e.Config.MaxToolCallsPerStep)
	snapshot.TotalToolCalls += capRes.CappedCount
	if capRes.WasCapped {
		snapshot.CallsCapped++
	}

	results = make([]models.ToolResult, 0, len(capRes.Capped)+1)
	defs := e.ToolRuntime.Tools()

	for _, idx := range capRes.Capped {
		call := calls[idx]

		if e.Config.SensitiveTools[call.Name] {
			if err := e.consumeHudToken(st.turn, call.Name); err != nil {
				results = append(results, models.ToolResult{ToolCallID: call.ID, Content: "confirmation required before this action can run", IsError: true})
				st.toolObservations = append(st.toolObservations, models.ToolCallObservation{Name: call.Name, Status: "error"})
				continue
			}
		}

		if def, ok := findTool(defs, call.Name); ok && len(def.InputSchema) > 0 {
			if err := toolloop.ValidateArgs(def.InputSchema, call.Input); err != nil {
				results = append(results, models.ToolResult{ToolCallID: call.ID, Content: fmt.Sprintf("invalid arguments: %v", err), IsError: true})
				st.toolObservations = append(st.toolObservations, models.ToolCallObservation{Name: call.Name, Status: "error"})
				continue
			}
		}

		execCtx, cancel := context.WithTimeout(ctx, e.Config.ToolExecTimeout)
		start := time.Now()
		result, err := e.ToolRuntime.Execute(execCtx, call)
		cancel()
		elapsed := time.Since(start)

		status := "ok"
		if err != nil {
			status = "error"
			if toolloop.IsLikelyTimeoutError(err) {
				status = "timeout"
				snapshot.ToolExecutionTimeouts++
			}
			result = models.ToolResult{ToolCallID: call.ID, Content: err.Error(), IsError: true}

			if reason, reply, ok := toolloop.ClassifyForcedFallback(call.Name, err); ok {
				snapshot.ForcedFallback = string(reason)
				st.toolObservations = append(st.toolObservations, models.ToolCallObservation{Name: call.Name, Status: status, Duration: elapsed})
				return nil, reply
			}
		}
		st.toolObservations = append(st.toolObservations, models.ToolCallObservation{Name: call.Name, Status: status, Duration: elapsed})
		results = append(results, result)
	}

	if capRes.WasCapped {
		results = append(results, models.ToolResult{
			Content: fmt.Sprintf("note: %d of %d requested tool calls were capped this step", capRes.RequestedCount-capRes.CappedCount, capRes.RequestedCount),
		})
	}
	return results, ""
}

func findTool(defs []models.ToolDefinition, name string) (models.ToolDefinition, bool) {
	for _, d := range defs {
		if d.Name == name {
			return d, true
		}
	}
	return models.ToolDefinition{}, false
}

func (e *Engine) consumeHudToken(turn models.Turn, action string) error {
	if e.HudTokens == nil {
		return fmt.Errorf("no HUD token issuer configured")
	}
	return e.HudTokens.ConsumeHudOpTokenForSensitiveAction(turn.HUDOpToken, turn.SessionKey, action)
}

// recoveryCompletion implements the tool loop's own recovery step
// (§4.2.5 "Recovery completion"): if the loop ends without a final
// assistant text, ask once more with no tools for the final answer; if
// still empty, synthesize a reply from the most recent tool output.
func (e *Engine) recoveryCompletion(ctx context.Context, backend provider.ChatProvider, cand provider.ModelCandidate, req models.CompletionRequest, messages []models.CompletionMessage) (models.Completion, provider.ModelCandidate, error) {
	rctx, cancel := context.WithTimeout(ctx, e.Config.RecoveryBudget)
	defer cancel()

	attempt := req
	attempt.Model = cand.Model
	attempt.Tools = nil
	attempt.Messages = append(messages, models.CompletionMessage{
		Role:    "user",
		Content: "Provide the final answer from the tool results above.",
	})

	completion, err := backend.Create(rctx, attempt)
	if err == nil && completion.Text != "" {
		return completion, cand, nil
	}

	return models.Completion{Text: synthesizeFromToolResults(messages)}, cand, nil
}

// synthesizeFromToolResults formats the most recent tool message's
// content as a best-effort reply when even the recovery completion came
// back empty.
func synthesizeFromToolResults(messages []models.CompletionMessage) string {
	for i := len(messages) - 1; i >= 0; i-- {
		msg := messages[i]
		if msg.Role != "tool" || len(msg.ToolResults) == 0 {
			continue
		}
		for _, r := range msg.ToolResults {
			if !r.IsError && r.Content != "" {
				return "Here's what I found:\n" + r.Content
			}
		}
		for _, r := range msg.ToolResults {
			if r.Content != "" {
				return "I ran into trouble completing that: " + r.Content
			}
		}
	}
	return ""
}
