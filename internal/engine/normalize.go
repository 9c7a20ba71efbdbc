package engine

import (
	"context"
	"regexp"
	"strings"

	"github.com/nova-run/orchestrator/internal/fallback"
	"github.com/nova-run/orchestrator/pkg/models"
)

var (
	toolInvocationRe = regexp.MustCompile(`(?is)<(tool_call|tool_use)>.*?</(tool_call|tool_use)>`)
	sourceMetaLineRe = regexp.MustCompile(`(?im)^\s*\[?source[:\s].*$`)
	multiBlankRe     = regexp.MustCompile(`\n{3,}`)
)

// runNormalize implements spec §4.2.8: strip tool-invocation markup and
// source-metadata lines, repair broken readability, then — if the result
// is empty — climb the fallback ladder, stopping at first success.
func (e *Engine) runNormalize(ctx context.Context, st *runState) (enginePhase, error) {
	normalized := normalizeReply(st.reply)

	if normalized != "" {
		st.normalized = normalized
		return phasePersist, nil
	}

	st.fallbackStage, st.fallbackReason = "", ""

	if reply := e.recoveryLadderStep(ctx, st); reply != "" {
		st.normalized = reply
		st.fallbackStage = "recovery_completion"
		st.fallbackReason = "empty_reply_high_token_usage"
		return phasePersist, nil
	}

	opts := fallback.Options{Strict: st.hadCandidateBeforeFallback}
	var reply string
	if st.constraints.Active() {
		reply = fallback.BuildConstraintSafeFallback(st.constraints, st.turn.Text, opts)
	} else {
		reply = fallback.BuildDeterministicEmptyReplyFallback(st.turn.Text, opts)
	}
	st.normalized = reply
	st.fallbackStage = "deterministic_fallback"
	st.fallbackReason = "empty_reply"
	return phasePersist, nil
}

func normalizeReply(reply string) string {
	out := toolInvocationRe.ReplaceAllString(reply, "")
	out = sourceMetaLineRe.ReplaceAllString(out, "")
	out = multiBlankRe.ReplaceAllString(out, "\n\n")
	return strings.TrimSpace(out)
}

// recoveryLadderStep implements the first ladder rung (§4.2.8 item 1):
// an OpenAI-compatible completion that was truncated (finish reason
// "length") or that used most of its token cap gets one more no-tools
// request asking it to finish the thought.
func (e *Engine) recoveryLadderStep(ctx context.Context, st *runState) string {
	if st.usedProvider != "openai" {
		return ""
	}
	usedTokens := st.completion.Usage.CompletionTokens
	tokenCap := adaptiveMaxCompletionTokens(st.turn.Text, st.constraints)
	nearCap := tokenCap > 0 && float64(usedTokens)/float64(tokenCap) >= 0.85
	if st.completion.FinishReason != "length" && !nearCap {
		return ""
	}

	backend := e.Registry.Backend(st.usedProvider)
	if backend == nil {
		return ""
	}
	rctx, cancel := context.WithTimeout(ctx, e.Config.RecoveryBudget)
	defer cancel()

	messages := append([]models.CompletionMessage{}, st.messages...)
	messages = append(messages,
		models.CompletionMessage{Role: "assistant", Content: st.reply},
		models.CompletionMessage{Role: "user", Content: "Please finish that answer."},
	)
	req := models.CompletionRequest{
		Model:     st.usedModel,
		System:    st.systemPrompt,
		Messages:  messages,
		MaxTokens: adaptiveMaxCompletionTokens(st.turn.Text, st.constraints),
	}
	completion, err := backend.Create(rctx, req)
	if err != nil {
		return ""
	}
	return normalizeReply(completion.Text)
}
