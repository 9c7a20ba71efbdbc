// Package promptbudget assembles the prompt sent to a provider within a
// fixed token budget (spec §4.3). Every function here is pure: no I/O, no
// provider calls, so the engine can call it on the hot path without
// worrying about latency or failure modes.
package promptbudget

import "strings"

// roughly 4 characters per token, the same estimator the teacher's
// compaction helpers use when an exact tokenizer isn't on hand.
const charsPerToken = 4

// EstimateTokens approximates the token count of s.
func EstimateTokens(s string) int {
	if len(s) == 0 {
		return 0
	}
	n := len(s) / charsPerToken
	if n == 0 {
		return 1
	}
	return n
}

// AppendResult is the outcome of AppendBudgetedSection.
type AppendResult struct {
	Prompt   string
	Included bool
}

// AppendBudgetedSection appends a titled section to prompt, but only if
// doing so would not exceed sectionBudget (tokens available to this one
// section) or remainingBudget (tokens left in the overall prompt). When
// rejected, prompt is returned unchanged and Included is false.
func AppendBudgetedSection(prompt, title, body string, sectionBudget, remainingBudget int) AppendResult {
	if body == "" {
		return AppendResult{Prompt: prompt, Included: false}
	}
	cost := EstimateTokens(title) + EstimateTokens(body)
	if cost > sectionBudget || cost > remainingBudget {
		return AppendResult{Prompt: prompt, Included: false}
	}

	var b strings.Builder
	b.WriteString(prompt)
	if prompt != "" && !strings.HasSuffix(prompt, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("## ")
	b.WriteString(title)
	b.WriteString("\n")
	b.WriteString(body)
	b.WriteString("\n")
	return AppendResult{Prompt: b.String(), Included: true}
}

// HistoryBudgetParams bounds the history-token-budget computation.
type HistoryBudgetParams struct {
	MaxPromptTokens     int
	SystemPromptTokens  int
	UserMessageTokens   int
	ResponseReserve     int
	MinHistoryTokens    int
	MaxHistoryTokens    int
	HistoryTargetTokens int
}

// ComputeHistoryTokenBudget derives how many tokens of conversation
// history may be included: the max prompt budget less the fixed costs
// (system prompt, the current user message, a reserve for the model's
// response), clamped to [MinHistoryTokens, MaxHistoryTokens], then capped
// at HistoryTargetTokens if that target is the tighter bound.
func ComputeHistoryTokenBudget(p HistoryBudgetParams) int {
	available := p.MaxPromptTokens - p.SystemPromptTokens - p.UserMessageTokens - p.ResponseReserve
	if available < p.MinHistoryTokens {
		available = p.MinHistoryTokens
	}
	if available > p.MaxHistoryTokens {
		available = p.MaxHistoryTokens
	}
	if p.HistoryTargetTokens > 0 && p.HistoryTargetTokens < available {
		available = p.HistoryTargetTokens
	}
	return available
}
