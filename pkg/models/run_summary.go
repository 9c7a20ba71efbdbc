package models

import "time"

// ToolCallObservation records one executed tool call's outcome, regardless
// of which phase of the engine ran it.
type ToolCallObservation struct {
	Name     string        `json:"name"`
	Status   string        `json:"status"` // "ok", "error", "timeout", "capped"
	Duration time.Duration `json:"duration"`
}

// RetryLadderEntry records one provider-to-provider or model-to-model
// retry the engine performed while producing the reply.
type RetryLadderEntry struct {
	Stage    string `json:"stage"`
	FromModel string `json:"from_model"`
	ToModel   string `json:"to_model"`
	Reason    string `json:"reason"`
}

// ToolLoopSnapshot is the guardrail state at the end of a tool-loop run,
// suitable for both the run summary and dev-log alerting.
type ToolLoopSnapshot struct {
	Steps                 int  `json:"steps"`
	TotalToolCalls         int  `json:"total_tool_calls"`
	BudgetExhausted        bool `json:"budget_exhausted"`
	StepTimeouts           int  `json:"step_timeouts"`
	ToolExecutionTimeouts  int  `json:"tool_execution_timeouts"`
	CallsCapped            int  `json:"calls_capped"`
	ForcedFallback         string `json:"forced_fallback,omitempty"`
}

// RunSummary is the engine's (or a dispatcher sub-handler's) complete
// account of how one turn was handled.
type RunSummary struct {
	Route    string `json:"route"`
	OK       bool   `json:"ok"`
	Reply    string `json:"reply"`
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`

	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`

	ToolCalls    []ToolCallObservation `json:"tool_calls,omitempty"`
	RetryLadder  []RetryLadderEntry    `json:"retry_ladder,omitempty"`

	LatencyStages  map[string]time.Duration `json:"latency_stages,omitempty"`
	LatencyHotPath string                   `json:"latency_hot_path,omitempty"`

	FallbackStage          string `json:"fallback_stage,omitempty"`
	FallbackReason         string `json:"fallback_reason,omitempty"`
	HadCandidateBeforeFallback bool `json:"had_candidate_before_fallback,omitempty"`

	ToolLoop *ToolLoopSnapshot `json:"tool_loop,omitempty"`

	MemoryRecallUsed bool `json:"memory_recall_used,omitempty"`
	WebSearchUsed    bool `json:"web_search_used,omitempty"`
	LinkContextUsed  bool `json:"link_context_used,omitempty"`

	RankedProviderCandidates []string `json:"ranked_provider_candidates,omitempty"`

	Err error `json:"-"`
}
