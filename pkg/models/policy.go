package models

// TurnPolicy is derived purely from utterance text and environment — no
// I/O is performed to compute it.
type TurnPolicy struct {
	FastLaneSimpleChat   bool `json:"fast_lane_simple_chat"`
	WeatherIntent        bool `json:"weather_intent"`
	CryptoIntent         bool `json:"crypto_intent"`
	ToolLoopCandidate    bool `json:"tool_loop_candidate"`
	MemoryRecallCandidate bool `json:"memory_recall_candidate"`

	// WantsWebSearch/WantsWebFetch/WantsMemory are capability hints the
	// policy believes are needed; they are intersected against what the
	// tool runtime actually exposes to produce an ExecutionPolicy.
	WantsWebSearch bool `json:"wants_web_search"`
	WantsWebFetch  bool `json:"wants_web_fetch"`
	WantsMemory    bool `json:"wants_memory"`
}

// ExecutionPolicy is the TurnPolicy intersected with what the tool runtime
// actually makes available for this turn.
type ExecutionPolicy struct {
	CanRunToolLoop        bool `json:"can_run_tool_loop"`
	CanRunWebSearch       bool `json:"can_run_web_search"`
	CanRunWebFetch        bool `json:"can_run_web_fetch"`
	ShouldPreloadWebSearch bool `json:"should_preload_web_search"`
	ShouldPreloadWebFetch  bool `json:"should_preload_web_fetch"`
	ShouldAttemptMemoryRecall bool `json:"should_attempt_memory_recall"`
}
