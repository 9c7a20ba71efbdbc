package models

import "encoding/json"

// ToolCall is an LLM's request to execute a tool.
type ToolCall struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

// ToolResult is the outcome of executing a ToolCall.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// ToolDefinition describes a tool's name, purpose, and JSON Schema input
// shape, as exposed by the external tool runtime and translated per
// provider by the provider adapter.
type ToolDefinition struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"input_schema"`
	Sensitive   bool            `json:"sensitive,omitempty"`
}

// CompletionMessage is one message in a provider-bound conversation.
type CompletionMessage struct {
	Role        string       `json:"role"` // "user", "assistant", "tool"
	Content     string       `json:"content,omitempty"`
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []ToolResult `json:"tool_results,omitempty"`
}

// CompletionRequest is the uniform request shape the provider adapter
// accepts regardless of backend.
type CompletionRequest struct {
	Model       string              `json:"model"`
	System      string              `json:"system,omitempty"`
	Messages    []CompletionMessage `json:"messages"`
	Tools       []ToolDefinition    `json:"tools,omitempty"`
	MaxTokens   int                 `json:"max_tokens,omitempty"`
	Verbosity   string              `json:"verbosity,omitempty"`
	ReasoningEffort string          `json:"reasoning_effort,omitempty"`
}

// CompletionUsage reports token accounting for a completion.
type CompletionUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// Completion is a non-streaming provider response.
type Completion struct {
	Text         string     `json:"text"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
	FinishReason string     `json:"finish_reason"`
	Usage        CompletionUsage `json:"usage"`
}
