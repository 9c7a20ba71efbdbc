package toolloop

import "strings"

// ForcedFallbackReason names one of the fatal tool-error shapes that
// should exit the tool loop immediately with a deterministic reply
// rather than being fed back to the model for another attempt (spec
// §4.2.5, §7 ToolFailure/GuardrailBreach).
type ForcedFallbackReason string

const (
	ForcedFallbackMissingAPIKey ForcedFallbackReason = "missing_api_key"
	ForcedFallbackRateLimited   ForcedFallbackReason = "rate_limited"
	ForcedFallbackDisconnected  ForcedFallbackReason = "disconnected"
	ForcedFallbackMissingScope  ForcedFallbackReason = "missing_scope"
)

var forcedFallbackReplies = map[ForcedFallbackReason]string{
	ForcedFallbackMissingAPIKey: "I can't search the web right now — the search provider isn't configured.",
	ForcedFallbackRateLimited:   "Web search is rate-limited at the moment, so I can't look that up right now.",
	ForcedFallbackDisconnected:  "Your Gmail account isn't connected, so I can't do that yet.",
	ForcedFallbackMissingScope:  "I don't have permission to do that with your connected account yet.",
}

// ClassifyForcedFallback inspects a tool execution error and reports
// whether it matches one of the fatal shapes that should short-circuit
// the loop with a deterministic explanatory reply: a missing search
// provider API key, a rate-limited web search, a disconnected Gmail
// account, or a missing OAuth scope. Everything else is an ordinary
// ToolFailure that gets fed back to the model for another attempt.
func ClassifyForcedFallback(toolName string, err error) (reason ForcedFallbackReason, reply string, ok bool) {
	if err == nil {
		return "", "", false
	}
	msg := strings.ToLower(err.Error())
	name := strings.ToLower(toolName)

	switch {
	case strings.Contains(name, "web_search") && strings.Contains(msg, "brave") && (strings.Contains(msg, "missing") || strings.Contains(msg, "not configured") || strings.Contains(msg, "api key")):
		reason = ForcedFallbackMissingAPIKey
	case strings.Contains(name, "web_search") && (strings.Contains(msg, "rate limit") || strings.Contains(msg, "rate_limit") || strings.Contains(msg, "too many requests") || strings.Contains(msg, "429")):
		reason = ForcedFallbackRateLimited
	case strings.Contains(name, "gmail") && (strings.Contains(msg, "not connected") || strings.Contains(msg, "disconnected") || strings.Contains(msg, "reauthorize") || strings.Contains(msg, "reconnect")):
		reason = ForcedFallbackDisconnected
	case strings.Contains(msg, "missing scope") || strings.Contains(msg, "insufficient scope") || strings.Contains(msg, "requires scope"):
		reason = ForcedFallbackMissingScope
	default:
		return "", "", false
	}
	return reason, forcedFallbackReplies[reason], true
}
