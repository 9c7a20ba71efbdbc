// Package devlog implements the per-turn development conversation log
// (spec §4.13): a JSONL sink with configurable redaction, quality
// scoring/tagging, and a windowed alert evaluator over tool-loop
// guardrail rates (windows are cleared by Reset, not by sample age).
package devlog

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// RedactMode controls how turn/reply text is persisted.
type RedactMode string

const (
	RedactNone     RedactMode = "none"
	RedactHash     RedactMode = "hash"
	RedactTruncate RedactMode = "truncate"
)

// Tag names a quality annotation attached to a logged turn.
type Tag string

const (
	TagEmptyReply              Tag = "empty_reply"
	TagSlowResponse            Tag = "slow_response"
	TagRuntimeError            Tag = "runtime_error"
	TagConstraintCorrectionPass Tag = "constraint_correction_pass"
	TagDegradedFallback        Tag = "degraded_fallback"
	TagHotPathWeather          Tag = "hot_path_weather"
	TagHotPathCrypto           Tag = "hot_path_crypto"
	TagBudgetExhausted         Tag = "budget_exhausted"
	TagStepTimeout             Tag = "step_timeout"
	TagToolExecTimeout         Tag = "tool_exec_timeout"
	TagCallCapped              Tag = "call_capped"
)

// Event is one JSONL record.
type Event struct {
	Timestamp      time.Time `json:"timestamp"`
	SessionKey     string    `json:"session_key"`
	UserContextID  string    `json:"user_context_id"`
	UserText       string    `json:"user_text,omitempty"`
	UserTextHash   string    `json:"user_text_hash,omitempty"`
	ReplyText      string    `json:"reply_text,omitempty"`
	ReplyTextHash  string    `json:"reply_text_hash,omitempty"`
	LatencyMs      int64     `json:"latency_ms"`
	Provider       string    `json:"provider,omitempty"`
	Model          string    `json:"model,omitempty"`
	QualityScore   float64   `json:"quality_score"`
	Tags           []Tag     `json:"tags,omitempty"`
}

const maxTruncateChars = 500

// Redact applies mode to text, truncated at maxTruncateChars characters
// regardless of mode so no single field can dominate a log line.
func Redact(mode RedactMode, text string) (plain, hash string) {
	truncated := truncate(text, maxTruncateChars)
	switch mode {
	case RedactHash:
		sum := sha256.Sum256([]byte(text))
		return "", hex.EncodeToString(sum[:])
	case RedactTruncate:
		return truncated, ""
	default:
		return truncated, ""
	}
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}

// QualityScoreInput summarizes the facts Score needs about a turn.
type QualityScoreInput struct {
	EmptyReply       bool
	LatencyMs        int64
	SlowThresholdMs  int64
	RuntimeError     bool
	DegradedFallback bool
	ConstraintPass   bool
}

// Score derives a 0.0-1.0 quality score and the tag set describing why.
// 1.0 is a clean, fast, constraint-free turn; each negative signal
// subtracts a fixed weight, floored at 0.
func Score(in QualityScoreInput) (float64, []Tag) {
	score := 1.0
	var tags []Tag

	if in.EmptyReply {
		score -= 0.5
		tags = append(tags, TagEmptyReply)
	}
	if in.SlowThresholdMs > 0 && in.LatencyMs > in.SlowThresholdMs {
		score -= 0.15
		tags = append(tags, TagSlowResponse)
	}
	if in.RuntimeError {
		score -= 0.4
		tags = append(tags, TagRuntimeError)
	}
	if in.DegradedFallback {
		score -= 0.25
		tags = append(tags, TagDegradedFallback)
	}
	if in.ConstraintPass {
		tags = append(tags, TagConstraintCorrectionPass)
	}

	if score < 0 {
		score = 0
	}
	return score, tags
}
