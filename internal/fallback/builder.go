// Package fallback builds a reply when the provider produced nothing
// usable — an empty completion, or one that violates the turn's active
// output constraints (spec §4.11). Every builder here is deterministic:
// given the same inputs it always returns the same reply, so the engine
// never has to retry the provider just to get a safe fallback.
package fallback

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nova-run/orchestrator/internal/constraints"
	"github.com/nova-run/orchestrator/pkg/models"
)

// Options tweaks fallback tone.
type Options struct {
	// Strict asks for a terser, more apologetic reply. The engine sets it
	// when the provider did return text but nothing was left of it after
	// normalization.
	Strict bool
}

// BuildDeterministicEmptyReplyFallback produces a generic recovery reply
// when the provider's completion was empty and the turn has no active
// output constraints to satisfy.
func BuildDeterministicEmptyReplyFallback(userText string, opts Options) string {
	if opts.Strict {
		return "Sorry, I couldn't put together a reply that time. Could you try rephrasing?"
	}
	if strings.TrimSpace(userText) == "" {
		return "I didn't catch anything there — what would you like help with?"
	}
	return "I wasn't able to generate a reply to that. Mind trying again, maybe with a bit more detail?"
}

// BuildConstraintSafeFallback produces a fallback reply that itself
// satisfies c, so a constrained turn never surfaces a reply violating
// its own directive even in the failure path. It re-validates its own
// output before returning and falls through to the deterministic
// builder if c has no matching rule active.
func BuildConstraintSafeFallback(c models.OutputConstraints, userText string, opts Options) string {
	reply := buildForConstraint(c, opts)
	if reply == "" {
		return BuildDeterministicEmptyReplyFallback(userText, opts)
	}
	if !constraints.Validate(c, reply) {
		return BuildDeterministicEmptyReplyFallback(userText, opts)
	}
	return reply
}

func buildForConstraint(c models.OutputConstraints, opts Options) string {
	switch {
	case c.OneWord:
		return "Acknowledged"
	case c.JSONOnly:
		return buildJSONFallback(c.RequiredJSONKeys)
	case c.ExactBulletCount > 0:
		return buildBulletFallback(c.ExactBulletCount)
	case c.SentenceCount > 0:
		return buildSentenceFallback(c.SentenceCount)
	default:
		return ""
	}
}

func buildJSONFallback(requiredKeys []string) string {
	obj := make(map[string]string, len(requiredKeys))
	for _, k := range requiredKeys {
		obj[k] = "unavailable"
	}
	payload, err := json.Marshal(obj)
	if err != nil {
		return ""
	}
	return string(payload)
}

func buildBulletFallback(n int) string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = fmt.Sprintf("- Retry step %d.", i+1)
	}
	return strings.Join(lines, "\n")
}

func buildSentenceFallback(n int) string {
	sentence := "Please try that request again."
	sentences := make([]string, n)
	for i := range sentences {
		sentences[i] = sentence
	}
	return strings.Join(sentences, " ")
}
