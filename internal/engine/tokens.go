package engine

import (
	"strings"

	"github.com/nova-run/orchestrator/pkg/models"
)

const (
	maxCompletionTokensCeiling      = 4096
	maxCompletionTokensShortUtter   = 512
	maxCompletionTokensStrictFloor  = 256
	shortUtteranceWordThreshold     = 12
)

// adaptiveMaxCompletionTokens implements spec §4.2.4's adaptive cap:
// short utterances get smaller caps, exact bullet/sentence/json-only
// directives lower the cap further, and strict mode lowers the ceiling
// regardless of utterance length.
func adaptiveMaxCompletionTokens(userText string, c models.OutputConstraints) int {
	ceiling := maxCompletionTokensCeiling
	if c.Active() {
		ceiling = maxCompletionTokensStrictFloor * 2
	}

	budget := ceiling
	if len(strings.Fields(userText)) <= shortUtteranceWordThreshold {
		budget = maxCompletionTokensShortUtter
	}

	switch {
	case c.OneWord:
		budget = 16
	case c.ExactBulletCount > 0:
		budget = 64 * c.ExactBulletCount
	case c.SentenceCount > 0:
		budget = 48 * c.SentenceCount
	case c.JSONOnly:
		budget = maxCompletionTokensStrictFloor
	}

	if budget > ceiling {
		budget = ceiling
	}
	if budget < maxCompletionTokensStrictFloor && c.Active() {
		budget = maxCompletionTokensStrictFloor
	}
	return budget
}
