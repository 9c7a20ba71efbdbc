// Package turnpolicy derives the turn policy and, once intersected with
// tool-runtime availability, the execution policy for a turn (spec §4.6).
package turnpolicy

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/width"
)

var caser = cases.Fold()

// Normalize case- and width-folds text so exact-match phrase checks (the
// dispatcher's shutdown phrases, activation commands, yes/no replies)
// behave the same for full-width or mixed-case input.
func Normalize(text string) string {
	folded := width.Fold.String(text)
	folded = caser.String(folded)
	return strings.TrimSpace(folded)
}
