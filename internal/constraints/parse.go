// Package constraints parses strict-output directives from user text and
// validates candidate replies against them.
package constraints

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/nova-run/orchestrator/pkg/models"
)

var (
	oneWordRe  = regexp.MustCompile(`(?i)\b(one word|single word|in one word)\b`)
	bulletCountRe = regexp.MustCompile(`(?i)\bexactly\s+(\d+|one|two|three|four|five|six|seven|eight|nine|ten)\s+bullet`)
	jsonOnlyRe = regexp.MustCompile(`(?i)\bjson\s+only\b`)
	jsonKeysRe = regexp.MustCompile(`(?i)\bkeys?\s+([a-zA-Z0-9_,\s]+)`)
	sentenceCountRe = regexp.MustCompile(`(?i)\bexactly\s+(one|two|three|\d+)\s+sentences?\b`)
)

var wordNumbers = map[string]int{
	"one": 1, "two": 2, "three": 3, "four": 4, "five": 5,
	"six": 6, "seven": 7, "eight": 8, "nine": 9, "ten": 10,
}

func parseCount(token string) int {
	token = strings.ToLower(strings.TrimSpace(token))
	if n, ok := wordNumbers[token]; ok {
		return n
	}
	if n, err := strconv.Atoi(token); err == nil {
		return n
	}
	return 0
}

// Parse extracts OutputConstraints from raw user text. The returned value's
// Active() is false when no directive was found.
func Parse(text string) models.OutputConstraints {
	var c models.OutputConstraints

	if oneWordRe.MatchString(text) {
		c.OneWord = true
	}
	if m := bulletCountRe.FindStringSubmatch(text); m != nil {
		c.ExactBulletCount = parseCount(m[1])
	}
	if jsonOnlyRe.MatchString(text) {
		c.JSONOnly = true
		if m := jsonKeysRe.FindStringSubmatch(text); m != nil {
			for _, k := range strings.Split(m[1], ",") {
				k = strings.TrimSpace(k)
				if k != "" {
					c.RequiredJSONKeys = append(c.RequiredJSONKeys, k)
				}
			}
		}
	}
	if m := sentenceCountRe.FindStringSubmatch(text); m != nil {
		c.SentenceCount = parseCount(m[1])
	}

	c.Instructions = renderInstructions(c)
	return c
}

func renderInstructions(c models.OutputConstraints) string {
	if !c.Active() {
		return ""
	}
	var lines []string
	if c.OneWord {
		lines = append(lines, "Respond with exactly one word. No punctuation beyond what the word itself requires.")
	}
	if c.ExactBulletCount > 0 {
		lines = append(lines, "Respond with exactly "+strconv.Itoa(c.ExactBulletCount)+" bullet points, each starting with \"- \" and nothing else on the line.")
	}
	if c.JSONOnly {
		if len(c.RequiredJSONKeys) > 0 {
			lines = append(lines, "Respond with JSON only, no markdown fences, with exactly these top-level keys: "+strings.Join(c.RequiredJSONKeys, ", ")+".")
		} else {
			lines = append(lines, "Respond with JSON only, no markdown fences.")
		}
	}
	if c.SentenceCount > 0 {
		lines = append(lines, "Respond with exactly "+strconv.Itoa(c.SentenceCount)+" sentence(s).")
	}
	if len(lines) == 0 {
		return ""
	}
	return "Strict output requirements:\n" + strings.Join(lines, "\n")
}
