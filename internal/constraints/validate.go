package constraints

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/nova-run/orchestrator/pkg/models"
)

// Validate reports whether reply satisfies every active constraint in c.
// A reply is trivially valid against an inactive constraint set.
func Validate(c models.OutputConstraints, reply string) bool {
	if c.OneWord && !validOneWord(reply) {
		return false
	}
	if c.ExactBulletCount > 0 && !validBullets(reply, c.ExactBulletCount) {
		return false
	}
	if c.JSONOnly && !validJSONOnly(reply, c.RequiredJSONKeys) {
		return false
	}
	if c.SentenceCount > 0 && !validSentenceCount(reply, c.SentenceCount) {
		return false
	}
	return true
}

func validOneWord(reply string) bool {
	trimmed := strings.TrimSpace(reply)
	trimmed = strings.Trim(trimmed, "\"'")
	trimmed = strings.TrimRight(trimmed, ".!?,;:\"'")
	if trimmed == "" {
		return false
	}
	return len(strings.Fields(trimmed)) == 1
}

func validBullets(reply string, n int) bool {
	lines := strings.Split(strings.TrimSpace(reply), "\n")
	var nonEmpty []string
	for _, line := range lines {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		nonEmpty = append(nonEmpty, trimmed)
	}
	if len(nonEmpty) != n {
		return false
	}
	for _, line := range nonEmpty {
		if !strings.HasPrefix(line, "- ") {
			return false
		}
	}
	return true
}

func validJSONOnly(reply string, requiredKeys []string) bool {
	trimmed := strings.TrimSpace(reply)
	if strings.Contains(trimmed, "```") {
		return false
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
		return false
	}
	if len(requiredKeys) == 0 {
		return true
	}
	got := make([]string, 0, len(obj))
	for k := range obj {
		got = append(got, k)
	}
	sort.Strings(got)
	want := append([]string(nil), requiredKeys...)
	sort.Strings(want)
	if len(got) != len(want) {
		return false
	}
	for i := range got {
		if got[i] != want[i] {
			return false
		}
	}
	return true
}

func validSentenceCount(reply string, n int) bool {
	trimmed := strings.TrimSpace(reply)
	if trimmed == "" {
		return false
	}
	count := 0
	for _, r := range trimmed {
		if r == '.' || r == '!' || r == '?' {
			count++
		}
	}
	return count == n
}
