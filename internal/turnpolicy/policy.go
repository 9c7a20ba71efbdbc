package turnpolicy

import (
	"regexp"
	"strings"

	"github.com/nova-run/orchestrator/internal/fastpath"
	"github.com/nova-run/orchestrator/pkg/models"
)

var (
	urlRe                  = regexp.MustCompile(`https?://\S+`)
	dontBrowseRe           = regexp.MustCompile(`(?i)\b(don't|do not|dont)\s+(browse|search)\b`)
	webSearchRe            = regexp.MustCompile(`(?i)\b(search (?:the )?web|look (?:it|this) up|google it|find (?:out |me )?(?:online|on the web))\b`)
	commandRepoRe          = regexp.MustCompile(`(?i)\b(run|execute|clone|git|repo|repository|command|script|pull request|pr #?\d+)\b`)
	memoryRe               = regexp.MustCompile(`(?i)\b(remember|recall|what did i (?:say|tell you)|my preferences?)\b`)
	blockedGreetingWordsRe = regexp.MustCompile(`(?i)\b(weather|crypto|bitcoin|forecast|search|fetch|http)\b`)
)

var allowedGreetings = map[string]bool{
	"hey": true, "hi": true, "hello": true, "yo": true, "sup": true,
	"hey nova": true, "hi nova": true, "hello nova": true,
	"good morning": true, "good evening": true, "good afternoon": true,
	"thanks": true, "thank you": true, "ok": true, "okay": true, "cool": true,
}

const fastLaneMaxChars = 42
const fastLaneMaxWords = 8

// Derive computes the TurnPolicy from normalized utterance text. It performs
// no I/O.
func Derive(rawText string) models.TurnPolicy {
	normalized := Normalize(rawText)

	var p models.TurnPolicy
	p.FastLaneSimpleChat = isFastLaneSimpleChat(normalized)

	weather := fastpath.DetectWeather(rawText)
	p.WeatherIntent = weather.Matched
	p.CryptoIntent = fastpath.DetectCrypto(rawText)

	hasURL := urlRe.MatchString(rawText)
	wantsSearch := webSearchRe.MatchString(normalized) && !dontBrowseRe.MatchString(normalized)
	wantsCommand := commandRepoRe.MatchString(normalized) && !dontBrowseRe.MatchString(normalized)

	p.WantsWebFetch = hasURL
	p.WantsWebSearch = wantsSearch
	p.ToolLoopCandidate = (hasURL || wantsSearch || wantsCommand) && !dontBrowseRe.MatchString(normalized)

	p.MemoryRecallCandidate = memoryRe.MatchString(normalized)
	p.WantsMemory = p.MemoryRecallCandidate

	return p
}

func isFastLaneSimpleChat(normalized string) bool {
	if len(normalized) > fastLaneMaxChars {
		return false
	}
	words := strings.Fields(normalized)
	if len(words) > fastLaneMaxWords {
		return false
	}
	if blockedGreetingWordsRe.MatchString(normalized) {
		return false
	}
	return allowedGreetings[normalized]
}

// ToolRuntimeCapabilities describes what the tool runtime actually exposes
// for this turn, discovered only after TurnPolicy says tools are likely
// needed.
type ToolRuntimeCapabilities struct {
	Available    bool
	HasWebSearch bool
	HasWebFetch  bool
	HasMemory    bool
}

// Intersect produces the ExecutionPolicy by combining the derived
// TurnPolicy with what the tool runtime actually supports.
func Intersect(p models.TurnPolicy, caps ToolRuntimeCapabilities) models.ExecutionPolicy {
	var e models.ExecutionPolicy
	e.CanRunToolLoop = p.ToolLoopCandidate && caps.Available
	e.CanRunWebSearch = caps.HasWebSearch
	e.CanRunWebFetch = caps.HasWebFetch
	e.ShouldPreloadWebSearch = p.WantsWebSearch && caps.HasWebSearch
	// Open Question (spec.md §9, decided in DESIGN.md): preload runs
	// whenever a URL is present, with no additional intent-phrase gate.
	e.ShouldPreloadWebFetch = p.WantsWebFetch && caps.HasWebFetch
	e.ShouldAttemptMemoryRecall = p.MemoryRecallCandidate && caps.HasMemory
	return e
}
