// Package fastpath recognizes utterances that can bypass the LLM entirely:
// weather lookups and crypto portfolio/report requests.
package fastpath

import (
	"regexp"
	"strings"
)

var (
	weatherRe = regexp.MustCompile(`(?i)\b(weather|forecast|temperature|rain|snow|precipitation|humidity|wind\s*speed)\b`)
	locationRe = regexp.MustCompile(`(?i)\b(?:in|at|for)\s+([A-Za-z][A-Za-z\s.'-]{1,40})$`)
	confirmationPrefixRe = regexp.MustCompile(`(?i)^\s*(?:yes|yeah|yep|sure|ok|okay)\b[,.]?\s*`)
)

// WeatherMatch is the result of classifying text as a weather request.
type WeatherMatch struct {
	Matched  bool
	Location string // empty when no location could be extracted
}

// DetectWeather reports whether text expresses weather intent, and
// extracts a trailing location phrase when present ("in Pittsburgh PA").
func DetectWeather(text string) WeatherMatch {
	if !weatherRe.MatchString(text) {
		return WeatherMatch{}
	}
	m := WeatherMatch{Matched: true}
	if loc := locationRe.FindStringSubmatch(text); loc != nil {
		m.Location = trimLocation(loc[1])
	}
	return m
}

// ExtractConfirmedLocation pulls a location out of a reply that accepts a
// pending weather confirmation, e.g. "yes, Pittsburgh PA" -> "Pittsburgh
// PA". It returns "" when the reply carries nothing beyond the
// confirmation word itself, so the caller can fall back to whatever
// location (if any) was suggested when the confirmation was armed.
func ExtractConfirmedLocation(text string) string {
	rest := confirmationPrefixRe.ReplaceAllString(text, "")
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return ""
	}
	return trimLocation(rest)
}

func trimLocation(s string) string {
	for len(s) > 0 && (s[len(s)-1] == ' ' || s[len(s)-1] == '.' || s[len(s)-1] == ',') {
		s = s[:len(s)-1]
	}
	return s
}
