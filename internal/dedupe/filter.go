// Package dedupe implements the duplicate-inbound filter (spec §4.12): a
// short debounce window over identical consecutive utterances from the
// same sender, with carve-outs for the handful of intents where a repeat
// is actually meaningful rather than a client retry or a relay bounce.
package dedupe

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/nova-run/orchestrator/internal/fastpath"
	"github.com/nova-run/orchestrator/internal/shortterm"
)

const defaultTTL = 5 * time.Second

type cacheEntry struct {
	timestamp time.Time
}

// Filter debounces identical consecutive turns within a TTL window. It is
// safe for concurrent use.
type Filter struct {
	mu  sync.Mutex
	ttl time.Duration
	m   map[string]cacheEntry
}

// New creates a Filter with the given TTL. A non-positive ttl uses the
// 5-second default.
func New(ttl time.Duration) *Filter {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Filter{ttl: ttl, m: make(map[string]cacheEntry)}
}

// Key builds the dedupe key for a turn: the tuple of
// (source, senderID, userContextID, sessionKey) plus a hash of the
// normalized text, so edits to the text are never treated as duplicates.
func Key(source, senderID, userContextID, sessionKey, normalizedText string) string {
	sum := sha256.Sum256([]byte(normalizedText))
	return source + "\x00" + senderID + "\x00" + userContextID + "\x00" + sessionKey + "\x00" + hex.EncodeToString(sum[:8])
}

// CarveOut names the reasons a duplicate is let through anyway.
type CarveOut string

const (
	CarveOutNone                CarveOut = ""
	CarveOutExplicitCryptoReport CarveOut = "explicit_crypto_report"
	CarveOutMissionBuild        CarveOut = "mission_build"
	CarveOutNonCriticalFollowUp CarveOut = "non_critical_follow_up"
)

// Classify decides whether normalizedText qualifies for a carve-out that
// should bypass the duplicate check regardless of what Check would say.
func Classify(normalizedText string, missionBuildInProgress bool) CarveOut {
	if fastpath.IsExplicitCryptoReportRequest(normalizedText) {
		return CarveOutExplicitCryptoReport
	}
	if missionBuildInProgress {
		return CarveOutMissionBuild
	}
	if shortterm.IsNonCriticalFollowUp(normalizedText) {
		return CarveOutNonCriticalFollowUp
	}
	return CarveOutNone
}

// Check reports whether key was seen within the TTL window (a duplicate),
// recording it either way. Carve-out classification happens separately in
// Classify — callers should consult Classify first and skip calling Check
// at all when a carve-out applies, so the carve-out turn is never
// suppressed; it then also leaves the recency window untouched.
func (f *Filter) Check(key string) bool {
	return f.CheckAt(key, time.Now())
}

// CheckAt is Check with an explicit reference time, for deterministic tests.
func (f *Filter) CheckAt(key string, now time.Time) bool {
	if key == "" {
		return false
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if e, ok := f.m[key]; ok && now.Sub(e.timestamp) < f.ttl {
		f.m[key] = cacheEntry{timestamp: now}
		return true
	}
	f.m[key] = cacheEntry{timestamp: now}
	f.prune(now)
	return false
}

func (f *Filter) prune(now time.Time) {
	for k, e := range f.m {
		if now.Sub(e.timestamp) >= f.ttl {
			delete(f.m, k)
		}
	}
}

// SkippedReplyText is the assistant reply emitted when a duplicate is
// silently dropped without a carve-out recovery handler to re-render
// prior output.
const SkippedReplyText = "I got that same request again and skipped it since I already handled it."
