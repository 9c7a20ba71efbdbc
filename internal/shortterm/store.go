// Package shortterm implements the per-(user,conversation,domain)
// follow-up store (spec §4.7): a small TTL-bounded map letting the
// dispatcher recognize "yes", "no", "cancel that", or a bare refinement
// as continuing the prior topic rather than starting a new one.
package shortterm

import (
	"strings"
	"sync"
	"time"

	"github.com/nova-run/orchestrator/pkg/models"
)

const defaultTTL = 30 * time.Minute

type entry struct {
	value   models.ShortTermContext
	savedAt time.Time
}

// Store holds the newest ShortTermContext per (user, conversation, domain)
// key. It is safe for concurrent use.
type Store struct {
	mu  sync.Mutex
	ttl time.Duration
	m   map[string]entry
}

// New creates a Store with the given TTL. A non-positive ttl uses the
// 30-minute default.
func New(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	return &Store{ttl: ttl, m: make(map[string]entry)}
}

func key(userID, conversationID string, domain models.ContextDomain) string {
	return userID + "\x00" + conversationID + "\x00" + string(domain)
}

// Upsert records ctx as the newest entry for (userID, conversationID,
// domain). Called after a successful assistant turn in that domain.
func (s *Store) Upsert(userID, conversationID string, domain models.ContextDomain, ctx models.ShortTermContext) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[key(userID, conversationID, domain)] = entry{value: ctx, savedAt: ctx.Timestamp}
}

// Get returns the newest entry for (userID, conversationID, domain).
// Absence — no prior turn in this domain, or the entry expired — is
// normal and reported via ok=false, not an error.
func (s *Store) Get(userID, conversationID string, domain models.ContextDomain) (models.ShortTermContext, bool) {
	return s.GetAt(userID, conversationID, domain, time.Now())
}

// GetAt is Get with an explicit reference time, for deterministic tests.
func (s *Store) GetAt(userID, conversationID string, domain models.ContextDomain, now time.Time) (models.ShortTermContext, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := key(userID, conversationID, domain)
	e, ok := s.m[k]
	if !ok {
		return models.ShortTermContext{}, false
	}
	if now.Sub(e.savedAt) > s.ttl {
		delete(s.m, k)
		return models.ShortTermContext{}, false
	}
	return e.value, true
}

// Clear removes the entry for (userID, conversationID, domain), used once
// a cancel or new-topic signal has been consumed.
func (s *Store) Clear(userID, conversationID string, domain models.ContextDomain) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.m, key(userID, conversationID, domain))
}

// Sweep proactively removes every entry that has expired as of now,
// returning the count removed, so an abandoned conversation's slots
// don't sit in memory until someone happens to read them again.
func (s *Store) Sweep(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for k, e := range s.m {
		if now.Sub(e.savedAt) > s.ttl {
			delete(s.m, k)
			removed++
		}
	}
	return removed
}

var cancelWords = map[string]bool{
	"cancel": true, "never mind": true, "nevermind": true, "forget it": true,
	"stop": true, "stop that": true, "cancel that": true,
}

// IsCancel reports whether normalized text signals the user wants to drop
// the current topic thread.
func IsCancel(normalizedText string) bool {
	return cancelWords[strings.TrimSpace(normalizedText)]
}

var newTopicMarkers = []string{
	"actually", "never mind that", "on a different note", "unrelated",
	"different question", "new topic",
}

// IsNewTopic reports whether normalized text explicitly signals a topic
// switch away from whatever short-term context might otherwise apply.
func IsNewTopic(normalizedText string) bool {
	for _, m := range newTopicMarkers {
		if strings.Contains(normalizedText, m) {
			return true
		}
	}
	return false
}

var nonCriticalFollowUpWords = map[string]bool{
	"yes": true, "yeah": true, "yep": true, "sure": true, "ok": true, "okay": true,
	"no": true, "nope": true, "nah": true,
}

// IsNonCriticalFollowUp reports whether normalizedText is a bare
// acknowledgment/refusal that only makes sense in light of an existing
// short-term context slot — the duplicate-inbound filter carve-out lets
// these repeat without being treated as a stale duplicate.
func IsNonCriticalFollowUp(normalizedText string) bool {
	return nonCriticalFollowUpWords[strings.TrimSpace(normalizedText)]
}

// ResolveTopicAffinityID picks which of two candidate contexts (e.g. a
// mission-task slot and a crypto slot both open for the same user) a
// follow-up utterance should attach to. Ties — equal timestamps — favor
// the mission domain, since a mission task reply is more likely to be
// awaiting a specific follow-up than a crypto refresh is.
func ResolveTopicAffinityID(candidates map[models.ContextDomain]models.ShortTermContext) string {
	var best models.ShortTermContext
	found := false

	for domain, ctx := range candidates {
		if !found {
			best, found = ctx, true
			continue
		}
		switch {
		case ctx.Timestamp.After(best.Timestamp):
			best = ctx
		case ctx.Timestamp.Equal(best.Timestamp) && domain == models.DomainMissionTask:
			best = ctx
		}
	}

	if !found {
		return ""
	}
	return best.TopicAffinityID
}
