package wshub

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrHudTokenInvalid covers parse failure, bad signature, and expiry.
	ErrHudTokenInvalid = errors.New("hud op token invalid")
	// ErrHudTokenAlreadyUsed means the token's jti has already been
	// consumed by a prior sensitive action.
	ErrHudTokenAlreadyUsed = errors.New("hud op token already used")
)

// HudClaims identifies one sensitive action a HUD control is allowed to
// trigger: which session it belongs to and which action it authorizes.
type HudClaims struct {
	SessionID string `json:"sid"`
	Action    string `json:"act"`
	jwt.RegisteredClaims
}

// HudTokenIssuer signs and single-use-validates HUD operation tokens —
// short-lived JWTs a rendered control embeds so that clicking it (e.g.
// "confirm destructive mission step") can't be replayed.
type HudTokenIssuer struct {
	secret []byte
	expiry time.Duration

	mu   sync.Mutex
	used map[string]time.Time
}

// NewHudTokenIssuer builds an issuer with the given signing secret and
// token lifetime.
func NewHudTokenIssuer(secret string, expiry time.Duration) *HudTokenIssuer {
	if expiry <= 0 {
		expiry = 2 * time.Minute
	}
	return &HudTokenIssuer{
		secret: []byte(secret),
		expiry: expiry,
		used:   make(map[string]time.Time),
	}
}

// Issue signs a HUD op token authorizing action on sessionID.
func (h *HudTokenIssuer) Issue(sessionID, action string) (string, error) {
	if len(h.secret) == 0 {
		return "", errors.New("hud token issuer has no signing secret")
	}
	now := time.Now()
	claims := HudClaims{
		SessionID: sessionID,
		Action:    action,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        fmt.Sprintf("%s-%d", sessionID, now.UnixNano()),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(h.expiry)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(h.secret)
}

// ConsumeHudOpTokenForSensitiveAction validates raw against sessionID and
// action and, only on success, marks its jti consumed so a second
// presentation of the same token fails even before it would naturally
// expire.
func (h *HudTokenIssuer) ConsumeHudOpTokenForSensitiveAction(raw, sessionID, action string) error {
	raw = strings.TrimSpace(raw)
	if raw == "" || len(h.secret) == 0 {
		return ErrHudTokenInvalid
	}

	parsed, err := jwt.ParseWithClaims(raw, &HudClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return h.secret, nil
	})
	if err != nil {
		return ErrHudTokenInvalid
	}
	claims, ok := parsed.Claims.(*HudClaims)
	if !ok || !parsed.Valid {
		return ErrHudTokenInvalid
	}
	if claims.SessionID != sessionID || claims.Action != action {
		return ErrHudTokenInvalid
	}
	if claims.ID == "" {
		return ErrHudTokenInvalid
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.pruneExpiredLocked()
	if _, seen := h.used[claims.ID]; seen {
		return ErrHudTokenAlreadyUsed
	}
	expiresAt := time.Now().Add(h.expiry)
	if claims.ExpiresAt != nil {
		expiresAt = claims.ExpiresAt.Time
	}
	h.used[claims.ID] = expiresAt
	return nil
}

// pruneExpiredLocked drops used-token records past their own token
// expiry, since a token that can no longer validate on its own doesn't
// need a replay guard anymore. Callers must hold h.mu.
func (h *HudTokenIssuer) pruneExpiredLocked() {
	now := time.Now()
	for jti, exp := range h.used {
		if now.After(exp) {
			delete(h.used, jti)
		}
	}
}
