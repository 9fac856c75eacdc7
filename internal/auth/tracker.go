package auth

import (
	"time"

	"github.com/dtroode/expensekeeper-client/internal/model"
)

// Tracker answers expiry questions about the token currently in the store.
type Tracker struct {
	store model.TokenStore
	now   func() time.Time
}

// NewTracker creates a Tracker. A nil now defaults to time.Now.
func NewTracker(store model.TokenStore, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	return &Tracker{store: store, now: now}
}

// IsExpired reports whether there is no token, or its expiry is strictly in the past.
func (t *Tracker) IsExpired() bool {
	token, ok := t.store.Get()
	if !ok {
		return true
	}
	if !token.HasExpiry() {
		return false
	}
	return token.ExpiresAt.Before(t.now())
}

// IsExpiringSoon reports whether the token expires no later than window from now.
// Tokens without expiry metadata never expire soon.
func (t *Tracker) IsExpiringSoon(window time.Duration) bool {
	token, ok := t.store.Get()
	if !ok || !token.HasExpiry() {
		return false
	}
	return !token.ExpiresAt.After(t.now().Add(window))
}
