package model

import (
	"context"
	"time"
)

// Token is the client's current credential pair.
// Zero ExpiresAt or IssuedAt means the server did not report it.
type Token struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresAt    time.Time
	IssuedAt     time.Time
}

// HasExpiry reports whether the token carries expiry metadata.
func (t Token) HasExpiry() bool {
	return !t.ExpiresAt.IsZero()
}

// SameCredentials reports whether t and other carry the same access and
// refresh credentials. Expiry metadata is ignored.
func (t Token) SameCredentials(other Token) bool {
	return t.AccessToken == other.AccessToken && t.RefreshToken == other.RefreshToken
}

// TokenStore holds the current token. Implementations must be safe for
// concurrent use, and a Set must be visible to every later Get.
type TokenStore interface {
	Get() (Token, bool)
	Set(ctx context.Context, token Token) error
	Clear(ctx context.Context) error
	// CompareAndSwap stores next only if the current token has the same
	// credentials as old. It reports whether the swap happened.
	CompareAndSwap(ctx context.Context, old, next Token) (bool, error)
	// CompareAndDelete clears the store only if the current token has the
	// same credentials as old. It reports whether the delete happened.
	CompareAndDelete(ctx context.Context, old Token) (bool, error)
}

// TokenPersister is the durable backend behind a TokenStore.
type TokenPersister interface {
	Load(ctx context.Context) (Token, error)
	Save(ctx context.Context, token Token) error
	Delete(ctx context.Context) error
}

// TokenInspector extracts expiry metadata from an access token.
type TokenInspector interface {
	Metadata(accessToken string) (expiresAt time.Time, issuedAt time.Time, err error)
}
