package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dtroode/expensekeeper-client/internal/model"
)

// JWT implements TokenInspector for JWT access tokens.
//
// The client never holds the signing key, so claims are read without
// signature verification. They are used only to schedule refreshes; the
// server remains the authority on validity.
type JWT struct {
	parser *jwt.Parser
}

// NewJWT creates a new JWT inspector.
func NewJWT() model.TokenInspector {
	return &JWT{parser: jwt.NewParser()}
}

// Metadata returns the exp and iat claims of an access token.
// A token without iat yields a zero issuedAt.
func (j *JWT) Metadata(accessToken string) (time.Time, time.Time, error) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := j.parser.ParseUnverified(accessToken, &claims); err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("failed to parse access token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, time.Time{}, model.ErrNoExpiryClaim
	}

	var issuedAt time.Time
	if claims.IssuedAt != nil {
		issuedAt = claims.IssuedAt.Time
	}

	return claims.ExpiresAt.Time, issuedAt, nil
}
