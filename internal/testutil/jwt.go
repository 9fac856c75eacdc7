package testutil

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MakeJWT signs a throwaway HS256 token. Zero times omit the claim.
func MakeJWT(t testing.TB, expiresAt, issuedAt time.Time) string {
	t.Helper()

	claims := jwt.RegisteredClaims{Subject: "user-1"}
	if !expiresAt.IsZero() {
		claims.ExpiresAt = jwt.NewNumericDate(expiresAt)
	}
	if !issuedAt.IsZero() {
		claims.IssuedAt = jwt.NewNumericDate(issuedAt)
	}

	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("failed to sign test token: %v", err)
	}
	return raw
}
