package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/dtroode/expensekeeper-client/internal/model"
)

var _ model.TokenPersister = (*TokenRepository)(nil)

// TokenRepository persists the single current token in the auth_tokens table.
type TokenRepository struct {
	db *Connection
}

func NewTokenRepository(db *Connection) *TokenRepository {
	return &TokenRepository{db: db}
}

func (r *TokenRepository) Load(ctx context.Context) (model.Token, error) {
	const query = `
        SELECT access_token, refresh_token, token_type, expires_at_ms, issued_at_ms
        FROM auth_tokens WHERE id = 1
    `
	var (
		t         model.Token
		expiresAt *int64
		issuedAt  *int64
	)
	err := r.db.QueryRow(ctx, query).Scan(&t.AccessToken, &t.RefreshToken, &t.TokenType, &expiresAt, &issuedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Token{}, model.ErrNotFound
		}
		return model.Token{}, fmt.Errorf("failed to load token: %w", err)
	}

	t.ExpiresAt = fromMillis(expiresAt)
	t.IssuedAt = fromMillis(issuedAt)
	return t, nil
}

func (r *TokenRepository) Save(ctx context.Context, token model.Token) error {
	const query = `
        INSERT INTO auth_tokens (id, access_token, refresh_token, token_type, expires_at_ms, issued_at_ms, updated_at)
        VALUES (1, $1, $2, $3, $4, $5, NOW())
        ON CONFLICT (id) DO UPDATE SET
            access_token = EXCLUDED.access_token,
            refresh_token = EXCLUDED.refresh_token,
            token_type = EXCLUDED.token_type,
            expires_at_ms = EXCLUDED.expires_at_ms,
            issued_at_ms = EXCLUDED.issued_at_ms,
            updated_at = NOW()
    `
	_, err := r.db.Exec(ctx, query,
		token.AccessToken, token.RefreshToken, token.TokenType,
		toMillis(token.ExpiresAt), toMillis(token.IssuedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

func (r *TokenRepository) Delete(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, `DELETE FROM auth_tokens WHERE id = 1`); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

// toMillis returns nil for the zero time so an absent expiry stays NULL.
func toMillis(t time.Time) *int64 {
	if t.IsZero() {
		return nil
	}
	ms := t.UnixMilli()
	return &ms
}

func fromMillis(ms *int64) time.Time {
	if ms == nil {
		return time.Time{}
	}
	return time.UnixMilli(*ms)
}
