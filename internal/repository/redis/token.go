package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dtroode/expensekeeper-client/internal/model"
)

const (
	fieldAccessToken  = "access_token"
	fieldRefreshToken = "refresh_token"
	fieldTokenType    = "token_type"
	fieldExpiresAt    = "expires_at_ms"
	fieldIssuedAt     = "issued_at_ms"
)

var _ model.TokenPersister = (*TokenRepository)(nil)

// TokenRepository persists the current token as a hash under one key.
type TokenRepository struct {
	redis redis.Cmdable
	key   string
}

func NewTokenRepository(client redis.Cmdable, key string) *TokenRepository {
	return &TokenRepository{redis: client, key: key}
}

func (r *TokenRepository) Load(ctx context.Context) (model.Token, error) {
	values, err := r.redis.HGetAll(ctx, r.key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return model.Token{}, model.ErrNotFound
		}
		return model.Token{}, fmt.Errorf("failed to load token: %w", err)
	}
	if len(values) == 0 || values[fieldAccessToken] == "" {
		return model.Token{}, model.ErrNotFound
	}

	t := model.Token{
		AccessToken:  values[fieldAccessToken],
		RefreshToken: values[fieldRefreshToken],
		TokenType:    values[fieldTokenType],
	}
	if t.ExpiresAt, err = parseMillis(values[fieldExpiresAt]); err != nil {
		return model.Token{}, fmt.Errorf("failed to parse %s: %w", fieldExpiresAt, err)
	}
	if t.IssuedAt, err = parseMillis(values[fieldIssuedAt]); err != nil {
		return model.Token{}, fmt.Errorf("failed to parse %s: %w", fieldIssuedAt, err)
	}
	return t, nil
}

// Save replaces the hash atomically so a reader never sees fields of two tokens.
func (r *TokenRepository) Save(ctx context.Context, token model.Token) error {
	_, err := r.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Del(ctx, r.key)
		p.HSet(ctx, r.key,
			fieldAccessToken, token.AccessToken,
			fieldRefreshToken, token.RefreshToken,
			fieldTokenType, token.TokenType,
			fieldExpiresAt, formatMillis(token.ExpiresAt),
			fieldIssuedAt, formatMillis(token.IssuedAt),
		)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

func (r *TokenRepository) Delete(ctx context.Context) error {
	if err := r.redis.Del(ctx, r.key).Err(); err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}
	return nil
}

func formatMillis(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return strconv.FormatInt(t.UnixMilli(), 10)
}

func parseMillis(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}
