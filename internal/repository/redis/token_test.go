package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtroode/expensekeeper-client/internal/model"
	"github.com/dtroode/expensekeeper-client/internal/tokenstore"
)

const testKey = "expensekeeper:token"

func newRepo(t *testing.T) (*TokenRepository, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	return NewTokenRepository(rdb, testKey), mr
}

func TestTokenRepository_LoadMissing(t *testing.T) {
	t.Parallel()

	r, _ := newRepo(t)

	_, err := r.Load(context.Background())
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestTokenRepository_SaveLoad(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r, mr := newRepo(t)

	exp := time.Now().Add(15 * time.Minute).Truncate(time.Millisecond)
	iat := exp.Add(-15 * time.Minute)
	require.NoError(t, r.Save(ctx, model.Token{
		AccessToken: "tok1", RefreshToken: "r1", TokenType: "Bearer", ExpiresAt: exp, IssuedAt: iat,
	}))

	assert.Equal(t, "tok1", mr.HGet(testKey, fieldAccessToken))
	assert.Equal(t, formatMillis(exp), mr.HGet(testKey, fieldExpiresAt))

	got, err := r.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok1", got.AccessToken)
	assert.Equal(t, "r1", got.RefreshToken)
	assert.Equal(t, "Bearer", got.TokenType)
	assert.True(t, got.ExpiresAt.Equal(exp))
	assert.True(t, got.IssuedAt.Equal(iat))

	// a token without expiry metadata replaces every field
	require.NoError(t, r.Save(ctx, model.Token{AccessToken: "tok2"}))
	got, err = r.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tok2", got.AccessToken)
	assert.Empty(t, got.RefreshToken)
	assert.True(t, got.ExpiresAt.IsZero())
}

func TestTokenRepository_Delete(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r, mr := newRepo(t)

	require.NoError(t, r.Save(ctx, model.Token{AccessToken: "tok1"}))
	require.NoError(t, r.Delete(ctx))

	assert.False(t, mr.Exists(testKey))
	_, err := r.Load(ctx)
	require.ErrorIs(t, err, model.ErrNotFound)
}

func TestTokenRepository_CorruptField(t *testing.T) {
	t.Parallel()

	r, mr := newRepo(t)
	mr.HSet(testKey, fieldAccessToken, "tok1", fieldExpiresAt, "soon")

	_, err := r.Load(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, model.ErrNotFound)
}

func TestTokenRepository_Unavailable(t *testing.T) {
	t.Parallel()

	r, mr := newRepo(t)
	mr.Close()

	err := r.Save(context.Background(), model.Token{AccessToken: "tok1"})
	require.Error(t, err)
}

func TestTokenRepository_BacksStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r, _ := newRepo(t)

	first := tokenstore.New(r)
	require.NoError(t, first.Set(ctx, model.Token{AccessToken: "tok1", RefreshToken: "r1"}))

	// a fresh process sees the persisted token after Load
	second := tokenstore.New(r)
	require.NoError(t, second.Load(ctx))
	got, ok := second.Get()
	require.True(t, ok)
	assert.Equal(t, "tok1", got.AccessToken)
}
