package redisdb

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.NewClient(&redis.Options{Addr: mr.Addr()}), mr
}

func TestOTPStore(t *testing.T) {
	client, mr := newTestClient(t)
	store := NewOTPStore(client, 5*time.Minute)
	ctx := context.Background()

	require.NoError(t, store.StoreOTP(ctx, "+27821234567", "482913"))

	t.Run("wrong code fails without consuming", func(t *testing.T) {
		ok, err := store.VerifyOTP(ctx, "+27821234567", "000000")
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = store.VerifyOTP(ctx, "+27821234567", "482913")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("verified code cannot be replayed", func(t *testing.T) {
		ok, err := store.VerifyOTP(ctx, "+27821234567", "482913")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("expired code fails", func(t *testing.T) {
		require.NoError(t, store.StoreOTP(ctx, "+27829999999", "111111"))
		mr.FastForward(6 * time.Minute)

		ok, err := store.VerifyOTP(ctx, "+27829999999", "111111")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("unknown phone fails", func(t *testing.T) {
		ok, err := store.VerifyOTP(ctx, "+27820000000", "482913")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestRefreshTokenStore(t *testing.T) {
	client, mr := newTestClient(t)
	store := NewRefreshTokenStore(client, []byte("s3cr3t"), time.Hour)
	ctx := context.Background()

	require.NoError(t, store.StoreRefreshToken(ctx, "uid-1", "token-a"))
	require.NoError(t, store.StoreRefreshToken(ctx, "uid-1", "token-b"))

	t.Run("stored tokens are valid", func(t *testing.T) {
		ok, err := store.IsRefreshTokenValid(ctx, "uid-1", "token-a")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("raw token never appears in a key", func(t *testing.T) {
		for _, key := range mr.Keys() {
			assert.NotContains(t, key, "token-a")
			assert.NotContains(t, key, "token-b")
		}
	})

	t.Run("revoking one token leaves the others", func(t *testing.T) {
		require.NoError(t, store.RevokeRefreshToken(ctx, "uid-1", "token-a"))

		ok, err := store.IsRefreshTokenValid(ctx, "uid-1", "token-a")
		require.NoError(t, err)
		assert.False(t, ok)

		ok, err = store.IsRefreshTokenValid(ctx, "uid-1", "token-b")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("another user's identical token is independent", func(t *testing.T) {
		ok, err := store.IsRefreshTokenValid(ctx, "uid-2", "token-b")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("tokens expire with the store TTL", func(t *testing.T) {
		mr.FastForward(2 * time.Hour)
		ok, err := store.IsRefreshTokenValid(ctx, "uid-1", "token-b")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestRateLimiter(t *testing.T) {
	client, mr := newTestClient(t)
	limiter := NewRateLimiter(client, 3, time.Hour)
	ctx := context.Background()

	t.Run("allows up to the limit then rejects", func(t *testing.T) {
		for i := 0; i < 3; i++ {
			ok, err := limiter.Allow(ctx, "uid-1")
			require.NoError(t, err)
			assert.True(t, ok, "request %d should pass", i+1)
		}
		ok, err := limiter.Allow(ctx, "uid-1")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("keys are independent", func(t *testing.T) {
		ok, err := limiter.Allow(ctx, "uid-2")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("window expiry resets the counter", func(t *testing.T) {
		mr.FastForward(2 * time.Hour)
		ok, err := limiter.Allow(ctx, "uid-1")
		require.NoError(t, err)
		assert.True(t, ok)
	})
}
