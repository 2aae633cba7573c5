package redis_test

import (
	"context"
	"testing"
	"time"

	"banking-ledger/internal/adapter/storage/redis"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimitStore_Admit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()

	store := redis.NewRateLimitStore(client, 3, time.Minute)
	ctx := context.Background()

	t.Run("admits requests within limit", func(t *testing.T) {
		for i := 1; i <= 3; i++ {
			d, err := store.Admit(ctx, "client-1")
			require.NoError(t, err)
			assert.True(t, d.Allowed, "request %d should be admitted", i)
			assert.Equal(t, 3, d.Limit)
			assert.Equal(t, 3-i, d.Remaining)
			assert.Zero(t, d.RetryAfter)
		}
	})

	t.Run("rejects request over limit", func(t *testing.T) {
		d, err := store.Admit(ctx, "client-1")
		require.NoError(t, err)
		assert.False(t, d.Allowed)
		assert.Equal(t, 0, d.Remaining)
		assert.Greater(t, d.RetryAfter, time.Duration(0))
		assert.LessOrEqual(t, d.RetryAfter, time.Minute)
	})

	t.Run("keys are independent", func(t *testing.T) {
		d, err := store.Admit(ctx, "client-2")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, 2, d.Remaining)
	})

	t.Run("admits again after the window", func(t *testing.T) {
		mr.FastForward(61 * time.Second)

		d, err := store.Admit(ctx, "client-1")
		require.NoError(t, err)
		assert.True(t, d.Allowed)
		assert.Equal(t, 2, d.Remaining)
	})

	t.Run("reset lies within the window", func(t *testing.T) {
		d, err := store.Admit(ctx, "client-3")
		require.NoError(t, err)
		assert.True(t, d.ResetAt.After(time.Now()))
		assert.True(t, d.ResetAt.Before(time.Now().Add(time.Minute+time.Second)))
	})
}

func TestRateLimitStore_RedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close()

	store := redis.NewRateLimitStore(client, 1, time.Second)
	_, err := store.Admit(context.Background(), "client-1")
	assert.Error(t, err)
}
