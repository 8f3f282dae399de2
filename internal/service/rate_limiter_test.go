package service

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	opts, err := redis.ParseURL("redis://localhost:6379/15")
	require.NoError(t, err)

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skip("Redis not available for testing")
	}
	client.FlushDB(context.Background())
	return client
}

func TestRateLimiter_Allow(t *testing.T) {
	client := testRedis(t)
	defer client.Close()

	ctx := context.Background()
	limiter := NewRateLimiter(client)

	t.Run("allows hits within limit", func(t *testing.T) {
		key := "test:alice"

		for i := 0; i < 3; i++ {
			res := limiter.Allow(ctx, key, 3, 10*time.Second)
			assert.True(t, res.Allowed, "hit %d should be allowed", i+1)
			assert.Equal(t, 2-i, res.Remaining)
		}

		res := limiter.Allow(ctx, key, 3, 10*time.Second)
		assert.False(t, res.Allowed)
		assert.Zero(t, res.Remaining)
		assert.True(t, res.ResetAt.After(time.Now()))
	})

	t.Run("window slides", func(t *testing.T) {
		key := "test:bob"
		window := 500 * time.Millisecond

		assert.True(t, limiter.Allow(ctx, key, 1, window).Allowed)
		assert.False(t, limiter.Allow(ctx, key, 1, window).Allowed)

		time.Sleep(600 * time.Millisecond)

		assert.True(t, limiter.Allow(ctx, key, 1, window).Allowed)
	})

	t.Run("keys are independent", func(t *testing.T) {
		assert.True(t, limiter.Allow(ctx, "test:k1", 1, 10*time.Second).Allowed)
		assert.False(t, limiter.Allow(ctx, "test:k1", 1, 10*time.Second).Allowed)
		assert.True(t, limiter.Allow(ctx, "test:k2", 1, 10*time.Second).Allowed)
	})
}

func TestRateLimiter_DeniesOnRedisFailure(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "localhost:9999",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()

	limiter := NewRateLimiter(client)

	res := limiter.Allow(context.Background(), "test:key", 1, time.Minute)
	assert.False(t, res.Allowed)
	assert.True(t, res.ResetAt.After(time.Now()))
}
