package auth

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/xid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestMemoryLimiter_BurstThenBlock(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	l := NewMemoryLimiter(LimitConfig{Burst: 3, RefillPerMin: 6})
	l.now = clock.now
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		d, err := l.Allow(ctx, "1.2.3.4|alice")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "attempt %d should be allowed", i+1)
	}

	d, err := l.Allow(ctx, "1.2.3.4|alice")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, 10*time.Second, d.RetryAfter)

	// other keys keep their own bucket
	d, _ = l.Allow(ctx, "1.2.3.4|bob")
	assert.True(t, d.Allowed)
}

func TestMemoryLimiter_Refills(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	l := NewMemoryLimiter(LimitConfig{Burst: 1, RefillPerMin: 60})
	l.now = clock.now
	ctx := context.Background()

	d, _ := l.Allow(ctx, "k")
	require.True(t, d.Allowed)
	d, _ = l.Allow(ctx, "k")
	require.False(t, d.Allowed)

	clock.advance(time.Second)
	d, _ = l.Allow(ctx, "k")
	assert.True(t, d.Allowed)
}

func TestMemoryLimiter_DeniedAttemptsDoNotConsume(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	l := NewMemoryLimiter(LimitConfig{Burst: 1, RefillPerMin: 30})
	l.now = clock.now
	ctx := context.Background()

	d, _ := l.Allow(ctx, "k")
	require.True(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)

	for i := 0; i < 5; i++ {
		d, _ = l.Allow(ctx, "k")
		require.False(t, d.Allowed)
		assert.Equal(t, 2*time.Second, d.RetryAfter)
	}

	clock.advance(2 * time.Second)
	d, _ = l.Allow(ctx, "k")
	assert.True(t, d.Allowed)
}

func TestRetryAfter_RoundsUpToSeconds(t *testing.T) {
	assert.Equal(t, time.Second, retryAfter(0))
	assert.Equal(t, time.Second, retryAfter(300*time.Millisecond))
	assert.Equal(t, 10*time.Second, retryAfter(10*time.Second+time.Nanosecond))
	assert.Equal(t, 3*time.Second, retryAfter(2500*time.Millisecond))
}

func TestMemoryLimiter_SweepsIdleKeys(t *testing.T) {
	clock := &fakeClock{t: time.Unix(1_700_000_000, 0)}
	l := NewMemoryLimiter(LimitConfig{Burst: 1, RefillPerMin: 1, IdleTTL: time.Minute})
	l.now = clock.now
	l.lastSweep = clock.t

	_, _ = l.Allow(context.Background(), "stale")
	clock.advance(5 * time.Minute)
	_, _ = l.Allow(context.Background(), "fresh")

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.NotContains(t, l.buckets, "stale")
	assert.Contains(t, l.buckets, "fresh")
}

// TestRedisLimiter needs a live server: KL_TEST_REDIS_ADDR=localhost:6379.
func TestRedisLimiter(t *testing.T) {
	addr := os.Getenv("KL_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("KL_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { client.Close() })
	ctx := context.Background()
	require.NoError(t, client.Ping(ctx).Err())

	l := NewRedisLimiter(client, LimitConfig{Burst: 2, RefillPerMin: 2})
	key := "test|" + xid.New().String()
	t.Cleanup(func() { client.Del(ctx, redisLimiterPrefix+key) })

	for i := 0; i < 2; i++ {
		d, err := l.Allow(ctx, key)
		require.NoError(t, err)
		assert.True(t, d.Allowed)
	}
	d, err := l.Allow(ctx, key)
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
}
