package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisLimiterPrefix = "kl:login:"

// RedisLimiter is a fixed-window counter shared by every server process.
// The window is Burst attempts per Burst/RefillPerMin minutes.
type RedisLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

func NewRedisLimiter(client *redis.Client, cfg LimitConfig) *RedisLimiter {
	cfg = cfg.normalized()
	window := time.Duration(float64(cfg.Burst) / float64(cfg.RefillPerMin) * float64(time.Minute))
	if window < time.Second {
		window = time.Second
	}
	return &RedisLimiter{client: client, limit: int64(cfg.Burst), window: window}
}

func (l *RedisLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	k := redisLimiterPrefix + key

	n, err := l.client.Incr(ctx, k).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("auth: redis limiter incr: %w", err)
	}
	if n == 1 {
		if err := l.client.Expire(ctx, k, l.window).Err(); err != nil {
			return Decision{}, fmt.Errorf("auth: redis limiter expire: %w", err)
		}
	}
	if n <= l.limit {
		return Decision{Allowed: true, Remaining: int(l.limit - n)}, nil
	}

	wait, err := l.client.PTTL(ctx, k).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("auth: redis limiter ttl: %w", err)
	}
	if wait < 0 {
		// window key lost its expiry; restart it
		_ = l.client.Expire(ctx, k, l.window).Err()
		wait = l.window
	}
	if wait < time.Second {
		wait = time.Second
	}
	return Decision{Allowed: false, RetryAfter: wait}, nil
}
