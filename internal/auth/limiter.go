package auth

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Decision is the outcome of one Limiter.Allow call.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Limiter throttles login attempts per key (client address plus username).
// It sits at the HTTP boundary; the credential store itself never throttles.
type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

// LimitConfig configures both limiter implementations.
type LimitConfig struct {
	Burst        int           // attempts allowed back to back
	RefillPerMin int           // attempts regained per minute
	IdleTTL      time.Duration // memory limiter: forget keys idle this long
}

func (c LimitConfig) normalized() LimitConfig {
	if c.Burst < 1 {
		c.Burst = 1
	}
	if c.RefillPerMin < 1 {
		c.RefillPerMin = 1
	}
	if c.IdleTTL <= 0 {
		c.IdleTTL = 15 * time.Minute
	}
	return c
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// MemoryLimiter keeps one rate.Limiter per key in process memory. Keys idle
// longer than IdleTTL are dropped on the next sweep, so a bucket that has
// fully refilled costs nothing to forget.
type MemoryLimiter struct {
	cfg   LimitConfig
	limit rate.Limit
	now   func() time.Time

	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time
}

func NewMemoryLimiter(cfg LimitConfig) *MemoryLimiter {
	cfg = cfg.normalized()
	return &MemoryLimiter{
		cfg:       cfg,
		limit:     rate.Limit(float64(cfg.RefillPerMin) / 60.0),
		now:       time.Now,
		buckets:   make(map[string]*bucket),
		lastSweep: time.Now(),
	}
}

func (l *MemoryLimiter) Allow(_ context.Context, key string) (Decision, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= time.Minute {
		l.sweepLocked(now)
	}

	b := l.buckets[key]
	if b == nil {
		b = &bucket{lim: rate.NewLimiter(l.limit, l.cfg.Burst)}
		l.buckets[key] = b
	}
	b.lastSeen = now

	if b.lim.AllowN(now, 1) {
		return Decision{Allowed: true, Remaining: int(b.lim.TokensAt(now))}, nil
	}

	// A denied attempt must not push the next token further out.
	r := b.lim.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	r.CancelAt(now)
	return Decision{Allowed: false, RetryAfter: retryAfter(delay)}, nil
}

// retryAfter rounds up to whole seconds for the Retry-After header. The
// millisecond slack absorbs float error in the limiter's token math.
func retryAfter(delay time.Duration) time.Duration {
	wait := (delay + time.Second - time.Millisecond).Truncate(time.Second)
	if wait < time.Second {
		wait = time.Second
	}
	return wait
}

func (l *MemoryLimiter) sweepLocked(now time.Time) {
	for k, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.cfg.IdleTTL {
			delete(l.buckets, k)
		}
	}
	l.lastSweep = now
}
