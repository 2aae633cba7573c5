package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"

	"banking-ledger/internal/core/ports"

	"golang.org/x/time/rate"
)

// Refill modes for the process-local limiter.
const (
	RefillInterval = "interval"
	RefillGreedy   = "greedy"
)

// bucket is one client's token state. Callers hold the limiter mutex.
type bucket interface {
	take(now time.Time) (allowed bool, remaining int, resetAt time.Time)
	lastSeen() time.Time
}

// MemoryLimiter keeps one token bucket per client key in process memory.
type MemoryLimiter struct {
	mu       sync.Mutex
	buckets  map[string]bucket
	capacity int
	interval time.Duration
	refill   string
	now      func() time.Time
}

// Option configures a MemoryLimiter.
type Option func(*MemoryLimiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *MemoryLimiter) { l.now = now }
}

// WithRefill selects interval or greedy refill.
func WithRefill(mode string) Option {
	return func(l *MemoryLimiter) { l.refill = mode }
}

// NewMemoryLimiter creates a limiter admitting capacity requests per interval
// for each client key.
func NewMemoryLimiter(capacity int, interval time.Duration, opts ...Option) (*MemoryLimiter, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("rate limit capacity must be positive, got %d", capacity)
	}
	if interval <= 0 {
		return nil, fmt.Errorf("rate limit refill interval must be positive, got %s", interval)
	}

	l := &MemoryLimiter{
		buckets:  make(map[string]bucket),
		capacity: capacity,
		interval: interval,
		refill:   RefillInterval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}

	switch l.refill {
	case RefillInterval, RefillGreedy:
	default:
		return nil, fmt.Errorf("unknown refill mode %q", l.refill)
	}
	return l, nil
}

var _ ports.RateLimiter = (*MemoryLimiter)(nil)

// Admit consumes one token from the key's bucket. Lookup, refill and
// consumption happen under a single lock so concurrent requests from one
// client never overdraw it.
func (l *MemoryLimiter) Admit(_ context.Context, key string) (*ports.RateLimitDecision, error) {
	now := l.now()

	l.mu.Lock()
	b, ok := l.buckets[key]
	if !ok {
		b = l.newBucket(now)
		l.buckets[key] = b
	}
	allowed, remaining, resetAt := b.take(now)
	l.mu.Unlock()

	decision := &ports.RateLimitDecision{
		Allowed:   allowed,
		Limit:     l.capacity,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
	if !allowed {
		decision.RetryAfter = resetAt.Sub(now)
		if decision.RetryAfter < 0 {
			decision.RetryAfter = 0
		}
	}
	return decision, nil
}

// Sweep evicts buckets that have been idle for at least one refill interval.
// Such a bucket is full again, so dropping it changes no future decision.
func (l *MemoryLimiter) Sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	evicted := 0
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen()) >= l.interval {
			delete(l.buckets, key)
			evicted++
		}
	}
	return evicted
}

// Len reports how many client buckets are tracked.
func (l *MemoryLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *MemoryLimiter) newBucket(now time.Time) bucket {
	if l.refill == RefillGreedy {
		return &greedyBucket{
			limiter:  rate.NewLimiter(rate.Every(l.interval/time.Duration(l.capacity)), l.capacity),
			capacity: l.capacity,
			interval: l.interval,
			seen:     now,
		}
	}
	return &intervalBucket{
		tokens:      l.capacity,
		capacity:    l.capacity,
		interval:    l.interval,
		windowStart: now,
		seen:        now,
	}
}

// intervalBucket restores every token at once when the client's window rolls
// over. Windows are aligned to the first request of the bucket.
type intervalBucket struct {
	tokens      int
	capacity    int
	interval    time.Duration
	windowStart time.Time
	seen        time.Time
}

func (b *intervalBucket) take(now time.Time) (bool, int, time.Time) {
	if elapsed := now.Sub(b.windowStart); elapsed >= b.interval {
		b.windowStart = b.windowStart.Add(elapsed.Truncate(b.interval))
		b.tokens = b.capacity
	}
	b.seen = now

	resetAt := b.windowStart.Add(b.interval)
	if b.tokens == 0 {
		return false, 0, resetAt
	}
	b.tokens--
	return true, b.tokens, resetAt
}

func (b *intervalBucket) lastSeen() time.Time { return b.seen }

// greedyBucket refills continuously at capacity/interval.
type greedyBucket struct {
	limiter  *rate.Limiter
	capacity int
	interval time.Duration
	seen     time.Time
}

func (b *greedyBucket) take(now time.Time) (bool, int, time.Time) {
	b.seen = now
	allowed := b.limiter.AllowN(now, 1)

	tokens := b.limiter.TokensAt(now)
	remaining := int(tokens)
	if remaining < 0 {
		remaining = 0
	}

	// Time until one token is available when empty, until full otherwise.
	perToken := b.interval / time.Duration(b.capacity)
	var wait time.Duration
	if allowed {
		wait = time.Duration((float64(b.capacity) - tokens) * float64(perToken))
	} else {
		wait = time.Duration((1 - tokens) * float64(perToken))
	}
	if wait < 0 {
		wait = 0
	}
	return allowed, remaining, now.Add(wait)
}

func (b *greedyBucket) lastSeen() time.Time { return b.seen }
