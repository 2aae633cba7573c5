package redis

import (
	"context"
	"fmt"
	"time"

	"banking-ledger/internal/core/ports"

	goredis "github.com/redis/go-redis/v9"
)

// fixedWindowScript increments the window counter and arms its expiry on the
// first hit. It returns the count and the remaining window in milliseconds.
var fixedWindowScript = goredis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RateLimitStore is a distributed fixed-window limiter. It admits at most
// limit requests per key in each window across all service instances.
type RateLimitStore struct {
	client goredis.UniversalClient
	prefix string
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewRateLimitStore creates a new Redis-backed rate limiter.
func NewRateLimitStore(client goredis.UniversalClient, limit int, window time.Duration) *RateLimitStore {
	return &RateLimitStore{
		client: client,
		prefix: "ledger:ratelimit:",
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

var _ ports.RateLimiter = (*RateLimitStore)(nil)

// Admit consumes one unit of the key's window.
func (s *RateLimitStore) Admit(ctx context.Context, key string) (*ports.RateLimitDecision, error) {
	windowMs := s.window.Milliseconds()
	if windowMs < 1 {
		windowMs = 1
	}

	raw, err := fixedWindowScript.Run(ctx, s.client, []string{s.prefix + key}, windowMs).Result()
	if err != nil {
		return nil, fmt.Errorf("redis rate limit script: %w", err)
	}

	values, ok := raw.([]interface{})
	if !ok || len(values) != 2 {
		return nil, fmt.Errorf("unexpected rate limit response shape: %T", raw)
	}
	count, ok := values[0].(int64)
	if !ok {
		return nil, fmt.Errorf("unexpected rate limit count type: %T", values[0])
	}
	ttlMs, ok := values[1].(int64)
	if !ok {
		return nil, fmt.Errorf("unexpected rate limit ttl type: %T", values[1])
	}

	ttl := time.Duration(ttlMs) * time.Millisecond
	remaining := int64(s.limit) - count
	if remaining < 0 {
		remaining = 0
	}

	decision := &ports.RateLimitDecision{
		Allowed:   count <= int64(s.limit),
		Limit:     s.limit,
		Remaining: int(remaining),
		ResetAt:   s.now().Add(ttl),
	}
	if !decision.Allowed {
		decision.RetryAfter = ttl
	}
	return decision, nil
}
