package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"banking-ledger/internal/core/domain"

	goredis "github.com/redis/go-redis/v9"
)

// IdempotencyCache implements ports.IdempotencyCache using Redis. Entries are
// JSON-encoded terminal transactions keyed by their idempotency token.
type IdempotencyCache struct {
	client goredis.UniversalClient
	prefix string
}

// NewIdempotencyCache creates a new Redis-backed idempotency cache.
func NewIdempotencyCache(client goredis.UniversalClient) *IdempotencyCache {
	return &IdempotencyCache{
		client: client,
		prefix: "ledger:",
	}
}

// Get returns the cached transaction for token, or nil, nil on a miss.
func (c *IdempotencyCache) Get(ctx context.Context, token string) (*domain.Transaction, error) {
	val, err := c.client.Get(ctx, c.key(token)).Bytes()
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis idempotency get: %w", err)
	}

	var t domain.Transaction
	if err := json.Unmarshal(val, &t); err != nil {
		return nil, fmt.Errorf("decode cached transaction: %w", err)
	}
	return &t, nil
}

// Put caches a terminal transaction under its token. Transactions without a
// token or still PENDING are not cached.
func (c *IdempotencyCache) Put(ctx context.Context, t *domain.Transaction, ttl time.Duration) error {
	if t.IdempotencyToken == nil || !t.IsTerminal() {
		return nil
	}

	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode transaction: %w", err)
	}
	if err := c.client.Set(ctx, c.key(*t.IdempotencyToken), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis idempotency set: %w", err)
	}
	return nil
}

func (c *IdempotencyCache) key(token string) string {
	return c.prefix + domain.BuildIdempotencyKey(token)
}
