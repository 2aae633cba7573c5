package ports

import (
	"context"
	"time"

	"banking-ledger/internal/core/domain"

	"github.com/google/uuid"
)

// IdempotencyCache is the Redis-layer idempotency check (fast path). Only
// terminal transactions are cached.
type IdempotencyCache interface {
	Get(ctx context.Context, token string) (*domain.Transaction, error) // nil on miss
	Put(ctx context.Context, transaction *domain.Transaction, ttl time.Duration) error
}

// RateLimitDecision is the outcome of one admission check.
type RateLimitDecision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// RateLimiter admits or rejects requests per client key.
type RateLimiter interface {
	Admit(ctx context.Context, key string) (*RateLimitDecision, error)
}

// EventPublisher delivers terminal transfer events to downstream consumers.
type EventPublisher interface {
	PublishTransfer(ctx context.Context, event domain.TransferEvent) error
	Close() error
}

// --- Service Ports (Business Logic) ---

// AccountService is the account registry.
type AccountService interface {
	CreateAccount(ctx context.Context, ownerID string, initialBalance domain.Money) (*domain.Account, error)
	GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	ListAccounts(ctx context.Context, ownerID string) ([]domain.Account, error)
}

// TransferService moves money between two accounts.
type TransferService interface {
	Transfer(ctx context.Context, req TransferRequest) (*domain.Transaction, error)
}

// TransferRequest holds validated input for a transfer.
type TransferRequest struct {
	FromAccountID    uuid.UUID
	ToAccountID      uuid.UUID
	Amount           domain.Money
	IdempotencyToken string
}

// HistoryService reads committed transfers of one account.
type HistoryService interface {
	GetHistory(ctx context.Context, accountID uuid.UUID, query HistoryQuery) ([]domain.Transaction, error)
}

// HistoryQuery pages history. PageSize 0 returns everything.
type HistoryQuery struct {
	Page     int
	PageSize int
}

// RecoveryService reconciles transfers left PENDING by an interrupted process.
type RecoveryService interface {
	ReconcilePending(ctx context.Context, olderThan time.Duration) (int, error)
}

// AuditService records write requests asynchronously.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}
