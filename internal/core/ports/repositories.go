package ports

import (
	"context"
	"time"

	"banking-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AccountRepository defines persistence operations for accounts.
// Methods accepting pgx.Tx are used inside transaction blocks for pessimistic locking.
type AccountRepository interface {
	Create(ctx context.Context, account *domain.Account) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Account, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Account, error)
	// UpdateBalance persists balance and version if the stored version still
	// equals expectedVersion, otherwise it returns domain.ErrVersionConflict.
	UpdateBalance(ctx context.Context, tx pgx.Tx, account *domain.Account, expectedVersion int64) error
}

// TransactionRepository defines persistence operations for transactions.
type TransactionRepository interface {
	// Create inserts a transaction. A reused idempotency token yields
	// domain.ErrDuplicateIdempotencyToken.
	Create(ctx context.Context, tx pgx.Tx, transaction *domain.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	GetByIdempotencyToken(ctx context.Context, token string) (*domain.Transaction, error)
	// UpdateStatus moves a PENDING transaction to its terminal state. A record
	// that is no longer PENDING yields domain.ErrTransactionFinalized.
	UpdateStatus(ctx context.Context, tx pgx.Tx, transaction *domain.Transaction) error
	ListByAccount(ctx context.Context, params HistoryParams) ([]domain.Transaction, error)
	ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]domain.Transaction, error)
}

// HistoryParams selects terminal transactions touching one account.
// Limit 0 means no limit.
type HistoryParams struct {
	AccountID uuid.UUID
	Limit     int
	Offset    int
}

// AuditRepository persists audit logs.
type AuditRepository interface {
	Create(ctx context.Context, log *domain.AuditLog) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
