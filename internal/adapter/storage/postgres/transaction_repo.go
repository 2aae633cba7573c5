package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"banking-ledger/internal/core/domain"
	"banking-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	transactionColumns = `id, from_account_id, to_account_id, amount, status, failure_reason,
		idempotency_token, created_at, completed_at`

	uniqueViolation = "23505"
)

// TransactionRepo implements ports.TransactionRepository.
type TransactionRepo struct {
	pool Pool
}

// NewTransactionRepo creates a new TransactionRepo.
func NewTransactionRepo(pool Pool) *TransactionRepo {
	return &TransactionRepo{pool: pool}
}

// Create inserts a new transaction within a database transaction.
func (r *TransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	query := `INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`

	_, err := tx.Exec(ctx, query,
		t.ID, t.FromAccountID, t.ToAccountID, t.Amount, t.Status,
		nullableReason(t.FailureReason), t.IdempotencyToken, t.CreatedAt, t.CompletedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && t.IdempotencyToken != nil {
			return fmt.Errorf("insert transaction: %w", domain.ErrDuplicateIdempotencyToken)
		}
		return fmt.Errorf("insert transaction: %w", err)
	}
	return nil
}

// GetByID fetches a transaction by UUID. Returns nil, nil when absent.
func (r *TransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`

	t, err := scanTransaction(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("get transaction by id: %w", err)
	}
	return t, nil
}

// GetByIdempotencyToken fetches the transaction that claimed token.
func (r *TransactionRepo) GetByIdempotencyToken(ctx context.Context, token string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE idempotency_token = $1`

	t, err := scanTransaction(r.pool.QueryRow(ctx, query, token))
	if err != nil {
		return nil, fmt.Errorf("get transaction by idempotency token: %w", err)
	}
	return t, nil
}

// UpdateStatus records the terminal state of a PENDING transaction.
func (r *TransactionRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	query := `UPDATE transactions SET status = $1, failure_reason = $2, completed_at = $3
		WHERE id = $4 AND status = 'PENDING'`

	tag, err := tx.Exec(ctx, query, t.Status, nullableReason(t.FailureReason), t.CompletedAt, t.ID)
	if err != nil {
		return fmt.Errorf("update transaction status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("transaction %s: %w", t.ID, domain.ErrTransactionFinalized)
	}
	return nil
}

// ListByAccount returns terminal transactions touching an account, most recent first.
func (r *TransactionRepo) ListByAccount(ctx context.Context, params ports.HistoryParams) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE (from_account_id = $1 OR to_account_id = $1) AND status <> 'PENDING'
		ORDER BY created_at DESC, id DESC`
	args := []any{params.AccountID}

	if params.Limit > 0 {
		query += ` LIMIT $2 OFFSET $3`
		args = append(args, params.Limit, params.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return collectTransactions(rows)
}

// ListStalePending returns PENDING transactions created before the cutoff, oldest first.
func (r *TransactionRepo) ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions
		WHERE status = 'PENDING' AND created_at < $1
		ORDER BY created_at
		LIMIT $2`

	rows, err := r.pool.Query(ctx, query, createdBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("list stale pending transactions: %w", err)
	}
	return collectTransactions(rows)
}

func collectTransactions(rows pgx.Rows) ([]domain.Transaction, error) {
	defer rows.Close()

	txns := make([]domain.Transaction, 0)
	for rows.Next() {
		t, err := scanTransactionRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan transaction row: %w", err)
		}
		txns = append(txns, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transaction rows: %w", err)
	}
	return txns, nil
}

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	t, err := scanTransactionRow(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

func scanTransactionRow(row pgx.Row) (*domain.Transaction, error) {
	t := &domain.Transaction{}
	var reason *string
	err := row.Scan(
		&t.ID, &t.FromAccountID, &t.ToAccountID, &t.Amount, &t.Status,
		&reason, &t.IdempotencyToken, &t.CreatedAt, &t.CompletedAt,
	)
	if err != nil {
		return nil, err
	}
	if reason != nil {
		t.FailureReason = domain.FailureReason(*reason)
	}
	return t, nil
}

func nullableReason(r domain.FailureReason) *string {
	if r == "" {
		return nil
	}
	s := string(r)
	return &s
}
