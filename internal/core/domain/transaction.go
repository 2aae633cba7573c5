package domain

import (
	"time"

	"github.com/google/uuid"
)

// TransactionStatus represents the lifecycle state of a transaction.
type TransactionStatus string

const (
	TransactionStatusPending   TransactionStatus = "PENDING"
	TransactionStatusCompleted TransactionStatus = "COMPLETED"
	TransactionStatusFailed    TransactionStatus = "FAILED"
)

// FailureReason explains why a transfer ended FAILED.
type FailureReason string

const (
	FailureInsufficientFunds   FailureReason = "INSUFFICIENT_FUNDS"
	FailureBalanceOverflow     FailureReason = "BALANCE_OVERFLOW"
	FailureStorage             FailureReason = "STORAGE_FAILURE"
	FailureConcurrencyConflict FailureReason = "CONCURRENCY_CONFLICT"
	FailureCancelled           FailureReason = "CANCELLED"
	FailureRecovered           FailureReason = "RECOVERED"
)

// Transaction is the durable record of one transfer attempt. Once terminal it
// never changes.
type Transaction struct {
	ID               uuid.UUID         `json:"id"`
	FromAccountID    uuid.UUID         `json:"fromAccountId"`
	ToAccountID      uuid.UUID         `json:"toAccountId"`
	Amount           Money             `json:"amount"`
	Status           TransactionStatus `json:"status"`
	FailureReason    FailureReason     `json:"failureReason,omitempty"`
	IdempotencyToken *string           `json:"idempotencyToken,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
	CompletedAt      *time.Time        `json:"completedAt,omitempty"`
}

// NewPendingTransfer builds the PENDING record written before any balance moves.
func NewPendingTransfer(from, to uuid.UUID, amount Money, token string, now time.Time) *Transaction {
	t := &Transaction{
		ID:            uuid.New(),
		FromAccountID: from,
		ToAccountID:   to,
		Amount:        amount,
		Status:        TransactionStatusPending,
		CreatedAt:     Timestamp(now),
	}
	if token != "" {
		t.IdempotencyToken = &token
	}
	return t
}

// IsTerminal returns true if the transaction is in a final state.
func (t *Transaction) IsTerminal() bool {
	return t.Status == TransactionStatusCompleted ||
		t.Status == TransactionStatusFailed
}

// Complete marks a pending transaction COMPLETED.
func (t *Transaction) Complete(now time.Time) error {
	if t.IsTerminal() {
		return ErrTransactionFinalized
	}
	ts := Timestamp(now)
	t.Status = TransactionStatusCompleted
	t.FailureReason = ""
	t.CompletedAt = &ts
	return nil
}

// Fail marks a pending transaction FAILED with the given reason.
func (t *Transaction) Fail(reason FailureReason, now time.Time) error {
	if t.IsTerminal() {
		return ErrTransactionFinalized
	}
	ts := Timestamp(now)
	t.Status = TransactionStatusFailed
	t.FailureReason = reason
	t.CompletedAt = &ts
	return nil
}

// Matches reports whether a replayed request carries the same transfer parameters.
func (t *Transaction) Matches(from, to uuid.UUID, amount Money) bool {
	return t.FromAccountID == from && t.ToAccountID == to && t.Amount == amount
}

// Token returns the idempotency token or "".
func (t *Transaction) Token() string {
	if t.IdempotencyToken == nil {
		return ""
	}
	return *t.IdempotencyToken
}
