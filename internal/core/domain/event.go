package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTransferCompleted = "transfer.completed"
	EventTransferFailed    = "transfer.failed"
)

// TransferEvent is published after a transfer reaches a terminal state.
type TransferEvent struct {
	EventID       uuid.UUID         `json:"eventId"`
	Type          string            `json:"type"`
	TransactionID uuid.UUID         `json:"transactionId"`
	FromAccountID uuid.UUID         `json:"fromAccountId"`
	ToAccountID   uuid.UUID         `json:"toAccountId"`
	Amount        string            `json:"amount"`
	Status        TransactionStatus `json:"status"`
	FailureReason FailureReason     `json:"failureReason,omitempty"`
	OccurredAt    time.Time         `json:"occurredAt"`
}

// NewTransferEvent describes a terminal transaction.
func NewTransferEvent(t *Transaction) TransferEvent {
	typ := EventTransferCompleted
	if t.Status == TransactionStatusFailed {
		typ = EventTransferFailed
	}
	occurred := t.CreatedAt
	if t.CompletedAt != nil {
		occurred = *t.CompletedAt
	}
	return TransferEvent{
		EventID:       uuid.New(),
		Type:          typ,
		TransactionID: t.ID,
		FromAccountID: t.FromAccountID,
		ToAccountID:   t.ToAccountID,
		Amount:        t.Amount.String(),
		Status:        t.Status,
		FailureReason: t.FailureReason,
		OccurredAt:    occurred,
	}
}
