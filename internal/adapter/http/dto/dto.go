package dto

import (
	"encoding/json"
	"time"

	"banking-ledger/internal/core/domain"

	"github.com/shopspring/decimal"
)

// --- Account DTOs ---

type CreateAccountRequest struct {
	OwnerID        string           `json:"ownerId" binding:"required,owner_id"`
	InitialBalance *decimal.Decimal `json:"initialBalance" binding:"required"`
}

type AccountResponse struct {
	ID        string      `json:"id"`
	OwnerID   string      `json:"ownerId"`
	Balance   json.Number `json:"balance"`
	Version   int64       `json:"version"`
	CreatedAt string      `json:"createdAt"`
	UpdatedAt string      `json:"updatedAt"`
}

// --- Transfer DTOs ---

type TransferRequest struct {
	FromAccountID    string           `json:"fromAccountId" binding:"required,uuid"`
	ToAccountID      string           `json:"toAccountId" binding:"required,uuid"`
	Amount           *decimal.Decimal `json:"amount" binding:"required"`
	IdempotencyToken *string          `json:"idempotencyToken" binding:"omitempty,max=128,safe_id"`
}

type TransactionResponse struct {
	ID               string      `json:"id"`
	FromAccountID    string      `json:"fromAccountId"`
	ToAccountID      string      `json:"toAccountId"`
	Amount           json.Number `json:"amount"`
	Status           string      `json:"status"`
	FailureReason    string      `json:"failureReason,omitempty"`
	IdempotencyToken string      `json:"idempotencyToken,omitempty"`
	CreatedAt        string      `json:"createdAt"`
	CompletedAt      string      `json:"completedAt,omitempty"`
}

// NewAccountResponse projects an account for the wire. Amounts are JSON
// numbers with exactly two decimals.
func NewAccountResponse(a *domain.Account) AccountResponse {
	return AccountResponse{
		ID:        a.ID.String(),
		OwnerID:   a.OwnerID,
		Balance:   json.Number(a.Balance.String()),
		Version:   a.Version,
		CreatedAt: a.CreatedAt.Format(time.RFC3339),
		UpdatedAt: a.UpdatedAt.Format(time.RFC3339),
	}
}

func NewAccountListResponse(accounts []domain.Account) []AccountResponse {
	out := make([]AccountResponse, 0, len(accounts))
	for i := range accounts {
		out = append(out, NewAccountResponse(&accounts[i]))
	}
	return out
}

func NewTransactionResponse(t *domain.Transaction) TransactionResponse {
	resp := TransactionResponse{
		ID:               t.ID.String(),
		FromAccountID:    t.FromAccountID.String(),
		ToAccountID:      t.ToAccountID.String(),
		Amount:           json.Number(t.Amount.String()),
		Status:           string(t.Status),
		FailureReason:    string(t.FailureReason),
		IdempotencyToken: t.Token(),
		CreatedAt:        t.CreatedAt.Format(time.RFC3339),
	}
	if t.CompletedAt != nil {
		resp.CompletedAt = t.CompletedAt.Format(time.RFC3339)
	}
	return resp
}

func NewTransactionListResponse(txns []domain.Transaction) []TransactionResponse {
	out := make([]TransactionResponse, 0, len(txns))
	for i := range txns {
		out = append(out, NewTransactionResponse(&txns[i]))
	}
	return out
}
