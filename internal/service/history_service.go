package service

import (
	"context"
	"fmt"

	"banking-ledger/internal/core/domain"
	"banking-ledger/internal/core/ports"
	"banking-ledger/pkg/apperror"

	"github.com/google/uuid"
)

// MaxHistoryPageSize caps one history page.
const MaxHistoryPageSize = 100

// HistoryServiceImpl implements ports.HistoryService.
type HistoryServiceImpl struct {
	accountRepo ports.AccountRepository
	txRepo      ports.TransactionRepository
}

// NewHistoryService creates a new HistoryServiceImpl.
func NewHistoryService(accountRepo ports.AccountRepository, txRepo ports.TransactionRepository) *HistoryServiceImpl {
	return &HistoryServiceImpl{accountRepo: accountRepo, txRepo: txRepo}
}

var _ ports.HistoryService = (*HistoryServiceImpl)(nil)

// GetHistory lists the committed transfers touching accountID, newest first.
// Pages are 1-based; PageSize 0 returns the whole history.
func (s *HistoryServiceImpl) GetHistory(ctx context.Context, accountID uuid.UUID, query ports.HistoryQuery) ([]domain.Transaction, error) {
	if query.Page < 0 || query.PageSize < 0 {
		return nil, apperror.Validation("page and pageSize must not be negative")
	}
	if query.PageSize > MaxHistoryPageSize {
		return nil, apperror.Validation(fmt.Sprintf("pageSize must not exceed %d", MaxHistoryPageSize))
	}

	account, err := s.accountRepo.GetByID(ctx, accountID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("get account: %w", err))
	}
	if account == nil {
		return nil, apperror.ErrNotFound("Account")
	}

	params := ports.HistoryParams{AccountID: accountID}
	if query.PageSize > 0 {
		page := query.Page
		if page < 1 {
			page = 1
		}
		params.Limit = query.PageSize
		params.Offset = (page - 1) * query.PageSize
	}

	txns, err := s.txRepo.ListByAccount(ctx, params)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("list history: %w", err))
	}
	if txns == nil {
		txns = []domain.Transaction{}
	}
	return txns, nil
}
