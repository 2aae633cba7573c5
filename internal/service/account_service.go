package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"banking-ledger/internal/core/domain"
	"banking-ledger/internal/core/ports"
	"banking-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AccountServiceImpl implements ports.AccountService.
type AccountServiceImpl struct {
	accountRepo ports.AccountRepository
	now         func() time.Time
	log         zerolog.Logger
}

// NewAccountService creates a new AccountServiceImpl.
func NewAccountService(accountRepo ports.AccountRepository, log zerolog.Logger) *AccountServiceImpl {
	return &AccountServiceImpl{
		accountRepo: accountRepo,
		now:         time.Now,
		log:         log,
	}
}

var _ ports.AccountService = (*AccountServiceImpl)(nil)

// CreateAccount opens an account for ownerID with a non-negative opening balance.
func (s *AccountServiceImpl) CreateAccount(ctx context.Context, ownerID string, initialBalance domain.Money) (*domain.Account, error) {
	account, err := domain.NewAccount(ownerID, initialBalance, s.now())
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidOwnerID):
			return nil, apperror.Validation("ownerId: " + err.Error())
		case errors.Is(err, domain.ErrInvalidMoney):
			return nil, apperror.Validation("initialBalance must not be negative")
		}
		return nil, apperror.InternalError(err)
	}

	if err := s.accountRepo.Create(ctx, account); err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("create account: %w", err))
	}

	s.log.Info().
		Str("account_id", account.ID.String()).
		Str("owner_id", account.OwnerID).
		Int64("initial_balance", int64(account.Balance)).
		Msg("account created")

	return account, nil
}

// GetAccount returns the account or a not-found error.
func (s *AccountServiceImpl) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	account, err := s.accountRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("get account: %w", err))
	}
	if account == nil {
		return nil, apperror.ErrNotFound("Account")
	}
	return account, nil
}

// ListAccounts returns the owner's accounts, oldest first. An owner with no
// accounts gets an empty list.
func (s *AccountServiceImpl) ListAccounts(ctx context.Context, ownerID string) ([]domain.Account, error) {
	if err := domain.ValidateOwnerID(ownerID); err != nil {
		return nil, apperror.Validation("ownerId: " + err.Error())
	}
	accounts, err := s.accountRepo.ListByOwner(ctx, ownerID)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("list accounts: %w", err))
	}
	if accounts == nil {
		accounts = []domain.Account{}
	}
	return accounts, nil
}
