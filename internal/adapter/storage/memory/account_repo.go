package memory

import (
	"context"
	"fmt"
	"sort"

	"banking-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// AccountRepo implements ports.AccountRepository.
type AccountRepo struct {
	store *Store
}

func NewAccountRepo(store *Store) *AccountRepo {
	return &AccountRepo{store: store}
}

func (r *AccountRepo) Create(ctx context.Context, a *domain.Account) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	if _, exists := r.store.accounts[a.ID]; exists {
		return fmt.Errorf("insert account: id %s already exists", a.ID)
	}
	r.store.accounts[a.ID] = *a
	return nil
}

func (r *AccountRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	a, ok := r.store.accounts[id]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (r *AccountRepo) ListByOwner(ctx context.Context, ownerID string) ([]domain.Account, error) {
	r.store.mu.RLock()
	out := make([]domain.Account, 0)
	for _, a := range r.store.accounts {
		if a.OwnerID == ownerID {
			out = append(out, a)
		}
	}
	r.store.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return uuidLess(out[i].ID, out[j].ID)
	})
	return out, nil
}

// GetByIDForUpdate reads the account as seen by tx. Exclusion between
// writers comes from the version guard checked at commit.
func (r *AccountRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Account, error) {
	mt, err := asTx(tx)
	if err != nil {
		return nil, err
	}

	mt.mu.Lock()
	w, buffered := mt.accounts[id]
	mt.mu.Unlock()
	if buffered {
		a := w.account
		return &a, nil
	}
	return r.GetByID(ctx, id)
}

func (r *AccountRepo) UpdateBalance(ctx context.Context, tx pgx.Tx, a *domain.Account, expectedVersion int64) error {
	mt, err := asTx(tx)
	if err != nil {
		return err
	}

	mt.mu.Lock()
	defer mt.mu.Unlock()

	guard := expectedVersion
	if prev, buffered := mt.accounts[a.ID]; buffered {
		if prev.account.Version != expectedVersion {
			return fmt.Errorf("account %s at version %d: %w", a.ID, expectedVersion, domain.ErrVersionConflict)
		}
		guard = prev.expectedVersion
	} else {
		r.store.mu.RLock()
		current, ok := r.store.accounts[a.ID]
		r.store.mu.RUnlock()
		if !ok || current.Version != expectedVersion {
			return fmt.Errorf("account %s at version %d: %w", a.ID, expectedVersion, domain.ErrVersionConflict)
		}
	}

	mt.accounts[a.ID] = accountWrite{account: *a, expectedVersion: guard}
	return nil
}

func uuidLess(a, b uuid.UUID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
