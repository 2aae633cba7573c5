package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"banking-ledger/internal/core/domain"
	"banking-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// TransactionRepo implements ports.TransactionRepository.
type TransactionRepo struct {
	store *Store
}

func NewTransactionRepo(store *Store) *TransactionRepo {
	return &TransactionRepo{store: store}
}

func (r *TransactionRepo) Create(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	mt, err := asTx(tx)
	if err != nil {
		return err
	}

	mt.mu.Lock()
	defer mt.mu.Unlock()

	if tok := t.Token(); tok != "" {
		r.store.mu.RLock()
		_, taken := r.store.tokens[tok]
		r.store.mu.RUnlock()
		if taken {
			return fmt.Errorf("insert transaction: %w", domain.ErrDuplicateIdempotencyToken)
		}
		for _, c := range mt.created {
			if c.Token() == tok {
				return fmt.Errorf("insert transaction: %w", domain.ErrDuplicateIdempotencyToken)
			}
		}
	}

	mt.created = append(mt.created, cloneTransaction(*t))
	return nil
}

func (r *TransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	t, ok := r.store.transactions[id]
	if !ok {
		return nil, nil
	}
	c := cloneTransaction(t)
	return &c, nil
}

func (r *TransactionRepo) GetByIdempotencyToken(ctx context.Context, token string) (*domain.Transaction, error) {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	id, ok := r.store.tokens[token]
	if !ok {
		return nil, nil
	}
	c := cloneTransaction(r.store.transactions[id])
	return &c, nil
}

func (r *TransactionRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, t *domain.Transaction) error {
	mt, err := asTx(tx)
	if err != nil {
		return err
	}

	mt.mu.Lock()
	defer mt.mu.Unlock()

	if _, already := mt.statuses[t.ID]; already {
		return fmt.Errorf("transaction %s: %w", t.ID, domain.ErrTransactionFinalized)
	}
	if mt.createdIndex(t.ID) < 0 {
		r.store.mu.RLock()
		current, ok := r.store.transactions[t.ID]
		r.store.mu.RUnlock()
		if !ok || current.IsTerminal() {
			return fmt.Errorf("transaction %s: %w", t.ID, domain.ErrTransactionFinalized)
		}
	}

	mt.statuses[t.ID] = cloneTransaction(*t)
	return nil
}

func (r *TransactionRepo) ListByAccount(ctx context.Context, params ports.HistoryParams) ([]domain.Transaction, error) {
	r.store.mu.RLock()
	out := make([]domain.Transaction, 0)
	for _, t := range r.store.transactions {
		if !t.IsTerminal() {
			continue
		}
		if t.FromAccountID == params.AccountID || t.ToAccountID == params.AccountID {
			out = append(out, cloneTransaction(t))
		}
	}
	r.store.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return uuidLess(out[j].ID, out[i].ID)
	})

	if params.Limit <= 0 {
		return out, nil
	}
	if params.Offset >= len(out) {
		return []domain.Transaction{}, nil
	}
	end := params.Offset + params.Limit
	if end > len(out) {
		end = len(out)
	}
	return out[params.Offset:end], nil
}

func (r *TransactionRepo) ListStalePending(ctx context.Context, createdBefore time.Time, limit int) ([]domain.Transaction, error) {
	r.store.mu.RLock()
	out := make([]domain.Transaction, 0)
	for _, t := range r.store.transactions {
		if t.Status == domain.TransactionStatusPending && t.CreatedAt.Before(createdBefore) {
			out = append(out, cloneTransaction(t))
		}
	}
	r.store.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func cloneTransaction(t domain.Transaction) domain.Transaction {
	if t.IdempotencyToken != nil {
		tok := *t.IdempotencyToken
		t.IdempotencyToken = &tok
	}
	if t.CompletedAt != nil {
		at := *t.CompletedAt
		t.CompletedAt = &at
	}
	return t
}
