package memory

import (
	"context"

	"banking-ledger/internal/core/domain"
)

// AuditRepo implements ports.AuditRepository.
type AuditRepo struct {
	store *Store
}

func NewAuditRepo(store *Store) *AuditRepo {
	return &AuditRepo{store: store}
}

func (r *AuditRepo) Create(ctx context.Context, log *domain.AuditLog) error {
	r.store.mu.Lock()
	defer r.store.mu.Unlock()

	r.store.audit = append(r.store.audit, *log)
	return nil
}

// List returns a copy of the recorded audit logs in insertion order.
func (r *AuditRepo) List() []domain.AuditLog {
	r.store.mu.RLock()
	defer r.store.mu.RUnlock()

	return append([]domain.AuditLog(nil), r.store.audit...)
}
