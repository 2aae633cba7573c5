package service

import (
	"context"
	"time"

	"banking-ledger/internal/core/domain"
	"banking-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/panjf2000/ants/v2"
	"github.com/rs/zerolog"
)

const auditWriteTimeout = 5 * time.Second

// AuditServiceImpl persists audit entries on a bounded worker pool so request
// latency never waits on the audit table.
type AuditServiceImpl struct {
	repo ports.AuditRepository
	pool *ants.Pool
	log  zerolog.Logger
}

// NewAuditService creates a new audit service with the given number of
// workers. If repo is nil, audit entries are only written to the logger.
func NewAuditService(repo ports.AuditRepository, workers int, log zerolog.Logger) (*AuditServiceImpl, error) {
	if workers <= 0 {
		workers = 1
	}
	pool, err := ants.NewPool(workers, ants.WithNonblocking(true))
	if err != nil {
		return nil, err
	}
	return &AuditServiceImpl{repo: repo, pool: pool, log: log}, nil
}

var _ ports.AuditService = (*AuditServiceImpl)(nil)

// Log records an audit entry asynchronously (fire-and-forget). Entries are
// dropped with a warning when every worker is busy.
func (s *AuditServiceImpl) Log(_ context.Context, entry *domain.AuditLog) {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = domain.Timestamp(time.Now())
	}

	err := s.pool.Submit(func() {
		s.log.Info().
			Str("action", string(entry.Action)).
			Str("resource_type", entry.ResourceType).
			Str("resource_id", entry.ResourceID).
			Str("client", entry.ClientKey).
			Int("status", entry.StatusCode).
			Str("ip", entry.IPAddress).
			Msg("audit")

		if s.repo == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), auditWriteTimeout)
		defer cancel()
		if err := s.repo.Create(ctx, entry); err != nil {
			s.log.Warn().Err(err).Str("action", string(entry.Action)).Msg("failed to persist audit log")
		}
	})
	if err != nil {
		s.log.Warn().Err(err).Str("action", string(entry.Action)).Msg("audit pool saturated, entry dropped")
	}
}

// Close waits up to timeout for queued entries, then stops the pool.
func (s *AuditServiceImpl) Close(timeout time.Duration) error {
	return s.pool.ReleaseTimeout(timeout)
}

// Running reports busy workers.
func (s *AuditServiceImpl) Running() int {
	return s.pool.Running()
}
