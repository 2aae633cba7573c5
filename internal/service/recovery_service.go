package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"banking-ledger/internal/core/domain"
	"banking-ledger/internal/core/ports"

	"github.com/rs/zerolog"
)

const recoveryBatchSize = 100

// RecoveryServiceImpl implements ports.RecoveryService. Balance changes and
// the COMPLETED mark commit together, so a PENDING record that outlived its
// request never moved money and can safely be marked FAILED.
type RecoveryServiceImpl struct {
	txRepo     ports.TransactionRepository
	transactor ports.DBTransactor
	publisher  ports.EventPublisher // optional
	now        func() time.Time
	log        zerolog.Logger
}

// NewRecoveryService creates a new RecoveryServiceImpl. publisher may be nil.
func NewRecoveryService(
	txRepo ports.TransactionRepository,
	transactor ports.DBTransactor,
	publisher ports.EventPublisher,
	log zerolog.Logger,
) *RecoveryServiceImpl {
	return &RecoveryServiceImpl{
		txRepo:     txRepo,
		transactor: transactor,
		publisher:  publisher,
		now:        time.Now,
		log:        log,
	}
}

var _ ports.RecoveryService = (*RecoveryServiceImpl)(nil)

// ReconcilePending marks PENDING transfers created more than olderThan ago
// FAILED (RECOVERED) and returns how many it finalized.
func (s *RecoveryServiceImpl) ReconcilePending(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := s.now().Add(-olderThan)
	total := 0

	for {
		stale, err := s.txRepo.ListStalePending(ctx, cutoff, recoveryBatchSize)
		if err != nil {
			return total, fmt.Errorf("list stale pending: %w", err)
		}

		finalized := 0
		for i := range stale {
			if err := ctx.Err(); err != nil {
				return total + finalized, err
			}
			ok, err := s.reconcile(ctx, &stale[i])
			if err != nil {
				return total + finalized, err
			}
			if ok {
				finalized++
			}
		}
		total += finalized

		if len(stale) < recoveryBatchSize || finalized == 0 {
			break
		}
	}

	if total > 0 {
		s.log.Warn().Int("count", total).Dur("older_than", olderThan).Msg("reconciled stale pending transfers")
	}
	return total, nil
}

// reconcile finalizes one record; false means a live request finalized it first.
func (s *RecoveryServiceImpl) reconcile(ctx context.Context, pending *domain.Transaction) (bool, error) {
	failed := *pending
	if err := failed.Fail(domain.FailureRecovered, s.now()); err != nil {
		return false, nil
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.txRepo.UpdateStatus(ctx, dbTx, &failed); err != nil {
		if errors.Is(err, domain.ErrTransactionFinalized) {
			return false, nil
		}
		return false, fmt.Errorf("mark %s recovered: %w", pending.ID, err)
	}
	if err := dbTx.Commit(ctx); err != nil {
		if errors.Is(err, domain.ErrTransactionFinalized) {
			return false, nil
		}
		return false, fmt.Errorf("commit recovery of %s: %w", pending.ID, err)
	}

	s.log.Info().Str("tx_id", pending.ID.String()).Msg("stale pending transfer marked FAILED")

	if s.publisher != nil {
		if err := s.publisher.PublishTransfer(ctx, domain.NewTransferEvent(&failed)); err != nil {
			s.log.Warn().Err(err).Str("tx_id", failed.ID.String()).Msg("failed to publish transfer event")
		}
	}
	return true, nil
}
