package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"banking-ledger/internal/core/domain"
	"banking-ledger/internal/core/ports"
	"banking-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

// Postgres SQLSTATEs that mean "try again".
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// TransferOptions tunes the engine's retry and finalization behavior.
type TransferOptions struct {
	MaxRetries      int
	RetryBackoff    time.Duration
	FinalizeTimeout time.Duration
	IdempotencyTTL  time.Duration
}

// DefaultTransferOptions mirrors the config defaults.
func DefaultTransferOptions() TransferOptions {
	return TransferOptions{
		MaxRetries:      3,
		RetryBackoff:    20 * time.Millisecond,
		FinalizeTimeout: 5 * time.Second,
		IdempotencyTTL:  24 * time.Hour,
	}
}

// TransferServiceImpl implements ports.TransferService.
type TransferServiceImpl struct {
	accountRepo ports.AccountRepository
	txRepo      ports.TransactionRepository
	transactor  ports.DBTransactor
	idempCache  ports.IdempotencyCache // optional
	publisher   ports.EventPublisher   // optional
	locks       *accountLocks
	opts        TransferOptions
	now         func() time.Time
	log         zerolog.Logger
}

// NewTransferService creates a new TransferServiceImpl. idempCache and
// publisher may be nil.
func NewTransferService(
	accountRepo ports.AccountRepository,
	txRepo ports.TransactionRepository,
	transactor ports.DBTransactor,
	idempCache ports.IdempotencyCache,
	publisher ports.EventPublisher,
	opts TransferOptions,
	log zerolog.Logger,
) *TransferServiceImpl {
	if opts.MaxRetries < 1 {
		opts.MaxRetries = 1
	}
	if opts.FinalizeTimeout <= 0 {
		opts.FinalizeTimeout = DefaultTransferOptions().FinalizeTimeout
	}
	return &TransferServiceImpl{
		accountRepo: accountRepo,
		txRepo:      txRepo,
		transactor:  transactor,
		idempCache:  idempCache,
		publisher:   publisher,
		locks:       newAccountLocks(),
		opts:        opts,
		now:         time.Now,
		log:         log,
	}
}

var _ ports.TransferService = (*TransferServiceImpl)(nil)

// Transfer moves req.Amount from one account to another. A declined transfer
// (insufficient funds) is a successful call returning a FAILED transaction.
func (s *TransferServiceImpl) Transfer(ctx context.Context, req ports.TransferRequest) (*domain.Transaction, error) {
	if !req.Amount.IsPositive() {
		return nil, apperror.ErrInvalidAmount()
	}
	if req.FromAccountID == req.ToAccountID {
		return nil, apperror.ErrSelfTransfer()
	}

	if req.IdempotencyToken != "" {
		existing, err := s.lookupToken(ctx, req.IdempotencyToken)
		if err != nil {
			return nil, err
		}
		if existing != nil {
			return replay(existing, req)
		}
	}

	for _, id := range []uuid.UUID{req.FromAccountID, req.ToAccountID} {
		account, err := s.accountRepo.GetByID(ctx, id)
		if err != nil {
			return nil, apperror.ErrDatabaseError(fmt.Errorf("get account %s: %w", id, err))
		}
		if account == nil {
			return nil, apperror.ErrNotFound("Account")
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, apperror.ErrRequestCancelled(err)
	}

	pending := domain.NewPendingTransfer(req.FromAccountID, req.ToAccountID, req.Amount, req.IdempotencyToken, s.now())
	if err := s.insertPending(ctx, pending); err != nil {
		if errors.Is(err, domain.ErrDuplicateIdempotencyToken) {
			return s.resolveTokenRace(ctx, req)
		}
		return nil, apperror.ErrDatabaseError(fmt.Errorf("insert pending transfer: %w", err))
	}

	release, err := s.locks.Acquire(ctx, req.FromAccountID, req.ToAccountID)
	if err != nil {
		failed := s.failOutOfBand(ctx, pending, domain.FailureCancelled)
		s.finish(ctx, failed)
		return nil, apperror.ErrRequestCancelled(err)
	}
	defer release()

	// The PENDING record is durable now; the outcome must be written even if
	// the caller goes away.
	wctx := context.WithoutCancel(ctx)

	var lastErr error
	for attempt := 1; attempt <= s.opts.MaxRetries; attempt++ {
		result, err := s.applyTransfer(wctx, pending)
		if err == nil {
			s.logOutcome(result, attempt)
			s.finish(wctx, result)
			return result, nil
		}

		if errors.Is(err, domain.ErrTransactionFinalized) {
			// The recovery pass finalized this record first.
			current, getErr := s.txRepo.GetByID(wctx, pending.ID)
			if getErr != nil {
				return nil, apperror.ErrDatabaseError(fmt.Errorf("reload finalized transfer %s: %w", pending.ID, getErr))
			}
			if current == nil {
				return nil, apperror.ErrDatabaseError(fmt.Errorf("reload finalized transfer %s: record missing", pending.ID))
			}
			return current, nil
		}

		if !isConcurrencyConflict(err) {
			s.log.Error().Err(err).
				Str("tx_id", pending.ID.String()).
				Int("attempt", attempt).
				Msg("transfer failed on storage error")
			failed := s.failOutOfBand(wctx, pending, domain.FailureStorage)
			s.finish(wctx, failed)
			return nil, apperror.ErrDatabaseError(err)
		}

		lastErr = err
		s.log.Warn().Err(err).
			Str("tx_id", pending.ID.String()).
			Int("attempt", attempt).
			Msg("transfer conflict, retrying")
		if attempt < s.opts.MaxRetries && s.opts.RetryBackoff > 0 {
			time.Sleep(s.opts.RetryBackoff * time.Duration(attempt))
		}
	}

	failed := s.failOutOfBand(wctx, pending, domain.FailureConcurrencyConflict)
	s.finish(wctx, failed)
	return nil, apperror.ErrConcurrencyConflict(fmt.Errorf("transfer %s: retries exhausted: %w", pending.ID, lastErr))
}

// lookupToken checks the cache, then the store.
func (s *TransferServiceImpl) lookupToken(ctx context.Context, token string) (*domain.Transaction, error) {
	if s.idempCache != nil {
		cached, err := s.idempCache.Get(ctx, token)
		if err != nil {
			s.log.Warn().Err(err).Str("token", token).Msg("idempotency cache lookup failed, falling through to DB")
		}
		if cached != nil {
			return cached, nil
		}
	}

	existing, err := s.txRepo.GetByIdempotencyToken(ctx, token)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("db idempotency check: %w", err))
	}
	return existing, nil
}

// resolveTokenRace answers a request whose PENDING insert lost the unique
// token race to a concurrent request.
func (s *TransferServiceImpl) resolveTokenRace(ctx context.Context, req ports.TransferRequest) (*domain.Transaction, error) {
	existing, err := s.txRepo.GetByIdempotencyToken(ctx, req.IdempotencyToken)
	if err != nil {
		return nil, apperror.ErrDatabaseError(fmt.Errorf("db idempotency check: %w", err))
	}
	if existing == nil {
		return nil, apperror.ErrTransferInProgress()
	}
	return replay(existing, req)
}

func replay(existing *domain.Transaction, req ports.TransferRequest) (*domain.Transaction, error) {
	if !existing.Matches(req.FromAccountID, req.ToAccountID, req.Amount) {
		return nil, apperror.ErrIdempotencyMismatch()
	}
	if !existing.IsTerminal() {
		return nil, apperror.ErrTransferInProgress()
	}
	return existing, nil
}

func (s *TransferServiceImpl) insertPending(ctx context.Context, pending *domain.Transaction) error {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.txRepo.Create(ctx, dbTx, pending); err != nil {
		return err
	}
	if err := dbTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit pending: %w", err)
	}
	return nil
}

// applyTransfer runs one store transaction: lock both rows in id order, move
// the money (or decline) and finalize the record. It returns the terminal
// copy of pending; pending itself is never modified.
func (s *TransferServiceImpl) applyTransfer(ctx context.Context, pending *domain.Transaction) (*domain.Transaction, error) {
	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	locked := make(map[uuid.UUID]*domain.Account, 2)
	for _, id := range lockOrder(pending.FromAccountID, pending.ToAccountID) {
		account, err := s.accountRepo.GetByIDForUpdate(ctx, dbTx, id)
		if err != nil {
			return nil, fmt.Errorf("lock account %s: %w", id, err)
		}
		if account == nil {
			return nil, fmt.Errorf("lock account %s: not found", id)
		}
		locked[id] = account
	}

	src := *locked[pending.FromAccountID]
	dst := *locked[pending.ToAccountID]
	srcVersion, dstVersion := src.Version, dst.Version

	result := *pending
	now := s.now()

	if err := src.Debit(pending.Amount, now); err != nil {
		if !errors.Is(err, domain.ErrInsufficientFunds) {
			return nil, err
		}
		if err := result.Fail(domain.FailureInsufficientFunds, now); err != nil {
			return nil, err
		}
		return s.finalize(ctx, dbTx, &result)
	}
	if err := dst.Credit(pending.Amount, now); err != nil {
		if !errors.Is(err, domain.ErrBalanceOverflow) {
			return nil, fmt.Errorf("credit account %s: %w", dst.ID, err)
		}
		if err := result.Fail(domain.FailureBalanceOverflow, now); err != nil {
			return nil, err
		}
		return s.finalize(ctx, dbTx, &result)
	}

	if err := s.accountRepo.UpdateBalance(ctx, dbTx, &src, srcVersion); err != nil {
		return nil, fmt.Errorf("debit account %s: %w", src.ID, err)
	}
	if err := s.accountRepo.UpdateBalance(ctx, dbTx, &dst, dstVersion); err != nil {
		return nil, fmt.Errorf("credit account %s: %w", dst.ID, err)
	}
	if err := result.Complete(now); err != nil {
		return nil, err
	}
	return s.finalize(ctx, dbTx, &result)
}

func (s *TransferServiceImpl) finalize(ctx context.Context, dbTx pgx.Tx, result *domain.Transaction) (*domain.Transaction, error) {
	if err := s.txRepo.UpdateStatus(ctx, dbTx, result); err != nil {
		return nil, fmt.Errorf("update transfer status: %w", err)
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit transfer: %w", err)
	}
	return result, nil
}

// failOutOfBand marks pending FAILED in its own store transaction. If that
// write fails too, the record stays PENDING for the recovery pass.
func (s *TransferServiceImpl) failOutOfBand(ctx context.Context, pending *domain.Transaction, reason domain.FailureReason) *domain.Transaction {
	fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.FinalizeTimeout)
	defer cancel()

	failed := *pending
	if err := failed.Fail(reason, s.now()); err != nil {
		return nil
	}

	err := func() error {
		dbTx, err := s.transactor.Begin(fctx)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		defer dbTx.Rollback(fctx) //nolint:errcheck

		if err := s.txRepo.UpdateStatus(fctx, dbTx, &failed); err != nil {
			return err
		}
		return dbTx.Commit(fctx)
	}()
	if err != nil {
		s.log.Error().Err(err).
			Str("tx_id", pending.ID.String()).
			Str("reason", string(reason)).
			Msg("failed to mark transfer FAILED, left PENDING for recovery")
		return nil
	}

	s.logOutcome(&failed, 0)
	return &failed
}

// finish caches and publishes a terminal outcome. Both are best-effort.
func (s *TransferServiceImpl) finish(ctx context.Context, t *domain.Transaction) {
	if t == nil || !t.IsTerminal() {
		return
	}
	if s.idempCache != nil && t.Token() != "" {
		if err := s.idempCache.Put(ctx, t, s.opts.IdempotencyTTL); err != nil {
			s.log.Warn().Err(err).Str("tx_id", t.ID.String()).Msg("failed to cache transfer result")
		}
	}
	if s.publisher != nil {
		if err := s.publisher.PublishTransfer(ctx, domain.NewTransferEvent(t)); err != nil {
			s.log.Warn().Err(err).Str("tx_id", t.ID.String()).Msg("failed to publish transfer event")
		}
	}
}

func (s *TransferServiceImpl) logOutcome(t *domain.Transaction, attempts int) {
	evt := s.log.Info()
	if t.Status == domain.TransactionStatusFailed {
		evt = s.log.Warn().Str("reason", string(t.FailureReason))
	}
	evt.Str("tx_id", t.ID.String()).
		Str("from", t.FromAccountID.String()).
		Str("to", t.ToAccountID.String()).
		Int64("amount", int64(t.Amount)).
		Str("status", string(t.Status)).
		Int("attempts", attempts).
		Msg("transfer finalized")
}

// lockOrder returns the pair in ascending byte order, the same order the
// in-process lock table uses.
func lockOrder(a, b uuid.UUID) []uuid.UUID {
	if bytes.Compare(a[:], b[:]) <= 0 {
		return []uuid.UUID{a, b}
	}
	return []uuid.UUID{b, a}
}

func isConcurrencyConflict(err error) bool {
	if errors.Is(err, domain.ErrVersionConflict) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected
	}
	return false
}
