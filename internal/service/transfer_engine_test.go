package service

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"banking-ledger/internal/adapter/storage/memory"
	"banking-ledger/internal/core/domain"
	"banking-ledger/internal/core/ports"
	"banking-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ledger wires the real services over the in-memory store.
type ledger struct {
	store     *memory.Store
	accounts  *memory.AccountRepo
	txns      *memory.TransactionRepo
	accountSv *AccountServiceImpl
	transfer  *TransferServiceImpl
	history   *HistoryServiceImpl
	recovery  *RecoveryServiceImpl
}

func newLedger(t *testing.T) *ledger {
	t.Helper()
	store := memory.NewStore()
	accounts := memory.NewAccountRepo(store)
	txns := memory.NewTransactionRepo(store)
	transactor := memory.NewTransactor(store)

	opts := DefaultTransferOptions()
	opts.RetryBackoff = time.Millisecond

	return &ledger{
		store:     store,
		accounts:  accounts,
		txns:      txns,
		accountSv: NewAccountService(accounts, newTestLogger()),
		transfer:  NewTransferService(accounts, txns, transactor, nil, nil, opts, newTestLogger()),
		history:   NewHistoryService(accounts, txns),
		recovery:  NewRecoveryService(txns, transactor, nil, newTestLogger()),
	}
}

func (l *ledger) open(t *testing.T, balance string) *domain.Account {
	t.Helper()
	a, err := l.accountSv.CreateAccount(context.Background(), "owner-"+uuid.NewString()[:8], domain.MustParseMoney(balance))
	require.NoError(t, err)
	return a
}

func (l *ledger) balance(t *testing.T, id uuid.UUID) domain.Money {
	t.Helper()
	a, err := l.accountSv.GetAccount(context.Background(), id)
	require.NoError(t, err)
	return a.Balance
}

func TestLedger_TransferMovesMoney(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	a := l.open(t, "100.00")
	b := l.open(t, "50.00")

	result, err := l.transfer.Transfer(ctx, ports.TransferRequest{
		FromAccountID: a.ID,
		ToAccountID:   b.ID,
		Amount:        domain.MustParseMoney("40.00"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusCompleted, result.Status)

	assert.Equal(t, domain.MustParseMoney("60.00"), l.balance(t, a.ID))
	assert.Equal(t, domain.MustParseMoney("90.00"), l.balance(t, b.ID))

	after, err := l.accountSv.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), after.Version)

	hist, err := l.history.GetHistory(ctx, a.ID, ports.HistoryQuery{})
	require.NoError(t, err)
	require.Len(t, hist, 1)
	assert.Equal(t, result.ID, hist[0].ID)
}

func TestLedger_InsufficientFundsLeavesBalances(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	a := l.open(t, "10.00")
	b := l.open(t, "0")

	result, err := l.transfer.Transfer(ctx, ports.TransferRequest{
		FromAccountID: a.ID,
		ToAccountID:   b.ID,
		Amount:        domain.MustParseMoney("10.01"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusFailed, result.Status)
	assert.Equal(t, domain.FailureInsufficientFunds, result.FailureReason)
	assert.Equal(t, domain.MustParseMoney("10.00"), l.balance(t, a.ID))
	assert.Equal(t, domain.Money(0), l.balance(t, b.ID))

	hist, err := l.history.GetHistory(ctx, b.ID, ports.HistoryQuery{})
	require.NoError(t, err)
	require.Len(t, hist, 1, "declined transfers are part of the history")
	assert.Equal(t, domain.TransactionStatusFailed, hist[0].Status)
}

func TestLedger_ExactBalanceDrainsToZero(t *testing.T) {
	l := newLedger(t)
	a := l.open(t, "25.50")
	b := l.open(t, "0")

	result, err := l.transfer.Transfer(context.Background(), ports.TransferRequest{
		FromAccountID: a.ID,
		ToAccountID:   b.ID,
		Amount:        domain.MustParseMoney("25.50"),
	})
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusCompleted, result.Status)
	assert.Equal(t, domain.Money(0), l.balance(t, a.ID))
}

func TestLedger_IdempotentReplay(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	a := l.open(t, "100.00")
	b := l.open(t, "0")

	req := ports.TransferRequest{
		FromAccountID:    a.ID,
		ToAccountID:      b.ID,
		Amount:           domain.MustParseMoney("30.00"),
		IdempotencyToken: "replay-1",
	}
	first, err := l.transfer.Transfer(ctx, req)
	require.NoError(t, err)
	second, err := l.transfer.Transfer(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, domain.MustParseMoney("70.00"), l.balance(t, a.ID))

	req.Amount = domain.MustParseMoney("31.00")
	_, err = l.transfer.Transfer(ctx, req)
	assertAppError(t, err, apperror.CodeIdempotencyMismatch)
}

func TestLedger_ConcurrentSameTokenDebitsOnce(t *testing.T) {
	l := newLedger(t)
	a := l.open(t, "100.00")
	b := l.open(t, "0")

	req := ports.TransferRequest{
		FromAccountID:    a.ID,
		ToAccountID:      b.ID,
		Amount:           domain.MustParseMoney("10.00"),
		IdempotencyToken: "same-token",
	}

	var wg sync.WaitGroup
	ids := make(chan uuid.UUID, 20)
	var inProgress atomic.Int64
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := l.transfer.Transfer(context.Background(), req)
			if err != nil {
				if apperror.HasCode(err, apperror.CodeTransferInProgress) {
					inProgress.Add(1)
					return
				}
				t.Errorf("unexpected error: %v", err)
				return
			}
			ids <- result.ID
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[uuid.UUID]struct{})
	for id := range ids {
		seen[id] = struct{}{}
	}
	assert.Len(t, seen, 1, "every successful response names the same transaction")
	assert.Equal(t, domain.MustParseMoney("90.00"), l.balance(t, a.ID))
	assert.Equal(t, domain.MustParseMoney("10.00"), l.balance(t, b.ID))
}

func TestLedger_ConcurrentDrainNeverGoesNegative(t *testing.T) {
	l := newLedger(t)
	a := l.open(t, "1.00")
	sinks := []*domain.Account{l.open(t, "0"), l.open(t, "0"), l.open(t, "0")}

	var completed atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 30; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			result, err := l.transfer.Transfer(context.Background(), ports.TransferRequest{
				FromAccountID: a.ID,
				ToAccountID:   sinks[i%len(sinks)].ID,
				Amount:        domain.MustParseMoney("0.10"),
			})
			if err != nil {
				t.Errorf("unexpected error: %v", err)
				return
			}
			if result.Status == domain.TransactionStatusCompleted {
				completed.Add(1)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(10), completed.Load())
	assert.Equal(t, domain.Money(0), l.balance(t, a.ID))
	assert.Equal(t, domain.MustParseMoney("1.00"), l.store.TotalBalance())
}

func TestLedger_OppositeDirectionsDoNotDeadlock(t *testing.T) {
	l := newLedger(t)
	a := l.open(t, "1000.00")
	b := l.open(t, "1000.00")

	done := make(chan struct{})
	go func() {
		defer close(done)
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(2)
			go func() {
				defer wg.Done()
				_, err := l.transfer.Transfer(context.Background(), ports.TransferRequest{
					FromAccountID: a.ID, ToAccountID: b.ID, Amount: domain.MustParseMoney("1.00"),
				})
				assert.NoError(t, err)
			}()
			go func() {
				defer wg.Done()
				_, err := l.transfer.Transfer(context.Background(), ports.TransferRequest{
					FromAccountID: b.ID, ToAccountID: a.ID, Amount: domain.MustParseMoney("2.00"),
				})
				assert.NoError(t, err)
			}()
		}
		wg.Wait()
	}()

	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("opposite-direction transfers did not finish")
	}

	assert.Equal(t, domain.MustParseMoney("1050.00"), l.balance(t, a.ID))
	assert.Equal(t, domain.MustParseMoney("950.00"), l.balance(t, b.ID))
	assert.Equal(t, 0, l.transfer.locks.size(), "lock table must drain")
}

func TestLedger_RandomTransfersConserveTotal(t *testing.T) {
	l := newLedger(t)
	const n = 6
	accounts := make([]*domain.Account, n)
	for i := range accounts {
		accounts[i] = l.open(t, "100.00")
	}
	total := l.store.TotalBalance()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < 40; i++ {
				from := accounts[rng.Intn(n)]
				to := accounts[rng.Intn(n)]
				if from.ID == to.ID {
					continue
				}
				amount := domain.Money(rng.Int63n(5000) + 1)
				_, err := l.transfer.Transfer(context.Background(), ports.TransferRequest{
					FromAccountID: from.ID, ToAccountID: to.ID, Amount: amount,
				})
				if err != nil {
					t.Errorf("transfer: %v", err)
				}
			}
		}(int64(w))
	}
	wg.Wait()

	assert.Equal(t, total, l.store.TotalBalance())
	for _, a := range accounts {
		assert.False(t, l.balance(t, a.ID).IsNegative())
	}
	stale, err := l.txns.ListStalePending(context.Background(), time.Now().Add(time.Hour), 10)
	require.NoError(t, err)
	assert.Empty(t, stale, "every transfer reaches a terminal state")
}

func TestLedger_CancelWhileWaitingForLocks(t *testing.T) {
	l := newLedger(t)
	a := l.open(t, "10.00")
	b := l.open(t, "0")

	release, err := l.transfer.locks.Acquire(context.Background(), a.ID)
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err = l.transfer.Transfer(ctx, ports.TransferRequest{
		FromAccountID:    a.ID,
		ToAccountID:      b.ID,
		Amount:           domain.MustParseMoney("1.00"),
		IdempotencyToken: "cancelled-1",
	})
	assertAppError(t, err, apperror.CodeRequestCancelled)

	record, err := l.txns.GetByIdempotencyToken(context.Background(), "cancelled-1")
	require.NoError(t, err)
	require.NotNil(t, record)
	assert.Equal(t, domain.TransactionStatusFailed, record.Status)
	assert.Equal(t, domain.FailureCancelled, record.FailureReason)
	assert.Equal(t, domain.MustParseMoney("10.00"), l.balance(t, a.ID))
}

func TestLedger_HistoryPaging(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	a := l.open(t, "100.00")
	b := l.open(t, "0")

	for i := 0; i < 5; i++ {
		_, err := l.transfer.Transfer(ctx, ports.TransferRequest{
			FromAccountID:    a.ID,
			ToAccountID:      b.ID,
			Amount:           domain.MustParseMoney("1.00"),
			IdempotencyToken: fmt.Sprintf("page-%d", i),
		})
		require.NoError(t, err)
	}

	all, err := l.history.GetHistory(ctx, a.ID, ports.HistoryQuery{})
	require.NoError(t, err)
	require.Len(t, all, 5)
	for i := 1; i < len(all); i++ {
		assert.False(t, all[i].CreatedAt.After(all[i-1].CreatedAt), "newest first")
	}

	page2, err := l.history.GetHistory(ctx, a.ID, ports.HistoryQuery{Page: 2, PageSize: 2})
	require.NoError(t, err)
	require.Len(t, page2, 2)
	assert.Equal(t, all[2].ID, page2[0].ID)
	assert.Equal(t, all[3].ID, page2[1].ID)
}

func TestLedger_RecoveryFinalizesStalePending(t *testing.T) {
	l := newLedger(t)
	ctx := context.Background()
	a := l.open(t, "10.00")
	b := l.open(t, "0")

	stale := domain.NewPendingTransfer(a.ID, b.ID, domain.MustParseMoney("1.00"), "stale-1", time.Now().Add(-time.Hour))
	tx, err := memory.NewTransactor(l.store).Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, l.txns.Create(ctx, tx, stale))
	require.NoError(t, tx.Commit(ctx))

	_, err = l.transfer.Transfer(ctx, ports.TransferRequest{
		FromAccountID: a.ID, ToAccountID: b.ID, Amount: domain.MustParseMoney("1.00"), IdempotencyToken: "stale-1",
	})
	assertAppError(t, err, apperror.CodeTransferInProgress)

	n, err := l.recovery.ReconcilePending(ctx, 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	record, err := l.txns.GetByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TransactionStatusFailed, record.Status)
	assert.Equal(t, domain.FailureRecovered, record.FailureReason)
	assert.Equal(t, domain.MustParseMoney("10.00"), l.balance(t, a.ID))

	n, err = l.recovery.ReconcilePending(ctx, 5*time.Minute)
	require.NoError(t, err)
	assert.Zero(t, n)
}
