package domain

import (
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseMoney(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    Money
		wantErr bool
	}{
		{"whole", "100", 10000, false},
		{"two decimals", "40.25", 4025, false},
		{"one decimal", "0.5", 50, false},
		{"trailing zeros", "1.500", 150, false},
		{"zero", "0", 0, false},
		{"negative", "-3.10", -310, false},
		{"three decimals", "1.005", 0, true},
		{"too large", "92233720368547758.08", 0, true},
		{"max", "92233720368547758.07", Money(math.MaxInt64), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseMoney(decimal.RequireFromString(tt.in))
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidMoney))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMoney_String(t *testing.T) {
	assert.Equal(t, "60.00", Money(6000).String())
	assert.Equal(t, "0.05", Money(5).String())
	assert.Equal(t, "-1.50", Money(-150).String())
	assert.True(t, Money(4025).Decimal().Equal(decimal.RequireFromString("40.25")))
}

func TestValidateOwnerID(t *testing.T) {
	assert.NoError(t, ValidateOwnerID("user-1"))
	assert.NoError(t, ValidateOwnerID("a.b_c"))
	assert.ErrorIs(t, ValidateOwnerID(""), ErrInvalidOwnerID)
	assert.ErrorIs(t, ValidateOwnerID("has space"), ErrInvalidOwnerID)
	assert.ErrorIs(t, ValidateOwnerID(strings.Repeat("x", 65)), ErrInvalidOwnerID)
}

func TestNewAccount(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 123456789, time.FixedZone("X", 3600))

	acc, err := NewAccount("owner-1", 10000, now)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, acc.ID)
	assert.Equal(t, "owner-1", acc.OwnerID)
	assert.Equal(t, Money(10000), acc.Balance)
	assert.Equal(t, int64(0), acc.Version)
	assert.Equal(t, time.UTC, acc.CreatedAt.Location())
	assert.Equal(t, 123456000, acc.CreatedAt.Nanosecond())

	_, err = NewAccount("owner-1", -1, now)
	assert.ErrorIs(t, err, ErrInvalidMoney)

	_, err = NewAccount("", 0, now)
	assert.ErrorIs(t, err, ErrInvalidOwnerID)
}

func TestAccount_DebitCredit(t *testing.T) {
	now := time.Now()
	acc := &Account{Balance: 100}

	require.NoError(t, acc.Debit(40, now))
	assert.Equal(t, Money(60), acc.Balance)
	assert.Equal(t, int64(1), acc.Version)

	err := acc.Debit(1000, now)
	assert.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, Money(60), acc.Balance, "failed debit leaves balance untouched")
	assert.Equal(t, int64(1), acc.Version)

	require.NoError(t, acc.Debit(60, now))
	assert.Equal(t, Money(0), acc.Balance)

	require.NoError(t, acc.Credit(25, now))
	assert.Equal(t, Money(25), acc.Balance)
	assert.Equal(t, int64(3), acc.Version)

	full := &Account{Balance: Money(math.MaxInt64)}
	assert.ErrorIs(t, full.Credit(1, now), ErrBalanceOverflow)
}

func TestTransaction_Lifecycle(t *testing.T) {
	from, to := uuid.New(), uuid.New()
	now := time.Now()

	tx := NewPendingTransfer(from, to, 4000, "tok-1", now)
	assert.Equal(t, TransactionStatusPending, tx.Status)
	assert.False(t, tx.IsTerminal())
	assert.Equal(t, "tok-1", tx.Token())
	assert.Nil(t, tx.CompletedAt)

	require.NoError(t, tx.Complete(now))
	assert.True(t, tx.IsTerminal())
	assert.NotNil(t, tx.CompletedAt)

	assert.ErrorIs(t, tx.Complete(now), ErrTransactionFinalized)
	assert.ErrorIs(t, tx.Fail(FailureStorage, now), ErrTransactionFinalized)
	assert.Equal(t, TransactionStatusCompleted, tx.Status)
}

func TestTransaction_Fail(t *testing.T) {
	tx := NewPendingTransfer(uuid.New(), uuid.New(), 1, "", time.Now())
	assert.Nil(t, tx.IdempotencyToken)
	assert.Equal(t, "", tx.Token())

	require.NoError(t, tx.Fail(FailureInsufficientFunds, time.Now()))
	assert.Equal(t, TransactionStatusFailed, tx.Status)
	assert.Equal(t, FailureInsufficientFunds, tx.FailureReason)
}

func TestTransaction_IsTerminal(t *testing.T) {
	tests := []struct {
		status TransactionStatus
		want   bool
	}{
		{TransactionStatusPending, false},
		{TransactionStatusCompleted, true},
		{TransactionStatusFailed, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			tx := &Transaction{Status: tt.status}
			assert.Equal(t, tt.want, tx.IsTerminal())
		})
	}
}

func TestTransaction_Matches(t *testing.T) {
	from, to := uuid.New(), uuid.New()
	tx := NewPendingTransfer(from, to, 500, "k", time.Now())

	assert.True(t, tx.Matches(from, to, 500))
	assert.False(t, tx.Matches(to, from, 500))
	assert.False(t, tx.Matches(from, to, 501))
}

func TestNewTransferEvent(t *testing.T) {
	tx := NewPendingTransfer(uuid.New(), uuid.New(), 4000, "", time.Now())
	require.NoError(t, tx.Fail(FailureInsufficientFunds, time.Now()))

	ev := NewTransferEvent(tx)
	assert.Equal(t, EventTransferFailed, ev.Type)
	assert.Equal(t, "40.00", ev.Amount)
	assert.Equal(t, tx.ID, ev.TransactionID)
	assert.Equal(t, *tx.CompletedAt, ev.OccurredAt)
	assert.Equal(t, FailureInsufficientFunds, ev.FailureReason)
}

func TestBuildIdempotencyKey(t *testing.T) {
	assert.Equal(t, "transfer:ORD-001", BuildIdempotencyKey("ORD-001"))
}
