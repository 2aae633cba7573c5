package postgres

import (
	"context"
	"testing"
	"time"

	"banking-ledger/internal/core/domain"
	"banking-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string {
	return &s
}

func newTestTransaction(token string) *domain.Transaction {
	return domain.NewPendingTransfer(uuid.New(), uuid.New(), 4000, token, time.Now())
}

func txColumns() []string {
	return []string{"id", "from_account_id", "to_account_id", "amount", "status", "failure_reason",
		"idempotency_token", "created_at", "completed_at"}
}

func txRow(rows *pgxmock.Rows, t *domain.Transaction) *pgxmock.Rows {
	return rows.AddRow(
		t.ID, t.FromAccountID, t.ToAccountID, t.Amount, t.Status,
		nullableReason(t.FailureReason), t.IdempotencyToken, t.CreatedAt, t.CompletedAt,
	)
}

func TestTransactionRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	txn := newTestTransaction("tok-1")

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO transactions").
		WithArgs(txn.ID, txn.FromAccountID, txn.ToAccountID, txn.Amount, txn.Status,
			(*string)(nil), strPtr("tok-1"), txn.CreatedAt, (*time.Time)(nil)).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	require.NoError(t, repo.Create(context.Background(), tx, txn))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_Create_DuplicateToken(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	txn := newTestTransaction("tok-dup")

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO transactions").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "transactions_idempotency_token_key"})

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Create(context.Background(), tx, txn)
	assert.ErrorIs(t, err, domain.ErrDuplicateIdempotencyToken)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_GetByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	txn := newTestTransaction("")
	require.NoError(t, txn.Fail(domain.FailureInsufficientFunds, time.Now()))

	mock.ExpectQuery("SELECT .+ FROM transactions WHERE id").
		WithArgs(txn.ID).
		WillReturnRows(txRow(pgxmock.NewRows(txColumns()), txn))

	result, err := repo.GetByID(context.Background(), txn.ID)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, txn.ID, result.ID)
	assert.Equal(t, domain.TransactionStatusFailed, result.Status)
	assert.Equal(t, domain.FailureInsufficientFunds, result.FailureReason)
	assert.Nil(t, result.IdempotencyToken)
	require.NotNil(t, result.CompletedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_GetByIdempotencyToken(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	txn := newTestTransaction("tok-2")

	mock.ExpectQuery("SELECT .+ FROM transactions WHERE idempotency_token").
		WithArgs("tok-2").
		WillReturnRows(txRow(pgxmock.NewRows(txColumns()), txn))

	result, err := repo.GetByIdempotencyToken(context.Background(), "tok-2")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, "tok-2", result.Token())
	assert.Equal(t, domain.TransactionStatusPending, result.Status)
	assert.Equal(t, domain.FailureReason(""), result.FailureReason)
}

func TestTransactionRepo_GetByIdempotencyToken_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)

	mock.ExpectQuery("SELECT .+ FROM transactions WHERE idempotency_token").
		WithArgs("missing").
		WillReturnRows(pgxmock.NewRows(txColumns()))

	result, err := repo.GetByIdempotencyToken(context.Background(), "missing")
	assert.NoError(t, err)
	assert.Nil(t, result)
}

func TestTransactionRepo_UpdateStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	txn := newTestTransaction("")
	require.NoError(t, txn.Complete(time.Now()))

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE transactions SET status .+ WHERE id .+ AND status = 'PENDING'").
		WithArgs(domain.TransactionStatusCompleted, (*string)(nil), txn.CompletedAt, txn.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	require.NoError(t, repo.UpdateStatus(context.Background(), tx, txn))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_UpdateStatus_AlreadyTerminal(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	txn := newTestTransaction("")
	require.NoError(t, txn.Fail(domain.FailureStorage, time.Now()))

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE transactions SET status").
		WithArgs(domain.TransactionStatusFailed, strPtr("STORAGE_FAILURE"), txn.CompletedAt, txn.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.UpdateStatus(context.Background(), tx, txn)
	assert.ErrorIs(t, err, domain.ErrTransactionFinalized)
}

func TestTransactionRepo_ListByAccount_Paged(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	accountID := uuid.New()
	newer := newTestTransaction("")
	require.NoError(t, newer.Complete(time.Now()))
	older := newTestTransaction("")
	require.NoError(t, older.Fail(domain.FailureInsufficientFunds, time.Now()))

	rows := pgxmock.NewRows(txColumns())
	txRow(rows, newer)
	txRow(rows, older)

	mock.ExpectQuery("SELECT .+ FROM transactions WHERE .+ status <> 'PENDING' ORDER BY created_at DESC, id DESC LIMIT").
		WithArgs(accountID, 20, 40).
		WillReturnRows(rows)

	result, err := repo.ListByAccount(context.Background(), ports.HistoryParams{
		AccountID: accountID,
		Limit:     20,
		Offset:    40,
	})
	require.NoError(t, err)
	require.Len(t, result, 2)
	assert.Equal(t, newer.ID, result[0].ID)
	assert.Equal(t, domain.FailureInsufficientFunds, result[1].FailureReason)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_ListByAccount_Unbounded(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	accountID := uuid.New()

	mock.ExpectQuery("ORDER BY created_at DESC, id DESC$").
		WithArgs(accountID).
		WillReturnRows(pgxmock.NewRows(txColumns()))

	result, err := repo.ListByAccount(context.Background(), ports.HistoryParams{AccountID: accountID})
	require.NoError(t, err)
	assert.Empty(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransactionRepo_ListStalePending(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewTransactionRepo(mock)
	stale := newTestTransaction("tok-stale")
	cutoff := time.Now().Add(-5 * time.Minute)

	mock.ExpectQuery("SELECT .+ FROM transactions WHERE status = 'PENDING' AND created_at").
		WithArgs(cutoff, 100).
		WillReturnRows(txRow(pgxmock.NewRows(txColumns()), stale))

	result, err := repo.ListStalePending(context.Background(), cutoff, 100)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, stale.ID, result[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
