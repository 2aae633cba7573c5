// Package memory is a process-local ledger store. It backs the service when
// storage.driver is "memory" and gives the engine tests a store with real
// commit and rollback semantics.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"banking-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var errSQLUnsupported = errors.New("memory store: raw SQL is not supported")

// Store holds committed state. All reads see committed data only; writes
// made through a Tx become visible atomically on Commit.
type Store struct {
	mu           sync.RWMutex
	accounts     map[uuid.UUID]domain.Account
	transactions map[uuid.UUID]domain.Transaction
	tokens       map[string]uuid.UUID
	audit        []domain.AuditLog
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		accounts:     make(map[uuid.UUID]domain.Account),
		transactions: make(map[uuid.UUID]domain.Transaction),
		tokens:       make(map[string]uuid.UUID),
	}
}

// TotalBalance sums all committed balances.
func (s *Store) TotalBalance() domain.Money {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var total domain.Money
	for _, a := range s.accounts {
		total += a.Balance
	}
	return total
}

// Transactor implements ports.DBTransactor for the memory store.
type Transactor struct {
	store *Store
}

// NewTransactor creates a Transactor over store.
func NewTransactor(store *Store) *Transactor {
	return &Transactor{store: store}
}

// Begin opens a write buffer over the store.
func (t *Transactor) Begin(ctx context.Context) (pgx.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return &Tx{
		store:    t.store,
		accounts: make(map[uuid.UUID]accountWrite),
		statuses: make(map[uuid.UUID]domain.Transaction),
	}, nil
}

type accountWrite struct {
	account         domain.Account
	expectedVersion int64
}

// Tx buffers writes until Commit. Commit re-validates every version guard,
// token claim and status guard before applying anything.
type Tx struct {
	store    *Store
	mu       sync.Mutex
	accounts map[uuid.UUID]accountWrite
	created  []domain.Transaction
	statuses map[uuid.UUID]domain.Transaction
	closed   bool
}

var _ pgx.Tx = (*Tx)(nil)

func asTx(tx pgx.Tx) (*Tx, error) {
	mt, ok := tx.(*Tx)
	if !ok || mt == nil {
		return nil, fmt.Errorf("memory store: unexpected transaction type %T", tx)
	}
	if mt.closed {
		return nil, pgx.ErrTxClosed
	}
	return mt, nil
}

// Commit applies the buffered writes or none of them.
func (t *Tx) Commit(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return pgx.ErrTxClosed
	}
	t.closed = true

	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, w := range t.accounts {
		current, ok := s.accounts[id]
		if !ok {
			return fmt.Errorf("commit: account %s: %w", id, errMissing)
		}
		if current.Version != w.expectedVersion {
			return fmt.Errorf("commit: account %s: %w", id, domain.ErrVersionConflict)
		}
	}
	for _, c := range t.created {
		if tok := c.Token(); tok != "" {
			if _, taken := s.tokens[tok]; taken {
				return fmt.Errorf("commit: %w", domain.ErrDuplicateIdempotencyToken)
			}
		}
	}
	for id := range t.statuses {
		if t.createdIndex(id) >= 0 {
			continue
		}
		current, ok := s.transactions[id]
		if !ok {
			return fmt.Errorf("commit: transaction %s: %w", id, errMissing)
		}
		if current.IsTerminal() {
			return fmt.Errorf("commit: transaction %s: %w", id, domain.ErrTransactionFinalized)
		}
	}

	for id, w := range t.accounts {
		s.accounts[id] = w.account
	}
	for _, c := range t.created {
		if u, ok := t.statuses[c.ID]; ok {
			c = u
		}
		s.transactions[c.ID] = c
		if tok := c.Token(); tok != "" {
			s.tokens[tok] = c.ID
		}
	}
	for id, u := range t.statuses {
		if t.createdIndex(id) < 0 {
			s.transactions[id] = u
		}
	}
	return nil
}

// Rollback discards the buffered writes.
func (t *Tx) Rollback(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return pgx.ErrTxClosed
	}
	t.closed = true
	t.accounts = nil
	t.created = nil
	t.statuses = nil
	return nil
}

func (t *Tx) createdIndex(id uuid.UUID) int {
	for i := range t.created {
		if t.created[i].ID == id {
			return i
		}
	}
	return -1
}

func (t *Tx) Begin(ctx context.Context) (pgx.Tx, error) {
	return nil, errors.New("memory store: nested transactions are not supported")
}

func (t *Tx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, errSQLUnsupported
}

func (t *Tx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	return errBatchResults{}
}

func (t *Tx) LargeObjects() pgx.LargeObjects { return pgx.LargeObjects{} }

func (t *Tx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, errSQLUnsupported
}

func (t *Tx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.CommandTag{}, errSQLUnsupported
}

func (t *Tx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errSQLUnsupported
}

func (t *Tx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return errRow{}
}

func (t *Tx) Conn() *pgx.Conn { return nil }

type errRow struct{}

func (errRow) Scan(dest ...any) error { return errSQLUnsupported }

type errBatchResults struct{}

func (errBatchResults) Exec() (pgconn.CommandTag, error) { return pgconn.CommandTag{}, errSQLUnsupported }
func (errBatchResults) Query() (pgx.Rows, error)         { return nil, errSQLUnsupported }
func (errBatchResults) QueryRow() pgx.Row                { return errRow{} }
func (errBatchResults) Close() error                     { return nil }

var errMissing = errors.New("row not found")

// HealthCheck implements ports.HealthChecker for the memory store.
type HealthCheck struct{}

func NewHealthCheck() *HealthCheck { return &HealthCheck{} }

func (HealthCheck) Ping(ctx context.Context) error { return nil }

func (HealthCheck) Name() string { return "memory" }
