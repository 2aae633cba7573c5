package service

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// accountLocks grants in-process exclusive rights per account. Entries are
// reference counted and removed when no goroutine holds or waits on them, so
// the table only grows with the number of accounts in flight.
type accountLocks struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*lockEntry
}

type lockEntry struct {
	sem  chan struct{}
	refs int
}

func newAccountLocks() *accountLocks {
	return &accountLocks{entries: make(map[uuid.UUID]*lockEntry)}
}

// Acquire locks every id in ascending byte order. Two transfers touching the
// same pair in opposite directions therefore queue instead of deadlocking.
// On ctx cancellation nothing stays held and ctx.Err() is returned.
func (l *accountLocks) Acquire(ctx context.Context, ids ...uuid.UUID) (func(), error) {
	ordered := sortedUnique(ids)

	held := make([]uuid.UUID, 0, len(ordered))
	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			l.unlock(held[i])
		}
	}

	for _, id := range ordered {
		if err := l.lock(ctx, id); err != nil {
			release()
			return nil, err
		}
		held = append(held, id)
	}

	var once sync.Once
	return func() { once.Do(release) }, nil
}

func (l *accountLocks) lock(ctx context.Context, id uuid.UUID) error {
	l.mu.Lock()
	e, ok := l.entries[id]
	if !ok {
		e = &lockEntry{sem: make(chan struct{}, 1)}
		l.entries[id] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.drop(id, e)
		return ctx.Err()
	}
}

func (l *accountLocks) unlock(id uuid.UUID) {
	l.mu.Lock()
	e := l.entries[id]
	l.mu.Unlock()
	if e == nil {
		return
	}
	<-e.sem
	l.drop(id, e)
}

func (l *accountLocks) drop(id uuid.UUID, e *lockEntry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, id)
	}
}

func (l *accountLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

func sortedUnique(ids []uuid.UUID) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(ids))
	seen := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool {
		return bytes.Compare(out[i][:], out[j][:]) < 0
	})
	return out
}
