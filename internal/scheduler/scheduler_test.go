package scheduler

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"banking-ledger/internal/core/ports/mocks"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type fakeSweeper struct {
	calls chan time.Time
}

func (f *fakeSweeper) Sweep(now time.Time) int {
	f.calls <- now
	return 3
}

func TestJobs_SweepRateLimits(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	sweeper := &fakeSweeper{calls: make(chan time.Time, 1)}
	jobs := &Jobs{Sweeper: sweeper, Now: func() time.Time { return now }, Log: zerolog.Nop()}

	jobs.SweepRateLimits()
	assert.Equal(t, now, <-sweeper.calls)
}

func TestJobs_RecoverPending(t *testing.T) {
	ctrl := gomock.NewController(t)
	recovery := mocks.NewMockRecoveryService(ctrl)

	var buf bytes.Buffer
	jobs := &Jobs{Recovery: recovery, PendingTimeout: 5 * time.Minute, Log: zerolog.New(&buf)}

	recovery.EXPECT().ReconcilePending(gomock.Any(), 5*time.Minute).Return(2, nil)
	jobs.RecoverPending()

	recovery.EXPECT().ReconcilePending(gomock.Any(), 5*time.Minute).Return(0, errors.New("db down"))
	jobs.RecoverPending()
	assert.Contains(t, buf.String(), "pending recovery run failed")
}

func TestJobs_NilDependenciesAreNoops(t *testing.T) {
	jobs := &Jobs{Log: zerolog.Nop()}
	jobs.SweepRateLimits()
	jobs.RecoverPending()
}

func TestScheduler_RegistersJobs(t *testing.T) {
	ctrl := gomock.NewController(t)
	jobs := &Jobs{
		Sweeper:  &fakeSweeper{calls: make(chan time.Time, 10)},
		Recovery: mocks.NewMockRecoveryService(ctrl),
		Log:      zerolog.Nop(),
	}

	s := New(jobs, "@every 1h", "@every 1h", zerolog.Nop())
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Equal(t, 2, s.Entries())
}

func TestScheduler_EmptyScheduleDisablesJob(t *testing.T) {
	jobs := &Jobs{Sweeper: &fakeSweeper{calls: make(chan time.Time, 10)}, Log: zerolog.Nop()}

	s := New(jobs, "@every 1h", "", zerolog.Nop())
	require.NoError(t, s.Start())
	defer s.Stop()

	assert.Equal(t, 1, s.Entries())
}

func TestScheduler_InvalidSchedule(t *testing.T) {
	jobs := &Jobs{Sweeper: &fakeSweeper{calls: make(chan time.Time, 1)}, Log: zerolog.Nop()}

	s := New(jobs, "not a schedule", "", zerolog.Nop())
	assert.Error(t, s.Start())
}

func TestScheduler_RunsSweep(t *testing.T) {
	sweeper := &fakeSweeper{calls: make(chan time.Time, 10)}
	jobs := &Jobs{Sweeper: sweeper, Log: zerolog.Nop()}

	s := New(jobs, "@every 1s", "", zerolog.Nop())
	require.NoError(t, s.Start())

	select {
	case <-sweeper.calls:
	case <-time.After(3 * time.Second):
		t.Fatal("sweep job did not run")
	}

	ctx := s.Stop()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
