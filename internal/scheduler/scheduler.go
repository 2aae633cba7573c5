package scheduler

import (
	"context"
	"fmt"
	"time"

	"banking-ledger/internal/core/ports"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// Sweeper evicts idle rate limiter state.
type Sweeper interface {
	Sweep(now time.Time) int
}

// Jobs holds the periodic maintenance work.
type Jobs struct {
	Sweeper        Sweeper               // optional
	Recovery       ports.RecoveryService // optional
	PendingTimeout time.Duration
	RunTimeout     time.Duration
	Now            func() time.Time
	Log            zerolog.Logger
}

// SweepRateLimits drops limiter buckets that have been idle for a full window.
func (j *Jobs) SweepRateLimits() {
	if j.Sweeper == nil {
		return
	}
	evicted := j.Sweeper.Sweep(j.now())
	j.Log.Debug().Int("evicted", evicted).Msg("rate limit buckets swept")
}

// RecoverPending finalizes transfers stuck in PENDING.
func (j *Jobs) RecoverPending() {
	if j.Recovery == nil {
		return
	}
	timeout := j.RunTimeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	n, err := j.Recovery.ReconcilePending(ctx, j.PendingTimeout)
	if err != nil {
		j.Log.Error().Err(err).Int("recovered", n).Msg("pending recovery run failed")
		return
	}
	j.Log.Debug().Int("recovered", n).Msg("pending recovery run finished")
}

func (j *Jobs) now() time.Time {
	if j.Now != nil {
		return j.Now()
	}
	return time.Now()
}

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron             *cron.Cron
	jobs             *Jobs
	sweepSchedule    string
	recoverySchedule string
	log              zerolog.Logger
}

// New creates a scheduler. An empty schedule disables that job.
func New(jobs *Jobs, sweepSchedule, recoverySchedule string, log zerolog.Logger) *Scheduler {
	cronLogger := cronLog{log: log}
	c := cron.New(cron.WithLogger(cronLogger), cron.WithChain(
		cron.Recover(cronLogger),
		cron.SkipIfStillRunning(cronLogger),
	))

	return &Scheduler{
		cron:             c,
		jobs:             jobs,
		sweepSchedule:    sweepSchedule,
		recoverySchedule: recoverySchedule,
		log:              log,
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() error {
	if s.sweepSchedule != "" && s.jobs.Sweeper != nil {
		if _, err := s.cron.AddFunc(s.sweepSchedule, s.jobs.SweepRateLimits); err != nil {
			return fmt.Errorf("schedule rate limit sweep %q: %w", s.sweepSchedule, err)
		}
		s.log.Info().Str("schedule", s.sweepSchedule).Msg("scheduled rate limit sweep job")
	}

	if s.recoverySchedule != "" && s.jobs.Recovery != nil {
		if _, err := s.cron.AddFunc(s.recoverySchedule, s.jobs.RecoverPending); err != nil {
			return fmt.Errorf("schedule pending recovery %q: %w", s.recoverySchedule, err)
		}
		s.log.Info().Str("schedule", s.recoverySchedule).Msg("scheduled pending recovery job")
	}

	s.cron.Start()
	return nil
}

// Stop stops the scheduler. The returned context is done once running jobs finish.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// Entries reports the number of registered jobs.
func (s *Scheduler) Entries() int {
	return len(s.cron.Entries())
}

// cronLog adapts zerolog to cron.Logger.
type cronLog struct {
	log zerolog.Logger
}

func (l cronLog) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg("cron: " + msg)
}

func (l cronLog) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg("cron: " + msg)
}
