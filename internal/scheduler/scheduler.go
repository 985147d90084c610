// Package scheduler runs periodic maintenance for the session engine.
package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"
)

// Cleaner removes dead refresh token records.
type Cleaner interface {
	CleanupExpired(ctx context.Context) (int, error)
}

// Scheduler wraps a gocron scheduler running the cleanup job.
type Scheduler struct {
	cron    *gocron.Scheduler
	cleaner Cleaner
	timeout time.Duration
	logger  zerolog.Logger
}

// New schedules cleaner every interval. Each run gets timeout to finish;
// runs never overlap.
func New(cleaner Cleaner, interval, timeout time.Duration, logger zerolog.Logger) (*Scheduler, error) {
	if cleaner == nil {
		return nil, errors.New("scheduler: nil cleaner")
	}
	if interval <= 0 {
		return nil, errors.New("scheduler: interval must be > 0")
	}
	if timeout <= 0 {
		timeout = interval
	}

	s := &Scheduler{
		cron:    gocron.NewScheduler(time.UTC),
		cleaner: cleaner,
		timeout: timeout,
		logger:  logger.With().Str("component", "scheduler").Logger(),
	}
	if _, err := s.cron.Every(interval).SingletonMode().Do(s.runCleanup); err != nil {
		return nil, err
	}
	return s, nil
}

// Start runs the jobs in the background. The first cleanup runs at once.
func (s *Scheduler) Start() {
	s.cron.StartAsync()
}

// Stop waits for a running job and halts the scheduler.
func (s *Scheduler) Stop() {
	if s != nil && s.cron != nil {
		s.cron.Stop()
	}
}

// RunOnce performs one cleanup synchronously.
func (s *Scheduler) RunOnce(ctx context.Context) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	return s.cleaner.CleanupExpired(ctx)
}

func (s *Scheduler) runCleanup() {
	n, err := s.RunOnce(context.Background())
	if err != nil {
		s.logger.Warn().Err(err).Msg("refresh token cleanup failed")
		return
	}
	if n > 0 {
		s.logger.Info().Int("removed", n).Msg("refresh token cleanup")
	}
}
