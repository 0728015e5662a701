// Package sweeper periodically deletes expired rows from the token ledger.
package sweeper

import (
	"context"
	"fmt"
	"time"

	"github.com/LouAnabel/someContacts/internal/logging"
	"github.com/go-co-op/gocron"
)

// Purger removes expired ledger rows and reports how many were deleted.
type Purger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

// Sweeper runs Purger on a fixed interval. Runs never overlap.
type Sweeper struct {
	purger    Purger
	interval  time.Duration
	timeout   time.Duration
	scheduler *gocron.Scheduler
	logger    logging.Logger
}

// New builds a sweeper. Each run is bounded by timeout when it is positive.
func New(p Purger, interval, timeout time.Duration, logger logging.Logger) *Sweeper {
	return &Sweeper{
		purger:    p,
		interval:  interval,
		timeout:   timeout,
		scheduler: gocron.NewScheduler(time.UTC),
		logger:    logger.With("module", "sweeper"),
	}
}

// Start schedules the purge job, first run immediately. A non-positive
// interval disables the sweeper. ctx is the parent of every run.
func (s *Sweeper) Start(ctx context.Context) error {
	if s.interval <= 0 {
		s.logger.Info(ctx, "token purge disabled")
		return nil
	}

	_, err := s.scheduler.Every(s.interval).SingletonMode().Do(func() {
		_, _ = s.RunOnce(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule purge: %w", err)
	}

	s.scheduler.StartAsync()
	s.logger.Info(ctx, "token purge scheduled", "interval", s.interval.String())
	return nil
}

// Stop halts the scheduler and waits for a running purge to return.
func (s *Sweeper) Stop() {
	s.scheduler.Stop()
}

// RunOnce performs a single purge.
func (s *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	n, err := s.purger.PurgeExpired(ctx)
	if err != nil {
		s.logger.Error(ctx, "failed to purge expired tokens", "err", err)
		return 0, err
	}
	if n > 0 {
		s.logger.Info(ctx, "purged expired tokens", "count", n)
	}
	return n, nil
}
