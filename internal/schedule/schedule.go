// Package schedule runs the weekly monitoring loop on a cron spec.
package schedule

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Runner executes one scheduled invocation.
type Runner func(ctx context.Context)

// Scheduler fires the runner on a cron spec until the context ends.
type Scheduler struct {
	cron   *cron.Cron
	logger *slog.Logger
}

// New creates a scheduler for the given spec (standard five-field cron,
// e.g. "0 6 * * 1" for Mondays at 06:00).
func New(spec string, runner Runner, logger *slog.Logger) (*Scheduler, error) {
	c := cron.New()
	log := logger.With("component", "schedule")

	_, err := c.AddFunc(spec, func() {
		log.Info("scheduled run firing", "spec", spec)
		runner(context.Background())
	})
	if err != nil {
		return nil, fmt.Errorf("schedule: invalid cron spec %q: %w", spec, err)
	}
	return &Scheduler{cron: c, logger: log}, nil
}

// Run starts the loop and blocks until the context is cancelled. In-flight
// invocations finish before Run returns.
func (s *Scheduler) Run(ctx context.Context) {
	s.cron.Start()
	s.logger.Info("scheduler started")
	<-ctx.Done()

	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info("scheduler stopped")
}
