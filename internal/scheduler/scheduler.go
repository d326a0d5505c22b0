// Package scheduler runs the sync engine on an in-process cron schedule,
// for deployments without an external scheduled trigger.
package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"feedrelay/internal/engine"
)

const runTimeout = 10 * time.Minute

// Syncer runs one feed-sync pass.
type Syncer interface {
	Run(ctx context.Context) (*engine.Summary, error)
}

// Scheduler triggers sync runs on a cron schedule.
type Scheduler struct {
	ctx    context.Context
	cron   *cron.Cron
	syncer Syncer
	log    *slog.Logger
	spec   string
}

// New creates a Scheduler with the given cron spec (standard 5-field
// syntax, UTC).
func New(ctx context.Context, spec string, syncer Syncer, log *slog.Logger) *Scheduler {
	return &Scheduler{
		ctx:    ctx,
		cron:   cron.New(cron.WithLocation(time.UTC)),
		syncer: syncer,
		log:    log,
		spec:   spec,
	}
}

// Start registers the sync job and starts the cron loop.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.spec, s.runOnce); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop stops the cron loop. Already-running jobs are not interrupted.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

func (s *Scheduler) runOnce() {
	ctx, cancel := context.WithTimeout(s.ctx, runTimeout)
	defer cancel()

	summary, err := s.syncer.Run(ctx)
	if err != nil {
		s.log.Error("scheduled sync failed", "error", err)
		return
	}

	posted := 0
	for _, d := range summary.Destinations {
		posted += d.Posted
	}
	s.log.Info("scheduled sync done",
		"destinations", len(summary.Destinations),
		"posted", posted)
}
