// Package scheduler runs periodic maintenance jobs.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/fairyhunter13/agent-storefront/internal/obs"
)

// Pruner deletes visits recorded before a cutoff.
type Pruner interface {
	PruneVisits(ctx context.Context, before time.Time) (int64, error)
}

// Scheduler owns the cron instance and the jobs registered on it.
type Scheduler struct {
	Cron      *cron.Cron
	Pruner    Pruner
	Retention time.Duration
	Ctx       context.Context

	now func() time.Time
}

// New creates a Scheduler keeping retentionDays of visit history.
func New(ctx context.Context, p Pruner, retentionDays int) *Scheduler {
	return &Scheduler{
		Cron:      cron.New(cron.WithSeconds()),
		Pruner:    p,
		Retention: time.Duration(retentionDays) * 24 * time.Hour,
		Ctx:       ctx,
		now:       time.Now,
	}
}

// Register adds the prune job on spec, a six-field cron expression.
func (s *Scheduler) Register(pruneSpec string) error {
	if _, err := s.Cron.AddFunc(pruneSpec, s.pruneTask); err != nil {
		return fmt.Errorf("register prune_visits: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	obs.Logger.Info("scheduler_started", "jobs", len(s.Cron.Entries()))
}

// Stop stops the scheduler and waits for a running job to return.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	obs.Logger.Info("scheduler_stopped")
}

// PruneNow deletes visits older than the retention window.
func (s *Scheduler) PruneNow() (int64, error) {
	cutoff := s.now().Add(-s.Retention)
	return s.Pruner.PruneVisits(s.Ctx, cutoff)
}

func (s *Scheduler) pruneTask() {
	n, err := s.PruneNow()
	if err != nil {
		obs.Logger.Error("prune_visits_failed", "error", err)
		return
	}
	obs.Logger.Info("prune_visits", "deleted", n, "retention_days", int(s.Retention.Hours()/24))
}
