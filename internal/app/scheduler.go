/**
 * @description
 * Cron scheduler setup for scheduled jobs.
 */
package app

import (
	"context"
	"log/slog"
	"strings"

	"github.com/robfig/cron/v3"

	"github.com/finmind/banksync-service/internal/config"
)

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron   *cron.Cron
	jobs   *Jobs
	logger *slog.Logger
	config config.Config
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(jobs *Jobs, logger *slog.Logger, cfg config.Config) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)))

	return &Scheduler{
		cron:   c,
		jobs:   jobs,
		logger: logger,
		config: cfg,
	}
}

// Start registers the jobs and starts the cron scheduler. It reports whether any
// job was scheduled; an empty AUTO_REFRESH_SCHEDULE disables the refresh job.
func (s *Scheduler) Start() bool {
	schedule := strings.TrimSpace(s.config.AutoRefreshSchedule)
	if schedule == "" {
		s.logger.Info("auto refresh disabled", "reason", "AUTO_REFRESH_SCHEDULE is empty")
		return false
	}

	if _, err := s.cron.AddFunc(schedule, s.jobs.RefreshActiveConnections); err != nil {
		s.logger.Error("failed to schedule active connection refresh job", "error", err)
		return false
	}
	s.logger.Info("scheduled active connection refresh job", "schedule", schedule)

	s.cron.Start()
	return true
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}
