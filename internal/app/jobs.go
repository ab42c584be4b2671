/**
 * @description
 * Scheduled job implementations for the banksync-service.
 */
package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/finmind/banksync-service/internal/config"
	"github.com/finmind/banksync-service/internal/domain"
)

// ActiveConnectionLister lists the connections the refresh job walks.
type ActiveConnectionLister interface {
	ListActiveConnections(ctx context.Context) ([]domain.BankConnection, error)
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	repo      ActiveConnectionLister
	refresher Refresher
	logger    *slog.Logger
	config    config.Config
}

// NewJobs creates a new Jobs runner.
func NewJobs(repo ActiveConnectionLister, refresher Refresher, logger *slog.Logger, cfg config.Config) *Jobs {
	return &Jobs{
		repo:      repo,
		refresher: refresher,
		logger:    logger,
		config:    cfg,
	}
}

// RefreshActiveConnections refreshes every active connection in turn, least recently
// synced first. One connection failing does not stop the run.
func (j *Jobs) RefreshActiveConnections() {
	j.logger.Info("starting active connection refresh job")
	ctx := context.Background()

	connections, err := j.repo.ListActiveConnections(ctx)
	if err != nil {
		j.logger.Error("failed to list active connections", "error", err)
		return
	}

	var refreshed, failed, skipped int
	for _, conn := range connections {
		entry, err := j.refresher.RefreshConnection(ctx, conn.UserID, conn.ID)
		switch {
		case errors.Is(err, domain.ErrSyncInProgress), errors.Is(err, domain.ErrNotFound):
			skipped++
			j.logger.Info("skipping connection refresh", "connection_id", conn.ID, "reason", err.Error())
		case err != nil:
			failed++
			j.logger.Error("failed to refresh connection", "connection_id", conn.ID, "error", err)
		case entry.Status == domain.SyncStatusFailed:
			failed++
			j.logger.Warn("connection refresh recorded a failure", "connection_id", conn.ID, "sync_log_id", entry.ID)
		default:
			refreshed++
		}
	}

	j.logger.Info("active connection refresh job finished",
		"connections", len(connections), "refreshed", refreshed, "failed", failed, "skipped", skipped)
}
