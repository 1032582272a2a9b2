package background

import (
	"context"
	"log/slog"
	"time"
)

// ExpiredSessionSweeper removes sessions whose TTL has passed. Stores with
// native expiry, such as Redis, do not need one.
type ExpiredSessionSweeper interface {
	DeleteExpired(ctx context.Context) (int, error)
}

// CleanupManager periodically sweeps expired sessions from an in-process store
type CleanupManager struct {
	store    ExpiredSessionSweeper
	logger   *slog.Logger
	interval time.Duration
	stopCh   chan struct{}
}

// NewCleanupManager creates a new cleanup manager
func NewCleanupManager(store ExpiredSessionSweeper, logger *slog.Logger, interval time.Duration) *CleanupManager {
	return &CleanupManager{
		store:    store,
		logger:   logger,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start runs the sweep until Stop is called or ctx is cancelled
func (cm *CleanupManager) Start(ctx context.Context) {
	ticker := time.NewTicker(cm.interval)
	defer ticker.Stop()

	cm.runCleanup(ctx)

	for {
		select {
		case <-ticker.C:
			cm.runCleanup(ctx)
		case <-cm.stopCh:
			cm.logger.Info("cleanup manager stopped")
			return
		case <-ctx.Done():
			cm.logger.Info("cleanup manager context cancelled")
			return
		}
	}
}

func (cm *CleanupManager) runCleanup(ctx context.Context) {
	cleanupCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	removed, err := cm.store.DeleteExpired(cleanupCtx)
	if err != nil {
		cm.logger.Error("failed to sweep expired sessions", slog.Any("error", err))
		return
	}

	if removed > 0 {
		cm.logger.Info("expired session sweep completed", slog.Int("sessions_removed", removed))
	}
}

// Stop signals the cleanup manager to stop
func (cm *CleanupManager) Stop() {
	close(cm.stopCh)
}
