package store

import (
	"context"
	"log/slog"
	"time"
)

// StartRetentionWorker runs a background goroutine that periodically deletes
// sessions idle for longer than retention. It returns immediately; the worker
// stops when ctx is cancelled. A non-positive retention disables the worker.
func StartRetentionWorker(ctx context.Context, repo Repository, retention, interval time.Duration) {
	if retention <= 0 {
		slog.Info("Session retention disabled")
		return
	}
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Retention worker started", "interval", interval, "retention", retention)

		for {
			select {
			case <-ticker.C:
				sweepExpiredSessions(ctx, repo, retention)
			case <-ctx.Done():
				slog.Info("Retention worker shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

func sweepExpiredSessions(ctx context.Context, repo Repository, retention time.Duration) {
	cutoff := time.Now().Add(-retention)
	deleted, err := repo.DeleteSessionsBefore(ctx, cutoff)
	if err != nil {
		slog.Error("Retention worker failed to delete expired sessions", "error", err)
		return
	}
	if deleted > 0 {
		slog.Info("Retention worker removed expired sessions", "count", deleted)
	}
}
