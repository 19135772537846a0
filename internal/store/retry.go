package store

import (
	"context"
	"log/slog"
	"strings"
	"time"
)

const (
	busyMaxRetries = 3
	busyBaseDelay  = 50 * time.Millisecond
)

// isBusyError reports SQLITE_BUSY, returned when another connection holds the
// write lock.
func isBusyError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "SQLITE_BUSY")
}

// isLockedError reports the "database is locked" form of the same condition.
func isLockedError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "database is locked")
}

// isConflictError reports either SQLite concurrency error. Both warrant a retry.
func isConflictError(err error) bool {
	return isBusyError(err) || isLockedError(err)
}

// withRetry runs fn, retrying with exponential backoff (50ms, 100ms, ...)
// while it fails with a SQLite concurrency error.
func withRetry(ctx context.Context, op string, fn func() error) error {
	var err error
	for i := 0; i < busyMaxRetries; i++ {
		err = fn()
		if err == nil || !isConflictError(err) {
			return err
		}
		if i == busyMaxRetries-1 {
			break
		}

		delay := busyBaseDelay * time.Duration(1<<i)
		slog.Debug("Database locked, retrying", "op", op, "attempt", i+1, "delay", delay)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}
	return err
}
