// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/ashureev/jarvis/internal/domain"
)

// Repository defines the interface for persisting conversation sessions.
//
// Errors wrap the domain taxonomy: domain.ErrInvalidInput, domain.ErrNotFound
// and domain.ErrStoreUnavailable.
type Repository interface {
	// CreateSession allocates a new session with an empty transcript.
	CreateSession(ctx context.Context) (*domain.Session, error)

	// AppendMessage appends one message to a session. The timestamp is
	// assigned by the store and never precedes the previous message.
	AppendMessage(ctx context.Context, sessionID, speaker, text string) (*domain.Message, error)

	// GetHistory returns the full ordered transcript of a session.
	GetHistory(ctx context.Context, sessionID string) (*domain.Session, error)

	// ListSessions returns the most recently created sessions first.
	ListSessions(ctx context.Context, limit int) ([]domain.SessionSummary, error)

	// DeleteSessionsBefore removes sessions whose last activity precedes cutoff.
	DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// Backend names accepted by Open.
const (
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Open returns the repository for the named backend.
func Open(backend, dbPath string) (Repository, error) {
	switch backend {
	case BackendSQLite, "":
		s, err := NewSQLite(dbPath)
		if err != nil {
			return nil, err
		}
		return s, nil
	case BackendMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store backend %q", backend)
	}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
}
