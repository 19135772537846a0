package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/ashureev/jarvis/internal/domain"
	"github.com/google/uuid"
)

// MemoryStore is an in-process Repository. Contents are lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*domain.Session
	now      func() time.Time
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*domain.Session),
		now:      time.Now,
	}
}

func (s *MemoryStore) CreateSession(_ context.Context) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session := &domain.Session{
		SessionID: uuid.NewString(),
		CreatedAt: s.now().UTC(),
		Messages:  []domain.Message{},
	}
	s.sessions[session.SessionID] = session
	return cloneSession(session), nil
}

func (s *MemoryStore) AppendMessage(_ context.Context, sessionID, speaker, text string) (*domain.Message, error) {
	if err := domain.ValidateMessage(sessionID, speaker, text); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("append message to %s: %w", sessionID, domain.ErrNotFound)
	}

	msg := domain.Message{
		Speaker:   speaker,
		Text:      text,
		Timestamp: domain.NextTimestamp(s.now().UTC(), session.LastTimestamp()),
	}
	session.Messages = append(session.Messages, msg)
	return &msg, nil
}

func (s *MemoryStore) GetHistory(_ context.Context, sessionID string) (*domain.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("get history %s: %w", sessionID, domain.ErrNotFound)
	}
	return cloneSession(session), nil
}

func (s *MemoryStore) ListSessions(_ context.Context, limit int) ([]domain.SessionSummary, error) {
	if limit <= 0 {
		limit = 50
	}

	s.mu.RLock()
	out := make([]domain.SessionSummary, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, domain.SessionSummary{
			SessionID:    sess.SessionID,
			CreatedAt:    sess.CreatedAt,
			MessageCount: len(sess.Messages),
		})
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) DeleteSessionsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, sess := range s.sessions {
		last := sess.LastTimestamp()
		if last.IsZero() {
			last = sess.CreatedAt
		}
		if last.Before(cutoff) {
			delete(s.sessions, id)
			deleted++
		}
	}
	return deleted, nil
}

func (s *MemoryStore) Ping(_ context.Context) error { return nil }

func (s *MemoryStore) Close() error { return nil }

func cloneSession(src *domain.Session) *domain.Session {
	dst := *src
	dst.Messages = make([]domain.Message, len(src.Messages))
	copy(dst.Messages, src.Messages)
	return &dst
}
