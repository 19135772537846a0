package store

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/jarvis/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type backend struct {
	name string
	open func(t *testing.T, now func() time.Time) Repository
}

func backends() []backend {
	return []backend{
		{
			name: "sqlite",
			open: func(t *testing.T, now func() time.Time) Repository {
				t.Helper()
				s, err := NewSQLite(filepath.Join(t.TempDir(), "jarvis.db"))
				require.NoError(t, err)
				if now != nil {
					s.now = now
				}
				t.Cleanup(func() { _ = s.Close() })
				return s
			},
		},
		{
			name: "memory",
			open: func(t *testing.T, now func() time.Time) Repository {
				t.Helper()
				s := NewMemory()
				if now != nil {
					s.now = now
				}
				return s
			},
		},
	}
}

func TestCreateThenGetIsEmpty(t *testing.T) {
	t.Parallel()
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			t.Parallel()
			repo := b.open(t, nil)
			ctx := context.Background()

			created, err := repo.CreateSession(ctx)
			require.NoError(t, err)
			require.NotEmpty(t, created.SessionID)

			got, err := repo.GetHistory(ctx, created.SessionID)
			require.NoError(t, err)
			assert.Equal(t, created.SessionID, got.SessionID)
			assert.Empty(t, got.Messages)
			assert.NotNil(t, got.Messages, "messages should encode as [] not null")
		})
	}
}

func TestSessionIDsAreUnique(t *testing.T) {
	t.Parallel()
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			t.Parallel()
			repo := b.open(t, nil)
			seen := make(map[string]bool)
			for i := 0; i < 20; i++ {
				s, err := repo.CreateSession(context.Background())
				require.NoError(t, err)
				require.False(t, seen[s.SessionID], "duplicate id %s", s.SessionID)
				seen[s.SessionID] = true
			}
		})
	}
}

func TestAppendPreservesOrder(t *testing.T) {
	t.Parallel()
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			t.Parallel()
			repo := b.open(t, nil)
			ctx := context.Background()

			s, err := repo.CreateSession(ctx)
			require.NoError(t, err)

			const n = 10
			for i := 0; i < n; i++ {
				speaker := domain.SpeakerUser
				if i%2 == 1 {
					speaker = domain.SpeakerAssistant
				}
				_, err := repo.AppendMessage(ctx, s.SessionID, speaker, fmt.Sprintf("message %d", i))
				require.NoError(t, err)
			}

			got, err := repo.GetHistory(ctx, s.SessionID)
			require.NoError(t, err)
			require.Len(t, got.Messages, n)
			for i, msg := range got.Messages {
				assert.Equal(t, fmt.Sprintf("message %d", i), msg.Text)
				if i%2 == 1 {
					assert.Equal(t, domain.SpeakerAssistant, msg.Speaker)
				} else {
					assert.Equal(t, domain.SpeakerUser, msg.Speaker)
				}
			}
		})
	}
}

func TestAppendUnknownSessionIsNotFound(t *testing.T) {
	t.Parallel()
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			t.Parallel()
			repo := b.open(t, nil)

			_, err := repo.AppendMessage(context.Background(), "does-not-exist", "user", "hello")
			require.ErrorIs(t, err, domain.ErrNotFound)
			assert.NotErrorIs(t, err, domain.ErrStoreUnavailable)

			_, err = repo.GetHistory(context.Background(), "does-not-exist")
			require.ErrorIs(t, err, domain.ErrNotFound)
		})
	}
}

func TestAppendRejectsEmptyFields(t *testing.T) {
	t.Parallel()
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			t.Parallel()
			repo := b.open(t, nil)
			ctx := context.Background()
			s, err := repo.CreateSession(ctx)
			require.NoError(t, err)

			_, err = repo.AppendMessage(ctx, s.SessionID, "", "hello")
			require.ErrorIs(t, err, domain.ErrInvalidInput)
			_, err = repo.AppendMessage(ctx, s.SessionID, "user", "   ")
			require.ErrorIs(t, err, domain.ErrInvalidInput)

			got, err := repo.GetHistory(ctx, s.SessionID)
			require.NoError(t, err)
			assert.Empty(t, got.Messages)
		})
	}
}

func TestTimestampsNeverDecrease(t *testing.T) {
	t.Parallel()
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			t.Parallel()

			// Clock that runs backwards after the first call.
			var mu sync.Mutex
			base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
			step := 0
			clock := func() time.Time {
				mu.Lock()
				defer mu.Unlock()
				step++
				return base.Add(-time.Duration(step) * time.Second)
			}

			repo := b.open(t, clock)
			ctx := context.Background()
			s, err := repo.CreateSession(ctx)
			require.NoError(t, err)

			for i := 0; i < 5; i++ {
				_, err := repo.AppendMessage(ctx, s.SessionID, "user", fmt.Sprintf("m%d", i))
				require.NoError(t, err)
			}

			got, err := repo.GetHistory(ctx, s.SessionID)
			require.NoError(t, err)
			for i := 1; i < len(got.Messages); i++ {
				assert.False(t, got.Messages[i].Timestamp.Before(got.Messages[i-1].Timestamp),
					"message %d timestamp went backwards", i)
			}
		})
	}
}

func TestConcurrentAppendsAreAllRetained(t *testing.T) {
	t.Parallel()
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			t.Parallel()
			repo := b.open(t, nil)
			ctx := context.Background()
			s, err := repo.CreateSession(ctx)
			require.NoError(t, err)

			const writers = 8
			const perWriter = 10
			var wg sync.WaitGroup
			errs := make(chan error, writers*perWriter)
			for w := 0; w < writers; w++ {
				wg.Add(1)
				go func(w int) {
					defer wg.Done()
					for i := 0; i < perWriter; i++ {
						if _, err := repo.AppendMessage(ctx, s.SessionID, fmt.Sprintf("w%d", w), fmt.Sprintf("%d", i)); err != nil {
							errs <- err
						}
					}
				}(w)
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				require.NoError(t, err)
			}

			got, err := repo.GetHistory(ctx, s.SessionID)
			require.NoError(t, err)
			require.Len(t, got.Messages, writers*perWriter)

			// Each writer's own messages keep their call order.
			next := make(map[string]int)
			for _, msg := range got.Messages {
				assert.Equal(t, fmt.Sprintf("%d", next[msg.Speaker]), msg.Text)
				next[msg.Speaker]++
			}
		})
	}
}

func TestListSessionsAndDeleteBefore(t *testing.T) {
	t.Parallel()
	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			t.Parallel()
			var mu sync.Mutex
			now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
			clock := func() time.Time {
				mu.Lock()
				defer mu.Unlock()
				return now
			}
			advance := func(d time.Duration) {
				mu.Lock()
				defer mu.Unlock()
				now = now.Add(d)
			}

			repo := b.open(t, clock)
			ctx := context.Background()

			old, err := repo.CreateSession(ctx)
			require.NoError(t, err)
			advance(time.Hour)
			active, err := repo.CreateSession(ctx)
			require.NoError(t, err)
			_, err = repo.AppendMessage(ctx, active.SessionID, "user", "still here")
			require.NoError(t, err)

			list, err := repo.ListSessions(ctx, 10)
			require.NoError(t, err)
			require.Len(t, list, 2)
			assert.Equal(t, active.SessionID, list[0].SessionID)
			assert.Equal(t, 1, list[0].MessageCount)

			deleted, err := repo.DeleteSessionsBefore(ctx, clock().Add(-30*time.Minute))
			require.NoError(t, err)
			assert.EqualValues(t, 1, deleted)

			_, err = repo.GetHistory(ctx, old.SessionID)
			require.ErrorIs(t, err, domain.ErrNotFound)
			_, err = repo.GetHistory(ctx, active.SessionID)
			require.NoError(t, err)
		})
	}
}

func TestClosedSQLiteIsStoreUnavailable(t *testing.T) {
	t.Parallel()

	s, err := NewSQLite(filepath.Join(t.TempDir(), "jarvis.db"))
	require.NoError(t, err)
	created, err := s.CreateSession(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.CreateSession(context.Background())
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)

	_, err = s.AppendMessage(context.Background(), created.SessionID, "user", "hi")
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.NotErrorIs(t, err, domain.ErrNotFound)

	_, err = s.GetHistory(context.Background(), created.SessionID)
	require.ErrorIs(t, err, domain.ErrStoreUnavailable)

	require.ErrorIs(t, s.Ping(context.Background()), domain.ErrStoreUnavailable)
}

func TestOpenUnknownBackend(t *testing.T) {
	t.Parallel()

	_, err := Open("mongo", "")
	require.Error(t, err)

	repo, err := Open(BackendMemory, "")
	require.NoError(t, err)
	require.NoError(t, repo.Ping(context.Background()))
}

func TestWithRetry(t *testing.T) {
	t.Parallel()

	t.Run("retries busy errors", func(t *testing.T) {
		t.Parallel()
		calls := 0
		err := withRetry(context.Background(), "test", func() error {
			calls++
			if calls < 3 {
				return errors.New("SQLITE_BUSY: database is busy")
			}
			return nil
		})
		require.NoError(t, err)
		assert.Equal(t, 3, calls)
	})

	t.Run("does not retry other errors", func(t *testing.T) {
		t.Parallel()
		calls := 0
		err := withRetry(context.Background(), "test", func() error {
			calls++
			return errors.New("constraint failed")
		})
		require.Error(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("gives up after max retries", func(t *testing.T) {
		t.Parallel()
		calls := 0
		err := withRetry(context.Background(), "test", func() error {
			calls++
			return errors.New("database is locked")
		})
		require.Error(t, err)
		assert.Equal(t, busyMaxRetries, calls)
	})
}

func TestSweepExpiredSessions(t *testing.T) {
	t.Parallel()

	repo := NewMemory()
	repo.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	_, err := repo.CreateSession(context.Background())
	require.NoError(t, err)

	sweepExpiredSessions(context.Background(), repo, time.Hour)

	list, err := repo.ListSessions(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestSQLiteDeleteBeforeSweepsManySessions(t *testing.T) {
	t.Parallel()

	s, err := NewSQLite(filepath.Join(t.TempDir(), "jarvis.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	// More expired sessions than SQLite allows bound variables in one statement.
	const expired = 40000
	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC).UnixNano()

	tx, err := s.db.BeginTx(ctx, nil)
	require.NoError(t, err)
	insertSession, err := tx.PrepareContext(ctx, `INSERT INTO sessions (session_id, created_at) VALUES (?, ?)`)
	require.NoError(t, err)
	insertMessage, err := tx.PrepareContext(ctx, `INSERT INTO messages (session_id, seq, speaker, text, created_at) VALUES (?, 1, 'user', 'hi', ?)`)
	require.NoError(t, err)
	for i := 0; i < expired; i++ {
		id := fmt.Sprintf("old-%d", i)
		_, err = insertSession.ExecContext(ctx, id, old)
		require.NoError(t, err)
		if i%100 == 0 {
			_, err = insertMessage.ExecContext(ctx, id, old)
			require.NoError(t, err)
		}
	}
	require.NoError(t, insertSession.Close())
	require.NoError(t, insertMessage.Close())
	require.NoError(t, tx.Commit())

	kept, err := s.CreateSession(ctx)
	require.NoError(t, err)

	deleted, err := s.DeleteSessionsBefore(ctx, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.EqualValues(t, expired, deleted)

	var orphans int
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM messages WHERE session_id LIKE 'old-%'`).Scan(&orphans))
	assert.Zero(t, orphans, "messages must be removed with their session")

	_, err = s.GetHistory(ctx, kept.SessionID)
	require.NoError(t, err)
}
