package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ashureev/jarvis/internal/domain"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db      *sql.DB
	writeMu sync.Mutex // serializes writers to avoid SQLITE_BUSY
	now     func() time.Time
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		return nil, fmt.Errorf("database path is required")
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL for concurrent readers while a writer appends.
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db, now: time.Now}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_created ON sessions(created_at);

	CREATE TABLE IF NOT EXISTS messages (
		session_id TEXT NOT NULL REFERENCES sessions(session_id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		speaker TEXT NOT NULL,
		text TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		PRIMARY KEY (session_id, seq)
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// CreateSession inserts a new session row with no messages.
func (s *SQLiteStore) CreateSession(ctx context.Context) (*domain.Session, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	session := &domain.Session{
		SessionID: uuid.NewString(),
		CreatedAt: s.now().UTC(),
		Messages:  []domain.Message{},
	}

	err := withRetry(ctx, "create_session", func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO sessions (session_id, created_at) VALUES (?, ?)`,
			session.SessionID, session.CreatedAt.UnixNano(),
		)
		return err
	})
	if err != nil {
		return nil, unavailable("create session", err)
	}
	return session, nil
}

// AppendMessage appends a message in a single statement so the sequence
// number and the timestamp clamp are computed atomically with the insert.
func (s *SQLiteStore) AppendMessage(ctx context.Context, sessionID, speaker, text string) (*domain.Message, error) {
	if err := domain.ValidateMessage(sessionID, speaker, text); err != nil {
		return nil, err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	query := `
	INSERT INTO messages (session_id, seq, speaker, text, created_at)
	SELECT s.session_id,
	       COALESCE((SELECT MAX(m.seq) FROM messages m WHERE m.session_id = s.session_id), 0) + 1,
	       ?, ?,
	       MAX(?, COALESCE((SELECT MAX(m.created_at) FROM messages m WHERE m.session_id = s.session_id), 0))
	FROM sessions s WHERE s.session_id = ?
	RETURNING created_at`

	var createdAt int64
	err := withRetry(ctx, "append_message", func() error {
		return s.db.QueryRowContext(ctx, query, speaker, text, s.now().UnixNano(), sessionID).Scan(&createdAt)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("append message to %s: %w", sessionID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, unavailable("append message", err)
	}

	return &domain.Message{
		Speaker:   speaker,
		Text:      text,
		Timestamp: time.Unix(0, createdAt).UTC(),
	}, nil
}

// GetHistory retrieves a session and its messages in append order.
func (s *SQLiteStore) GetHistory(ctx context.Context, sessionID string) (*domain.Session, error) {
	var createdAt int64
	err := s.db.QueryRowContext(ctx,
		`SELECT created_at FROM sessions WHERE session_id = ?`, sessionID,
	).Scan(&createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get history %s: %w", sessionID, domain.ErrNotFound)
	}
	if err != nil {
		return nil, unavailable("get session", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT speaker, text, created_at
		FROM messages WHERE session_id = ?
		ORDER BY seq`, sessionID)
	if err != nil {
		return nil, unavailable("query messages", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close message rows", "error", closeErr)
		}
	}()

	session := &domain.Session{
		SessionID: sessionID,
		CreatedAt: time.Unix(0, createdAt).UTC(),
		Messages:  []domain.Message{},
	}
	for rows.Next() {
		var msg domain.Message
		var ts int64
		if err := rows.Scan(&msg.Speaker, &msg.Text, &ts); err != nil {
			return nil, unavailable("scan message row", err)
		}
		msg.Timestamp = time.Unix(0, ts).UTC()
		session.Messages = append(session.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate messages", err)
	}

	return session, nil
}

// ListSessions returns session summaries, newest first.
func (s *SQLiteStore) ListSessions(ctx context.Context, limit int) ([]domain.SessionSummary, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT s.session_id, s.created_at, COUNT(m.seq)
		FROM sessions s LEFT JOIN messages m ON m.session_id = s.session_id
		GROUP BY s.session_id, s.created_at
		ORDER BY s.created_at DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, unavailable("list sessions", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close session rows", "error", closeErr)
		}
	}()

	var out []domain.SessionSummary
	for rows.Next() {
		var sum domain.SessionSummary
		var createdAt int64
		if err := rows.Scan(&sum.SessionID, &createdAt, &sum.MessageCount); err != nil {
			return nil, unavailable("scan session row", err)
		}
		sum.CreatedAt = time.Unix(0, createdAt).UTC()
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate sessions", err)
	}
	return out, nil
}

// DeleteSessionsBefore removes sessions whose newest message (or creation
// time, when empty) is older than cutoff.
func (s *SQLiteStore) DeleteSessionsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var deleted int64
	err := withRetry(ctx, "delete_sessions", func() error {
		n, err := s.deleteSessionsBeforeOnce(ctx, cutoff.UnixNano())
		deleted = n
		return err
	})
	if err != nil {
		return 0, unavailable("delete sessions", err)
	}
	return deleted, nil
}

// deleteSessionsBeforeOnce removes sessions whose newest message (or creation
// time, when empty) precedes cutoff. Messages go with them through ON DELETE
// CASCADE, which needs foreign_keys(1) in the DSN.
func (s *SQLiteStore) deleteSessionsBeforeOnce(ctx context.Context, cutoff int64) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM sessions
		WHERE COALESCE((SELECT MAX(m.created_at) FROM messages m WHERE m.session_id = sessions.session_id), sessions.created_at) < ?`,
		cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}
