// Package domain contains core domain types for the Jarvis gateway.
package domain

import (
	"strings"
	"time"
)

// Speaker labels used by the gateway itself. The set is open: callers may
// record any non-empty label.
const (
	SpeakerUser      = "user"
	SpeakerAssistant = "assistant"
)

// Message is one timestamped, speaker-attributed utterance within a Session.
type Message struct {
	Speaker   string    `json:"speaker"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Session is a persistent conversation transcript. Messages are kept in
// append order.
type Session struct {
	SessionID string    `json:"session_id"`
	CreatedAt time.Time `json:"created_at"`
	Messages  []Message `json:"messages"`
}

// SessionSummary is a lightweight view of a session used for listings.
type SessionSummary struct {
	SessionID    string    `json:"session_id"`
	CreatedAt    time.Time `json:"created_at"`
	MessageCount int       `json:"message_count"`
}

// LastTimestamp returns the timestamp of the newest message, or the zero time
// for an empty session.
func (s *Session) LastTimestamp() time.Time {
	if len(s.Messages) == 0 {
		return time.Time{}
	}
	return s.Messages[len(s.Messages)-1].Timestamp
}

// ValidateMessage checks the fields required to append a message.
func ValidateMessage(sessionID, speaker, text string) error {
	if strings.TrimSpace(sessionID) == "" ||
		strings.TrimSpace(speaker) == "" ||
		strings.TrimSpace(text) == "" {
		return ErrInvalidInput
	}
	return nil
}

// NextTimestamp returns now, clamped so that it never precedes last.
func NextTimestamp(now, last time.Time) time.Time {
	if now.Before(last) {
		return last
	}
	return now
}
