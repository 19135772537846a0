package domain

import "time"

// CommandKind tags how an utterance was dispatched.
type CommandKind string

const (
	// KindAppOpen marks an "open <name>" utterance handled locally.
	KindAppOpen CommandKind = "app_open"
	// KindQuery marks an utterance forwarded to the completion service.
	KindQuery CommandKind = "query"
)

// Reply is the transient result of one request. It is never persisted
// automatically.
type Reply struct {
	Input string      `json:"input"`
	Text  string      `json:"reply"`
	Kind  CommandKind `json:"-"`
}

// Notification is a reply handed to the output sinks.
type Notification struct {
	SessionID string    `json:"session_id,omitempty"`
	Text      string    `json:"text"`
	At        time.Time `json:"at"`
}
