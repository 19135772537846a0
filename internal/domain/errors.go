package domain

import "errors"

// Error taxonomy shared by every component. Backends wrap these with %w so
// callers can branch with errors.Is.
var (
	// ErrInvalidInput reports malformed or missing required fields.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound reports an unknown session id.
	ErrNotFound = errors.New("session not found")
	// ErrStoreUnavailable reports a backing store that is unreachable or erroring.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrUpstreamUnavailable reports a completion service failure. It never
	// leaves the completion package.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	// ErrLaunchFailure reports a local action that could not be started. It
	// never leaves the launcher package.
	ErrLaunchFailure = errors.New("launch failure")
)
