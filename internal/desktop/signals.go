// Package desktop holds the one-shot signals exchanged between the desktop
// shell (tray menu, hotkeys) and the browser page that polls for them.
package desktop

import "sync/atomic"

// Poll results returned by ConsumeListen and ConsumeStop.
const (
	StatusStartedListening = "started_listening"
	StatusStoppedSpeaking  = "stopped_speaking"
	StatusIdle             = "idle"
)

// Wake states.
const (
	StateAwake = "awake"
	StateSleep = "sleep"
)

// Signals is safe for concurrent use. Each raised flag is observed by at
// most one consumer.
type Signals struct {
	listen atomic.Bool
	stop   atomic.Bool
	awake  atomic.Bool
}

// New creates Signals in the awake state with no flags raised.
func New() *Signals {
	s := &Signals{}
	s.awake.Store(true)
	return s
}

// RequestListen raises the listen flag.
func (s *Signals) RequestListen() { s.listen.Store(true) }

// RequestStop raises the stop-speaking flag.
func (s *Signals) RequestStop() { s.stop.Store(true) }

// ConsumeListen clears the listen flag and reports whether it was set.
func (s *Signals) ConsumeListen() string {
	if s.listen.Swap(false) {
		return StatusStartedListening
	}
	return StatusIdle
}

// ConsumeStop clears the stop flag and reports whether it was set.
func (s *Signals) ConsumeStop() string {
	if s.stop.Swap(false) {
		return StatusStoppedSpeaking
	}
	return StatusIdle
}

// Wake marks the assistant awake.
func (s *Signals) Wake() string {
	s.awake.Store(true)
	return StateAwake
}

// Sleep marks the assistant asleep.
func (s *Signals) Sleep() string {
	s.awake.Store(false)
	return StateSleep
}

// State returns the current wake state.
func (s *Signals) State() string {
	if s.awake.Load() {
		return StateAwake
	}
	return StateSleep
}
