// Package session owns the in-memory state of the logger: the section being
// built for the focused window, the queue of completed sections awaiting
// persistence, and the pause flag. Every mutation goes through Buffer, which
// guards all of it with a single mutex.
package session

import (
	"errors"
	"time"
)

// FallbackHeading labels sections captured while no window title is known.
const FallbackHeading = "Unknown — (ActivityWatch not running; start ActivityWatch for window titles)"

// SecureHeadingPrefix marks headings of paused credential-manager contexts.
const SecureHeadingPrefix = "🔒 [SECURE APP PAUSED] "

var (
	// ErrPaused is returned when an event is offered while capture is paused.
	ErrPaused = errors.New("session: capture paused")

	// ErrEmptyEvent is returned for events without text.
	ErrEmptyEvent = errors.New("session: empty event")
)

// Kind classifies an event by its producer.
type Kind string

const (
	KindKeystrokes Kind = "keystrokes"
	KindClick      Kind = "click"
	KindScreen     Kind = "screen"
	KindClipboard  Kind = "clipboard"
)

// Event is one already-redacted observation.
type Event struct {
	Kind Kind      `json:"kind"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Section is the events captured under one focus context, closed when the
// context changes or the buffer is drained.
type Section struct {
	ID        string    `json:"id"`
	Heading   string    `json:"heading"`
	Events    []Event   `json:"events"`
	Timestamp time.Time `json:"timestamp"`
}

// Transition describes what SwitchContext changed.
type Transition struct {
	PauseChanged bool
	Paused       bool
	Rotated      bool
	Previous     string
	Heading      string
}

// HeadingChanged reports whether the focus context moved.
func (t Transition) HeadingChanged() bool {
	return t.Previous != t.Heading
}

// ScreenView is the part of the state a screen scan needs, captured under the
// lock so the scan itself can run without it.
type ScreenView struct {
	Baseline   string
	Primed     bool
	Generation uint64
	Paused     bool
}

// Stats are cumulative buffer counters.
type Stats struct {
	EventsAppended    int64 `json:"events_appended"`
	SectionsCompleted int64 `json:"sections_completed"`
	KeysIgnored       int64 `json:"keys_ignored"`
	EventsRejected    int64 `json:"events_rejected"`
	ScreensSuppressed int64 `json:"screens_suppressed"`
	ScreensStale      int64 `json:"screens_stale"`
	PauseToggles      int64 `json:"pause_toggles"`
}
