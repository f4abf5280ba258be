package session

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"worklogd/internal/keystroke"
	"worklogd/internal/similarity"
)

// Options configures a Buffer.
type Options struct {
	// Threshold is the screen similarity threshold; zero means the default.
	Threshold float64

	// Now overrides the clock, for tests.
	Now func() time.Time
}

// Buffer is the single owner of session state. All methods are safe for
// concurrent use and none of them block on I/O.
type Buffer struct {
	mu sync.Mutex

	heading   string
	events    []Event
	completed []Section
	paused    bool

	keys       keystroke.Coalescer
	screen     *similarity.Gate
	generation uint64
	clipText   string

	now     func() time.Time
	entropy io.Reader
	stats   Stats
}

// NewBuffer returns an empty, unpaused buffer with no heading.
func NewBuffer(opts Options) *Buffer {
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Buffer{
		screen:  similarity.NewGate(opts.Threshold),
		now:     now,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

// Press applies a key-down. It is ignored while paused and reports whether
// it was applied.
func (b *Buffer) Press(ev keystroke.KeyEvent) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.paused {
		b.stats.KeysIgnored++
		return false
	}
	b.keys.Press(ev)
	return true
}

// Release applies a key-up. Modifier releases are honoured even while paused
// so that no chord stays latched across a pause.
func (b *Buffer) Release(ev keystroke.KeyEvent) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.keys.Release(ev)
}

// Append adds an event of the given kind to the current section after
// flushing pending keystrokes ahead of it.
func (b *Buffer) Append(kind Kind, text string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.appendLocked(kind, text)
}

func (b *Buffer) appendLocked(kind Kind, text string) error {
	if b.paused {
		b.stats.EventsRejected++
		return ErrPaused
	}
	if text == "" {
		return ErrEmptyEvent
	}
	b.flushKeysLocked()
	b.events = append(b.events, Event{Kind: kind, Text: text, At: b.now()})
	b.stats.EventsAppended++
	return nil
}

func (b *Buffer) flushKeysLocked() {
	text, ok := b.keys.Flush()
	if !ok {
		return
	}
	b.events = append(b.events, Event{Kind: KindKeystrokes, Text: text, At: b.now()})
	b.stats.EventsAppended++
}

// rotateLocked closes the current section if it has events.
func (b *Buffer) rotateLocked() bool {
	b.flushKeysLocked()
	if len(b.events) == 0 {
		return false
	}
	heading := b.heading
	if heading == "" {
		heading = FallbackHeading
	}
	ts := b.now()
	b.completed = append(b.completed, Section{
		ID:        ulid.MustNew(ulid.Timestamp(ts), b.entropy).String(),
		Heading:   heading,
		Events:    b.events,
		Timestamp: ts,
	})
	b.events = nil
	b.stats.SectionsCompleted++
	return true
}

// SwitchContext applies the result of a successful focus poll as a single
// atomic step. A change of the secure flag toggles the pause state, and
// entering the pause clears held modifiers. A change of heading closes the
// current section and resets the screen baseline.
func (b *Buffer) SwitchContext(heading string, secure bool) Transition {
	b.mu.Lock()
	defer b.mu.Unlock()

	tr := Transition{Previous: b.heading, Heading: heading}

	if secure != b.paused {
		// Keys typed before the pause belong to the outgoing context.
		b.flushKeysLocked()
		b.paused = secure
		if secure {
			b.keys.ClearModifiers()
		}
		b.stats.PauseToggles++
		tr.PauseChanged = true
	}
	tr.Paused = b.paused

	if heading != b.heading {
		tr.Rotated = b.rotateLocked()
		b.screen.Reset()
		b.generation++
		b.heading = heading
	}
	return tr
}

// SetPaused changes the pause state without touching the heading. It reports
// whether the state changed.
func (b *Buffer) SetPaused(paused bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if paused == b.paused {
		return false
	}
	b.flushKeysLocked()
	b.paused = paused
	if paused {
		b.keys.ClearModifiers()
	}
	b.generation++
	b.stats.PauseToggles++
	return true
}

// RotateSection closes the current section if it has any events.
func (b *Buffer) RotateSection() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rotateLocked()
}

// Drain flushes keystrokes, closes the current section and hands over every
// completed section in creation order. The queue is empty afterwards.
func (b *Buffer) Drain() []Section {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.rotateLocked()
	out := b.completed
	b.completed = nil
	return out
}

// Paused reports whether capture is paused.
func (b *Buffer) Paused() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.paused
}

// Heading returns the current heading, or FallbackHeading if none is known.
func (b *Buffer) Heading() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.heading == "" {
		return FallbackHeading
	}
	return b.heading
}

// ScreenView captures what a screen scan needs to decide on its snapshot.
func (b *Buffer) ScreenView() ScreenView {
	b.mu.Lock()
	defer b.mu.Unlock()

	base, primed := b.screen.Baseline()
	return ScreenView{
		Baseline:   base,
		Primed:     primed,
		Generation: b.generation,
		Paused:     b.paused,
	}
}

// CommitScreen records a screen snapshot computed against view. ratio is the
// similarity of candidate to view.Baseline. The snapshot is discarded when
// the context switched since view was taken. If another snapshot was
// committed in the meantime the ratio is recomputed against it. text is the
// form stored in the event, which may be truncated.
func (b *Buffer) CommitScreen(view ScreenView, candidate, text string, ratio float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.paused || view.Generation != b.generation {
		b.stats.ScreensStale++
		return false
	}
	if candidate == "" {
		return false
	}

	var admit bool
	base, primed := b.screen.Baseline()
	if primed == view.Primed && base == view.Baseline {
		admit = !primed || b.screen.Below(ratio)
	} else {
		admit, _ = b.screen.Admits(candidate)
	}
	if !admit {
		b.stats.ScreensSuppressed++
		return false
	}

	b.screen.Set(candidate)
	return b.appendLocked(KindScreen, text) == nil
}

// OfferClipboard records clipboard text unless it equals the last recorded
// clipboard text. raw is compared; text is what the event stores.
func (b *Buffer) OfferClipboard(raw, text string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.paused {
		b.stats.EventsRejected++
		return false, ErrPaused
	}
	if raw == "" || raw == b.clipText {
		return false, nil
	}
	if err := b.appendLocked(KindClipboard, text); err != nil {
		return false, err
	}
	b.clipText = raw
	return true, nil
}

// Pending returns the number of events in the current section and the number
// of completed sections waiting to be drained.
func (b *Buffer) Pending() (events, sections int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events) + min(b.keys.Pending(), 1), len(b.completed)
}

// Stats returns a copy of the counters.
func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.stats
}
