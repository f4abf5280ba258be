package sentinel

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"worklogd/internal/redact"
	"worklogd/internal/session"
)

// DefaultInterval is the focus poll period.
const DefaultInterval = 5 * time.Second

// Config configures a Sentinel.
type Config struct {
	// Interval between focus polls.
	Interval time.Duration

	// LockPause pauses capture while the session is locked.
	LockPause bool
}

// Sentinel drives the ACTIVE/PAUSED state machine of a session buffer from
// focus polls.
type Sentinel struct {
	buf    *session.Buffer
	filter *redact.Filter
	focus  FocusSource
	lock   LockProbe
	logger *slog.Logger
	config Config

	// onActive runs after every successful poll that leaves capture active.
	onActive func(ctx context.Context)

	mu         sync.Mutex
	available  *bool
	lockPaused bool
	polls      int64
	failures   int64
}

// New creates a Sentinel. lock may be nil.
func New(buf *session.Buffer, filter *redact.Filter, focus FocusSource, lock LockProbe, cfg Config, logger *slog.Logger) *Sentinel {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if lock == nil || !cfg.LockPause {
		lock = NoLock{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sentinel{
		buf:    buf,
		filter: filter,
		focus:  focus,
		lock:   lock,
		logger: logger.With("component", "sentinel"),
		config: cfg,
	}
}

// OnActive registers fn to run after each poll that leaves capture active.
// It must be set before Run.
func (s *Sentinel) OnActive(fn func(ctx context.Context)) {
	s.onActive = fn
}

// Startup performs the initial poll that establishes the first heading and
// records whether the focus source is reachable.
func (s *Sentinel) Startup(ctx context.Context) bool {
	_, ok := s.Poll(ctx)
	if ok {
		s.logger.Info("focus source OK", "source", s.focus.Name(), "heading", s.buf.Heading())
	} else {
		s.logger.Warn("focus source not running or no window, events will use fallback heading",
			"source", s.focus.Name())
	}
	return ok
}

// Poll queries the focus source once and applies the result. It reports
// false when the poll failed and nothing changed.
func (s *Sentinel) Poll(ctx context.Context) (session.Transition, bool) {
	info, err := s.focus.ActiveWindow(ctx)
	locked := s.locked(ctx)

	s.mu.Lock()
	s.polls++
	s.mu.Unlock()

	if err != nil || info.Title == "" {
		s.noteAvailability(false, err)
		s.applyLockOnly(locked)
		return session.Transition{}, false
	}
	s.noteAvailability(true, nil)

	secure := locked || s.filter.IsSecureContext(info.App, info.Title)
	tr := s.buf.SwitchContext(FormatHeading(info, secure), secure)

	s.mu.Lock()
	s.lockPaused = false
	s.mu.Unlock()

	if tr.PauseChanged {
		if tr.Paused {
			s.logger.Info("capture paused", "app", info.App, "locked", locked)
		} else {
			s.logger.Info("capture resumed", "app", info.App)
		}
	}
	if tr.HeadingChanged() {
		s.logger.Debug("focus changed", "rotated", tr.Rotated)
	}

	if !tr.Paused && s.onActive != nil {
		s.onActive(ctx)
	}
	return tr, true
}

// applyLockOnly keeps the lock screen pause in effect while focus is unknown.
func (s *Sentinel) applyLockOnly(locked bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case locked && !s.buf.Paused():
		if s.buf.SetPaused(true) {
			s.lockPaused = true
			s.logger.Info("capture paused", "locked", true)
		}
	case !locked && s.lockPaused:
		s.lockPaused = false
		if s.buf.SetPaused(false) {
			s.logger.Info("capture resumed", "locked", false)
		}
	}
}

func (s *Sentinel) locked(ctx context.Context) bool {
	locked, err := s.lock.Locked(ctx)
	if err != nil {
		s.logger.Debug("lock probe failed", "error", err)
		return false
	}
	return locked
}

// noteAvailability logs availability changes of the focus source once per
// edge rather than on every poll.
func (s *Sentinel) noteAvailability(ok bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !ok {
		s.failures++
	}
	if s.available != nil && *s.available == ok {
		return
	}
	s.available = &ok
	if ok {
		s.logger.Info("focus source available", "source", s.focus.Name())
		return
	}
	s.logger.Warn("focus source unavailable", "source", s.focus.Name(), "error", err)
}

// Counts returns the number of polls and failed polls so far.
func (s *Sentinel) Counts() (polls, failures int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls, s.failures
}

// Run polls until ctx is cancelled.
func (s *Sentinel) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Poll(ctx)
		}
	}
}
