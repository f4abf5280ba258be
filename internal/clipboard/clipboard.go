// Package clipboard records text copied to the system pasteboard.
package clipboard

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"worklogd/internal/accessibility"
	"worklogd/internal/session"
)

// DefaultInterval is the pasteboard poll period.
const DefaultInterval = time.Second

// ErrNotAvailable is returned by accessors with no pasteboard backend.
var ErrNotAvailable = errors.New("clipboard: not available")

// Accessor reads the system pasteboard.
type Accessor interface {
	// ChangeCount returns a counter that changes whenever the pasteboard
	// contents change.
	ChangeCount(ctx context.Context) (int64, error)

	// Text returns the current text contents.
	Text(ctx context.Context) (string, error)
}

// Sink receives clipboard events. session.Buffer implements it.
type Sink interface {
	Paused() bool
	OfferClipboard(raw, text string) (bool, error)
}

// Config configures a Monitor.
type Config struct {
	Interval time.Duration

	// MaxRunes truncates recorded text; zero disables truncation.
	MaxRunes int

	// Scrub masks sensitive patterns before text is recorded.
	Scrub func(string) string
}

// Stats are cumulative monitor counters.
type Stats struct {
	Changes  int64 `json:"changes"`
	Absorbed int64 `json:"absorbed"`
	Recorded int64 `json:"recorded"`
	Errors   int64 `json:"errors"`
}

// Monitor polls an Accessor's change counter and forwards new text to a Sink.
// While the sink is paused, changes are tracked but Text is never called, so
// content copied inside a secure context is not recorded after resuming.
// Accessors that must read the contents to notice a change keep only a hash.
type Monitor struct {
	accessor Accessor
	sink     Sink
	config   Config
	logger   *slog.Logger

	mu        sync.Mutex
	lastCount int64
	primed    bool
	stats     Stats
}

// NewMonitor creates a Monitor.
func NewMonitor(accessor Accessor, sink Sink, cfg Config, logger *slog.Logger) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Monitor{
		accessor: accessor,
		sink:     sink,
		config:   cfg,
		logger:   logger.With("component", "clipboard"),
	}
}

// Prime records the current change counter so pre-existing contents are not
// reported.
func (m *Monitor) Prime(ctx context.Context) error {
	count, err := m.accessor.ChangeCount(ctx)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.lastCount = count
	m.primed = true
	m.mu.Unlock()
	return nil
}

// Check runs one poll cycle and reports whether an event was recorded.
func (m *Monitor) Check(ctx context.Context) (bool, error) {
	count, err := m.accessor.ChangeCount(ctx)
	if err != nil {
		m.countError()
		return false, err
	}

	m.mu.Lock()
	if m.primed && count == m.lastCount {
		m.mu.Unlock()
		return false, nil
	}
	m.lastCount = count
	m.primed = true
	m.stats.Changes++
	m.mu.Unlock()

	if m.sink.Paused() {
		m.mu.Lock()
		m.stats.Absorbed++
		m.mu.Unlock()
		return false, nil
	}

	text, err := m.accessor.Text(ctx)
	if err != nil {
		m.countError()
		return false, err
	}
	if text == "" {
		return false, nil
	}

	display := text
	if m.config.Scrub != nil {
		display = m.config.Scrub(display)
	}
	display = accessibility.Truncate(display, m.config.MaxRunes)

	ok, err := m.sink.OfferClipboard(text, display)
	if errors.Is(err, session.ErrPaused) {
		// Paused between the check and the offer.
		m.mu.Lock()
		m.stats.Absorbed++
		m.mu.Unlock()
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if ok {
		m.mu.Lock()
		m.stats.Recorded++
		m.mu.Unlock()
	}
	return ok, nil
}

func (m *Monitor) countError() {
	m.mu.Lock()
	m.stats.Errors++
	m.mu.Unlock()
}

// Stats returns a copy of the counters.
func (m *Monitor) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Run primes the monitor and polls until ctx is cancelled. It returns early
// without error only when there is no pasteboard backend at all. If priming
// fails otherwise, polling starts anyway and the first contents read count
// as a change.
func (m *Monitor) Run(ctx context.Context) error {
	if err := m.Prime(ctx); errors.Is(err, ErrNotAvailable) {
		m.logger.Warn("clipboard unavailable, monitor disabled", "error", err)
		return nil
	} else if err != nil {
		m.logger.Info("clipboard not readable yet, polling anyway", "error", err)
	}

	ticker := time.NewTicker(m.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := m.Check(ctx); err != nil {
				m.logger.Debug("clipboard read failed", "error", err)
			}
		}
	}
}
