package capture

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"worklogd/internal/accessibility"
	"worklogd/internal/clipboard"
	"worklogd/internal/journal"
	"worklogd/internal/keystroke"
	"worklogd/internal/redact"
	"worklogd/internal/sentinel"
	"worklogd/internal/session"
)

// DefaultClickSettle is the delay between a click and its follow-up scan.
const DefaultClickSettle = 500 * time.Millisecond

// Config configures an Engine.
type Config struct {
	ClickSettle time.Duration
	TaskLimit   int

	// MaxDepth caps the accessibility walk; negative selects the default.
	MaxDepth int

	// MaxRunes truncates recorded screen text.
	MaxRunes int

	// Now overrides the clock used for the startup marker, for tests.
	Now func() time.Time
}

// Deps are the collaborators an Engine drives. Buffer, Sentinel, Flusher
// and Writer are required.
type Deps struct {
	Buffer    *session.Buffer
	Filter    *redact.Filter
	Sentinel  *sentinel.Sentinel
	Flusher   *journal.Flusher
	Writer    *journal.Writer
	Clipboard *clipboard.Monitor
	Provider  accessibility.Provider
	Input     InputSource
	OnPanic   PanicFunc
}

// Stats aggregates counters from every component.
type Stats struct {
	Session      session.Stats      `json:"session"`
	Flush        journal.FlushStats `json:"flush"`
	Clipboard    clipboard.Stats    `json:"clipboard"`
	Tasks        TaskStats          `json:"tasks"`
	Scans        ScanStats          `json:"scans"`
	Polls        int64              `json:"polls"`
	PollFailures int64              `json:"poll_failures"`
}

// Engine wires producers to a session buffer and owns shutdown ordering:
// stop producers, wait for in-flight tasks, then flush once more.
type Engine struct {
	buf       *session.Buffer
	sentinel  *sentinel.Sentinel
	flusher   *journal.Flusher
	writer    *journal.Writer
	clipboard *clipboard.Monitor
	provider  accessibility.Provider
	input     InputSource
	scanner   *Scanner
	tasks     *TaskGroup
	config    Config
	logger    *slog.Logger
}

// New creates an Engine and registers its scan trigger with the sentinel.
func New(deps Deps, cfg Config, logger *slog.Logger) (*Engine, error) {
	if deps.Buffer == nil || deps.Sentinel == nil || deps.Flusher == nil || deps.Writer == nil {
		return nil, errors.New("capture: buffer, sentinel, flusher and writer are required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.ClickSettle < 0 {
		cfg.ClickSettle = 0
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if deps.Provider == nil {
		deps.Provider = accessibility.Unavailable{}
	}
	if deps.Input == nil {
		deps.Input = NoInput{}
	}

	logger = logger.With("component", "engine")
	e := &Engine{
		buf:       deps.Buffer,
		sentinel:  deps.Sentinel,
		flusher:   deps.Flusher,
		writer:    deps.Writer,
		clipboard: deps.Clipboard,
		provider:  deps.Provider,
		input:     deps.Input,
		scanner:   NewScanner(deps.Provider, deps.Buffer, deps.Filter, cfg.MaxDepth, cfg.MaxRunes),
		tasks:     NewTaskGroup(cfg.TaskLimit, logger, deps.OnPanic),
		config:    cfg,
		logger:    logger,
	}
	e.sentinel.OnActive(e.TriggerScan)
	return e, nil
}

// OnKey implements InputSink.
func (e *Engine) OnKey(ev keystroke.KeyEvent, pressed bool) {
	if pressed {
		e.buf.Press(ev)
		return
	}
	e.buf.Release(ev)
}

// OnClick implements InputSink. On press-down while capture is active, the
// element lookup, click event and settle-delayed scan run as one task.
func (e *Engine) OnClick(ctx context.Context, ev ClickEvent) {
	if !ev.Pressed || e.buf.Paused() || !e.provider.Available() {
		return
	}
	_ = e.tasks.Submit(ctx, "click", func(ctx context.Context) error {
		return e.click(ctx, ev)
	})
}

func (e *Engine) click(ctx context.Context, ev ClickEvent) error {
	el, err := e.provider.ElementAt(ctx, ev.X, ev.Y)
	if err != nil {
		return fmt.Errorf("element at %.0f,%.0f: %w", ev.X, ev.Y, err)
	}
	if el == nil {
		return nil
	}
	if err := e.buf.Append(session.KindClick, accessibility.Describe(el)); err != nil {
		// Paused while the lookup ran.
		return nil
	}

	if e.config.ClickSettle > 0 {
		timer := time.NewTimer(e.config.ClickSettle)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	_, err = e.scanner.Scan(ctx)
	return err
}

// TriggerScan schedules one asynchronous screen scan.
func (e *Engine) TriggerScan(ctx context.Context) {
	if !e.provider.Available() {
		return
	}
	_ = e.tasks.Submit(ctx, "scan", func(ctx context.Context) error {
		_, err := e.scanner.Scan(ctx)
		return err
	})
}

// Run starts every producer and the periodic flusher and blocks until ctx is
// cancelled. Before returning it waits for in-flight tasks and performs the
// final flush, whose error it returns.
func (e *Engine) Run(ctx context.Context) error {
	if created, err := e.writer.EnsureHeader(e.config.Now(), true); err != nil {
		e.logger.Error("failed to create log file", "path", e.writer.PathFor(e.config.Now()), "error", err)
	} else if created {
		e.logger.Info("log file created", "path", e.writer.PathFor(e.config.Now()))
	}

	e.sentinel.Startup(ctx)
	if !e.provider.Available() {
		e.logger.Warn("accessibility not available, clicks and screen text disabled")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.sentinel.Run(gctx) })
	g.Go(func() error { return e.flusher.Run(gctx) })
	if e.clipboard != nil {
		g.Go(func() error { return e.clipboard.Run(gctx) })
	}
	g.Go(func() error {
		err := e.input.Run(gctx, e)
		switch {
		case errors.Is(err, ErrInputNotAvailable):
			e.logger.Warn("input hook not available, keystrokes and clicks disabled")
		case err != nil && gctx.Err() == nil:
			e.logger.Error("input hook stopped", "error", err)
		default:
			e.logger.Info("input listeners stopped")
		}
		return nil
	})
	e.logger.Info("capture started")

	<-ctx.Done()
	_ = g.Wait()
	e.tasks.Close()

	n, err := e.flusher.Flush(context.Background())
	stats := e.Stats()
	e.logger.Info("capture stopped",
		"final_sections", n,
		"events", stats.Session.EventsAppended,
		"sections_written", stats.Flush.SectionsWritten,
		"sections_dropped", stats.Flush.SectionsDropped,
		"tasks_dropped", stats.Tasks.Dropped,
		"tasks_failed", stats.Tasks.Failed,
	)
	return err
}

// Stats returns a snapshot of all counters.
func (e *Engine) Stats() Stats {
	polls, failures := e.sentinel.Counts()
	s := Stats{
		Session:      e.buf.Stats(),
		Flush:        e.flusher.Stats(),
		Tasks:        e.tasks.Stats(),
		Scans:        e.scanner.Stats(),
		Polls:        polls,
		PollFailures: failures,
	}
	if e.clipboard != nil {
		s.Clipboard = e.clipboard.Stats()
	}
	return s
}
