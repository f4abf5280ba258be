package capture

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"worklogd/internal/accessibility"
	"worklogd/internal/journal"
	"worklogd/internal/keystroke"
	"worklogd/internal/redact"
	"worklogd/internal/sentinel"
	"worklogd/internal/session"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakeProvider struct {
	mu       sync.Mutex
	window   accessibility.Element
	at       accessibility.Element
	onWindow func()
	calls    int
}

func (p *fakeProvider) Available() bool { return true }

func (p *fakeProvider) FocusedWindow(context.Context) (accessibility.Element, error) {
	p.mu.Lock()
	p.calls++
	hook, win := p.onWindow, p.window
	p.mu.Unlock()
	if hook != nil {
		hook()
	}
	if win == nil {
		return nil, accessibility.ErrNotAvailable
	}
	return win, nil
}

func (p *fakeProvider) ElementAt(context.Context, float64, float64) (accessibility.Element, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.at == nil {
		return nil, accessibility.ErrNotAvailable
	}
	return p.at, nil
}

func (p *fakeProvider) setWindow(el accessibility.Element) {
	p.mu.Lock()
	p.window = el
	p.mu.Unlock()
}

type fixedFocus struct{ info sentinel.WindowInfo }

func (f fixedFocus) Name() string { return "fixed" }
func (f fixedFocus) ActiveWindow(context.Context) (sentinel.WindowInfo, error) {
	return f.info, nil
}

func window(text string) *accessibility.Node {
	return accessibility.NewNode("AXWindow", "",
		accessibility.NewNode("AXStaticText", text))
}

func activeBuffer(t *testing.T, heading string) *session.Buffer {
	t.Helper()
	buf := session.NewBuffer(session.Options{})
	buf.SwitchContext(heading, false)
	return buf
}

func screenEvents(sections []session.Section) []string {
	var out []string
	for _, s := range sections {
		for _, ev := range s.Events {
			if ev.Kind == session.KindScreen {
				out = append(out, ev.Text)
			}
		}
	}
	return out
}

func TestTaskGroupDropsOverflow(t *testing.T) {
	tg := NewTaskGroup(1, quietLogger(), nil)
	release := make(chan struct{})
	started := make(chan struct{})

	require.NoError(t, tg.Submit(context.Background(), "slow", func(context.Context) error {
		close(started)
		<-release
		return nil
	}))
	<-started

	err := tg.Submit(context.Background(), "extra", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrTaskGroupFull)

	close(release)
	tg.Close()

	stats := tg.Stats()
	assert.Equal(t, int64(1), stats.Submitted)
	assert.Equal(t, int64(1), stats.Completed)
	assert.Equal(t, int64(1), stats.Dropped)
}

func TestTaskGroupFailuresAndPanics(t *testing.T) {
	var panics []string
	var mu sync.Mutex
	tg := NewTaskGroup(4, quietLogger(), func(task string, value any, stack []byte) {
		mu.Lock()
		defer mu.Unlock()
		panics = append(panics, task)
		assert.NotEmpty(t, stack)
	})

	ctx := context.Background()
	require.NoError(t, tg.Submit(ctx, "fails", func(context.Context) error { return errors.New("boom") }))
	require.NoError(t, tg.Submit(ctx, "panics", func(context.Context) error { panic("bad tree") }))
	require.NoError(t, tg.Submit(ctx, "cancelled", func(context.Context) error { return context.Canceled }))
	tg.Close()

	stats := tg.Stats()
	assert.Equal(t, int64(1), stats.Failed)
	assert.Equal(t, int64(1), stats.Panicked)
	assert.Equal(t, int64(1), stats.Completed)
	assert.Equal(t, []string{"panics"}, panics)
}

func TestTaskGroupClosedRejects(t *testing.T) {
	tg := NewTaskGroup(2, quietLogger(), nil)
	tg.Close()
	err := tg.Submit(context.Background(), "late", func(context.Context) error { return nil })
	assert.ErrorIs(t, err, ErrTaskGroupClosed)
	assert.Equal(t, int64(1), tg.Stats().Dropped)
}

func TestScannerRecordsAndSuppresses(t *testing.T) {
	buf := activeBuffer(t, "Editor — notes.md")
	p := &fakeProvider{window: window("The quick brown fox jumps over the lazy dog")}
	s := NewScanner(p, buf, nil, -1, 0)
	ctx := context.Background()

	ok, err := s.Scan(ctx)
	require.NoError(t, err)
	assert.True(t, ok, "first snapshot always emits")

	ok, err = s.Scan(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "identical snapshot is suppressed")

	p.setWindow(window("The quick brown fox jumps over the lazy cat"))
	ok, _ = s.Scan(ctx)
	assert.False(t, ok, "near-identical snapshot is suppressed")

	p.setWindow(window("Completely different content on the screen now"))
	ok, _ = s.Scan(ctx)
	assert.True(t, ok)

	assert.Equal(t, []string{
		"The quick brown fox jumps over the lazy dog",
		"Completely different content on the screen now",
	}, screenEvents(buf.Drain()))

	stats := s.Stats()
	assert.Equal(t, int64(4), stats.Scans)
	assert.Equal(t, int64(2), stats.Recorded)
	assert.Equal(t, int64(2), stats.Discarded)
}

func TestScannerHidesSecureFieldsAndScrubs(t *testing.T) {
	buf := activeBuffer(t, "Browser — Login")
	scrubber, err := redact.NewScrubber([]string{"email"})
	require.NoError(t, err)
	filter := redact.NewFilter(nil, scrubber)

	tree := accessibility.NewNode("AXWindow", "",
		accessibility.NewNode("AXStaticText", "Sign in as alice@example.com"),
		accessibility.NewNode("AXSecureTextField", "hunter2"),
	)
	s := NewScanner(&fakeProvider{window: tree}, buf, filter, -1, 0)

	ok, err := s.Scan(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	got := screenEvents(buf.Drain())
	require.Len(t, got, 1)
	assert.Equal(t, "Sign in as [REDACTED] [SECURE_FIELD_HIDDEN]", got[0])
	assert.NotContains(t, got[0], "hunter2")
}

func TestScannerTruncates(t *testing.T) {
	buf := activeBuffer(t, "Editor — long.txt")
	s := NewScanner(&fakeProvider{window: window(strings.Repeat("é", 50))}, buf, nil, -1, 10)

	ok, _ := s.Scan(context.Background())
	require.True(t, ok)
	got := screenEvents(buf.Drain())
	require.Len(t, got, 1)
	assert.Equal(t, strings.Repeat("é", 10), got[0])
}

func TestScannerDiscardsAcrossContextSwitch(t *testing.T) {
	buf := activeBuffer(t, "Mail — Inbox")
	p := &fakeProvider{window: window("message body")}
	// The focus moves while the tree walk is in progress.
	p.onWindow = func() { buf.SwitchContext("Chat — General", false) }
	s := NewScanner(p, buf, nil, -1, 0)

	ok, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, screenEvents(buf.Drain()))
	assert.Equal(t, int64(1), buf.Stats().ScreensStale)
}

func TestScannerSkipsWhilePaused(t *testing.T) {
	buf := session.NewBuffer(session.Options{})
	buf.SwitchContext("🔒 [SECURE APP PAUSED] 1Password — Vault", true)
	p := &fakeProvider{window: window("secret things")}
	s := NewScanner(p, buf, nil, -1, 0)

	ok, err := s.Scan(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, p.calls, "paused scans never touch the provider")
}

func TestScannerProviderError(t *testing.T) {
	buf := activeBuffer(t, "Finder — Desktop")
	s := NewScanner(&fakeProvider{}, buf, nil, -1, 0)

	_, err := s.Scan(context.Background())
	assert.ErrorIs(t, err, accessibility.ErrNotAvailable)
	assert.Equal(t, int64(1), s.Stats().Errors)
}

type harness struct {
	engine   *Engine
	buf      *session.Buffer
	provider *fakeProvider
	writer   *journal.Writer
	now      time.Time
}

func newHarness(t *testing.T, input InputSource) *harness {
	t.Helper()
	now := time.Date(2026, 3, 14, 9, 30, 0, 0, time.Local)
	clock := func() time.Time { return now }

	buf := session.NewBuffer(session.Options{Now: clock})
	filter := redact.NewFilter(redact.DefaultSecureApps, nil)
	focus := fixedFocus{info: sentinel.WindowInfo{App: "Editor", Title: "notes.md"}}
	sent := sentinel.New(buf, filter, focus, nil, sentinel.Config{Interval: time.Hour}, quietLogger())
	writer := journal.NewWriter(t.TempDir())
	flusher := journal.NewFlusher(buf, writer, quietLogger(),
		journal.WithInterval(time.Hour), journal.WithClock(clock), journal.WithStderr(&strings.Builder{}))

	provider := &fakeProvider{
		window: window("Draft of the quarterly report"),
		at:     &accessibility.Node{Attrs: accessibility.Attributes{Role: "AXButton", Title: "Save"}},
	}

	e, err := New(Deps{
		Buffer:   buf,
		Filter:   filter,
		Sentinel: sent,
		Flusher:  flusher,
		Writer:   writer,
		Provider: provider,
		Input:    input,
	}, Config{ClickSettle: 0, TaskLimit: 4, MaxDepth: -1, MaxRunes: 2000, Now: clock}, quietLogger())
	require.NoError(t, err)

	return &harness{engine: e, buf: buf, provider: provider, writer: writer, now: now}
}

func TestEngineClickAppendsDescriptionThenScan(t *testing.T) {
	h := newHarness(t, nil)
	h.buf.SwitchContext("Editor — notes.md", false)

	ctx := context.Background()
	h.engine.OnKey(keystroke.KeyEvent{Type: keystroke.KeyCharacter, Character: 'h'}, true)
	h.engine.OnKey(keystroke.KeyEvent{Type: keystroke.KeyCharacter, Character: 'i'}, true)
	h.engine.OnClick(ctx, ClickEvent{X: 10, Y: 20, Pressed: true})
	h.engine.tasks.Close()

	sections := h.buf.Drain()
	require.Len(t, sections, 1)
	events := sections[0].Events
	require.Len(t, events, 3)
	assert.Equal(t, session.Event{Kind: session.KindKeystrokes, Text: "hi", At: h.now}, events[0])
	assert.Equal(t, session.KindClick, events[1].Kind)
	assert.Equal(t, "Button 'Save'", events[1].Text)
	assert.Equal(t, session.KindScreen, events[2].Kind)
}

func TestEngineClickIgnoredWhenReleasedOrPaused(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()

	h.buf.SwitchContext("Editor — notes.md", false)
	h.engine.OnClick(ctx, ClickEvent{Pressed: false})

	h.buf.SwitchContext("🔒 [SECURE APP PAUSED] Bitwarden — Vault", true)
	h.engine.OnClick(ctx, ClickEvent{Pressed: true})
	h.engine.OnKey(keystroke.KeyEvent{Type: keystroke.KeyCharacter, Character: 'x'}, true)
	h.engine.tasks.Close()

	assert.Empty(t, h.buf.Drain())
	assert.Equal(t, int64(0), h.engine.Stats().Tasks.Submitted)
}

func TestEngineRunFlushesOnShutdown(t *testing.T) {
	typed := make(chan struct{})
	input := InputFunc(func(ctx context.Context, sink InputSink) error {
		for _, r := range "hello" {
			sink.OnKey(keystroke.KeyEvent{Type: keystroke.KeyCharacter, Character: r}, true)
		}
		sink.OnKey(keystroke.KeyEvent{Type: keystroke.KeyReturn}, true)
		sink.OnClick(ctx, ClickEvent{X: 1, Y: 1, Pressed: true})
		close(typed)
		<-ctx.Done()
		return nil
	})
	h := newHarness(t, input)
	// Without a readable window no scan can interleave with the typing.
	h.provider.setWindow(nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.engine.Run(ctx) }()

	select {
	case <-typed:
	case <-time.After(5 * time.Second):
		t.Fatal("input source never ran")
	}
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not stop")
	}

	data, err := os.ReadFile(h.writer.PathFor(h.now))
	require.NoError(t, err)
	log := string(data)

	assert.True(t, strings.HasPrefix(log, "# Work Log — 2026-03-14\n"))
	assert.Contains(t, log, "*Logger started at 09:30:00*")
	assert.Contains(t, log, "## Editor — notes.md\n")
	assert.Contains(t, log, "hello\n[ENTER]")
	assert.Contains(t, log, "🖱️ **Click:** Button 'Save'")
	assert.Less(t, strings.Index(log, "hello"), strings.Index(log, "**Click:**"), "keys typed before the click come first")

	pending, completed := h.buf.Pending()
	assert.Zero(t, pending)
	assert.Zero(t, completed)
	assert.Equal(t, int64(1), h.engine.Stats().Polls)
}

func TestEngineRunWithoutInputHook(t *testing.T) {
	h := newHarness(t, NoInput{})
	ctx, cancel := context.WithCancel(context.Background())

	var stopped atomic.Bool
	done := make(chan struct{})
	go func() {
		assert.NoError(t, h.engine.Run(ctx))
		stopped.Store(true)
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	assert.False(t, stopped.Load(), "a missing input hook does not stop capture")
	cancel()
	<-done

	_, err := os.Stat(h.writer.PathFor(h.now))
	assert.NoError(t, err, "day file is created at startup")
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Deps{}, Config{}, quietLogger())
	assert.Error(t, err)
}
