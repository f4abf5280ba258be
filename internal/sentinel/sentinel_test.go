package sentinel

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"worklogd/internal/keystroke"
	"worklogd/internal/redact"
	"worklogd/internal/session"
)

type scriptedSource struct {
	mu     sync.Mutex
	script []WindowInfo
	errs   []error
	calls  int
}

func (s *scriptedSource) Name() string { return "scripted" }

func (s *scriptedSource) ActiveWindow(context.Context) (WindowInfo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return WindowInfo{}, s.errs[i]
	}
	if i >= len(s.script) {
		return WindowInfo{}, ErrNoWindow
	}
	return s.script[i], nil
}

type downSource struct{}

func (downSource) Name() string { return "down" }
func (downSource) ActiveWindow(context.Context) (WindowInfo, error) {
	return WindowInfo{}, errors.New("connection refused")
}

type fakeLock struct{ locked bool }

func (f *fakeLock) Locked(context.Context) (bool, error) { return f.locked, nil }

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newTestSentinel(src FocusSource, lock LockProbe) (*Sentinel, *session.Buffer) {
	buf := session.NewBuffer(session.Options{})
	filter := redact.NewFilter(redact.DefaultSecureApps, nil)
	return New(buf, filter, src, lock, Config{LockPause: lock != nil}, quietLogger()), buf
}

func typeText(b *session.Buffer, s string) {
	for _, r := range s {
		b.Press(keystroke.KeyEvent{Type: keystroke.KeyCharacter, Character: r})
	}
}

func TestFormatHeading(t *testing.T) {
	info := WindowInfo{App: "Mail", Title: "Inbox"}
	assert.Equal(t, "Mail — Inbox", FormatHeading(info, false))
	assert.Equal(t, "🔒 [SECURE APP PAUSED] Mail — Inbox", FormatHeading(info, true))
}

func TestPollScenario(t *testing.T) {
	src := &scriptedSource{script: []WindowInfo{
		{App: "Mail", Title: "Inbox"},
		{App: "Mail", Title: "Inbox"},
		{App: "1Password", Title: "Vault"},
	}}
	s, buf := newTestSentinel(src, nil)

	var scans int
	s.OnActive(func(context.Context) { scans++ })

	ctx := context.Background()
	_, ok := s.Poll(ctx)
	require.True(t, ok)
	typeText(buf, "hello")
	buf.Press(keystroke.KeyEvent{Type: keystroke.KeyModifier, Modifier: keystroke.ModCmd})

	tr, ok := s.Poll(ctx)
	require.True(t, ok)
	assert.False(t, tr.Rotated)
	assert.False(t, tr.HeadingChanged())

	tr, ok = s.Poll(ctx)
	require.True(t, ok)
	assert.True(t, tr.Rotated)
	assert.True(t, tr.PauseChanged)
	assert.True(t, buf.Paused())
	assert.Equal(t, "🔒 [SECURE APP PAUSED] 1Password — Vault", buf.Heading())
	assert.Equal(t, 2, scans, "no scan is triggered while paused")

	sections := buf.Drain()
	require.Len(t, sections, 1)
	assert.Equal(t, "Mail — Inbox", sections[0].Heading)
	assert.Equal(t, "hello", sections[0].Events[0].Text)
}

func TestPollFailureKeepsState(t *testing.T) {
	src := &scriptedSource{
		script: []WindowInfo{{App: "Term", Title: "zsh"}, {}, {App: "Term", Title: "zsh"}},
		errs:   []error{nil, errors.New("timeout")},
	}
	s, buf := newTestSentinel(src, nil)
	ctx := context.Background()

	s.Poll(ctx)
	_, ok := s.Poll(ctx)
	assert.False(t, ok)
	assert.Equal(t, "Term — zsh", buf.Heading())

	_, ok = s.Poll(ctx)
	assert.True(t, ok)

	polls, failures := s.Counts()
	assert.EqualValues(t, 3, polls)
	assert.EqualValues(t, 1, failures)
}

func TestFallbackWhenFocusNeverResponds(t *testing.T) {
	s, buf := newTestSentinel(downSource{}, nil)
	ctx := context.Background()

	assert.False(t, s.Startup(ctx))
	typeText(buf, "draft")
	s.Poll(ctx)
	typeText(buf, " more")

	sections := buf.Drain()
	require.Len(t, sections, 1)
	assert.Equal(t, session.FallbackHeading, sections[0].Heading)
	assert.Equal(t, "draft more", sections[0].Events[0].Text)
}

func TestLockPauseWithoutFocus(t *testing.T) {
	lock := &fakeLock{locked: true}
	s, buf := newTestSentinel(downSource{}, lock)
	ctx := context.Background()

	s.Poll(ctx)
	assert.True(t, buf.Paused())

	lock.locked = false
	s.Poll(ctx)
	assert.False(t, buf.Paused())
}

func TestLockPauseWithFocus(t *testing.T) {
	lock := &fakeLock{locked: true}
	src := &scriptedSource{script: []WindowInfo{{App: "Editor", Title: "a.go"}, {App: "Editor", Title: "a.go"}}}
	s, buf := newTestSentinel(src, lock)
	ctx := context.Background()

	tr, _ := s.Poll(ctx)
	assert.True(t, tr.Paused)
	assert.Equal(t, "🔒 [SECURE APP PAUSED] Editor — a.go", buf.Heading())

	lock.locked = false
	tr, _ = s.Poll(ctx)
	assert.False(t, tr.Paused)
	assert.Equal(t, "Editor — a.go", buf.Heading())
}

func TestLockIgnoredWhenDisabled(t *testing.T) {
	buf := session.NewBuffer(session.Options{})
	filter := redact.NewFilter(nil, nil)
	s := New(buf, filter, downSource{}, &fakeLock{locked: true}, Config{}, quietLogger())

	s.Poll(context.Background())
	assert.False(t, buf.Paused())
}

func TestRunStopsOnCancel(t *testing.T) {
	s, _ := newTestSentinel(downSource{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, s.Run(ctx))
}
