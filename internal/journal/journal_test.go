package journal

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"worklogd/internal/keystroke"
	"worklogd/internal/session"
)

var day = time.Date(2026, 3, 14, 9, 30, 0, 0, time.Local)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func steppingClock(start time.Time) func() time.Time {
	t := start
	return func() time.Time {
		t = t.Add(time.Second)
		return t
	}
}

func typeText(b *session.Buffer, s string) {
	for _, r := range s {
		b.Press(keystroke.KeyEvent{Type: keystroke.KeyCharacter, Character: r})
	}
}

func TestFormatSection(t *testing.T) {
	s := session.Section{
		ID:        "01HX0000000000000000000000",
		Heading:   "Mail — Inbox",
		Timestamp: day,
		Events: []session.Event{
			{Kind: session.KindKeystrokes, Text: "hi\n[ENTER]\n"},
			{Kind: session.KindClick, Text: "Button 'Send'"},
			{Kind: session.KindScreen, Text: "Inbox 3 unread"},
			{Kind: session.KindClipboard, Text: "a ``` b"},
		},
	}
	want := "## Mail — Inbox\n" +
		"<!-- section: 01HX0000000000000000000000 -->\n" +
		"*09:30:00*\n\n" +
		"hi\n[ENTER]\n\n" +
		"🖱️ **Click:** Button 'Send'\n\n" +
		"💻 **Screen:**\n```text\nInbox 3 unread\n```\n\n" +
		"> [CLIPBOARD]:\n````text\na ``` b\n````\n\n" +
		"---\n\n"
	assert.Equal(t, want, FormatSection(s))
}

func TestHeaderAndFileName(t *testing.T) {
	assert.Equal(t, "daily_log_2026-03-14.md", FileName(day))
	assert.True(t, strings.HasPrefix(Header(day), "# Work Log — 2026-03-14\n\n> Auto-generated by "))
	assert.True(t, strings.HasSuffix(Header(day), "\n\n---\n\n"))
	assert.Equal(t, "*Logger started at 09:30:00*\n\n---\n\n", StartupMarker(day))
}

func TestEnsureHeaderOnce(t *testing.T) {
	w := NewWriter(filepath.Join(t.TempDir(), "logs"))

	created, err := w.EnsureHeader(day, true)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = w.EnsureHeader(day, true)
	require.NoError(t, err)
	assert.False(t, created)

	data, err := os.ReadFile(w.PathFor(day))
	require.NoError(t, err)
	assert.Equal(t, Header(day)+StartupMarker(day), string(data))
}

func TestWriteSplitsByDay(t *testing.T) {
	w := NewWriter(t.TempDir())
	next := day.AddDate(0, 0, 1)
	sections := []session.Section{
		{ID: "a", Heading: "A — 1", Timestamp: day, Events: []session.Event{{Kind: session.KindKeystrokes, Text: "x"}}},
		{ID: "b", Heading: "B — 2", Timestamp: next, Events: []session.Event{{Kind: session.KindKeystrokes, Text: "y"}}},
	}
	require.NoError(t, w.Write(sections))

	first, err := ParseFile(w.PathFor(day))
	require.NoError(t, err)
	second, err := ParseFile(w.PathFor(next))
	require.NoError(t, err)
	require.Len(t, first.Sections, 1)
	require.Len(t, second.Sections, 1)
	assert.Equal(t, "a", first.Sections[0].ID)
	assert.Equal(t, "b", second.Sections[0].ID)
}

func TestShutdownFlushWritesAllSectionsInOrder(t *testing.T) {
	dir := t.TempDir()
	clock := steppingClock(day)
	buf := session.NewBuffer(session.Options{Now: clock})
	w := NewWriter(dir)
	f := NewFlusher(buf, w, quietLogger(), WithClock(clock))

	_, err := w.EnsureHeader(day, true)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		buf.SwitchContext(fmt.Sprintf("App%d — doc", i), false)
		typeText(buf, fmt.Sprintf("text%d", i))
	}
	buf.SwitchContext("App3 — doc", false)
	typeText(buf, "text3")

	_, pendingSections := buf.Pending()
	require.Equal(t, 3, pendingSections)

	n, err := f.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	data, err := os.ReadFile(w.PathFor(day))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), "# Work Log —"), "header written once")

	doc, err := Parse(data)
	require.NoError(t, err)
	assert.Equal(t, "2026-03-14", doc.Date)
	assert.Len(t, doc.Starts, 1)
	require.Len(t, doc.Sections, 4)
	for i, s := range doc.Sections {
		assert.Equal(t, fmt.Sprintf("App%d — doc", i), s.Heading)
		require.Len(t, s.Events, 1)
		assert.Equal(t, fmt.Sprintf("text%d", i), s.Events[0].Text)
	}

	// Nothing left: a second flush writes nothing and adds no header.
	n, err = f.Flush(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
	again, err := os.ReadFile(w.PathFor(day))
	require.NoError(t, err)
	assert.Equal(t, data, again)
	assert.EqualValues(t, 4, f.Stats().SectionsWritten)
}

func TestFlushFailureDropsBatch(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0600))

	buf := session.NewBuffer(session.Options{Now: func() time.Time { return day }})
	var stderr bytes.Buffer
	f := NewFlusher(buf, NewWriter(blocker), quietLogger(), WithStderr(&stderr), WithClock(func() time.Time { return day }))

	typeText(buf, "lost")
	n, err := f.Flush(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 1, n)
	assert.Contains(t, stderr.String(), "worklogd:")

	st := f.Stats()
	assert.EqualValues(t, 1, st.WriteFailures)
	assert.EqualValues(t, 1, st.SectionsDropped)

	events, sections := buf.Pending()
	assert.Zero(t, events)
	assert.Zero(t, sections, "failed batch is not requeued")
}

func TestRecoverReplaysUncommittedBatch(t *testing.T) {
	dir := t.TempDir()
	spoolPath := filepath.Join(dir, "state", "flush.wal")
	w := NewWriter(filepath.Join(dir, "logs"))

	// A previous run spooled two batches and crashed before writing them.
	spool, err := OpenSpool(spoolPath, uuid.New())
	require.NoError(t, err)
	written := []session.Section{{ID: "01A", Heading: "Done — x", Timestamp: day,
		Events: []session.Event{{Kind: session.KindKeystrokes, Text: "already there"}}}}
	lost := []session.Section{{ID: "01B", Heading: "Lost — y", Timestamp: day.Add(time.Minute),
		Events: []session.Event{{Kind: session.KindClick, Text: "Button 'Save'"}}}}
	_, err = spool.Begin(written)
	require.NoError(t, err)
	require.NoError(t, w.Write(written))
	_, err = spool.Begin(lost)
	require.NoError(t, err)
	require.NoError(t, spool.Close())

	spool, err = OpenSpool(spoolPath, uuid.New())
	require.NoError(t, err)
	defer spool.Close()

	f := NewFlusher(session.NewBuffer(session.Options{}), w, quietLogger(), WithSpool(spool))
	n, err := f.Recover(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n, "sections already in the log are skipped")

	doc, err := ParseFile(w.PathFor(day))
	require.NoError(t, err)
	require.Len(t, doc.Sections, 2)
	assert.Equal(t, "01A", doc.Sections[0].ID)
	assert.Equal(t, "01B", doc.Sections[1].ID)

	n, err = f.Recover(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFlushCommitsSpool(t *testing.T) {
	dir := t.TempDir()
	spool, err := OpenSpool(filepath.Join(dir, "flush.wal"), uuid.New())
	require.NoError(t, err)
	defer spool.Close()

	buf := session.NewBuffer(session.Options{})
	f := NewFlusher(buf, NewWriter(dir), quietLogger(), WithSpool(spool))
	typeText(buf, "abc")
	_, err = f.Flush(context.Background())
	require.NoError(t, err)

	pending, err := spool.Pending()
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestParseSummary(t *testing.T) {
	var b strings.Builder
	b.WriteString(Header(day))
	b.WriteString(StartupMarker(day))
	b.WriteString(FormatSection(session.Section{ID: "1", Heading: "Mail — Inbox", Timestamp: day,
		Events: []session.Event{
			{Kind: session.KindKeystrokes, Text: "dear team,\n[ENTER]\nthanks"},
			{Kind: session.KindClick, Text: "Button 'Send'"},
		}}))
	b.WriteString(FormatSection(session.Section{ID: "2", Heading: "Editor — main.go", Timestamp: day.Add(time.Hour),
		Events: []session.Event{
			{Kind: session.KindScreen, Text: "package main\n\nfunc main() {}"},
			{Kind: session.KindClipboard, Text: "go test ./..."},
		}}))
	b.WriteString(FormatSection(session.Section{ID: "3", Heading: "Mail — Sent", Timestamp: day.Add(2 * time.Hour),
		Events: []session.Event{{Kind: session.KindKeystrokes, Text: "ok"}}}))

	doc, err := Parse([]byte(b.String()))
	require.NoError(t, err)
	require.Len(t, doc.Sections, 3)

	sec := doc.Sections[0]
	assert.Equal(t, "Mail — Inbox", sec.Heading)
	assert.Equal(t, "1", sec.ID)
	assert.Equal(t, "09:30:00", sec.Time)
	require.Len(t, sec.Events, 2)
	assert.Equal(t, "dear team,\n[ENTER]\nthanks", sec.Events[0].Text)
	assert.Equal(t, session.Event{Kind: session.KindClick, Text: "Button 'Send'"}, sec.Events[1])

	sec = doc.Sections[1]
	require.Len(t, sec.Events, 2)
	assert.Equal(t, session.Event{Kind: session.KindScreen, Text: "package main\n\nfunc main() {}"}, sec.Events[0])
	assert.Equal(t, session.Event{Kind: session.KindClipboard, Text: "go test ./..."}, sec.Events[1])

	sum := Summarize(doc)
	assert.Equal(t, "2026-03-14", sum.Date)
	assert.Equal(t, 1, sum.Starts)
	assert.Equal(t, 3, sum.Sections)
	assert.Equal(t, 2, sum.Events[session.KindKeystrokes])
	assert.Equal(t, "09:30:00", sum.First)
	assert.Equal(t, "11:30:00", sum.Last)
	require.NotEmpty(t, sum.Apps)
	assert.Equal(t, AppCount{App: "Mail", Sections: 2}, sum.Apps[0])
}

func TestSummarizeSecure(t *testing.T) {
	doc := &Document{Sections: []ParsedSection{
		{Heading: session.SecureHeadingPrefix + "1Password — Vault"},
		{Heading: "Mail — Inbox"},
	}}
	sum := Summarize(doc)
	assert.Equal(t, 1, sum.Secure)
	assert.Len(t, sum.Apps, 2)
}

func TestSectionIDsMissingFile(t *testing.T) {
	ids, err := SectionIDs(filepath.Join(t.TempDir(), "none.md"))
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestRender(t *testing.T) {
	src := []byte(Header(day) + FormatSection(session.Section{Heading: "Mail — Inbox", Timestamp: day,
		Events: []session.Event{{Kind: session.KindClick, Text: "Link"}}}))

	var out bytes.Buffer
	require.NoError(t, RenderPage("Work Log — 2026-03-14", src, &out))
	html := out.String()
	assert.Contains(t, html, "<title>Work Log — 2026-03-14</title>")
	assert.Contains(t, html, "<h1>Work Log — 2026-03-14</h1>")
	assert.Contains(t, html, "<h2>Mail — Inbox</h2>")
	assert.Contains(t, html, "<strong>Click:</strong>")
}

func TestInstanceLock(t *testing.T) {
	dir := t.TempDir()
	l, err := Lock(dir)
	require.NoError(t, err)

	_, err = Lock(dir)
	assert.ErrorIs(t, err, ErrLocked)

	require.NoError(t, l.Release())
	l2, err := Lock(dir)
	require.NoError(t, err)
	require.NoError(t, l2.Release())
	require.NoError(t, l2.Release())
}
