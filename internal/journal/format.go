// Package journal persists sections to the daily Markdown work log and reads
// the log back.
package journal

import (
	"fmt"
	"strings"
	"time"

	"worklogd/internal/session"
)

// Layouts used in file names and section stamps.
const (
	DateLayout = "2006-01-02"
	TimeLayout = "15:04:05"
)

// Generator is named in the document header.
const Generator = "worklogd (keystrokes + clicks + screen text + clipboard, secure apps paused)"

// Event labels.
const (
	ClickLabel     = "🖱️ **Click:**"
	ScreenLabel    = "💻 **Screen:**"
	ClipboardLabel = "> [CLIPBOARD]:"
)

// sectionIDPrefix starts the comment line carrying a section's ID.
const sectionIDPrefix = "<!-- section: "

// FileName returns the log file name for the day containing t.
func FileName(t time.Time) string {
	return "daily_log_" + t.Format(DateLayout) + ".md"
}

// Header returns the document header written once per day file.
func Header(day time.Time) string {
	return fmt.Sprintf("# Work Log — %s\n\n> Auto-generated by %s\n\n---\n\n", day.Format(DateLayout), Generator)
}

// StartupMarker returns the line noting when the logger started.
func StartupMarker(t time.Time) string {
	return fmt.Sprintf("*Logger started at %s*\n\n---\n\n", t.Format(TimeLayout))
}

// FormatEvent renders one event as a Markdown paragraph, without the
// trailing blank line.
func FormatEvent(ev session.Event) string {
	switch ev.Kind {
	case session.KindClick:
		return ClickLabel + " " + ev.Text
	case session.KindScreen:
		return ScreenLabel + "\n" + fenced(ev.Text)
	case session.KindClipboard:
		return ClipboardLabel + "\n" + fenced(ev.Text)
	default:
		return ev.Text
	}
}

// fenced wraps text in a code fence longer than any backtick run inside it.
func fenced(text string) string {
	fence := strings.Repeat("`", max(3, longestRun(text, '`')+1))
	return fence + "text\n" + text + "\n" + fence
}

func longestRun(s string, c rune) int {
	best, cur := 0, 0
	for _, r := range s {
		if r == c {
			cur++
			best = max(best, cur)
		} else {
			cur = 0
		}
	}
	return best
}

// FormatSection renders a section block: heading, ID comment, timestamp,
// one paragraph per event and a closing rule.
func FormatSection(s session.Section) string {
	var b strings.Builder
	b.WriteString("## " + s.Heading + "\n")
	if s.ID != "" {
		b.WriteString(sectionIDPrefix + s.ID + " -->\n")
	}
	b.WriteString("*" + s.Timestamp.Format(TimeLayout) + "*\n\n")
	for _, ev := range s.Events {
		text := strings.TrimSpace(FormatEvent(ev))
		if text == "" {
			continue
		}
		b.WriteString(text + "\n\n")
	}
	b.WriteString("---\n\n")
	return b.String()
}
