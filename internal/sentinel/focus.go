// Package sentinel follows the focused window and segments the session.
//
// A Sentinel polls a FocusSource on a fixed interval. Each successful poll is
// turned into a heading and a secure flag and applied to the session buffer
// in one step, which closes the current section when the context moved and
// pauses capture while a credential manager or the lock screen is in front.
// Failed polls leave the state untouched so capture continues under the last
// known heading.
package sentinel

import (
	"context"
	"errors"
	"time"

	"worklogd/internal/session"
)

// ErrNoWindow is returned when the source answered but reported no window.
var ErrNoWindow = errors.New("sentinel: no active window")

// WindowInfo describes the focused window.
type WindowInfo struct {
	// App is the application name.
	App string `json:"app"`

	// Title is the window title.
	Title string `json:"title"`

	// Timestamp is when this focus info was captured.
	Timestamp time.Time `json:"timestamp"`
}

// FocusSource answers which window has focus.
type FocusSource interface {
	// ActiveWindow returns the focused window. Implementations must honour
	// ctx cancellation and deadlines.
	ActiveWindow(ctx context.Context) (WindowInfo, error)

	// Name identifies the source in diagnostics.
	Name() string
}

// Prober is implemented by focus sources that can tell before polling
// whether they will work on this machine.
type Prober interface {
	Available() (bool, string)
}

// FormatHeading renders the section heading for a focus context.
func FormatHeading(info WindowInfo, secure bool) string {
	h := info.App + " — " + info.Title
	if secure {
		return session.SecureHeadingPrefix + h
	}
	return h
}
