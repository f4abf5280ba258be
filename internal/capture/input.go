// Package capture runs the producers that feed a session buffer and ties
// them to the flusher for the lifetime of the daemon.
package capture

import (
	"context"
	"errors"

	"worklogd/internal/keystroke"
)

// ErrInputNotAvailable is returned by input sources that cannot install a
// global hook on this platform or lack permission to.
var ErrInputNotAvailable = errors.New("capture: input hook not available")

// ClickEvent is a pointer button transition at screen coordinates.
type ClickEvent struct {
	X, Y    float64
	Pressed bool
}

// InputSink receives raw input. Calls come from the hook's own goroutine and
// must return quickly.
type InputSink interface {
	OnKey(ev keystroke.KeyEvent, pressed bool)
	OnClick(ctx context.Context, ev ClickEvent)
}

// InputSource delivers global keyboard and pointer events until ctx is
// cancelled.
type InputSource interface {
	Run(ctx context.Context, sink InputSink) error
}

// NoInput is the InputSource used when no native hook is linked in.
type NoInput struct{}

func (NoInput) Run(context.Context, InputSink) error { return ErrInputNotAvailable }

// InputFunc adapts a function to InputSource.
type InputFunc func(ctx context.Context, sink InputSink) error

func (f InputFunc) Run(ctx context.Context, sink InputSink) error { return f(ctx, sink) }
