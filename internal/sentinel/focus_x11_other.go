//go:build !linux

package sentinel

import (
	"context"
	"errors"
)

// X11 is only implemented on Linux.
type X11 struct{}

var _ Prober = X11{}

// NewX11 returns the X11 focus source.
func NewX11() FocusSource { return X11{} }

func (X11) Name() string { return "x11" }

func (X11) Available() (bool, string) { return false, "X11 focus is only supported on Linux" }

func (X11) ActiveWindow(context.Context) (WindowInfo, error) {
	return WindowInfo{}, errors.New("x11: not supported on this platform")
}
