//go:build linux

package sentinel

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// X11 reads the focused window with xdotool, falling back to xprop. It is
// the local alternative for sessions without an ActivityWatch server.
type X11 struct{}

var _ Prober = X11{}

// NewX11 returns the X11 focus source.
func NewX11() FocusSource { return X11{} }

// Name implements FocusSource.
func (X11) Name() string { return "x11" }

// Available reports whether an X display and one of the helper tools exist.
func (X11) Available() (bool, string) {
	switch detectDisplayServer() {
	case "x11":
		if _, err := exec.LookPath("xdotool"); err == nil {
			return true, "X11 focus available (xdotool)"
		}
		if _, err := exec.LookPath("xprop"); err == nil {
			return true, "X11 focus available (xprop)"
		}
		return false, "X11 detected but xdotool/xprop not found"
	case "wayland":
		return false, "Wayland does not expose the focused window; use ActivityWatch"
	default:
		return false, "no display server detected"
	}
}

// ActiveWindow implements FocusSource.
func (x X11) ActiveWindow(ctx context.Context) (WindowInfo, error) {
	if detectDisplayServer() != "x11" {
		return WindowInfo{}, errors.New("x11: no X display")
	}
	info, err := x.viaXdotool(ctx)
	if err != nil {
		info, err = x.viaXprop(ctx)
	}
	if err != nil {
		return WindowInfo{}, err
	}
	if info.Title == "" {
		return WindowInfo{}, ErrNoWindow
	}
	if info.App == "" {
		info.App = unknownApp
	}
	info.Timestamp = time.Now()
	return info, nil
}

func detectDisplayServer() string {
	if os.Getenv("WAYLAND_DISPLAY") != "" {
		// XWayland
		if os.Getenv("DISPLAY") != "" {
			return "x11"
		}
		return "wayland"
	}
	if os.Getenv("DISPLAY") != "" {
		return "x11"
	}
	return "unknown"
}

func run(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).Output()
	if err != nil {
		return "", fmt.Errorf("%s: %w", name, err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (X11) viaXdotool(ctx context.Context) (WindowInfo, error) {
	id, err := run(ctx, "xdotool", "getactivewindow")
	if err != nil {
		return WindowInfo{}, err
	}
	var info WindowInfo
	if title, err := run(ctx, "xdotool", "getwindowname", id); err == nil {
		info.Title = title
	}
	if out, err := run(ctx, "xdotool", "getwindowpid", id); err == nil {
		if pid, err := strconv.Atoi(out); err == nil {
			info.App = procName(pid)
		}
	}
	return info, nil
}

func (X11) viaXprop(ctx context.Context) (WindowInfo, error) {
	out, err := run(ctx, "xprop", "-root", "_NET_ACTIVE_WINDOW")
	if err != nil {
		return WindowInfo{}, err
	}
	// "_NET_ACTIVE_WINDOW(WINDOW): window id # 0x12345"
	parts := strings.Fields(out)
	if len(parts) < 5 {
		return WindowInfo{}, errors.New("xprop: unexpected output")
	}
	id := parts[len(parts)-1]

	props, err := run(ctx, "xprop", "-id", id, "WM_NAME", "WM_CLASS")
	if err != nil {
		return WindowInfo{}, err
	}
	return parseXprop(props), nil
}

// parseXprop extracts the title and application class from xprop output.
func parseXprop(out string) WindowInfo {
	var info WindowInfo
	for _, line := range strings.Split(out, "\n") {
		switch {
		case strings.HasPrefix(line, "WM_NAME"):
			// WM_NAME(STRING) = "Document - App"
			if idx := strings.Index(line, "= \""); idx != -1 {
				if end := strings.LastIndex(line, "\""); end > idx+3 {
					info.Title = line[idx+3 : end]
				}
			}
		case strings.HasPrefix(line, "WM_CLASS"):
			// WM_CLASS(STRING) = "instance", "class"
			if idx := strings.Index(line, ", \""); idx != -1 {
				if end := strings.LastIndex(line, "\""); end > idx+3 {
					info.App = line[idx+3 : end]
				}
			}
		}
	}
	return info
}

func procName(pid int) string {
	if pid <= 0 {
		return ""
	}
	if target, err := os.Readlink(fmt.Sprintf("/proc/%d/exe", pid)); err == nil {
		return filepath.Base(target)
	}
	if comm, err := os.ReadFile(fmt.Sprintf("/proc/%d/comm", pid)); err == nil {
		return strings.TrimSpace(string(comm))
	}
	return ""
}
