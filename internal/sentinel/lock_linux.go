//go:build linux

package sentinel

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/godbus/dbus/v5"
)

// Screensaver services that expose GetActive on the session bus.
var screenSavers = []struct {
	dest, path, iface string
}{
	{"org.freedesktop.ScreenSaver", "/org/freedesktop/ScreenSaver", "org.freedesktop.ScreenSaver"},
	{"org.gnome.ScreenSaver", "/org/gnome/ScreenSaver", "org.gnome.ScreenSaver"},
}

// ScreenSaverProbe asks the desktop screensaver over D-Bus whether the
// session is locked.
type ScreenSaverProbe struct {
	mu   sync.Mutex
	conn *dbus.Conn
}

// NewLockProbe returns the platform lock probe.
func NewLockProbe() LockProbe { return &ScreenSaverProbe{} }

func (p *ScreenSaverProbe) connect() (*dbus.Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil && p.conn.Connected() {
		return p.conn, nil
	}
	conn, err := dbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}
	p.conn = conn
	return conn, nil
}

// Locked implements LockProbe. The first screensaver service that answers
// decides.
func (p *ScreenSaverProbe) Locked(ctx context.Context) (bool, error) {
	conn, err := p.connect()
	if err != nil {
		return false, err
	}

	var errs []error
	for _, s := range screenSavers {
		var active bool
		call := conn.Object(s.dest, dbus.ObjectPath(s.path)).CallWithContext(ctx, s.iface+".GetActive", 0)
		if err := call.Store(&active); err != nil {
			errs = append(errs, err)
			continue
		}
		return active, nil
	}
	return false, errors.Join(errs...)
}
