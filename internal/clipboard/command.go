package clipboard

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"sync"
)

// Unavailable is the Accessor used when no pasteboard backend exists.
type Unavailable struct{}

func (Unavailable) ChangeCount(context.Context) (int64, error) { return 0, ErrNotAvailable }
func (Unavailable) Text(context.Context) (string, error) { return "", ErrNotAvailable }

// DefaultCommands returns the paste helpers tried in order on this platform.
func DefaultCommands() [][]string {
	switch runtime.GOOS {
	case "darwin":
		return [][]string{{"pbpaste"}}
	case "windows":
		return [][]string{{"powershell", "-NoProfile", "-Command", "Get-Clipboard -Raw"}}
	default:
		return [][]string{
			{"xclip", "-selection", "clipboard", "-o"},
			{"xsel", "--clipboard", "--output"},
			{"wl-paste", "--no-newline"},
		}
	}
}

// CommandAccessor reads the pasteboard through command-line paste helpers.
// These expose no change counter, so one is synthesised from a hash of the
// contents. Only the hash is kept; Text runs the helper again.
type CommandAccessor struct {
	commands [][]string

	mu       sync.Mutex
	lastHash [32]byte
	count    int64
}

// NewCommandAccessor returns an accessor trying commands in order. With no
// commands, DefaultCommands is used.
func NewCommandAccessor(commands ...[]string) *CommandAccessor {
	if len(commands) == 0 {
		commands = DefaultCommands()
	}
	return &CommandAccessor{commands: commands}
}

// Available reports whether at least one helper is installed. When none is,
// every read fails with ErrNotAvailable.
func (c *CommandAccessor) Available() bool {
	for _, cmd := range c.commands {
		if _, err := exec.LookPath(cmd[0]); err == nil {
			return true
		}
	}
	return false
}

func (c *CommandAccessor) read(ctx context.Context) (string, error) {
	var lastErr error
	for _, cmd := range c.commands {
		out, err := exec.CommandContext(ctx, cmd[0], cmd[1:]...).Output()
		if err == nil {
			return strings.TrimSuffix(string(out), "\r\n"), nil
		}
		if errors.Is(err, exec.ErrNotFound) {
			continue
		}
		// Installed but failing, e.g. xclip on an empty clipboard.
		lastErr = fmt.Errorf("%s: %w", cmd[0], err)
	}
	if lastErr == nil {
		return "", ErrNotAvailable
	}
	return "", lastErr
}

// ChangeCount implements Accessor.
func (c *CommandAccessor) ChangeCount(ctx context.Context) (int64, error) {
	text, err := c.read(ctx)
	if err != nil {
		return 0, err
	}
	hash := sha256.Sum256([]byte(text))

	c.mu.Lock()
	defer c.mu.Unlock()
	if hash != c.lastHash {
		c.lastHash = hash
		c.count++
	}
	return c.count, nil
}

// Text implements Accessor.
func (c *CommandAccessor) Text(ctx context.Context) (string, error) {
	return c.read(ctx)
}
