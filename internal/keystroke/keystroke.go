// Package keystroke coalesces raw key signals into readable text.
//
// A Coalescer turns the press/release stream of one focus context into a
// single text token: printable characters are appended literally, modifier
// chords become bracketed tokens such as [CMD+C], and editing keys map to
// fixed placeholders. The Coalescer is not safe for concurrent use; the
// session buffer owns it and serialises access under its own lock.
package keystroke

import (
	"fmt"
	"strings"
	"time"
)

// Placeholder tokens appended for non-printable keys.
const (
	TokenEnter  = "\n[ENTER]\n"
	TokenTab    = "[TAB]"
	TokenSpace  = " "
	TokenEscape = "[ESC]"
)

// KeyType categorizes a raw key signal.
type KeyType int

const (
	KeyUnknown   KeyType = iota
	KeyCharacter         // Printable characters, or keys identified only by virtual key code
	KeyBackspace         // Backspace/Delete backward
	KeyReturn            // Enter/Return
	KeyTab               // Tab
	KeySpace             // Space bar
	KeyEscape            // Escape
	KeyModifier          // Shift, Ctrl, Alt/Option, Cmd
)

// String returns the name of the key type.
func (t KeyType) String() string {
	switch t {
	case KeyCharacter:
		return "character"
	case KeyBackspace:
		return "backspace"
	case KeyReturn:
		return "return"
	case KeyTab:
		return "tab"
	case KeySpace:
		return "space"
	case KeyEscape:
		return "escape"
	case KeyModifier:
		return "modifier"
	default:
		return "unknown"
	}
}

// KeyEvent is one press or release delivered by an input hook.
type KeyEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Type      KeyType   `json:"type"`

	// Character is the produced character, zero when the hook could not map
	// the key to one.
	Character rune `json:"character,omitempty"`

	// KeyCode is the platform virtual key code, used when Character is zero.
	KeyCode uint16 `json:"key_code,omitempty"`

	// Modifier identifies the modifier key for KeyModifier events.
	Modifier Modifier `json:"modifier,omitempty"`
}

// text returns the printable form of a character event.
func (e KeyEvent) text() string {
	if e.Character != 0 {
		return string(e.Character)
	}
	if e.KeyCode != 0 {
		return fmt.Sprintf("VK_%d", e.KeyCode)
	}
	return ""
}

// Coalescer accumulates pending tokens for the current focus context.
type Coalescer struct {
	pending []string
	mods    ModifierSet
}

// Press applies a key-down signal.
func (c *Coalescer) Press(ev KeyEvent) {
	switch ev.Type {
	case KeyModifier:
		c.mods = c.mods.With(ev.Modifier)
	case KeyReturn:
		c.pending = append(c.pending, TokenEnter)
	case KeyTab:
		c.pending = append(c.pending, TokenTab)
	case KeySpace:
		c.pending = append(c.pending, TokenSpace)
	case KeyEscape:
		c.pending = append(c.pending, TokenEscape)
	case KeyBackspace:
		if n := len(c.pending); n > 0 {
			c.pending = c.pending[:n-1]
		}
	case KeyCharacter:
		char := ev.text()
		if char == "" {
			return
		}
		if c.mods.IsChord() {
			c.pending = append(c.pending, "["+c.mods.String()+"+"+strings.ToUpper(char)+"]")
			return
		}
		c.pending = append(c.pending, char)
	}
}

// Release applies a key-up signal. Only modifier releases have an effect.
func (c *Coalescer) Release(ev KeyEvent) {
	if ev.Type == KeyModifier {
		c.mods = c.mods.Without(ev.Modifier)
	}
}

// Flush joins the pending tokens into one string and clears them.
// It reports false when nothing was pending.
func (c *Coalescer) Flush() (string, bool) {
	if len(c.pending) == 0 {
		return "", false
	}
	text := strings.Join(c.pending, "")
	c.pending = c.pending[:0]
	return text, true
}

// Pending returns the number of buffered tokens.
func (c *Coalescer) Pending() int {
	return len(c.pending)
}

// Modifiers returns the currently held modifiers.
func (c *Coalescer) Modifiers() ModifierSet {
	return c.mods
}

// ClearModifiers forgets every held modifier.
func (c *Coalescer) ClearModifiers() {
	c.mods = 0
}
