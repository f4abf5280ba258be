package keystroke

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func char(r rune) KeyEvent { return KeyEvent{Type: KeyCharacter, Character: r} }
func mod(m Modifier) KeyEvent { return KeyEvent{Type: KeyModifier, Modifier: m} }
func key(t KeyType) KeyEvent { return KeyEvent{Type: t} }
func vk(code uint16) KeyEvent { return KeyEvent{Type: KeyCharacter, KeyCode: code} }

func press(c *Coalescer, evs ...KeyEvent) {
	for _, ev := range evs {
		c.Press(ev)
	}
}

func TestCoalescerTokens(t *testing.T) {
	tests := []struct {
		name   string
		events []KeyEvent
		want   string
	}{
		{"literal", []KeyEvent{char('h'), char('i')}, "hi"},
		{"enter", []KeyEvent{char('a'), key(KeyReturn), char('b')}, "a\n[ENTER]\nb"},
		{"tab", []KeyEvent{key(KeyTab)}, "[TAB]"},
		{"space", []KeyEvent{char('a'), key(KeySpace), char('b')}, "a b"},
		{"escape", []KeyEvent{key(KeyEscape)}, "[ESC]"},
		{"virtual key", []KeyEvent{vk(122)}, "VK_122"},
		{"chord", []KeyEvent{mod(ModCmd), char('c')}, "[CMD+C]"},
		{"chord sorted", []KeyEvent{mod(ModShift), mod(ModCtrl), mod(ModCmd), char('z')}, "[CMD+CTRL+SHIFT+Z]"},
		{"shift alone is literal", []KeyEvent{mod(ModShift), char('A')}, "A"},
		{"chord with virtual key", []KeyEvent{mod(ModOpt), vk(7)}, "[OPT+VK_7]"},
		{"backspace pops token", []KeyEvent{char('a'), char('b'), key(KeyBackspace)}, "a"},
		{"backspace pops whole chord", []KeyEvent{char('a'), mod(ModCmd), char('v'), key(KeyBackspace)}, "a"},
		{"unknown ignored", []KeyEvent{key(KeyUnknown), char('x')}, "x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Coalescer
			press(&c, tt.events...)
			got, ok := c.Flush()
			require.True(t, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCoalescerReleaseEndsChord(t *testing.T) {
	var c Coalescer
	press(&c, mod(ModCmd), char('s'))
	c.Release(mod(ModCmd))
	press(&c, char('s'))

	got, ok := c.Flush()
	require.True(t, ok)
	assert.Equal(t, "[CMD+S]s", got)
}

func TestCoalescerEmptyFlush(t *testing.T) {
	var c Coalescer
	got, ok := c.Flush()
	assert.False(t, ok)
	assert.Empty(t, got)

	press(&c, char('a'))
	_, ok = c.Flush()
	require.True(t, ok)

	_, ok = c.Flush()
	assert.False(t, ok, "second flush must be a no-op")
}

func TestCoalescerBackspaceOnEmpty(t *testing.T) {
	var c Coalescer
	press(&c, key(KeyBackspace), key(KeyBackspace))
	assert.Equal(t, 0, c.Pending())

	_, ok := c.Flush()
	assert.False(t, ok)
}

func TestCoalescerModifiersOnlyProduceNothing(t *testing.T) {
	var c Coalescer
	press(&c, mod(ModCmd), mod(ModShift))
	assert.Equal(t, 0, c.Pending())
	assert.Equal(t, "CMD+SHIFT", c.Modifiers().String())

	c.ClearModifiers()
	assert.True(t, c.Modifiers().Empty())
}

func TestModifierSet(t *testing.T) {
	s := NewModifierSet(ModShift, ModCmd)
	assert.True(t, s.Has(ModCmd))
	assert.False(t, s.Has(ModCtrl))
	assert.True(t, s.IsChord())
	assert.Equal(t, []Modifier{ModCmd, ModShift}, s.Members())

	s = s.Without(ModCmd)
	assert.False(t, s.IsChord())
	assert.False(t, s.Has(Modifier("HYPER")))
	assert.Equal(t, s, s.With(Modifier("HYPER")))
}

// Backspace never removes more than it must and the flushed text is always
// the concatenation of surviving tokens.
func TestCoalescerProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		var c Coalescer
		var model []string

		n := rapid.IntRange(0, 60).Draw(t, "n")
		for i := 0; i < n; i++ {
			if rapid.Bool().Draw(t, "backspace") {
				c.Press(key(KeyBackspace))
				if len(model) > 0 {
					model = model[:len(model)-1]
				}
				continue
			}
			r := rapid.RuneFrom([]rune("abcXYZ019.,")).Draw(t, "rune")
			c.Press(char(r))
			model = append(model, string(r))
		}

		got, ok := c.Flush()
		if ok != (len(model) > 0) {
			t.Fatalf("flush ok=%v with %d model tokens", ok, len(model))
		}
		if want := strings.Join(model, ""); got != want {
			t.Fatalf("got %q, want %q", got, want)
		}
		if c.Pending() != 0 {
			t.Fatalf("pending after flush: %d", c.Pending())
		}
	})
}
