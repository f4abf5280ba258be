package keystroke

import "strings"

// Modifier names a modifier key as it appears in chord tokens.
type Modifier string

const (
	ModCmd   Modifier = "CMD"
	ModCtrl  Modifier = "CTRL"
	ModOpt   Modifier = "OPT"
	ModShift Modifier = "SHIFT"
)

// ordered lists modifiers in the sort order used for chord tokens.
var ordered = []Modifier{ModCmd, ModCtrl, ModOpt, ModShift}

// ModifierSet is a set of held modifier keys.
type ModifierSet uint8

func bit(m Modifier) ModifierSet {
	for i, o := range ordered {
		if o == m {
			return 1 << i
		}
	}
	return 0
}

// NewModifierSet builds a set from the given modifiers.
func NewModifierSet(mods ...Modifier) ModifierSet {
	var s ModifierSet
	for _, m := range mods {
		s = s.With(m)
	}
	return s
}

// With returns the set with m added.
func (s ModifierSet) With(m Modifier) ModifierSet {
	return s | bit(m)
}

// Without returns the set with m removed.
func (s ModifierSet) Without(m Modifier) ModifierSet {
	return s &^ bit(m)
}

// Has reports whether m is held.
func (s ModifierSet) Has(m Modifier) bool {
	b := bit(m)
	return b != 0 && s&b != 0
}

// Empty reports whether no modifier is held.
func (s ModifierSet) Empty() bool {
	return s == 0
}

// IsChord reports whether a non-shift modifier is held, which turns the next
// character into a bracketed chord token.
func (s ModifierSet) IsChord() bool {
	return s.Without(ModShift) != 0
}

// Members returns the held modifiers in sorted order.
func (s ModifierSet) Members() []Modifier {
	var out []Modifier
	for _, m := range ordered {
		if s.Has(m) {
			out = append(out, m)
		}
	}
	return out
}

// String joins the held modifiers with "+", e.g. "CMD+SHIFT".
func (s ModifierSet) String() string {
	members := s.Members()
	parts := make([]string, len(members))
	for i, m := range members {
		parts[i] = string(m)
	}
	return strings.Join(parts, "+")
}
