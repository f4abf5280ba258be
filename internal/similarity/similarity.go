// Package similarity decides whether a new text snapshot differs enough from
// the last emitted one to be worth recording.
package similarity

import (
	"github.com/pmezard/go-difflib/difflib"
)

// DefaultThreshold is the ratio at or above which a snapshot is treated as a
// repeat of the baseline.
const DefaultThreshold = 0.9

// Ratio returns the matching-blocks similarity of a and b in [0, 1], computed
// as 2*M/T over runes where M is the number of matched runes and T the total
// rune count of both inputs. Two empty strings are identical.
func Ratio(a, b string) float64 {
	m := difflib.NewMatcher(split(a), split(b))
	return m.Ratio()
}

func split(s string) []string {
	out := make([]string, 0, len(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}

// Gate suppresses snapshots that are near-duplicates of the last emitted one.
// A Gate is not safe for concurrent use.
type Gate struct {
	Threshold float64

	baseline string
	primed   bool
}

// NewGate returns a Gate using threshold, or DefaultThreshold when threshold
// is outside (0, 1].
func NewGate(threshold float64) *Gate {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &Gate{Threshold: threshold}
}

// Admits reports whether candidate would be emitted against the current
// baseline, along with the computed ratio. It does not change the baseline.
func (g *Gate) Admits(candidate string) (bool, float64) {
	if candidate == "" {
		return false, 0
	}
	if !g.primed {
		return true, 0
	}
	r := Ratio(g.baseline, candidate)
	return g.Below(r), r
}

// Offer emits candidate when it is not a near-duplicate of the baseline and,
// on emit, makes it the new baseline.
func (g *Gate) Offer(candidate string) bool {
	ok, _ := g.Admits(candidate)
	if ok {
		g.Set(candidate)
	}
	return ok
}

// Below reports whether ratio is under the gate threshold, i.e. whether a
// candidate with that ratio against the baseline would emit.
func (g *Gate) Below(ratio float64) bool {
	return ratio < g.threshold()
}

// Set replaces the baseline unconditionally.
func (g *Gate) Set(baseline string) {
	g.baseline = baseline
	g.primed = true
}

// Baseline returns the last emitted text and whether one exists.
func (g *Gate) Baseline() (string, bool) {
	return g.baseline, g.primed
}

// Reset clears the baseline so the next non-empty candidate always emits.
func (g *Gate) Reset() {
	g.baseline = ""
	g.primed = false
}

func (g *Gate) threshold() float64 {
	if g.Threshold <= 0 || g.Threshold > 1 {
		return DefaultThreshold
	}
	return g.Threshold
}
