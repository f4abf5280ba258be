package similarity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestRatio(t *testing.T) {
	tests := []struct {
		a, b string
		want float64
	}{
		{"", "", 1.0},
		{"abc", "", 0.0},
		{"hello world", "hello world", 1.0},
		{"abcd", "bcde", 0.75},
		{"привет", "привет", 1.0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, Ratio(tt.a, tt.b), 1e-9, "Ratio(%q, %q)", tt.a, tt.b)
	}
}

func TestGateSuppressesRepeats(t *testing.T) {
	g := NewGate(DefaultThreshold)

	assert.True(t, g.Offer("hello world"), "first snapshot emits")
	assert.False(t, g.Offer("hello world"), "identical snapshot is suppressed")
	assert.True(t, g.Offer("completely different text"))

	base, ok := g.Baseline()
	assert.True(t, ok)
	assert.Equal(t, "completely different text", base)
}

func TestGateSuppressKeepsBaseline(t *testing.T) {
	g := NewGate(0.5)
	g.Set("the quick brown fox")

	assert.False(t, g.Offer("the quick brown fix"))
	base, _ := g.Baseline()
	assert.Equal(t, "the quick brown fox", base)
}

func TestGateEmptyNeverEmits(t *testing.T) {
	g := NewGate(0)
	assert.Equal(t, DefaultThreshold, g.Threshold)
	assert.False(t, g.Offer(""))

	_, primed := g.Baseline()
	assert.False(t, primed)
}

func TestGateReset(t *testing.T) {
	g := NewGate(DefaultThreshold)
	g.Offer("inbox")
	assert.False(t, g.Offer("inbox"))

	g.Reset()
	assert.True(t, g.Offer("inbox"), "first snapshot after reset always emits")
}

func TestRatioProperties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := rapid.StringN(0, 120, -1).Draw(t, "a")
		b := rapid.StringN(0, 120, -1).Draw(t, "b")

		r := Ratio(a, b)
		if r < 0 || r > 1 {
			t.Fatalf("ratio out of range: %v", r)
		}
		if Ratio(a, a) != 1 {
			t.Fatalf("self ratio of %q is not 1", a)
		}
	})
}
