package redact

import (
	"fmt"
	"regexp"
	"strings"
)

// Mask replaces every scrubbed match.
const Mask = "[REDACTED]"

// Presets maps preset names usable in configuration to their expressions.
var Presets = map[string]string{
	"email": `(?i)[a-z0-9._%+-]+@[a-z0-9.-]+\.[a-z]{2,}`,
	"cc16":  `\b(?:\d[ -]?){16}\b`,
	"jwt":   `eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9._-]+\.[A-Za-z0-9._-]+`,
}

// Scrubber masks regular-expression matches in free text.
//
// The zero value is a no-op scrubber.
type Scrubber struct {
	patterns []*regexp.Regexp
}

// NewScrubber compiles exprs, each either a preset name or a regular
// expression. Blank entries are skipped.
func NewScrubber(exprs []string) (*Scrubber, error) {
	patterns := make([]*regexp.Regexp, 0, len(exprs))
	for _, expr := range exprs {
		trimmed := strings.TrimSpace(expr)
		if trimmed == "" {
			continue
		}
		candidate := trimmed
		if mapped, ok := Presets[strings.ToLower(trimmed)]; ok {
			candidate = mapped
		}
		rx, err := regexp.Compile(candidate)
		if err != nil {
			return nil, fmt.Errorf("compile redact pattern %q: %w", trimmed, err)
		}
		patterns = append(patterns, rx)
	}
	return &Scrubber{patterns: patterns}, nil
}

// Len returns the number of compiled patterns.
func (s *Scrubber) Len() int {
	if s == nil {
		return 0
	}
	return len(s.patterns)
}

// Apply returns input with every match replaced by Mask.
func (s *Scrubber) Apply(input string) string {
	if s == nil || len(s.patterns) == 0 {
		return input
	}
	out := input
	for _, rx := range s.patterns {
		out = rx.ReplaceAllString(out, Mask)
	}
	return out
}
