// Package accessibility reads visible text out of a UI element tree.
//
// The element tree itself comes from a platform accessibility API behind the
// Provider interface. This package only defines the walk: which roles carry
// text, where secure fields are cut off, and how deep the walk may go.
package accessibility

import (
	"context"
	"errors"
	"strings"

	"worklogd/internal/redact"
)

// DefaultMaxDepth bounds the tree walk; the root is depth 0.
const DefaultMaxDepth = 7

// ErrNotAvailable is returned by providers that cannot reach an
// accessibility API on this platform.
var ErrNotAvailable = errors.New("accessibility: not available")

// Attributes are the element properties the walk consumes. Empty strings
// mean the attribute is absent.
type Attributes struct {
	Role    string `json:"role"`
	Subrole string `json:"subrole,omitempty"`
	Title   string `json:"title,omitempty"`
	Value   string `json:"value,omitempty"`
}

// Element is one node of an accessibility tree.
type Element interface {
	Attributes() (Attributes, error)
	Children() ([]Element, error)
}

// Provider resolves elements from the live session.
type Provider interface {
	// Available reports whether the backend can be queried at all.
	Available() bool

	// FocusedWindow returns the focused window of the frontmost application.
	FocusedWindow(ctx context.Context) (Element, error)

	// ElementAt returns the element under the given screen coordinates.
	ElementAt(ctx context.Context, x, y float64) (Element, error)
}

// Unavailable is the Provider used when no accessibility backend exists.
type Unavailable struct{}

func (Unavailable) Available() bool { return false }

func (Unavailable) FocusedWindow(context.Context) (Element, error) {
	return nil, ErrNotAvailable
}

func (Unavailable) ElementAt(context.Context, float64, float64) (Element, error) {
	return nil, ErrNotAvailable
}

// textRoles carry readable text in their value or title.
var textRoles = map[string]bool{
	"StaticText": true,
	"TextArea":   true,
	"TextField":  true,
	"Heading":    true,
	"Link":       true,
	"Button":     true,
}

// CleanRole strips the platform "AX" prefix from a role name.
func CleanRole(role string) string {
	return strings.TrimPrefix(role, "AX")
}

// Extract walks root depth-first and joins the text of every text-bearing
// element with single spaces. Secure fields contribute the hidden-field
// token and are not descended into. Elements whose attributes cannot be read
// contribute nothing. The walk stops early when ctx is cancelled.
func Extract(ctx context.Context, root Element, maxDepth int) string {
	if maxDepth < 0 {
		maxDepth = DefaultMaxDepth
	}
	return extract(ctx, root, 0, maxDepth)
}

func extract(ctx context.Context, el Element, depth, maxDepth int) string {
	if el == nil || depth > maxDepth || ctx.Err() != nil {
		return ""
	}
	attrs, err := el.Attributes()
	if err != nil || attrs.Role == "" {
		return ""
	}
	if secure, repl := redact.ClassifyElement(attrs.Role, attrs.Subrole); secure {
		return " " + repl + " "
	}

	var parts []string
	if textRoles[CleanRole(attrs.Role)] {
		if attrs.Value != "" {
			parts = append(parts, attrs.Value)
		} else if attrs.Title != "" {
			parts = append(parts, attrs.Title)
		}
	}

	children, err := el.Children()
	if err == nil {
		for _, child := range children {
			if txt := extract(ctx, child, depth+1, maxDepth); txt != "" {
				parts = append(parts, txt)
			}
		}
	}
	return strings.Join(parts, " ")
}

// Normalize collapses all runs of whitespace to single spaces and trims the
// ends.
func Normalize(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

// Truncate cuts text to at most limit runes. A non-positive limit disables
// truncation.
func Truncate(text string, limit int) string {
	if limit <= 0 {
		return text
	}
	n := 0
	for i := range text {
		if n == limit {
			return text[:i]
		}
		n++
	}
	return text
}

// Describe renders an element as "Role 'Name'" for click events, preferring
// the title over the value as the name. Secure elements are described only
// by the hidden-field token.
func Describe(el Element) string {
	attrs, err := el.Attributes()
	if err != nil {
		attrs = Attributes{}
	}
	if secure, repl := redact.ClassifyElement(attrs.Role, attrs.Subrole); secure {
		return repl
	}
	role := CleanRole(attrs.Role)
	if role == "" {
		role = "Unknown"
	}
	name := attrs.Title
	if name == "" {
		name = attrs.Value
	}
	if name == "" {
		return role
	}
	return role + " '" + name + "'"
}
