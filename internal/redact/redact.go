// Package redact decides what must never reach the work log.
//
// Two independent gates apply. ClassifyElement hides secure input fields
// found while walking an accessibility tree. Filter.IsSecureContext pauses
// capture entirely while a credential manager is in focus. A Scrubber
// additionally masks well-known secret shapes in free text.
package redact

import (
	"strings"
	"sync/atomic"
)

// HiddenFieldToken replaces the content of a secure input field.
const HiddenFieldToken = "[SECURE_FIELD_HIDDEN]"

// DefaultSecureApps lists identifiers of common credential managers.
var DefaultSecureApps = []string{
	"1password",
	"bitwarden",
	"keychain",
	"keepass",
	"lastpass",
	"passwords",
}

// ClassifyElement reports whether an element with the given role and subrole
// holds secret input. When it does, the returned replacement is emitted in
// place of the element and its subtree.
func ClassifyElement(role, subrole string) (bool, string) {
	if strings.Contains(role, "SecureTextField") ||
		strings.Contains(subrole, "SecureTextField") ||
		strings.Contains(role, "Password") {
		return true, HiddenFieldToken
	}
	return false, ""
}

type filterState struct {
	apps     []string
	scrubber *Scrubber
}

// Filter holds the hot-swappable privacy configuration. It is safe for
// concurrent use: readers never block a reload.
type Filter struct {
	state atomic.Pointer[filterState]
}

// NewFilter returns a Filter matching apps (case-insensitively) and masking
// text with scrubber, which may be nil.
func NewFilter(apps []string, scrubber *Scrubber) *Filter {
	f := &Filter{}
	f.Update(apps, scrubber)
	return f
}

// Update atomically replaces the identifier list and scrubber.
func (f *Filter) Update(apps []string, scrubber *Scrubber) {
	normalized := make([]string, 0, len(apps))
	for _, a := range apps {
		a = strings.ToLower(strings.TrimSpace(a))
		if a != "" {
			normalized = append(normalized, a)
		}
	}
	f.state.Store(&filterState{apps: normalized, scrubber: scrubber})
}

// Identifiers returns a copy of the active identifier list.
func (f *Filter) Identifiers() []string {
	s := f.state.Load()
	if s == nil {
		return nil
	}
	return append([]string(nil), s.apps...)
}

// IsSecureContext reports whether the focused app or window title names a
// configured credential manager.
func (f *Filter) IsSecureContext(app, title string) bool {
	s := f.state.Load()
	if s == nil {
		return false
	}
	app = strings.ToLower(app)
	title = strings.ToLower(title)
	for _, id := range s.apps {
		if strings.Contains(app, id) || strings.Contains(title, id) {
			return true
		}
	}
	return false
}

// Scrub masks configured patterns in text. It returns text unchanged when
// no scrubber is configured.
func (f *Filter) Scrub(text string) string {
	s := f.state.Load()
	if s == nil || s.scrubber == nil {
		return text
	}
	return s.scrubber.Apply(text)
}
