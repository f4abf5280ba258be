package config

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

var validLevels = map[string]bool{"debug": true, "info": true, "warn": true, "warning": true, "error": true}

// ValidateConfig checks every section and returns all problems at once.
func ValidateConfig(c *Config) error {
	var errs ValidationErrors
	add := func(field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...)})
	}

	if c.Version < 1 || c.Version > Version {
		add("version", "unsupported version %d (current: %d)", c.Version, Version)
	}

	if c.Paths.LogDir == "" {
		add("paths.log_dir", "must not be empty")
	}
	if c.Paths.StateDir == "" {
		add("paths.state_dir", "must not be empty")
	}

	switch c.Focus.Source {
	case SourceActivityWatch:
		if u, err := url.Parse(c.Focus.URL); err != nil || u.Scheme == "" || u.Host == "" {
			add("focus.url", "invalid URL %q", c.Focus.URL)
		}
	case SourceX11:
	default:
		add("focus.source", "unknown source %q", c.Focus.Source)
	}
	if c.Focus.IntervalSec < 1 {
		add("focus.interval_sec", "must be at least 1")
	}
	if c.Focus.TimeoutMs < 1 {
		add("focus.timeout_ms", "must be positive")
	}

	if c.Capture.MaxDepth < 0 {
		add("capture.max_depth", "must not be negative")
	}
	if c.Capture.MaxScreenRunes < 1 {
		add("capture.max_screen_runes", "must be positive")
	}
	if c.Capture.ClickSettleMs < 0 {
		add("capture.click_settle_ms", "must not be negative")
	}
	if c.Capture.ClipboardIntervalMs < 50 {
		add("capture.clipboard_interval_ms", "must be at least 50")
	}
	if t := c.Capture.SimilarityThreshold; t <= 0 || t > 1 {
		add("capture.similarity_threshold", "must be in (0, 1], got %v", t)
	}

	for i, p := range c.Privacy.RedactPatterns {
		if _, err := regexp.Compile(p); err != nil {
			add(fmt.Sprintf("privacy.redact_patterns[%d]", i), "invalid pattern: %v", err)
		}
	}

	if c.Flush.IntervalSec < 1 {
		add("flush.interval_sec", "must be at least 1")
	}
	if c.Tasks.Limit < 1 {
		add("tasks.limit", "must be at least 1")
	}

	if !validLevels[strings.ToLower(c.Logging.Level)] {
		add("logging.level", "unknown level %q", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "text", "json":
	default:
		add("logging.format", "must be text or json")
	}
	switch c.Logging.Output {
	case "stderr", "stdout":
	case "file", "both":
		if c.Logging.FilePath == "" {
			add("logging.file_path", "required for output %q", c.Logging.Output)
		}
	default:
		add("logging.output", "must be stdout, stderr, file or both")
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
