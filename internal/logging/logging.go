// Package logging provides the worklogd diagnostics trace on top of slog.
//
// The trace records daemon health only: service availability, write
// failures, task drops and crashes. Attributes whose keys suggest captured
// content or credentials are replaced before they reach any handler, so a
// careless log call cannot leak what the work log itself hides.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Level represents a logging level.
type Level = slog.Level

// Log levels.
const (
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
)

// RedactedValue replaces sensitive attribute values.
const RedactedValue = "[REDACTED]"

// Format represents the output format for logs.
type Format int

const (
	// FormatText outputs human-readable text logs.
	FormatText Format = iota
	// FormatJSON outputs JSON-structured logs.
	FormatJSON
)

// Config holds the logging configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level Level

	// Format is the output format (text or JSON).
	Format Format

	// Output is "stdout", "stderr", "file", or "both" (stderr and file).
	Output string

	// FilePath is the diagnostics file when Output includes a file.
	FilePath string

	// FallbackPath is tried when FilePath cannot be opened.
	FallbackPath string

	// MaxSize is the diagnostics file size in megabytes that triggers rotation.
	MaxSize int64

	// MaxBackups is the number of rotated files kept.
	MaxBackups int

	// AddSource adds source file and line to log entries.
	AddSource bool

	// Component is attached to every record.
	Component string

	// RunID identifies this daemon run; empty omits the attribute.
	RunID string

	// Stderr overrides os.Stderr, for tests.
	Stderr io.Writer
}

// DefaultConfig returns a default logging configuration.
func DefaultConfig() *Config {
	return &Config{
		Level:        LevelInfo,
		Format:       FormatText,
		Output:       "stderr",
		FallbackPath: filepath.Join(os.TempDir(), "worklogd_diagnostics.log"),
		MaxSize:      10,
		MaxBackups:   3,
		Component:    "worklogd",
	}
}

// Logger wraps slog.Logger with the file it writes to.
type Logger struct {
	*slog.Logger
	config  *Config
	rotator *FileRotator
	path    string
	mu      sync.Mutex
}

// New creates a Logger. When the configured file cannot be opened the
// fallback path is used; New fails only if neither can be opened.
func New(cfg *Config) (*Logger, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	l := &Logger{config: cfg}
	writers, err := l.setupWriters()
	if err != nil {
		return nil, fmt.Errorf("setup writers: %w", err)
	}

	var w io.Writer
	if len(writers) == 1 {
		w = writers[0]
	} else {
		w = io.MultiWriter(writers...)
	}

	l.Logger = slog.New(NewHandler(w, cfg))
	return l, nil
}

// NewHandler builds the redacting slog handler New uses, writing to w.
func NewHandler(w io.Writer, cfg *Config) slog.Handler {
	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if shouldRedact(a.Key) {
				a.Value = slog.StringValue(RedactedValue)
			}
			return a
		},
	}

	var handler slog.Handler
	switch cfg.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(w, opts)
	default:
		handler = slog.NewTextHandler(w, opts)
	}

	var attrs []slog.Attr
	if cfg.Component != "" {
		attrs = append(attrs, slog.String("component", cfg.Component))
	}
	if cfg.RunID != "" {
		attrs = append(attrs, slog.String("run_id", cfg.RunID))
	}
	if len(attrs) > 0 {
		handler = handler.WithAttrs(attrs)
	}
	return handler
}

func (l *Logger) stderr() io.Writer {
	if l.config.Stderr != nil {
		return l.config.Stderr
	}
	return os.Stderr
}

func (l *Logger) setupWriters() ([]io.Writer, error) {
	switch strings.ToLower(l.config.Output) {
	case "stdout":
		return []io.Writer{os.Stdout}, nil
	case "file":
		if err := l.openFile(); err != nil {
			return nil, err
		}
		return []io.Writer{l.rotator}, nil
	case "both":
		if err := l.openFile(); err != nil {
			return nil, err
		}
		return []io.Writer{l.stderr(), l.rotator}, nil
	default:
		return []io.Writer{l.stderr()}, nil
	}
}

func (l *Logger) openFile() error {
	rotator, err := NewFileRotator(l.config.FilePath, l.config.MaxSize, l.config.MaxBackups)
	if err != nil && l.config.FallbackPath != "" && l.config.FallbackPath != l.config.FilePath {
		fmt.Fprintf(l.stderr(), "worklogd: diagnostics file %s unavailable (%v), using %s\n",
			l.config.FilePath, err, l.config.FallbackPath)
		rotator, err = NewFileRotator(l.config.FallbackPath, l.config.MaxSize, l.config.MaxBackups)
	}
	if err != nil {
		return err
	}
	l.rotator = rotator
	l.path = rotator.Path()
	return nil
}

// sensitiveKeys name attributes that may carry captured text or secrets.
// Keys are matched per word, so "screen_text" is redacted and "context" is not.
var sensitiveKeys = map[string]bool{
	"password": true, "secret": true, "token": true, "credential": true,
	"cookie": true, "auth": true, "text": true, "content": true,
	"clipboard": true, "keystroke": true, "keystrokes": true, "value": true,
}

// shouldRedact checks if an attribute key names sensitive data.
func shouldRedact(key string) bool {
	words := strings.FieldsFunc(strings.ToLower(key), func(r rune) bool {
		return r == '_' || r == '.' || r == '-'
	})
	for _, w := range words {
		if sensitiveKeys[w] {
			return true
		}
	}
	return false
}

// WithComponent returns a new logger with a different component name.
func (l *Logger) WithComponent(name string) *Logger {
	return &Logger{
		Logger:  l.Logger.With(slog.String("component", name)),
		config:  l.config,
		rotator: l.rotator,
		path:    l.path,
	}
}

// Path returns the diagnostics file in use, or "" when logging to a stream.
func (l *Logger) Path() string {
	return l.path
}

// Close closes the diagnostics file.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.rotator != nil {
		return l.rotator.Close()
	}
	return nil
}

// Sync flushes the diagnostics file to disk.
func (l *Logger) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.rotator != nil {
		return l.rotator.Sync()
	}
	return nil
}

// SetDefault installs l as the process-wide slog default.
func SetDefault(l *Logger) {
	slog.SetDefault(l.Logger)
}

// ParseLevel parses a string into a log level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return LevelDebug, nil
	case "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s", s)
	}
}

// ParseFormat parses "text" or "json".
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "text":
		return FormatText, nil
	case "json":
		return FormatJSON, nil
	default:
		return FormatText, fmt.Errorf("unknown log format: %s", s)
	}
}

// LevelString returns the string representation of a log level.
func LevelString(level Level) string {
	switch level {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}
