// Package config handles configuration loading and validation for worklogd.
package config

import (
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"worklogd/internal/redact"
)

// Version is the current configuration schema version.
const Version = 1

// Focus sources.
const (
	SourceActivityWatch = "activitywatch"
	SourceX11           = "x11"
)

// Config holds all worklogd settings.
type Config struct {
	// Version is the configuration schema version.
	Version int `toml:"version" json:"version" yaml:"version"`

	// Paths locates the work log and daemon state.
	Paths PathsConfig `toml:"paths" json:"paths" yaml:"paths"`

	// Focus configures the focus service and poll cadence.
	Focus FocusConfig `toml:"focus" json:"focus" yaml:"focus"`

	// Capture configures the producers.
	Capture CaptureConfig `toml:"capture" json:"capture" yaml:"capture"`

	// Privacy configures secure-app pausing and text scrubbing.
	Privacy PrivacyConfig `toml:"privacy" json:"privacy" yaml:"privacy"`

	// Flush configures persistence.
	Flush FlushConfig `toml:"flush" json:"flush" yaml:"flush"`

	// Tasks bounds background capture work.
	Tasks TasksConfig `toml:"tasks" json:"tasks" yaml:"tasks"`

	// Logging configures the diagnostics trace.
	Logging LoggingConfig `toml:"logging" json:"logging" yaml:"logging"`

	mu sync.RWMutex `toml:"-" json:"-" yaml:"-"`
}

// PathsConfig locates files on disk.
type PathsConfig struct {
	// LogDir holds the daily Markdown logs.
	LogDir string `toml:"log_dir" json:"log_dir" yaml:"log_dir"`

	// StateDir holds the spool and crash reports.
	StateDir string `toml:"state_dir" json:"state_dir" yaml:"state_dir"`
}

// FocusConfig configures focus tracking.
type FocusConfig struct {
	// Source is "activitywatch" or "x11".
	Source string `toml:"source" json:"source" yaml:"source"`

	// URL is the ActivityWatch base URL.
	URL string `toml:"url" json:"url" yaml:"url"`

	// IntervalSec is the focus poll period.
	IntervalSec int `toml:"interval_sec" json:"interval_sec" yaml:"interval_sec"`

	// TimeoutMs bounds each ActivityWatch request.
	TimeoutMs int `toml:"timeout_ms" json:"timeout_ms" yaml:"timeout_ms"`

	// LockPause pauses capture while the desktop session is locked.
	LockPause bool `toml:"lock_pause" json:"lock_pause" yaml:"lock_pause"`
}

// CaptureConfig configures the producers.
type CaptureConfig struct {
	// MaxDepth caps the accessibility walk; the root is depth 0.
	MaxDepth int `toml:"max_depth" json:"max_depth" yaml:"max_depth"`

	// MaxScreenRunes truncates screen and clipboard text.
	MaxScreenRunes int `toml:"max_screen_runes" json:"max_screen_runes" yaml:"max_screen_runes"`

	// ClickSettleMs is the delay between a click and its screen scan.
	ClickSettleMs int `toml:"click_settle_ms" json:"click_settle_ms" yaml:"click_settle_ms"`

	// ClipboardIntervalMs is the clipboard poll period.
	ClipboardIntervalMs int `toml:"clipboard_interval_ms" json:"clipboard_interval_ms" yaml:"clipboard_interval_ms"`

	// Clipboard enables the clipboard monitor.
	Clipboard bool `toml:"clipboard" json:"clipboard" yaml:"clipboard"`

	// SimilarityThreshold suppresses screen snapshots at or above this ratio.
	SimilarityThreshold float64 `toml:"similarity_threshold" json:"similarity_threshold" yaml:"similarity_threshold"`
}

// PrivacyConfig configures redaction.
type PrivacyConfig struct {
	// SecureApps are matched case-insensitively against app and title.
	SecureApps []string `toml:"secure_apps" json:"secure_apps" yaml:"secure_apps"`

	// RedactPatterns are regular expressions masked in screen and clipboard text.
	RedactPatterns []string `toml:"redact_patterns" json:"redact_patterns" yaml:"redact_patterns"`
}

// FlushConfig configures persistence.
type FlushConfig struct {
	// IntervalSec is the periodic flush period.
	IntervalSec int `toml:"interval_sec" json:"interval_sec" yaml:"interval_sec"`

	// Spool routes batches through the crash-recovery spool.
	Spool bool `toml:"spool" json:"spool" yaml:"spool"`
}

// TasksConfig bounds background work.
type TasksConfig struct {
	// Limit is the maximum number of concurrent capture tasks.
	Limit int `toml:"limit" json:"limit" yaml:"limit"`
}

// LoggingConfig configures the diagnostics trace.
type LoggingConfig struct {
	Level      string `toml:"level" json:"level" yaml:"level"`
	Format     string `toml:"format" json:"format" yaml:"format"`
	Output     string `toml:"output" json:"output" yaml:"output"`
	FilePath   string `toml:"file_path" json:"file_path" yaml:"file_path"`
	MaxSizeMB  int    `toml:"max_size_mb" json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" json:"max_backups" yaml:"max_backups"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	dir := WorklogdDir()
	logDir := filepath.Join(dir, "logs")

	return &Config{
		Version: Version,
		Paths: PathsConfig{
			LogDir:   logDir,
			StateDir: dir,
		},
		Focus: FocusConfig{
			Source:      SourceActivityWatch,
			URL:         "http://localhost:5600",
			IntervalSec: 5,
			TimeoutMs:   2000,
			LockPause:   true,
		},
		Capture: CaptureConfig{
			MaxDepth:            7,
			MaxScreenRunes:      2000,
			ClickSettleMs:       500,
			ClipboardIntervalMs: 1000,
			Clipboard:           true,
			SimilarityThreshold: 0.9,
		},
		Privacy: PrivacyConfig{
			SecureApps:     append([]string{}, redact.DefaultSecureApps...),
			RedactPatterns: []string{},
		},
		Flush: FlushConfig{
			IntervalSec: 30,
			Spool:       true,
		},
		Tasks: TasksConfig{
			Limit: 8,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "text",
			Output:     "file",
			FilePath:   filepath.Join(logDir, "diagnostics.log"),
			MaxSizeMB:  10,
			MaxBackups: 3,
		},
	}
}

// HomeDir resolves the user's home directory from $HOME, then the OS user
// database, then /tmp.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		if _, err := os.Stat(home); err == nil {
			return home
		}
	}
	if u, err := user.Current(); err == nil && u.HomeDir != "" {
		return u.HomeDir
	}
	return os.TempDir()
}

// WorklogdDir returns the base state directory, overridable with
// WORKLOGD_HOME.
func WorklogdDir() string {
	if dir := os.Getenv("WORKLOGD_HOME"); dir != "" {
		return dir
	}
	return filepath.Join(HomeDir(), ".worklogd")
}

// ConfigPath returns the default configuration file path.
func ConfigPath() string {
	return filepath.Join(WorklogdDir(), "config.toml")
}

// FallbackDiagnosticsPath is used when the configured diagnostics file
// cannot be opened.
func FallbackDiagnosticsPath() string {
	return filepath.Join(os.TempDir(), "worklogd_diagnostics.log")
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	return ValidateConfig(c)
}

// EnsureDirectories creates the log and state directories.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.LogDir, c.Paths.StateDir, c.CrashDir()} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0700); err != nil {
			return err
		}
	}
	return nil
}

// ApplyEnvOverrides applies WORKLOGD_* environment overrides.
func (c *Config) ApplyEnvOverrides() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v := os.Getenv("WORKLOGD_LOG_DIR"); v != "" {
		// The diagnostics file follows the log directory unless set elsewhere.
		if c.Logging.FilePath == filepath.Join(c.Paths.LogDir, "diagnostics.log") {
			c.Logging.FilePath = filepath.Join(v, "diagnostics.log")
		}
		c.Paths.LogDir = v
	}
	if v := os.Getenv("WORKLOGD_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv("WORKLOGD_ACTIVITYWATCH_URL"); v != "" {
		c.Focus.URL = v
	}
	if v := os.Getenv("WORKLOGD_FLUSH_INTERVAL"); v != "" {
		if secs, ok := parseSeconds(v); ok {
			c.Flush.IntervalSec = secs
		}
	}
}

// parseSeconds accepts either a bare integer or a Go duration string.
func parseSeconds(v string) (int, bool) {
	if n, err := strconv.Atoi(v); err == nil {
		return n, true
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, false
	}
	return int(d / time.Second), true
}

// Clone returns a deep copy of the configuration.
func (c *Config) Clone() *Config {
	c.mu.RLock()
	defer c.mu.RUnlock()

	clone := &Config{
		Version: c.Version,
		Paths:   c.Paths,
		Focus:   c.Focus,
		Capture: c.Capture,
		Privacy: c.Privacy,
		Flush:   c.Flush,
		Tasks:   c.Tasks,
		Logging: c.Logging,
	}
	clone.Privacy.SecureApps = append([]string{}, c.Privacy.SecureApps...)
	clone.Privacy.RedactPatterns = append([]string{}, c.Privacy.RedactPatterns...)
	return clone
}

// SpoolPath returns the crash-recovery spool file.
func (c *Config) SpoolPath() string {
	return filepath.Join(c.Paths.StateDir, "spool.wal")
}

// CrashDir returns the crash report directory.
func (c *Config) CrashDir() string {
	if c.Paths.StateDir == "" {
		return ""
	}
	return filepath.Join(c.Paths.StateDir, "crashes")
}

func (c *Config) FocusInterval() time.Duration {
	return time.Duration(c.Focus.IntervalSec) * time.Second
}

func (c *Config) FocusTimeout() time.Duration {
	return time.Duration(c.Focus.TimeoutMs) * time.Millisecond
}

func (c *Config) ClickSettle() time.Duration {
	return time.Duration(c.Capture.ClickSettleMs) * time.Millisecond
}

func (c *Config) ClipboardInterval() time.Duration {
	return time.Duration(c.Capture.ClipboardIntervalMs) * time.Millisecond
}

func (c *Config) FlushInterval() time.Duration {
	return time.Duration(c.Flush.IntervalSec) * time.Second
}
