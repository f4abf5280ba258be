package logging

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"sort"
	"sync"
	"time"
)

// CrashReport describes one recovered panic.
type CrashReport struct {
	Timestamp    time.Time         `json:"timestamp"`
	Version      string            `json:"version"`
	RunID        string            `json:"run_id,omitempty"`
	GOOS         string            `json:"goos"`
	GOARCH       string            `json:"goarch"`
	NumGoroutine int               `json:"num_goroutine"`
	PanicValue   string            `json:"panic_value"`
	StackTrace   string            `json:"stack_trace"`
	Context      map[string]string `json:"context,omitempty"`
}

// CrashHandler records panics to the diagnostics trace and to JSON reports
// in a crash directory.
type CrashHandler struct {
	mu       sync.Mutex
	crashDir string
	version  string
	runID    string
	logger   *slog.Logger
	stderr   io.Writer
	onCrash  func(CrashReport)
	seq      int
}

// CrashHandlerConfig configures the crash handler.
type CrashHandlerConfig struct {
	// CrashDir receives crash-*.json reports; empty disables reports.
	CrashDir string

	Version string
	RunID   string

	// Logger receives a full-stack error record per crash.
	Logger *slog.Logger

	// Stderr receives a short notice; nil means os.Stderr.
	Stderr io.Writer

	// OnCrash is called after a crash is recorded.
	OnCrash func(CrashReport)
}

// NewCrashHandler creates a CrashHandler.
func NewCrashHandler(cfg CrashHandlerConfig) *CrashHandler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Stderr == nil {
		cfg.Stderr = os.Stderr
	}
	return &CrashHandler{
		crashDir: cfg.CrashDir,
		version:  cfg.Version,
		runID:    cfg.RunID,
		logger:   cfg.Logger,
		stderr:   cfg.Stderr,
		onCrash:  cfg.OnCrash,
	}
}

// Recover runs fn and records a panic instead of propagating it. It reports
// whether fn panicked.
func (h *CrashHandler) Recover(fn func()) (panicked bool) {
	defer func() {
		if r := recover(); r != nil {
			panicked = true
			h.HandlePanic(r, debug.Stack(), nil)
		}
	}()
	fn()
	return false
}

// RecoverAndExit is deferred at the top of main and background goroutines.
// A panic is recorded and the process exits with status 2.
func (h *CrashHandler) RecoverAndExit() {
	if r := recover(); r != nil {
		h.HandlePanic(r, debug.Stack(), map[string]string{"fatal": "true"})
		os.Exit(2)
	}
}

// HandlePanic records a recovered panic value with its stack.
func (h *CrashHandler) HandlePanic(value any, stack []byte, context map[string]string) CrashReport {
	h.mu.Lock()
	defer h.mu.Unlock()

	report := CrashReport{
		Timestamp:    time.Now().UTC(),
		Version:      h.version,
		RunID:        h.runID,
		GOOS:         runtime.GOOS,
		GOARCH:       runtime.GOARCH,
		NumGoroutine: runtime.NumGoroutine(),
		PanicValue:   fmt.Sprint(value),
		StackTrace:   string(stack),
		Context:      context,
	}

	h.logger.Error("panic recovered", "panic", report.PanicValue, "stack", report.StackTrace)

	path, err := h.writeCrashDump(report)
	switch {
	case err != nil:
		h.logger.Error("write crash report", "error", err)
	case path != "":
		fmt.Fprintf(h.stderr, "worklogd: panic: %s (report: %s)\n", report.PanicValue, path)
	}

	if h.onCrash != nil {
		h.onCrash(report)
	}
	return report
}

func (h *CrashHandler) writeCrashDump(report CrashReport) (string, error) {
	if h.crashDir == "" {
		return "", nil
	}
	if err := os.MkdirAll(h.crashDir, 0750); err != nil {
		return "", fmt.Errorf("create crash dir: %w", err)
	}

	h.seq++
	name := fmt.Sprintf("crash-%s-%d.json", report.Timestamp.Format("20060102-150405"), h.seq)
	path := filepath.Join(h.crashDir, name)

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal crash report: %w", err)
	}
	if err := os.WriteFile(path, data, 0640); err != nil {
		return "", fmt.Errorf("write crash report: %w", err)
	}
	return path, nil
}

// Reports returns stored crash reports, oldest first.
func (h *CrashHandler) Reports() ([]CrashReport, error) {
	if h.crashDir == "" {
		return nil, nil
	}
	files, err := filepath.Glob(filepath.Join(h.crashDir, "crash-*.json"))
	if err != nil {
		return nil, err
	}

	reports := make([]CrashReport, 0, len(files))
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			continue
		}
		var report CrashReport
		if err := json.Unmarshal(data, &report); err != nil {
			continue
		}
		reports = append(reports, report)
	}
	sort.Slice(reports, func(i, j int) bool {
		return reports[i].Timestamp.Before(reports[j].Timestamp)
	})
	return reports, nil
}

// Prune removes crash reports older than maxAge.
func (h *CrashHandler) Prune(maxAge time.Duration) error {
	if h.crashDir == "" {
		return nil
	}
	files, err := filepath.Glob(filepath.Join(h.crashDir, "crash-*.json"))
	if err != nil {
		return err
	}

	cutoff := time.Now().Add(-maxAge)
	for _, file := range files {
		info, err := os.Stat(file)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			os.Remove(file)
		}
	}
	return nil
}
