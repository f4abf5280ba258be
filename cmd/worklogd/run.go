package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"worklogd/internal/capture"
	"worklogd/internal/clipboard"
	"worklogd/internal/config"
	"worklogd/internal/journal"
	"worklogd/internal/logging"
	"worklogd/internal/redact"
	"worklogd/internal/sentinel"
	"worklogd/internal/session"
)

func newRunCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Capture until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemon(cmd.Context(), opts, cmd.ErrOrStderr())
		},
	}
}

// runDaemon captures until parent is cancelled or the process is signalled,
// then flushes what is pending.
func runDaemon(parent context.Context, opts *rootOptions, stderr io.Writer) error {
	loader := config.NewLoader(opts.configPath)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return err
	}

	runID := uuid.New()
	logger, err := newLogger(cfg, runID.String(), stderr)
	if err != nil {
		return err
	}
	defer logger.Close()

	crash := logging.NewCrashHandler(logging.CrashHandlerConfig{
		CrashDir: cfg.CrashDir(),
		Version:  version,
		RunID:    runID.String(),
		Logger:   logger.Logger,
		Stderr:   stderr,
	})
	defer crash.RecoverAndExit()

	lock, err := journal.Lock(cfg.Paths.LogDir)
	if errors.Is(err, journal.ErrLocked) {
		return fmt.Errorf("another worklogd is already logging to %s", cfg.Paths.LogDir)
	}
	if err != nil {
		return err
	}
	defer lock.Release()

	scrubber, err := redact.NewScrubber(cfg.Privacy.RedactPatterns)
	if err != nil {
		return fmt.Errorf("privacy.redact_patterns: %w", err)
	}
	filter := redact.NewFilter(cfg.Privacy.SecureApps, scrubber)
	buf := session.NewBuffer(session.Options{Threshold: cfg.Capture.SimilarityThreshold})
	writer := journal.NewWriter(cfg.Paths.LogDir)

	flushOpts := []journal.FlusherOption{
		journal.WithInterval(cfg.FlushInterval()),
		journal.WithStderr(stderr),
	}
	if cfg.Flush.Spool {
		spool, err := journal.OpenSpool(cfg.SpoolPath(), runID)
		if err != nil {
			logger.Warn("spool unavailable, crash recovery disabled", "path", cfg.SpoolPath(), "error", err)
		} else {
			defer spool.Close()
			flushOpts = append(flushOpts, journal.WithSpool(spool))
		}
	}
	flusher := journal.NewFlusher(buf, writer, logger.Logger, flushOpts...)
	if n, err := flusher.Recover(parent); err != nil {
		logger.Error("spool recovery failed", "error", err)
	} else if n > 0 {
		logger.Info("recovered sections from previous run", "sections", n)
	}

	focus := focusSource(cfg)
	sent := sentinel.New(buf, filter, focus, sentinel.NewLockProbe(), sentinel.Config{
		Interval:  cfg.FocusInterval(),
		LockPause: cfg.Focus.LockPause,
	}, logger.Logger)

	var clip *clipboard.Monitor
	var paste *clipboard.CommandAccessor
	if cfg.Capture.Clipboard {
		paste = clipboard.NewCommandAccessor(clipboard.DefaultCommands()...)
		clip = clipboard.NewMonitor(paste, buf, clipboard.Config{
			Interval: cfg.ClipboardInterval(),
			MaxRunes: cfg.Capture.MaxScreenRunes,
			Scrub:    filter.Scrub,
		}, logger.Logger)
	}

	engine, err := capture.New(capture.Deps{
		Buffer:    buf,
		Filter:    filter,
		Sentinel:  sent,
		Flusher:   flusher,
		Writer:    writer,
		Clipboard: clip,
		OnPanic: func(task string, value any, stack []byte) {
			crash.HandlePanic(value, stack, map[string]string{"task": task})
		},
	}, capture.Config{
		ClickSettle: cfg.ClickSettle(),
		TaskLimit:   cfg.Tasks.Limit,
		MaxDepth:    cfg.Capture.MaxDepth,
		MaxRunes:    cfg.Capture.MaxScreenRunes,
	}, logger.Logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	watchPrivacy(ctx, loader, filter, logger)
	defer loader.Close()

	reportAvailability(logger.Logger, focus, paste)
	logger.Info("worklogd starting",
		"version", version,
		"log_dir", cfg.Paths.LogDir,
		"focus_source", cfg.Focus.Source,
		"config", loader.Path(),
	)
	return engine.Run(ctx)
}

func newLogger(cfg *config.Config, runID string, stderr io.Writer) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	format, err := logging.ParseFormat(cfg.Logging.Format)
	if err != nil {
		return nil, err
	}

	lc := logging.DefaultConfig()
	lc.Level = level
	lc.Format = format
	lc.Output = cfg.Logging.Output
	lc.FilePath = cfg.Logging.FilePath
	lc.FallbackPath = config.FallbackDiagnosticsPath()
	lc.MaxSize = int64(cfg.Logging.MaxSizeMB)
	lc.MaxBackups = cfg.Logging.MaxBackups
	lc.RunID = runID
	lc.Stderr = stderr
	return logging.New(lc)
}

func focusSource(cfg *config.Config) sentinel.FocusSource {
	if cfg.Focus.Source == config.SourceX11 {
		return sentinel.NewX11()
	}
	return sentinel.NewActivityWatch(cfg.Focus.URL, cfg.FocusTimeout())
}

// reportAvailability records in the diagnostics trace which optional
// backends can work here. paste is nil when clipboard capture is off.
func reportAvailability(logger *slog.Logger, focus sentinel.FocusSource, paste *clipboard.CommandAccessor) {
	if p, ok := focus.(sentinel.Prober); ok {
		if avail, detail := p.Available(); avail {
			logger.Info("focus source available", "focus_source", focus.Name(), "detail", detail)
		} else {
			logger.Warn("focus source unavailable, using fallback heading", "focus_source", focus.Name(), "detail", detail)
		}
	}
	if paste != nil && !paste.Available() {
		logger.Warn("no clipboard helper installed, clipboard capture disabled")
	}
}

// watchPrivacy hot-reloads the secure application list and redaction
// patterns. Other settings take effect on restart.
func watchPrivacy(ctx context.Context, loader *config.Loader, filter *redact.Filter, logger *logging.Logger) {
	loader.OnChange(func(next *config.Config) {
		scrubber, err := redact.NewScrubber(next.Privacy.RedactPatterns)
		if err != nil {
			logger.Warn("privacy reload rejected", "error", err)
			return
		}
		filter.Update(next.Privacy.SecureApps, scrubber)
		logger.Info("privacy settings reloaded",
			"secure_apps", len(next.Privacy.SecureApps),
			"redact_patterns", scrubber.Len(),
		)
	})
	if err := loader.Watch(); err != nil {
		logger.Warn("config watch unavailable", "path", loader.Path(), "error", err)
		return
	}

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case err := <-loader.Errors():
				logger.Warn("config reload failed", "error", err)
			}
		}
	}()
}
