package journal

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"worklogd/internal/session"
)

// DefaultInterval is the periodic flush period.
const DefaultInterval = 30 * time.Second

// FlushStats are cumulative flusher counters.
type FlushStats struct {
	Flushes         int64 `json:"flushes"`
	SectionsWritten int64 `json:"sections_written"`
	SectionsDropped int64 `json:"sections_dropped"`
	WriteFailures   int64 `json:"write_failures"`
	Recovered       int64 `json:"recovered"`
}

// Flusher moves completed sections from a session buffer into the log.
type Flusher struct {
	buf      *session.Buffer
	writer   *Writer
	spool    *Spool
	logger   *slog.Logger
	stderr   io.Writer
	interval time.Duration
	now      func() time.Time

	// mu serialises flushes so batches reach the file in drain order.
	mu    sync.Mutex
	stats FlushStats
}

// FlusherOption configures a Flusher.
type FlusherOption func(*Flusher)

// WithSpool routes every batch through spool before it is written.
func WithSpool(s *Spool) FlusherOption {
	return func(f *Flusher) { f.spool = s }
}

// WithInterval sets the periodic flush period.
func WithInterval(d time.Duration) FlusherOption {
	return func(f *Flusher) {
		if d > 0 {
			f.interval = d
		}
	}
}

// WithClock overrides the clock used for the day file, for tests.
func WithClock(now func() time.Time) FlusherOption {
	return func(f *Flusher) { f.now = now }
}

// WithStderr sets where write failures are echoed.
func WithStderr(w io.Writer) FlusherOption {
	return func(f *Flusher) { f.stderr = w }
}

// NewFlusher creates a Flusher.
func NewFlusher(buf *session.Buffer, writer *Writer, logger *slog.Logger, opts ...FlusherOption) *Flusher {
	if logger == nil {
		logger = slog.Default()
	}
	f := &Flusher{
		buf:      buf,
		writer:   writer,
		logger:   logger.With("component", "flusher"),
		stderr:   os.Stderr,
		interval: DefaultInterval,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Flush drains the buffer and writes the drained sections. A failed write
// drops the batch; the error is reported and returned. It returns the number
// of sections drained.
func (f *Flusher) Flush(ctx context.Context) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	sections := f.buf.Drain()
	f.stats.Flushes++

	// Keep today's file present even when idle so path problems surface early.
	if _, err := f.writer.EnsureHeader(f.now(), false); err != nil {
		f.report("ensure log file", err, 0)
	}
	if len(sections) == 0 {
		return 0, nil
	}

	var seq uint64
	spooled := false
	if f.spool != nil {
		var err error
		if seq, err = f.spool.Begin(sections); err != nil {
			f.logger.Warn("spool append failed, writing without crash protection", "error", err)
		} else {
			spooled = true
		}
	}

	writeErr := f.writer.Write(sections)
	if writeErr != nil {
		f.stats.WriteFailures++
		f.stats.SectionsDropped += int64(len(sections))
		f.report("write sections", writeErr, len(sections))
	} else {
		f.stats.SectionsWritten += int64(len(sections))
		f.logger.Debug("flushed", "sections", len(sections))
	}

	// Failed batches are settled too; they are not retried.
	if spooled {
		if err := f.spool.Commit(seq); err != nil {
			f.logger.Warn("spool commit failed", "seq", seq, "error", err)
		}
	}
	return len(sections), writeErr
}

func (f *Flusher) report(op string, err error, dropped int) {
	f.logger.Error("log write failed", "op", op, "dropped_sections", dropped, "error", err)
	fmt.Fprintf(f.stderr, "worklogd: %s: %v\n", op, err)
}

// Recover writes sections left in the spool by a previous run that stopped
// between draining and writing. Sections already present in the log are
// skipped. It returns the number of sections written.
func (f *Flusher) Recover(ctx context.Context) (int, error) {
	if f.spool == nil {
		return 0, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	batches, err := f.spool.Pending()
	if err != nil {
		return 0, fmt.Errorf("read spool: %w", err)
	}

	written := 0
	for _, batch := range batches {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		missing, err := f.missing(batch.Sections)
		if err != nil {
			return written, err
		}
		if len(missing) > 0 {
			if err := f.writer.Write(missing); err != nil {
				return written, fmt.Errorf("replay batch %d: %w", batch.Seq, err)
			}
		}
		if err := f.spool.Commit(batch.Seq); err != nil {
			return written, fmt.Errorf("commit batch %d: %w", batch.Seq, err)
		}
		written += len(missing)
		f.logger.Info("recovered batch", "seq", batch.Seq, "sections", len(missing),
			"skipped", len(batch.Sections)-len(missing))
	}
	f.stats.Recovered += int64(written)
	return written, nil
}

// missing filters out sections whose IDs already appear in their day file.
func (f *Flusher) missing(sections []session.Section) ([]session.Section, error) {
	seen := make(map[string]map[string]bool)
	var out []session.Section
	for _, s := range sections {
		path := f.writer.PathFor(s.Timestamp)
		ids, ok := seen[path]
		if !ok {
			var err error
			if ids, err = SectionIDs(path); err != nil {
				return nil, err
			}
			seen[path] = ids
		}
		if !ids[s.ID] {
			out = append(out, s)
		}
	}
	return out, nil
}

// Stats returns a copy of the counters.
func (f *Flusher) Stats() FlushStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stats
}

// Run flushes every interval until ctx is cancelled. The final flush at
// shutdown is the caller's job, after producers have stopped.
func (f *Flusher) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			f.Flush(ctx)
		}
	}
}
