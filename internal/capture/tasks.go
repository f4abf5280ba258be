package capture

import (
	"context"
	"errors"
	"log/slog"
	"runtime/debug"
	"sync"

	"golang.org/x/sync/errgroup"
)

// DefaultTaskLimit bounds concurrent click and scan tasks.
const DefaultTaskLimit = 8

// ErrTaskGroupClosed is returned by Submit after Close.
var ErrTaskGroupClosed = errors.New("capture: task group closed")

// ErrTaskGroupFull is returned by Submit when every slot is busy.
var ErrTaskGroupFull = errors.New("capture: task group full")

// TaskStats are cumulative task counters.
type TaskStats struct {
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Dropped   int64 `json:"dropped"`
	Failed    int64 `json:"failed"`
	Panicked  int64 `json:"panicked"`
}

// PanicFunc receives a recovered task panic.
type PanicFunc func(task string, value any, stack []byte)

// TaskGroup runs one-shot background tasks with a concurrency limit. Tasks
// that do not fit are dropped rather than queued, so a burst of clicks cannot
// pile up stale screen scans. Failures and panics are logged and counted;
// they never cancel sibling tasks.
type TaskGroup struct {
	g       errgroup.Group
	logger  *slog.Logger
	onPanic PanicFunc

	mu     sync.Mutex
	closed bool
	stats  TaskStats
}

// NewTaskGroup creates a TaskGroup running at most limit tasks at once.
func NewTaskGroup(limit int, logger *slog.Logger, onPanic PanicFunc) *TaskGroup {
	if limit <= 0 {
		limit = DefaultTaskLimit
	}
	if logger == nil {
		logger = slog.Default()
	}
	t := &TaskGroup{logger: logger, onPanic: onPanic}
	t.g.SetLimit(limit)
	return t
}

// Submit starts fn in the background unless the group is closed or full.
func (t *TaskGroup) Submit(ctx context.Context, name string, fn func(context.Context) error) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		t.stats.Dropped++
		return ErrTaskGroupClosed
	}
	if !t.g.TryGo(func() error {
		t.run(ctx, name, fn)
		return nil
	}) {
		t.stats.Dropped++
		t.logger.Debug("task dropped", "task", name)
		return ErrTaskGroupFull
	}
	t.stats.Submitted++
	return nil
}

func (t *TaskGroup) run(ctx context.Context, name string, fn func(context.Context) error) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			t.count(func(s *TaskStats) { s.Panicked++ })
			if t.onPanic != nil {
				t.onPanic(name, r, stack)
			} else {
				t.logger.Error("task panicked", "task", name, "panic", r)
			}
		}
	}()

	if err := fn(ctx); err != nil && !errors.Is(err, context.Canceled) {
		t.count(func(s *TaskStats) { s.Failed++ })
		t.logger.Debug("task failed", "task", name, "error", err)
		return
	}
	t.count(func(s *TaskStats) { s.Completed++ })
}

func (t *TaskGroup) count(fn func(*TaskStats)) {
	t.mu.Lock()
	fn(&t.stats)
	t.mu.Unlock()
}

// Close rejects further tasks and waits for running ones.
func (t *TaskGroup) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	_ = t.g.Wait()
}

// Stats returns a copy of the counters.
func (t *TaskGroup) Stats() TaskStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stats
}
