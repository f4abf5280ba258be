package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"worklogd/internal/session"
)

// Writer appends to the daily log files in one directory.
type Writer struct {
	dir string
}

// NewWriter returns a Writer for dir. The directory is created on first use.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// Dir returns the log directory.
func (w *Writer) Dir() string { return w.dir }

// PathFor returns the log file path for the day containing t.
func (w *Writer) PathFor(t time.Time) string {
	return filepath.Join(w.dir, FileName(t))
}

// EnsureHeader creates the day file for t with its header if it does not
// exist or is empty. With startup set, the startup marker follows the
// header. It reports whether the header was written.
func (w *Writer) EnsureHeader(t time.Time, startup bool) (bool, error) {
	if err := os.MkdirAll(w.dir, 0700); err != nil {
		return false, fmt.Errorf("create log directory: %w", err)
	}
	path := w.PathFor(t)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return false, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.Size() > 0 {
		return false, nil
	}

	text := Header(t)
	if startup {
		text += StartupMarker(t)
	}
	if _, err := f.WriteString(text); err != nil {
		return false, fmt.Errorf("write header: %w", err)
	}
	return true, f.Sync()
}

// Write appends sections to the files of the days they were closed on,
// creating each file's header as needed. Order is preserved.
func (w *Writer) Write(sections []session.Section) error {
	for start := 0; start < len(sections); {
		day := sections[start].Timestamp.Format(DateLayout)
		end := start + 1
		for end < len(sections) && sections[end].Timestamp.Format(DateLayout) == day {
			end++
		}
		if err := w.appendDay(sections[start].Timestamp, sections[start:end]); err != nil {
			return err
		}
		start = end
	}
	return nil
}

func (w *Writer) appendDay(t time.Time, sections []session.Section) error {
	if _, err := w.EnsureHeader(t, false); err != nil {
		return err
	}
	path := w.PathFor(t)
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	for _, s := range sections {
		if _, err := f.WriteString(FormatSection(s)); err != nil {
			return fmt.Errorf("append section: %w", err)
		}
	}
	return f.Sync()
}
