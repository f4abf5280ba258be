package capture

import (
	"context"
	"sync"

	"worklogd/internal/accessibility"
	"worklogd/internal/redact"
	"worklogd/internal/session"
	"worklogd/internal/similarity"
)

// ScanStats are cumulative scanner counters.
type ScanStats struct {
	Scans     int64 `json:"scans"`
	Recorded  int64 `json:"recorded"`
	Empty     int64 `json:"empty"`
	Errors    int64 `json:"errors"`
	Discarded int64 `json:"discarded"`
}

// Scanner snapshots the visible text of the focused window.
type Scanner struct {
	provider accessibility.Provider
	buf      *session.Buffer
	filter   *redact.Filter
	maxDepth int
	maxRunes int

	mu    sync.Mutex
	stats ScanStats
}

// NewScanner creates a Scanner. maxDepth < 0 selects the default depth cap;
// maxRunes <= 0 disables truncation.
func NewScanner(provider accessibility.Provider, buf *session.Buffer, filter *redact.Filter, maxDepth, maxRunes int) *Scanner {
	if provider == nil {
		provider = accessibility.Unavailable{}
	}
	return &Scanner{
		provider: provider,
		buf:      buf,
		filter:   filter,
		maxDepth: maxDepth,
		maxRunes: maxRunes,
	}
}

// Scan extracts the focused window's text and offers it to the buffer. The
// tree walk and the similarity ratio are computed without holding the buffer
// lock; the buffer rejects the result if the context changed meanwhile.
func (s *Scanner) Scan(ctx context.Context) (bool, error) {
	s.count(func(st *ScanStats) { st.Scans++ })

	view := s.buf.ScreenView()
	if view.Paused {
		return false, nil
	}

	win, err := s.provider.FocusedWindow(ctx)
	if err != nil {
		s.count(func(st *ScanStats) { st.Errors++ })
		return false, err
	}

	text := accessibility.Normalize(accessibility.Extract(ctx, win, s.maxDepth))
	if s.filter != nil {
		text = s.filter.Scrub(text)
	}
	if text == "" {
		s.count(func(st *ScanStats) { st.Empty++ })
		return false, nil
	}

	var ratio float64
	if view.Primed {
		ratio = similarity.Ratio(view.Baseline, text)
	}
	ok := s.buf.CommitScreen(view, text, accessibility.Truncate(text, s.maxRunes), ratio)
	s.count(func(st *ScanStats) {
		if ok {
			st.Recorded++
		} else {
			st.Discarded++
		}
	})
	return ok, nil
}

func (s *Scanner) count(fn func(*ScanStats)) {
	s.mu.Lock()
	fn(&s.stats)
	s.mu.Unlock()
}

// Stats returns a copy of the counters.
func (s *Scanner) Stats() ScanStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}
