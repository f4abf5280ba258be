package journal

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"worklogd/internal/session"
	"worklogd/internal/wal"
)

// Batch is one flush's worth of sections held in the spool.
type Batch struct {
	Seq      uint64
	Sections []session.Section
}

// Spool keeps drained sections on disk until they are in the log.
type Spool struct {
	w *wal.WAL
}

// OpenSpool opens the spool file at path.
func OpenSpool(path string, runID uuid.UUID) (*Spool, error) {
	w, err := wal.Open(path, runID)
	if err != nil {
		return nil, err
	}
	return &Spool{w: w}, nil
}

// Begin records sections before they are written.
func (s *Spool) Begin(sections []session.Section) (uint64, error) {
	payload, err := json.Marshal(sections)
	if err != nil {
		return 0, fmt.Errorf("encode sections: %w", err)
	}
	return s.w.Append(wal.EntrySections, payload)
}

// Commit marks the batch seq as handled and drops settled entries.
func (s *Spool) Commit(seq uint64) error {
	if err := s.w.AppendCommit(seq); err != nil {
		return err
	}
	return s.w.Compact()
}

// Pending returns batches that were begun but never committed.
func (s *Spool) Pending() ([]Batch, error) {
	entries, err := s.w.Pending()
	if err != nil {
		return nil, err
	}
	out := make([]Batch, 0, len(entries))
	for _, e := range entries {
		var sections []session.Section
		if err := json.Unmarshal(e.Payload, &sections); err != nil {
			return nil, fmt.Errorf("decode batch %d: %w", e.Sequence, err)
		}
		out = append(out, Batch{Seq: e.Sequence, Sections: sections})
	}
	return out, nil
}

// Close closes the spool file.
func (s *Spool) Close() error {
	return s.w.Close()
}
