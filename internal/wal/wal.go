// Package wal implements the write-ahead spool that makes log flushes
// crash-safe.
//
// Each flush appends its drained sections as one EntrySections record and
// fsyncs before the Markdown file is touched. Once the sections are written
// an EntryCommit record naming that batch is appended. After a crash, batches
// without a commit are replayed. Entries carry a CRC32 and a SHA-256 link to
// their predecessor; a torn tail is cut off on open.
package wal

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Version and magic constants
const (
	Version    = 1
	Magic      = "WLOG"
	HeaderSize = 32
)

// EntryType discriminates entries.
type EntryType uint8

const (
	EntrySections EntryType = 1 // Batch of drained sections
	EntryCommit   EntryType = 2 // Batch written to the log
)

func (t EntryType) String() string {
	switch t {
	case EntrySections:
		return "sections"
	case EntryCommit:
		return "commit"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// Errors
var (
	ErrInvalidMagic   = errors.New("wal: invalid magic number")
	ErrInvalidVersion = errors.New("wal: unsupported version")
	ErrCorruptedEntry = errors.New("wal: corrupted entry (CRC mismatch)")
	ErrBrokenChain    = errors.New("wal: broken hash chain")
	ErrWALClosed      = errors.New("wal: log is closed")
)

// fixed bytes per entry besides the payload:
// length, sequence, timestamp, type, payload length, prev hash, crc
const entryOverhead = 4 + 8 + 8 + 1 + 4 + 32 + 4

// Header is the WAL file header.
type Header struct {
	Magic     [4]byte
	Version   uint32
	RunID     uuid.UUID
	CreatedAt int64
}

// Entry is a single WAL entry.
type Entry struct {
	Length    uint32
	Sequence  uint64
	Timestamp int64
	Type      EntryType
	Payload   []byte
	PrevHash  [32]byte
	CRC32     uint32
}

// WAL is an append-only, fsync-per-entry log file.
type WAL struct {
	mu sync.Mutex

	path   string
	file   *os.File
	header Header

	nextSequence uint64
	lastHash     [32]byte
	closed       bool

	entryCount uint64
	byteCount  int64
}

// Open opens or creates the WAL at path. A new file records runID in its
// header; an existing file keeps the run ID it was created with.
func Open(path string, runID uuid.UUID) (*WAL, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create wal directory: %w", err)
	}
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, fmt.Errorf("open wal file: %w", err)
	}

	w := &WAL{path: path, file: file}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat wal file: %w", err)
	}

	if stat.Size() == 0 {
		w.header = newHeader(runID)
		if err := writeHeader(file, w.header); err != nil {
			file.Close()
			return nil, fmt.Errorf("write header: %w", err)
		}
		w.byteCount = HeaderSize
		if _, err := file.Seek(HeaderSize, io.SeekStart); err != nil {
			file.Close()
			return nil, fmt.Errorf("seek after header: %w", err)
		}
		return w, nil
	}

	if w.header, err = readHeader(file); err != nil {
		file.Close()
		return nil, fmt.Errorf("read header: %w", err)
	}
	if err := w.scanToEnd(); err != nil {
		file.Close()
		return nil, fmt.Errorf("scan wal: %w", err)
	}
	return w, nil
}

func newHeader(runID uuid.UUID) Header {
	h := Header{Version: Version, RunID: runID, CreatedAt: time.Now().UnixNano()}
	copy(h.Magic[:], Magic)
	return h
}

func writeHeader(f *os.File, h Header) error {
	buf := make([]byte, HeaderSize)
	copy(buf[0:4], h.Magic[:])
	binary.BigEndian.PutUint32(buf[4:8], h.Version)
	copy(buf[8:24], h.RunID[:])
	binary.BigEndian.PutUint64(buf[24:32], uint64(h.CreatedAt))

	if _, err := f.WriteAt(buf, 0); err != nil {
		return err
	}
	return f.Sync()
}

func readHeader(f *os.File) (Header, error) {
	var h Header
	buf := make([]byte, HeaderSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return h, err
	}
	if string(buf[0:4]) != Magic {
		return h, ErrInvalidMagic
	}
	copy(h.Magic[:], buf[0:4])
	h.Version = binary.BigEndian.Uint32(buf[4:8])
	if h.Version != Version {
		return h, fmt.Errorf("%w: got %d, expected %d", ErrInvalidVersion, h.Version, Version)
	}
	copy(h.RunID[:], buf[8:24])
	h.CreatedAt = int64(binary.BigEndian.Uint64(buf[24:32]))
	return h, nil
}

// scan reads entries from the header on. It stops without error at the
// first torn or corrupted entry and returns the offset just past the last
// good one.
func (w *WAL) scan() ([]Entry, int64, error) {
	var entries []Entry
	offset := int64(HeaderSize)
	var prevHash [32]byte

	for {
		lenBuf := make([]byte, 4)
		if _, err := w.file.ReadAt(lenBuf, offset); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, 0, err
		}
		entryLen := binary.BigEndian.Uint32(lenBuf)
		if entryLen < entryOverhead {
			break
		}

		entryBuf := make([]byte, entryLen)
		if _, err := w.file.ReadAt(entryBuf, offset); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, 0, err
		}

		entry, err := deserializeEntry(entryBuf)
		if err != nil || entry.CRC32 != computeEntryCRC(entry) {
			break
		}
		if len(entries) > 0 && entry.PrevHash != prevHash {
			return nil, 0, fmt.Errorf("entry %d: %w", entry.Sequence, ErrBrokenChain)
		}

		entries = append(entries, *entry)
		prevHash = entry.Hash()
		offset += int64(entryLen)
	}
	return entries, offset, nil
}

// scanToEnd restores the append position and cuts off any torn tail.
func (w *WAL) scanToEnd() error {
	entries, offset, err := w.scan()
	if err != nil {
		return err
	}
	if n := len(entries); n > 0 {
		w.nextSequence = entries[n-1].Sequence + 1
		w.lastHash = entries[n-1].Hash()
	}
	w.entryCount = uint64(len(entries))
	w.byteCount = offset

	if err := w.file.Truncate(offset); err != nil {
		return err
	}
	_, err = w.file.Seek(offset, io.SeekStart)
	return err
}

// Append adds an entry, syncs it to disk and returns its sequence number.
func (w *WAL) Append(entryType EntryType, payload []byte) (uint64, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return 0, ErrWALClosed
	}

	entry := &Entry{
		Sequence:  w.nextSequence,
		Timestamp: time.Now().UnixNano(),
		Type:      entryType,
		Payload:   payload,
		PrevHash:  w.lastHash,
	}
	entry.CRC32 = computeEntryCRC(entry)
	data := serializeEntry(entry)

	if _, err := w.file.Write(data); err != nil {
		return 0, fmt.Errorf("write entry: %w", err)
	}
	if err := w.file.Sync(); err != nil {
		return 0, fmt.Errorf("sync entry: %w", err)
	}

	w.lastHash = entry.Hash()
	w.nextSequence++
	w.entryCount++
	w.byteCount += int64(len(data))
	return entry.Sequence, nil
}

// AppendCommit marks the sections entry seq as durably written.
func (w *WAL) AppendCommit(seq uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	_, err := w.Append(EntryCommit, buf[:])
	return err
}

// CommittedSeq decodes the payload of a commit entry.
func (e *Entry) CommittedSeq() (uint64, bool) {
	if e.Type != EntryCommit || len(e.Payload) != 8 {
		return 0, false
	}
	return binary.BigEndian.Uint64(e.Payload), true
}

// ReadAll reads every intact entry.
func (w *WAL) ReadAll() ([]Entry, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, ErrWALClosed
	}
	entries, _, err := w.scan()
	return entries, err
}

// Pending returns the sections entries that have no commit, in append order.
func (w *WAL) Pending() ([]Entry, error) {
	entries, err := w.ReadAll()
	if err != nil {
		return nil, err
	}
	return pending(entries), nil
}

func pending(entries []Entry) []Entry {
	committed := make(map[uint64]bool)
	for i := range entries {
		if seq, ok := entries[i].CommittedSeq(); ok {
			committed[seq] = true
		}
	}
	var out []Entry
	for _, e := range entries {
		if e.Type == EntrySections && !committed[e.Sequence] {
			out = append(out, e)
		}
	}
	return out
}

// Compact rewrites the file keeping only uncommitted sections entries,
// re-linked into a fresh chain. The rewrite goes through a temporary file and
// an atomic rename.
func (w *WAL) Compact() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWALClosed
	}
	entries, _, err := w.scan()
	if err != nil {
		return err
	}
	keep := pending(entries)

	newPath := w.path + ".new"
	newFile, err := os.OpenFile(newPath, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	fail := func(err error) error {
		newFile.Close()
		os.Remove(newPath)
		return err
	}

	if err := writeHeader(newFile, w.header); err != nil {
		return fail(err)
	}
	if _, err := newFile.Seek(HeaderSize, io.SeekStart); err != nil {
		return fail(err)
	}

	var lastHash [32]byte
	size := int64(HeaderSize)
	for i := range keep {
		entry := keep[i]
		entry.PrevHash = lastHash
		entry.CRC32 = computeEntryCRC(&entry)
		data := serializeEntry(&entry)
		if _, err := newFile.Write(data); err != nil {
			return fail(err)
		}
		lastHash = entry.Hash()
		size += int64(len(data))
	}
	if err := newFile.Sync(); err != nil {
		return fail(err)
	}

	w.file.Close()
	if err := os.Rename(newPath, w.path); err != nil {
		newFile.Close()
		return err
	}
	w.file = newFile

	w.lastHash = lastHash
	w.entryCount = uint64(len(keep))
	w.byteCount = size
	return nil
}

// Hash computes the hash of an entry (for chain linking).
func (e *Entry) Hash() [32]byte {
	h := sha256.New()

	var seqBuf [8]byte
	binary.BigEndian.PutUint64(seqBuf[:], e.Sequence)
	h.Write(seqBuf[:])

	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], uint64(e.Timestamp))
	h.Write(tsBuf[:])

	h.Write([]byte{byte(e.Type)})
	h.Write(e.Payload)
	h.Write(e.PrevHash[:])

	var result [32]byte
	copy(result[:], h.Sum(nil))
	return result
}

func computeEntryCRC(entry *Entry) uint32 {
	crc := crc32.NewIEEE()

	var seqBuf [8]byte
	binary.BigEndian.PutUint64(seqBuf[:], entry.Sequence)
	crc.Write(seqBuf[:])

	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], uint64(entry.Timestamp))
	crc.Write(tsBuf[:])

	crc.Write([]byte{byte(entry.Type)})
	crc.Write(entry.Payload)
	crc.Write(entry.PrevHash[:])

	return crc.Sum32()
}

func serializeEntry(entry *Entry) []byte {
	buf := make([]byte, entryOverhead+len(entry.Payload))
	entry.Length = uint32(len(buf))

	offset := 0
	binary.BigEndian.PutUint32(buf[offset:], entry.Length)
	offset += 4
	binary.BigEndian.PutUint64(buf[offset:], entry.Sequence)
	offset += 8
	binary.BigEndian.PutUint64(buf[offset:], uint64(entry.Timestamp))
	offset += 8
	buf[offset] = byte(entry.Type)
	offset++
	binary.BigEndian.PutUint32(buf[offset:], uint32(len(entry.Payload)))
	offset += 4
	copy(buf[offset:], entry.Payload)
	offset += len(entry.Payload)
	copy(buf[offset:], entry.PrevHash[:])
	offset += 32
	binary.BigEndian.PutUint32(buf[offset:], entry.CRC32)
	return buf
}

func deserializeEntry(data []byte) (*Entry, error) {
	if len(data) < entryOverhead {
		return nil, errors.New("entry too short")
	}

	entry := &Entry{}
	offset := 0
	entry.Length = binary.BigEndian.Uint32(data[offset:])
	offset += 4
	entry.Sequence = binary.BigEndian.Uint64(data[offset:])
	offset += 8
	entry.Timestamp = int64(binary.BigEndian.Uint64(data[offset:]))
	offset += 8
	entry.Type = EntryType(data[offset])
	offset++

	payloadLen := int(binary.BigEndian.Uint32(data[offset:]))
	offset += 4
	if len(data) != offset+payloadLen+32+4 {
		return nil, errors.New("entry length mismatch")
	}
	entry.Payload = make([]byte, payloadLen)
	copy(entry.Payload, data[offset:offset+payloadLen])
	offset += payloadLen

	copy(entry.PrevHash[:], data[offset:offset+32])
	offset += 32
	entry.CRC32 = binary.BigEndian.Uint32(data[offset:])
	return entry, nil
}

// RunID returns the run ID recorded in the header.
func (w *WAL) RunID() uuid.UUID {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.header.RunID
}

// Size returns the current WAL file size in bytes.
func (w *WAL) Size() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.byteCount
}

// EntryCount returns the number of entries in the WAL.
func (w *WAL) EntryCount() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.entryCount
}

// Close closes the WAL file.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	return w.file.Close()
}

// Path returns the WAL file path.
func (w *WAL) Path() string {
	return w.path
}

// Exists checks if a WAL file exists at the given path.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
