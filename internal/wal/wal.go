// Package wal implements the write-ahead log (component C): a
// length-prefixed, CRC-checked record stream with four durability levels,
// replayed on startup to recover writes made since the last snapshot.
package wal

import (
	"bufio"
	"encoding/binary"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	vecerrors "github.com/Aman-CERP/amanmcp/internal/errors"
)

// Durability selects how aggressively the log forces writes to stable
// storage before acknowledging an append.
type Durability int

const (
	// Strict fsyncs before every append returns.
	Strict Durability = iota
	// Default group-commits: callers block until the next fdatasync,
	// which fires at most groupCommitWindow after the first waiter joins.
	Default
	// Batch fsyncs every batchRecords records or batchInterval, whichever
	// comes first; only the append that completes a batch of batchRecords
	// waits for that fsync, the others return without waiting.
	Batch
	// Async never forces a sync; durability is whatever the OS page cache
	// gives for free.
	Async
)

func (d Durability) String() string {
	switch d {
	case Strict:
		return "strict"
	case Default:
		return "default"
	case Batch:
		return "batch"
	case Async:
		return "async"
	default:
		return "unknown"
	}
}

const (
	groupCommitWindow = time.Millisecond
	batchRecords      = 256
	batchInterval     = 50 * time.Millisecond
)

// Record is one logical entry appended to the log: an opaque payload plus
// the monotonic collection clock value it was assigned at append time.
type Record struct {
	Clock   uint64
	Payload []byte
}

// Log is an append-only, crash-recoverable record stream for one
// collection. Appends are serialized by mu; readers use Replay on a
// separate, already-closed log (or after Close) during startup recovery.
type Log struct {
	mu         sync.Mutex
	file       *os.File
	w          *bufio.Writer
	durability Durability

	pending    []chan error
	pendingN   int
	flushTimer *time.Timer

	closed bool
	path   string
}

// Open opens (creating if necessary) the WAL file at path for the given
// durability level.
func Open(path string, durability Durability) (*Log, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, vecerrors.Wrap(vecerrors.IoError, err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, vecerrors.Wrap(vecerrors.IoError, err)
	}
	return &Log{file: f, w: bufio.NewWriter(f), durability: durability, path: path}, nil
}

// frame is length(4) | clock(8) | payload(N) | crc32(4).
func encodeFrame(r Record) []byte {
	buf := make([]byte, 4+8+len(r.Payload)+4)
	binary.BigEndian.PutUint32(buf[0:4], uint32(8+len(r.Payload)))
	binary.BigEndian.PutUint64(buf[4:12], r.Clock)
	copy(buf[12:12+len(r.Payload)], r.Payload)
	crc := crc32.ChecksumIEEE(buf[4 : 12+len(r.Payload)])
	binary.BigEndian.PutUint32(buf[12+len(r.Payload):], crc)
	return buf
}

// Append writes r to the log and, depending on the configured durability
// level, waits for it to reach stable storage before returning.
func (l *Log) Append(r Record) error {
	frame := encodeFrame(r)

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return vecerrors.New(vecerrors.IoError, "wal is closed", nil)
	}
	if _, err := l.w.Write(frame); err != nil {
		l.mu.Unlock()
		return vecerrors.Wrap(vecerrors.IoError, err)
	}

	switch l.durability {
	case Strict:
		err := l.syncLocked()
		l.mu.Unlock()
		return err

	case Default:
		ch := make(chan error, 1)
		l.pending = append(l.pending, ch)
		if len(l.pending) == 1 {
			l.scheduleGroupCommitLocked()
		}
		l.mu.Unlock()
		return <-ch

	case Batch:
		l.pendingN++
		due := l.pendingN >= batchRecords
		if due {
			l.pendingN = 0
		}
		if l.flushTimer == nil {
			l.flushTimer = time.AfterFunc(batchInterval, l.flushOnTimer)
		}
		l.mu.Unlock()
		if due {
			return l.flushBatch()
		}
		return nil

	default: // Async
		l.mu.Unlock()
		return nil
	}
}

// scheduleGroupCommitLocked arms a timer that fires the group commit after
// groupCommitWindow, batching every Append that joined meanwhile. l.mu must
// be held by the caller.
func (l *Log) scheduleGroupCommitLocked() {
	time.AfterFunc(groupCommitWindow, func() {
		l.mu.Lock()
		waiters := l.pending
		l.pending = nil
		err := l.syncLocked()
		l.mu.Unlock()
		for _, ch := range waiters {
			ch <- err
		}
	})
}

func (l *Log) flushOnTimer() {
	l.mu.Lock()
	l.flushTimer = nil // the next Batch append arms a new timer
	l.mu.Unlock()
	_ = l.flushBatch()
}

func (l *Log) flushBatch() error {
	l.mu.Lock()
	l.pendingN = 0
	err := l.syncLocked()
	l.mu.Unlock()
	return err
}

// syncLocked flushes the buffered writer and fsyncs the underlying file.
// l.mu must be held by the caller.
func (l *Log) syncLocked() error {
	if err := l.w.Flush(); err != nil {
		return vecerrors.Wrap(vecerrors.IoError, err)
	}
	if err := l.file.Sync(); err != nil {
		return vecerrors.Wrap(vecerrors.IoError, err)
	}
	return nil
}

// Sync forces every buffered record to stable storage, regardless of
// durability level; used on clean shutdown and before snapshotting.
func (l *Log) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.syncLocked()
}

// Close syncs and releases the underlying file handle.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	if err := l.syncLocked(); err != nil {
		return err
	}
	return l.file.Close()
}

// Rotate truncates the log to empty, intended to be called right after a
// snapshot has durably captured everything replayed so far.
func (l *Log) Rotate() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.syncLocked(); err != nil {
		return err
	}
	if err := l.file.Truncate(0); err != nil {
		return vecerrors.Wrap(vecerrors.IoError, err)
	}
	if _, err := l.file.Seek(0, io.SeekStart); err != nil {
		return vecerrors.Wrap(vecerrors.IoError, err)
	}
	l.w = bufio.NewWriter(l.file)
	return nil
}

// Replay reads every complete record with clock > sinceClock from the WAL
// file at path, in order, invoking fn for each. A truncated or corrupt
// trailing record (partial write during a crash) is discarded silently per
// spec.md §4.C rather than treated as an error.
func Replay(path string, sinceClock uint64, fn func(Record) error) error {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return vecerrors.Wrap(vecerrors.IoError, err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	header := make([]byte, 4)
	for {
		if _, err := io.ReadFull(r, header); err != nil {
			break // EOF or truncated length prefix: stop, discard tail
		}
		length := binary.BigEndian.Uint32(header)
		body := make([]byte, length+4)
		if _, err := io.ReadFull(r, body); err != nil {
			break // truncated body or CRC trailer: stop, discard tail
		}

		payload := body[8 : length]
		gotCRC := binary.BigEndian.Uint32(body[length:])
		wantCRC := crc32.ChecksumIEEE(body[:length])
		if gotCRC != wantCRC {
			break // corrupt trailing record: stop, discard tail
		}

		clock := binary.BigEndian.Uint64(body[0:8])
		if clock <= sinceClock {
			continue
		}
		rec := Record{Clock: clock, Payload: append([]byte(nil), payload...)}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return nil
}

// GroupFsync fans out a single fsync across n independently-opened logs
// concurrently, used when several collections share a snapshot/rotation
// boundary and each must durably flush before the operation completes.
func GroupFsync(logs []*Log) error {
	var g errgroup.Group
	for _, l := range logs {
		l := l
		g.Go(func() error {
			return l.Sync()
		})
	}
	return g.Wait()
}
