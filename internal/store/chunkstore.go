// Package store implements the segmented, memory-mapped record store
// (component B): fixed-size records packed into 65536-record chunk files,
// addressed positionally by internal id.
package store

import (
	"os"
	"path/filepath"
	"sync"

	mmap "github.com/blevesearch/mmap-go"
	"github.com/gofrs/flock"
	lru "github.com/hashicorp/golang-lru/v2"

	vecerrors "github.com/Aman-CERP/amanmcp/internal/errors"
)

// RecordsPerChunk is the fixed number of records packed into one chunk
// file, per spec.md §4.B.
const RecordsPerChunk = 65536

// DefaultOpenChunks bounds how many chunk files stay memory-mapped at
// once; cold chunks are unmapped and remapped on demand (§5: "store
// page-fault on mmap read of a cold chunk").
const DefaultOpenChunks = 64

// chunk wraps one memory-mapped chunk file. Writers serialize per-chunk
// via mu during the write window (§5); readers do not need the lock since
// mmap reads are never torn by a same-process writer holding mu only
// around the copy, not the whole record lifetime.
type chunk struct {
	mu   sync.Mutex
	file *os.File
	data mmap.MMap
}

// Store is the segmented on-disk record store for one collection.
type Store struct {
	dir        string
	recordSize int

	mu     sync.Mutex
	chunks *lru.Cache[uint32, *chunk]

	lock *flock.Flock

	extentMu sync.Mutex
	extent   uint32 // next unassigned internal id
}

// Open opens (creating if necessary) the chunk directory dir for records
// of recordSize bytes, recovering the used extent by scanning existing
// chunk files. maxOpenChunks <= 0 uses DefaultOpenChunks.
func Open(dir string, recordSize int, maxOpenChunks int) (*Store, error) {
	if maxOpenChunks <= 0 {
		maxOpenChunks = DefaultOpenChunks
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, vecerrors.Wrap(vecerrors.IoError, err)
	}

	lk := flock.New(filepath.Join(dir, ".lock"))
	ok, err := lk.TryLock()
	if err != nil {
		return nil, vecerrors.Wrap(vecerrors.IoError, err)
	}
	if !ok {
		return nil, vecerrors.New(vecerrors.IoError, "store directory is locked by another process", nil)
	}

	s := &Store{dir: dir, recordSize: recordSize, lock: lk}
	s.chunks, err = lru.NewWithEvict[uint32, *chunk](maxOpenChunks, func(_ uint32, c *chunk) {
		_ = c.data.Unmap()
		_ = c.file.Close()
	})
	if err != nil {
		_ = lk.Unlock()
		return nil, vecerrors.Wrap(vecerrors.IoError, err)
	}

	extent, err := s.recoverExtent()
	if err != nil {
		return nil, err
	}
	s.extent = extent

	return s, nil
}

// RecordSize returns the fixed per-record size this store was opened with.
func (s *Store) RecordSize() int { return s.recordSize }

func (s *Store) chunkPath(idx uint32) string {
	return filepath.Join(s.dir, chunkFileName(idx))
}

func chunkFileName(idx uint32) string {
	return "chunk_" + itoa(idx) + ".dat"
}

func itoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// chunkSizeBytes is the fully pre-sized length of a chunk file.
func (s *Store) chunkSizeBytes() int64 {
	return int64(RecordsPerChunk) * int64(s.recordSize)
}

// openChunk returns the memory-mapped chunk at idx, creating and
// pre-sizing the file if it does not exist yet.
func (s *Store) openChunk(idx uint32) (*chunk, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.chunks.Get(idx); ok {
		return c, nil
	}

	path := s.chunkPath(idx)
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, vecerrors.Wrap(vecerrors.IoError, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, vecerrors.Wrap(vecerrors.IoError, err)
	}
	if info.Size() < s.chunkSizeBytes() {
		if err := f.Truncate(s.chunkSizeBytes()); err != nil {
			_ = f.Close()
			return nil, vecerrors.Wrap(vecerrors.IoError, err)
		}
	}

	data, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		_ = f.Close()
		return nil, vecerrors.Wrap(vecerrors.IoError, err)
	}

	c := &chunk{file: f, data: data}
	s.chunks.Add(idx, c)
	return c, nil
}

func splitID(id uint32) (chunkIdx uint32, offset uint32) {
	return id >> 16, id & 0xFFFF
}

// ReadRecord returns a copy of the record for internal id. Retries once
// after remapping the chunk on a transient IoError, per spec.md §7.
func (s *Store) ReadRecord(id uint32) ([]byte, error) {
	if id >= s.Extent() {
		return nil, vecerrors.OutOfRangef("internal id %d exceeds current allocation %d", id, s.Extent())
	}

	idx, off := splitID(id)
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		c, err := s.openChunk(idx)
		if err != nil {
			lastErr = err
			s.evictChunk(idx)
			continue
		}
		c.mu.Lock()
		start := int(off) * s.recordSize
		out := make([]byte, s.recordSize)
		copy(out, c.data[start:start+s.recordSize])
		c.mu.Unlock()
		return out, nil
	}
	return nil, lastErr
}

// WriteRecord writes rec at the position for internal id, extending the
// store's used extent to id+1 if id is at or beyond the current extent.
func (s *Store) WriteRecord(id uint32, rec []byte) error {
	if len(rec) != s.recordSize {
		return vecerrors.InvalidInputf("record is %d bytes, expected %d", len(rec), s.recordSize)
	}

	idx, off := splitID(id)
	c, err := s.openChunk(idx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	start := int(off) * s.recordSize
	copy(c.data[start:start+s.recordSize], rec)
	c.mu.Unlock()

	s.extentMu.Lock()
	if id >= s.extent {
		s.extent = id + 1
	}
	s.extentMu.Unlock()

	return nil
}

func (s *Store) evictChunk(idx uint32) {
	s.mu.Lock()
	s.chunks.Remove(idx)
	s.mu.Unlock()
}

// Extent returns the number of internal ids currently allocated.
func (s *Store) Extent() uint32 {
	s.extentMu.Lock()
	defer s.extentMu.Unlock()
	return s.extent
}

// Allocate reserves and returns the next internal id without writing a
// record. Extent counts the id as soon as it is reserved; until the caller
// writes its record, ReadRecord returns all-zero bytes for it.
func (s *Store) Allocate() uint32 {
	s.extentMu.Lock()
	defer s.extentMu.Unlock()
	id := s.extent
	s.extent++
	return id
}

// Flush msyncs every currently mapped chunk and waits for the OS, per
// spec.md §4.B.
func (s *Store) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, idx := range s.chunks.Keys() {
		c, ok := s.chunks.Peek(idx)
		if !ok {
			continue
		}
		c.mu.Lock()
		err := c.data.Flush()
		c.mu.Unlock()
		if err != nil {
			return vecerrors.Wrap(vecerrors.IoError, err)
		}
	}
	return nil
}

// Close flushes, unmaps every chunk, and releases the directory lock.
func (s *Store) Close() error {
	if err := s.Flush(); err != nil {
		return err
	}
	s.mu.Lock()
	s.chunks.Purge()
	s.mu.Unlock()
	return s.lock.Unlock()
}

// recoverExtent scans existing chunk files in order for the first
// all-zero tail record, per spec.md §4.B. A valid encoded record is never
// all-zero for any supported metric except the open question noted there
// (binary quantization of a zero logical vector). That case is not
// distinguished here: such a record ends the recovered extent.
func (s *Store) recoverExtent() (uint32, error) {
	var extent uint32
	for idx := uint32(0); ; idx++ {
		path := s.chunkPath(idx)
		info, err := os.Stat(path)
		if os.IsNotExist(err) {
			break
		}
		if err != nil {
			return 0, vecerrors.Wrap(vecerrors.IoError, err)
		}

		f, err := os.Open(path)
		if err != nil {
			return 0, vecerrors.Wrap(vecerrors.IoError, err)
		}

		recordsInFile := info.Size() / int64(s.recordSize)
		buf := make([]byte, s.recordSize)
		var used int64
		for i := int64(0); i < recordsInFile; i++ {
			if _, err := f.ReadAt(buf, i*int64(s.recordSize)); err != nil {
				_ = f.Close()
				return 0, vecerrors.Wrap(vecerrors.IoError, err)
			}
			if isAllZero(buf) {
				break
			}
			used = i + 1
		}
		_ = f.Close()

		extent = idx*RecordsPerChunk + uint32(used)
		if used < recordsInFile {
			break
		}
	}
	return extent, nil
}

func isAllZero(b []byte) bool {
	for _, x := range b {
		if x != 0 {
			return false
		}
	}
	return true
}
