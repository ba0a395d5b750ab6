// Package merkle implements the bucketed digest used to detect divergence
// between a leader and its followers (component E, digest half):
// records are bucketed by internal id, each bucket has its own hash, and
// the root hash summarizes all 256 bucket hashes.
package merkle

import (
	"crypto/sha256"
	"encoding/binary"
	"sort"
	"sync"
)

// BucketCount is the fixed number of buckets the digest partitions
// records into, per spec.md §4.E.
const BucketCount = 256

// Hash is a 32-byte SHA-256 digest.
type Hash [32]byte

// Digest maintains the 256 bucket hashes and root hash for one
// collection, recomputing only the buckets touched since the last root
// computation (lazy dirty-bucket recomputation).
type Digest struct {
	mu      sync.Mutex
	records map[uint32][]byte // internal id -> record bytes, for all buckets
	buckets [BucketCount]Hash
	dirty   [BucketCount]bool
	root    Hash
	rootOK  bool
}

// New returns an empty digest.
func New() *Digest {
	return &Digest{records: make(map[uint32][]byte)}
}

func bucketOf(id uint32) int {
	return int(id % BucketCount)
}

// Upsert records (or replaces) the bytes stored for internal id and marks
// its bucket dirty.
func (d *Digest) Upsert(id uint32, record []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	cp := append([]byte(nil), record...)
	d.records[id] = cp
	b := bucketOf(id)
	d.dirty[b] = true
	d.rootOK = false
}

// Remove deletes the entry for internal id (used when a tombstone is
// folded into the digest so deleted records stop contributing to drift).
func (d *Digest) Remove(id uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.records[id]; !ok {
		return
	}
	delete(d.records, id)
	b := bucketOf(id)
	d.dirty[b] = true
	d.rootOK = false
}

// recomputeBucketLocked rehashes bucket b over every record it currently
// holds, in ascending internal-id order. d.mu must be held.
func (d *Digest) recomputeBucketLocked(b int) {
	var ids []uint32
	for id := range d.records {
		if bucketOf(id) == b {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	h := sha256.New()
	var idBuf [4]byte
	for _, id := range ids {
		binary.BigEndian.PutUint32(idBuf[:], id)
		h.Write(idBuf[:])
		h.Write(d.records[id])
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	d.buckets[b] = out
	d.dirty[b] = false
}

// Root returns the current root hash, recomputing any dirty buckets
// first.
func (d *Digest) Root() Hash {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rootLocked()
}

func (d *Digest) rootLocked() Hash {
	for b := 0; b < BucketCount; b++ {
		if d.dirty[b] {
			d.recomputeBucketLocked(b)
		}
	}
	if d.rootOK {
		return d.root
	}
	h := sha256.New()
	for b := 0; b < BucketCount; b++ {
		h.Write(d.buckets[b][:])
	}
	copy(d.root[:], h.Sum(nil))
	d.rootOK = true
	return d.root
}

// BucketHashes returns a snapshot of all 256 bucket hashes, recomputing
// any dirty buckets first. Used to answer a BUCKETS? request (§6).
func (d *Digest) BucketHashes() [BucketCount]Hash {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rootLocked()
	return d.buckets
}

// BucketRecords returns the ordered (id, record) pairs currently in
// bucket b. Used to answer a BUCKET i request (§6).
func (d *Digest) BucketRecords(b int) []BucketEntry {
	d.mu.Lock()
	defer d.mu.Unlock()

	var out []BucketEntry
	for id, rec := range d.records {
		if bucketOf(id) == b {
			out = append(out, BucketEntry{ID: id, Record: append([]byte(nil), rec...)})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// BucketEntry is one (internal id, record bytes) pair within a bucket.
type BucketEntry struct {
	ID     uint32
	Record []byte
}

// DivergentBuckets compares this digest's bucket hashes against a remote
// set and returns the indexes that differ, used by a follower to decide
// which BUCKET i requests to issue after a ROOT? mismatch.
func (d *Digest) DivergentBuckets(remote [BucketCount]Hash) []int {
	mine := d.BucketHashes()
	var out []int
	for b := 0; b < BucketCount; b++ {
		if mine[b] != remote[b] {
			out = append(out, b)
		}
	}
	return out
}
