// Package replica implements the leader/follower replication protocol
// (component E, sync half): a follower reconciles its bucketed digest
// against a leader's via ROOT?/BUCKETS?/BUCKET i requests, applying
// divergent records as upserts, while a per-follower state machine tracks
// registration and catch-up progress.
package replica

import "github.com/Aman-CERP/amanmcp/internal/merkle"

// Source is the read side a leader exposes to a follower's sync loop. A
// real leader implements this over a network transport (out of scope
// here, per the core's non-goals); tests implement it directly over two
// in-process collections.
type Source interface {
	// Root answers a ROOT? request: the current root hash and the
	// logical clock it was computed at.
	Root() (merkle.Hash, uint64)
	// Buckets answers a BUCKETS? request: all 256 current bucket hashes.
	Buckets() [merkle.BucketCount]merkle.Hash
	// Bucket answers a BUCKET i request: the ordered records currently
	// in bucket i.
	Bucket(i int) []merkle.BucketEntry
}

// Sink is the write side a follower applies reconciled records to.
type Sink interface {
	// ApplyUpsert writes record at internal id, folding it into the
	// follower's own digest. Idempotent: applying the same (id, record)
	// twice is a no-op the second time.
	ApplyUpsert(id uint32, record []byte) error
}

// RootRequest is the ROOT? message.
type RootRequest struct {
	SessionID string
}

// RootResponse answers RootRequest.
type RootResponse struct {
	SessionID string
	Root      merkle.Hash
	Clock     uint64
}

// BucketsRequest is the BUCKETS? message.
type BucketsRequest struct {
	SessionID string
}

// BucketsResponse answers BucketsRequest.
type BucketsResponse struct {
	SessionID string
	Buckets   [merkle.BucketCount]merkle.Hash
}

// BucketRequest is the "BUCKET i" message.
type BucketRequest struct {
	SessionID string
	Index     int
}

// BucketResponse answers BucketRequest.
type BucketResponse struct {
	SessionID string
	Index     int
	Entries   []merkle.BucketEntry
}
