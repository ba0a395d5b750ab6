package replica

import "github.com/Aman-CERP/amanmcp/internal/merkle"

// LocalLeader adapts a merkle.Digest into the Source interface a follower
// syncs against. In production this sits behind whatever transport a
// caller wires up (out of scope here); tests use it directly.
type LocalLeader struct {
	digest *merkle.Digest
	clock  func() uint64
}

// NewLocalLeader wraps digest, using clockFn to stamp each Root() answer
// with the leader's current logical clock.
func NewLocalLeader(digest *merkle.Digest, clockFn func() uint64) *LocalLeader {
	return &LocalLeader{digest: digest, clock: clockFn}
}

func (l *LocalLeader) Root() (merkle.Hash, uint64) {
	return l.digest.Root(), l.clock()
}

func (l *LocalLeader) Buckets() [merkle.BucketCount]merkle.Hash {
	return l.digest.BucketHashes()
}

func (l *LocalLeader) Bucket(i int) []merkle.BucketEntry {
	return l.digest.BucketRecords(i)
}
