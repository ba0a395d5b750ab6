package replica

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanmcp/internal/merkle"
)

// memSink is an in-memory Sink + digest pairing used to stand in for a
// follower's collection in tests, since real network transport is out of
// scope for the core.
type memSink struct {
	digest *merkle.Digest
}

func newMemSink() *memSink {
	return &memSink{digest: merkle.New()}
}

func (s *memSink) ApplyUpsert(id uint32, record []byte) error {
	s.digest.Upsert(id, record)
	return nil
}

func TestFollower_SyncConvergesFromEmpty(t *testing.T) {
	leaderDigest := merkle.New()
	for id := uint32(0); id < 50; id++ {
		leaderDigest.Upsert(id, []byte{byte(id)})
	}
	leader := NewLocalLeader(leaderDigest, func() uint64 { return 1 })

	sink := newMemSink()
	follower := NewFollower(leader, sink, sink.digest)

	require.NoError(t, follower.Sync(context.Background()))
	assert.Equal(t, leaderDigest.Root(), sink.digest.Root())
	assert.Equal(t, Streaming, follower.State())
}

func TestFollower_SyncIsNoopWhenAlreadyConverged(t *testing.T) {
	leaderDigest := merkle.New()
	leaderDigest.Upsert(1, []byte{9})
	leader := NewLocalLeader(leaderDigest, func() uint64 { return 1 })

	sink := newMemSink()
	sink.digest.Upsert(1, []byte{9})

	follower := NewFollower(leader, sink, sink.digest)
	require.NoError(t, follower.Sync(context.Background()))
	assert.Equal(t, Streaming, follower.State())
}

func TestFollower_SyncAppliesOnlyDivergentBuckets(t *testing.T) {
	leaderDigest := merkle.New()
	for id := uint32(0); id < 600; id++ {
		leaderDigest.Upsert(id, []byte{byte(id)})
	}
	leader := NewLocalLeader(leaderDigest, func() uint64 { return 3 })

	sink := &countingSink{memSink: newMemSink()}
	for id := uint32(0); id < 600; id++ {
		sink.digest.Upsert(id, []byte{byte(id)})
	}
	// Diverge exactly one record.
	sink.digest.Upsert(42, []byte{255})

	follower := NewFollower(leader, sink, sink.digest)
	require.NoError(t, follower.Sync(context.Background()))
	assert.Equal(t, leaderDigest.Root(), sink.digest.Root())
	// Only the records of the one divergent bucket are applied.
	assert.Equal(t, len(leaderDigest.BucketRecords(42%merkle.BucketCount)), sink.applied)
}

// countingSink wraps memSink and counts ApplyUpsert calls.
type countingSink struct {
	*memSink
	applied int
}

func (s *countingSink) ApplyUpsert(id uint32, record []byte) error {
	s.applied++
	return s.memSink.ApplyUpsert(id, record)
}

func TestFollower_WatermarkTracksLeaderClock(t *testing.T) {
	leaderDigest := merkle.New()
	leaderDigest.Upsert(1, []byte{1})
	leader := NewLocalLeader(leaderDigest, func() uint64 { return 77 })

	sink := newMemSink()
	follower := NewFollower(leader, sink, sink.digest)
	require.NoError(t, follower.Sync(context.Background()))

	assert.Equal(t, uint64(77), follower.Watermark())
}

func TestTracker_RejectsIllegalTransition(t *testing.T) {
	tr := NewTracker("f1")
	assert.Equal(t, Registering, tr.State())
	assert.False(t, tr.Transition(Registering))
	assert.True(t, tr.Transition(Streaming))
	assert.False(t, tr.Transition(Registering))
	assert.True(t, tr.Transition(Disconnected))
	assert.True(t, tr.Transition(Registering))
}

func TestTracker_DisconnectReturnsToCatchingUpOnReconnect(t *testing.T) {
	// spec.md §4.E: "a disconnect returns to CatchingUp on reconnect" —
	// Follower.Sync re-enters at CatchingUp directly, not via Registering.
	tr := NewTracker("f1")
	require.True(t, tr.Transition(Streaming))
	require.True(t, tr.Transition(Disconnected))
	assert.True(t, tr.Transition(CatchingUp))
	assert.Equal(t, CatchingUp, tr.State())
}

func TestFollower_SyncRecoversFromDisconnectedState(t *testing.T) {
	leaderDigest := merkle.New()
	leaderDigest.Upsert(1, []byte{1})
	leader := NewLocalLeader(leaderDigest, func() uint64 { return 1 })

	sink := newMemSink()
	follower := NewFollower(leader, sink, sink.digest)
	follower.tracker.Transition(Streaming)
	follower.tracker.Transition(Disconnected)

	require.NoError(t, follower.Sync(context.Background()))
	assert.Equal(t, Streaming, follower.State())
}
