package replica

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	vecerrors "github.com/Aman-CERP/amanmcp/internal/errors"
	"github.com/Aman-CERP/amanmcp/internal/merkle"
)

const bucketFanout = 16

// Follower drives one side of the sync protocol: it compares its own
// digest against a leader's, pulls only the buckets that diverge, and
// applies the resulting records through a Sink.
type Follower struct {
	id      string
	leader  Source
	sink    Sink
	digest  *merkle.Digest
	tracker *Tracker
	cb      *vecerrors.CircuitBreaker

	mu         sync.Mutex
	lastClock  uint64
}

// NewFollower returns a follower identified by a fresh session id,
// reconciling digest against leader and applying records through sink.
func NewFollower(leader Source, sink Sink, digest *merkle.Digest) *Follower {
	id := uuid.NewString()
	return &Follower{
		id:      id,
		leader:  leader,
		sink:    sink,
		digest:  digest,
		tracker: NewTracker(id),
		cb:      newFollowerBreaker("follower-" + id),
	}
}

// ID returns this follower's session id.
func (f *Follower) ID() string { return f.id }

// State returns this follower's current lifecycle state.
func (f *Follower) State() FollowerState { return f.tracker.State() }

// Sync runs one full reconcile pass against the leader: ROOT?, and if the
// roots differ, BUCKETS? followed by BUCKET i for every divergent bucket,
// applying each returned record as an upsert. It returns nil once the
// follower's root hash matches the leader's (or already did).
func (f *Follower) Sync(ctx context.Context) error {
	f.tracker.Transition(CatchingUp)

	err := withBackoff(ctx, f.cb, func() error {
		return f.reconcile(ctx)
	})
	if err != nil {
		f.tracker.Transition(Disconnected)
		return err
	}

	f.tracker.Transition(Streaming)
	return nil
}

func (f *Follower) reconcile(ctx context.Context) error {
	remoteRoot, remoteClock := f.leader.Root()
	f.mu.Lock()
	f.lastClock = remoteClock
	f.mu.Unlock()

	if remoteRoot == f.digest.Root() {
		return nil
	}

	remoteBuckets := f.leader.Buckets()
	divergent := f.digest.DivergentBuckets(remoteBuckets)
	if len(divergent) == 0 {
		return nil
	}

	g, _ := errgroup.WithContext(ctx)
	sem := make(chan struct{}, bucketFanout)
	for _, idx := range divergent {
		idx := idx
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				return ctx.Err()
			}
			defer func() { <-sem }()

			entries := f.leader.Bucket(idx)
			for _, e := range entries {
				if err := f.sink.ApplyUpsert(e.ID, e.Record); err != nil {
					return err
				}
				f.digest.Upsert(e.ID, e.Record)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	finalRoot, _ := f.leader.Root()
	if finalRoot != f.digest.Root() {
		return vecerrors.New(vecerrors.Unavailable, "follower did not converge to leader root after bucket sync", nil)
	}
	return nil
}

// Watermark returns the logical clock value observed at the most recent
// ROOT? response. Sync records it but does not compare incoming records
// against it.
func (f *Follower) Watermark() uint64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastClock
}
