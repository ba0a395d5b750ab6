package replica

import "sync"

// FollowerState is a step in a follower's lifecycle as tracked by the
// leader (spec.md §4.E).
type FollowerState int

const (
	// Registering is the state immediately after a follower connects,
	// before it has completed its first ROOT? round trip.
	Registering FollowerState = iota
	// CatchingUp means the follower's root hash diverges from the
	// leader's and bucket reconciliation is in progress.
	CatchingUp
	// Streaming means the follower has converged and is now receiving
	// concurrent mutations as they happen.
	Streaming
	// Disconnected means the leader has lost contact with the follower.
	Disconnected
)

func (s FollowerState) String() string {
	switch s {
	case Registering:
		return "registering"
	case CatchingUp:
		return "catching_up"
	case Streaming:
		return "streaming"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// transitions enumerates the edges the state machine allows; an attempt
// to move along an edge not listed here is rejected by Tracker.Transition.
var transitions = map[FollowerState][]FollowerState{
	Registering:  {CatchingUp, Streaming, Disconnected},
	CatchingUp:   {CatchingUp, Streaming, Disconnected},
	Streaming:    {CatchingUp, Disconnected},
	Disconnected: {Registering, CatchingUp},
}

func canTransition(from, to FollowerState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Tracker is the leader-side record of one follower's replication state.
type Tracker struct {
	mu    sync.Mutex
	id    string
	state FollowerState
}

// NewTracker returns a tracker for followerID, starting in Registering.
func NewTracker(followerID string) *Tracker {
	return &Tracker{id: followerID, state: Registering}
}

// ID returns the tracked follower's id.
func (t *Tracker) ID() string { return t.id }

// State returns the current state.
func (t *Tracker) State() FollowerState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Transition moves the tracker to to, returning false (and leaving the
// state unchanged) if the edge is not a legal one.
func (t *Tracker) Transition(to FollowerState) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !canTransition(t.state, to) {
		return false
	}
	t.state = to
	return true
}
