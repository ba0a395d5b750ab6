package collection

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Aman-CERP/amanmcp/internal/hnsw"
	"github.com/Aman-CERP/amanmcp/internal/metric"
)

// VacuumPredicate decides, given an internal id's metadata, whether that
// record should be dropped during a vacuum/rebuild (spec.md §4.D).
type VacuumPredicate func(metadata map[string]string) bool

// Vacuum rebuilds the graph from scratch over every live record not
// matched by drop, in a side arena, then atomically swaps it in.
func (c *Collection) Vacuum(drop VacuumPredicate) error {
	c.idMu.RLock()
	ids := make([]uint32, 0, len(c.externalToInt))
	for _, internalID := range c.externalToInt {
		ids = append(ids, internalID)
	}
	metaCopy := make(map[uint32]map[string]string, len(c.metadataByInt))
	for id, m := range c.metadataByInt {
		metaCopy[id] = m
	}
	c.idMu.RUnlock()

	c.graphMu.RLock()
	oldGraph := c.graph
	c.graphMu.RUnlock()

	keep := func(id uint32) bool {
		if oldGraph.IsTombstoned(id) {
			return false
		}
		if drop != nil && drop(metaCopy[id]) {
			return false
		}
		return true
	}
	vectors := func(id uint32) (metric.Raw, error) {
		rec, err := c.store.ReadRecord(id)
		if err != nil {
			return nil, err
		}
		return c.codec.Decode(rec), nil
	}

	rebuilt, err := hnsw.Rebuild(c.codec, c.store, c.params, ids, keep, vectors)
	if err != nil {
		return err
	}

	c.graphMu.Lock()
	c.graph = rebuilt
	c.graphMu.Unlock()
	return nil
}

// vacuumTaskInterval is how often the background scheduler checks
// whether this collection's tombstone ratio warrants a rebuild.
const vacuumTaskInterval = time.Minute

// vacuumTombstoneThreshold triggers a vacuum once tombstones make up this
// fraction of assigned internal ids, rather than requiring an explicit
// external trigger for every vacuum.
const vacuumTombstoneThreshold = 0.25

// VacuumScheduler periodically vacuums a collection once its tombstone
// ratio crosses vacuumTombstoneThreshold, adapted from the teacher's
// ticker-driven background compaction manager.
type VacuumScheduler struct {
	coll *Collection

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewVacuumScheduler returns a scheduler for coll, not yet started.
func NewVacuumScheduler(coll *Collection) *VacuumScheduler {
	return &VacuumScheduler{coll: coll}
}

// Start launches the background ticker loop.
func (s *VacuumScheduler) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.loop()
}

// Stop cancels the loop and waits for it to exit.
func (s *VacuumScheduler) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
	})
}

func (s *VacuumScheduler) loop() {
	defer s.wg.Done()
	ticker := time.NewTicker(vacuumTaskInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.maybeVacuum()
		}
	}
}

func (s *VacuumScheduler) maybeVacuum() {
	s.coll.idMu.RLock()
	assigned := len(s.coll.externalToInt)
	s.coll.idMu.RUnlock()
	if assigned == 0 {
		return
	}
	live := s.coll.Len()
	tombstoned := assigned - live
	ratio := float64(tombstoned) / float64(assigned)
	if ratio < vacuumTombstoneThreshold {
		return
	}

	slog.Info("collection vacuum triggered",
		slog.String("collection", s.coll.Name()),
		slog.Float64("tombstone_ratio", ratio))

	if err := s.coll.Vacuum(nil); err != nil {
		slog.Error("collection vacuum failed",
			slog.String("collection", s.coll.Name()),
			slog.Any("error", err))
	}
}
