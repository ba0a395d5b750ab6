package collection

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	vecerrors "github.com/Aman-CERP/amanmcp/internal/errors"
)

// DefaultSnapshotInterval is how often the background scheduler snapshots
// a collection when no override is configured (spec.md §6 "snapshot
// interval").
const DefaultSnapshotInterval = 5 * time.Minute

// Snapshot durably captures the current graph state to index.snap and
// rotates the WAL, per spec.md §4.C "the WAL is rotated on snapshot".
func (c *Collection) Snapshot() error {
	if err := c.log.Sync(); err != nil {
		return err
	}

	clock := c.Clock()
	tmp := filepath.Join(c.dir, "index.snap.tmp")
	f, err := os.Create(tmp)
	if err != nil {
		return vecerrors.Wrap(vecerrors.IoError, err)
	}

	c.graphMu.RLock()
	err = c.graph.Snapshot(f, clock)
	c.graphMu.RUnlock()

	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return vecerrors.Wrap(vecerrors.IoError, err)
	}

	final := filepath.Join(c.dir, "index.snap")
	if err := os.Rename(tmp, final); err != nil {
		return vecerrors.Wrap(vecerrors.IoError, err)
	}

	return c.log.Rotate()
}

// SnapshotScheduler periodically snapshots a collection on a ticker,
// pushing the (blocking) I/O onto its own goroutine so the caller's
// runtime is never blocked by it (spec.md §5).
type SnapshotScheduler struct {
	coll     *Collection
	interval time.Duration

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewSnapshotScheduler returns a scheduler for coll at the given
// interval; interval <= 0 uses DefaultSnapshotInterval.
func NewSnapshotScheduler(coll *Collection, interval time.Duration) *SnapshotScheduler {
	if interval <= 0 {
		interval = DefaultSnapshotInterval
	}
	return &SnapshotScheduler{coll: coll, interval: interval}
}

// Start launches the background ticker loop.
func (s *SnapshotScheduler) Start(ctx context.Context) {
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go s.loop()
}

// Stop cancels the loop, waits for any in-flight snapshot to finish, and
// takes one final snapshot so a clean shutdown never loses acknowledged
// writes to an unnecessarily long WAL replay.
func (s *SnapshotScheduler) Stop() {
	s.stopOnce.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
		if err := s.coll.Snapshot(); err != nil {
			slog.Error("final snapshot on shutdown failed",
				slog.String("collection", s.coll.Name()),
				slog.Any("error", err))
		}
	})
}

func (s *SnapshotScheduler) loop() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			if err := s.coll.Snapshot(); err != nil {
				slog.Error("periodic snapshot failed",
					slog.String("collection", s.coll.Name()),
					slog.Any("error", err))
			}
		}
	}
}
