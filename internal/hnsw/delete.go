package hnsw

import vecerrors "github.com/Aman-CERP/amanmcp/internal/errors"

// Delete tombstones id: it stays in every neighbour list it already
// belongs to (preserving connectivity for other nodes' searches) but is
// excluded from Search results and no longer eligible as the entry
// point. Physical removal only happens via Rebuild.
func (g *Graph) Delete(id uint32) error {
	n := g.nodeAt(id)
	if n == nil {
		return vecerrors.NotFoundf("internal id %d is not indexed", id)
	}
	if n.tombstoned.CompareAndSwap(false, true) {
		g.bumpLive(-1)
		if ep, ok := g.EntryPoint(); ok && ep == id {
			g.replaceEntryPoint()
		}
	}
	return nil
}

// replaceEntryPoint scans for any non-tombstoned node to serve as a new
// entry point after the current one was deleted. This is O(n) and rare
// (only fires immediately after the single highest-layer node is
// tombstoned); Rebuild is the path that keeps steady-state cost low.
func (g *Graph) replaceEntryPoint() {
	g.mu.Lock()
	defer g.mu.Unlock()

	var best *node
	for _, n := range g.nodes {
		if n == nil || n.tombstoned.Load() {
			continue
		}
		if best == nil || n.topLayer > best.topLayer {
			best = n
		}
	}
	if best == nil {
		g.hasEntry = false
		return
	}
	g.entryPoint = best.id
	g.hasEntry = true
}

// IsTombstoned reports whether id has been logically deleted.
func (g *Graph) IsTombstoned(id uint32) bool {
	n := g.nodeAt(id)
	return n == nil || n.tombstoned.Load()
}
