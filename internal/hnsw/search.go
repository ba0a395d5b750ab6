package hnsw

import (
	"container/heap"

	"github.com/Aman-CERP/amanmcp/internal/metric"
)

// candidate pairs a node id with its distance to the active query.
type candidate struct {
	id   uint32
	dist float64
}

// maxHeap keeps the current ef-nearest set, root = farthest, so a closer
// candidate can evict it in O(log ef).
type maxHeap []candidate

func (h maxHeap) Len() int            { return len(h) }
func (h maxHeap) Less(i, j int) bool  { return h[i].dist > h[j].dist }
func (h maxHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *maxHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *maxHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// minHeap drives the expansion frontier, root = closest unexplored.
type minHeap []candidate

func (h minHeap) Len() int            { return len(h) }
func (h minHeap) Less(i, j int) bool  { return h[i].dist < h[j].dist }
func (h minHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *minHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// greedyDescend performs ef=1 greedy search at layer starting from entry,
// returning the closest node found. Used to narrow the entry point while
// descending through the upper layers, both for Insert and Search.
func (g *Graph) greedyDescend(query metric.Raw, entry uint32, layer int) (uint32, float64, error) {
	bestID := entry
	bestDist, err := g.distanceToStored(query, entry)
	if err != nil {
		return 0, 0, err
	}

	for {
		improved := false
		g.layerLocks[layer].RLock()
		n := g.nodeAt(bestID)
		var neighbors []uint32
		if n != nil && layer <= n.topLayer {
			neighbors = append(neighbors, n.neighbors[layer]...)
		}
		g.layerLocks[layer].RUnlock()

		for _, nb := range neighbors {
			d, err := g.distanceToStored(query, nb)
			if err != nil {
				continue
			}
			if d < bestDist {
				bestDist = d
				bestID = nb
				improved = true
			}
		}
		if !improved {
			return bestID, bestDist, nil
		}
	}
}

// searchLayer runs the bounded-priority-queue search of spec.md §4.D at a
// single layer, starting from entryPoints, returning up to ef candidates
// sorted by ascending distance. Tombstoned nodes are traversed (they stay
// in the candidate frontier) but excluded from the returned result set's
// ranking only by the caller, per spec.md §4.D "traverse through them".
func (g *Graph) searchLayer(query metric.Raw, entryPoints []uint32, ef int, layer int) ([]candidate, error) {
	visited := make(map[uint32]bool)
	candidates := &minHeap{}
	results := &maxHeap{}

	for _, ep := range entryPoints {
		if visited[ep] {
			continue
		}
		visited[ep] = true
		d, err := g.distanceToStored(query, ep)
		if err != nil {
			continue
		}
		heap.Push(candidates, candidate{id: ep, dist: d})
		heap.Push(results, candidate{id: ep, dist: d})
	}

	for candidates.Len() > 0 {
		c := heap.Pop(candidates).(candidate)
		if results.Len() >= ef && c.dist > (*results)[0].dist {
			break
		}

		g.layerLocks[layer].RLock()
		n := g.nodeAt(c.id)
		var neighbors []uint32
		if n != nil && layer <= n.topLayer {
			neighbors = append(neighbors, n.neighbors[layer]...)
		}
		g.layerLocks[layer].RUnlock()

		for _, nb := range neighbors {
			if visited[nb] {
				continue
			}
			visited[nb] = true
			d, err := g.distanceToStored(query, nb)
			if err != nil {
				continue
			}
			if results.Len() < ef || d < (*results)[0].dist {
				heap.Push(candidates, candidate{id: nb, dist: d})
				heap.Push(results, candidate{id: nb, dist: d})
				if results.Len() > ef {
					heap.Pop(results)
				}
			}
		}
	}

	out := make([]candidate, results.Len())
	copy(out, *results)
	sortCandidatesAsc(out)
	return out, nil
}

func sortCandidatesAsc(c []candidate) {
	for i := 1; i < len(c); i++ {
		for j := i; j > 0 && c[j].dist < c[j-1].dist; j-- {
			c[j], c[j-1] = c[j-1], c[j]
		}
	}
}

// Search returns the k nearest non-tombstoned ids to query, widening the
// layer-0 search to ef = max(efSearch, k) per spec.md §4.D. efSearch <= 0
// uses the graph's configured default.
func (g *Graph) Search(query metric.Raw, k int, efSearch int) ([]SearchResult, error) {
	entry, ok := g.EntryPoint()
	if !ok {
		return nil, nil
	}
	if efSearch <= 0 {
		efSearch = g.params.EfSearch
	}
	ef := efSearch
	if k > ef {
		ef = k
	}

	topNode := g.nodeAt(entry)
	if topNode == nil {
		return nil, nil
	}

	current := entry
	for layer := topNode.topLayer; layer > 0; layer-- {
		next, _, err := g.greedyDescend(query, current, layer)
		if err != nil {
			return nil, err
		}
		current = next
	}

	candidates, err := g.searchLayer(query, []uint32{current}, ef, 0)
	if err != nil {
		return nil, err
	}

	out := make([]SearchResult, 0, k)
	for _, c := range candidates {
		n := g.nodeAt(c.id)
		if n == nil || n.tombstoned.Load() {
			continue
		}
		out = append(out, SearchResult{ID: c.id, Distance: c.dist})
		if len(out) == k {
			break
		}
	}
	return out, nil
}
