package hnsw

import "github.com/Aman-CERP/amanmcp/internal/metric"

// Insert adds internal id, whose vector is v, to the graph, per the
// algorithm in spec.md §4.D: draw a level, descend greedily to it, then
// link at every layer from the drawn level down to 0 using heuristic
// neighbour selection.
func (g *Graph) Insert(id uint32, v metric.Raw) error {
	level := g.randomLevel()
	n := &node{id: id, topLayer: level, neighbors: make([][]uint32, level+1)}

	entry, hasEntry := g.EntryPoint()
	if !hasEntry {
		g.placeNode(n)
		g.setEntryPointIfHigher(id, level)
		g.bumpLive(1)
		return nil
	}

	topNode := g.nodeAt(entry)
	current := entry
	for layer := topNode.topLayer; layer > level; layer-- {
		next, _, err := g.greedyDescend(v, current, layer)
		if err != nil {
			return err
		}
		current = next
	}

	g.placeNode(n)

	for layer := min(level, topNode.topLayer); layer >= 0; layer-- {
		candidates, err := g.searchLayer(v, []uint32{current}, g.params.EfConstruction, layer)
		if err != nil {
			return err
		}

		m := g.params.M
		if layer == 0 {
			m = g.params.MMax0
		}
		selected := g.selectNeighbors(v, candidates, m, layer, true)
		g.linkLayer(id, selected, layer)

		for _, nb := range selected {
			g.trimNeighbors(nb, layer)
		}

		if len(candidates) > 0 {
			current = candidates[0].id
		}
	}

	g.setEntryPointIfHigher(id, level)
	g.bumpLive(1)
	return nil
}

func (g *Graph) bumpLive(delta int) {
	g.liveMu.Lock()
	g.live += delta
	g.liveMu.Unlock()
}

func (g *Graph) setEntryPointIfHigher(id uint32, level int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if !g.hasEntry {
		g.entryPoint = id
		g.hasEntry = true
		return
	}
	current := g.nodes[g.entryPoint]
	if current == nil || level > current.topLayer {
		g.entryPoint = id
	}
}

// selectNeighbors implements spec.md §4.D's heuristic: extend candidates
// by their own neighbours, then greedily keep a candidate only if it is
// closer to the query than it is to every candidate already selected.
func (g *Graph) selectNeighbors(query metric.Raw, candidates []candidate, m int, layer int, extend bool) []uint32 {
	pool := append([]candidate(nil), candidates...)

	if extend {
		seen := make(map[uint32]bool, len(pool))
		for _, c := range pool {
			seen[c.id] = true
		}
		for _, c := range candidates {
			g.layerLocks[layer].RLock()
			n := g.nodeAt(c.id)
			var extra []uint32
			if n != nil && layer <= n.topLayer {
				extra = append(extra, n.neighbors[layer]...)
			}
			g.layerLocks[layer].RUnlock()

			for _, e := range extra {
				if seen[e] {
					continue
				}
				seen[e] = true
				d, err := g.distanceToStored(query, e)
				if err != nil {
					continue
				}
				pool = append(pool, candidate{id: e, dist: d})
			}
		}
	}

	sortCandidatesAsc(pool)

	selected := make([]candidate, 0, m)
	var discarded []candidate
	for _, c := range pool {
		if len(selected) >= m {
			break
		}
		closerToSelected := false
		for _, s := range selected {
			d, err := g.distanceBetweenNodes(c.id, s.id)
			if err == nil && d < c.dist {
				closerToSelected = true
				break
			}
		}
		if !closerToSelected {
			selected = append(selected, c)
		} else {
			discarded = append(discarded, c)
		}
	}
	for i := 0; len(selected) < m && i < len(discarded); i++ {
		selected = append(selected, discarded[i])
	}

	out := make([]uint32, len(selected))
	for i, c := range selected {
		out[i] = c.id
	}
	return out
}

func (g *Graph) distanceBetweenNodes(a, b uint32) (float64, error) {
	recA, err := g.store.ReadRecord(a)
	if err != nil {
		return 0, err
	}
	rawA := g.codec.Decode(recA)
	return g.distanceToStored(rawA, b)
}

// linkLayer connects id bidirectionally to every id in neighbors at
// layer.
func (g *Graph) linkLayer(id uint32, neighbors []uint32, layer int) {
	g.layerLocks[layer].Lock()
	n := g.nodeAt(id)
	n.neighbors[layer] = append(n.neighbors[layer], neighbors...)
	g.layerLocks[layer].Unlock()

	for _, nb := range neighbors {
		g.layerLocks[layer].Lock()
		nn := g.nodeAt(nb)
		if nn != nil && layer <= nn.topLayer {
			nn.neighbors[layer] = append(nn.neighbors[layer], id)
		}
		g.layerLocks[layer].Unlock()
	}
}

// trimNeighbors re-runs the selection heuristic on id's own neighbourhood
// at layer if it now exceeds its degree cap, per spec.md §4.D.
func (g *Graph) trimNeighbors(id uint32, layer int) {
	cap := g.params.M
	if layer == 0 {
		cap = g.params.MMax0
	}

	g.layerLocks[layer].RLock()
	n := g.nodeAt(id)
	if n == nil || layer > n.topLayer || len(n.neighbors[layer]) <= cap {
		g.layerLocks[layer].RUnlock()
		return
	}
	current := append([]uint32(nil), n.neighbors[layer]...)
	g.layerLocks[layer].RUnlock()

	rec, err := g.store.ReadRecord(id)
	if err != nil {
		return
	}
	query := g.codec.Decode(rec)

	candidates := make([]candidate, 0, len(current))
	for _, nb := range current {
		d, err := g.distanceToStored(query, nb)
		if err != nil {
			continue
		}
		candidates = append(candidates, candidate{id: nb, dist: d})
	}
	trimmed := g.selectNeighbors(query, candidates, cap, layer, false)

	g.layerLocks[layer].Lock()
	n2 := g.nodeAt(id)
	if n2 != nil && layer <= n2.topLayer {
		n2.neighbors[layer] = trimmed
	}
	g.layerLocks[layer].Unlock()
}
