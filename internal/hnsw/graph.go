// Package hnsw implements the hierarchical navigable small-world index
// (component D): a multi-layer proximity graph supporting approximate
// insert, search, tombstone-only delete, and vacuum/rebuild.
package hnsw

import (
	"math"
	"math/rand"
	"sync"
	"sync/atomic"

	vecerrors "github.com/Aman-CERP/amanmcp/internal/errors"
	"github.com/Aman-CERP/amanmcp/internal/metric"
)

// maxLayers bounds how many layers the level generator may ever produce;
// with the default M=16 (mL≈0.36) this comfortably covers collections far
// larger than any single process will hold in memory.
const maxLayers = 32

// Params configures graph construction and search, per spec.md §4.D.
type Params struct {
	M              int
	MMax0          int
	EfConstruction int
	EfSearch       int
}

// DefaultParams returns the spec's default construction parameters.
func DefaultParams() Params {
	return Params{M: 16, MMax0: 32, EfConstruction: 200, EfSearch: 50}
}

func (p Params) mL() float64 {
	return 1.0 / math.Log(float64(p.M))
}

// RecordSource is the read side of the segmented store a graph needs to
// fetch the (possibly quantized) bytes for a node's internal id.
type RecordSource interface {
	ReadRecord(id uint32) ([]byte, error)
}

// node is one vertex of the graph: a dense internal id plus its neighbour
// lists at every layer from 0 up to topLayer, per the arena+index design
// in spec.md §9 (ids into a flat table, never pointer graphs).
type node struct {
	id         uint32
	topLayer   int
	tombstoned atomic.Bool
	neighbors  [][]uint32 // neighbors[layer]
}

// Graph is one collection's HNSW index.
type Graph struct {
	codec  metric.Codec
	store  RecordSource
	params Params

	mu         sync.RWMutex // guards nodes slice growth and the entry point
	nodes      []*node      // arena indexed by internal id
	entryPoint uint32
	hasEntry   bool

	layerLocks [maxLayers]sync.RWMutex // guards neighbour-list mutation per layer

	rndMu sync.Mutex
	rnd   *rand.Rand

	liveMu sync.RWMutex
	live   int
}

// New returns an empty graph over records readable from store via codec.
func New(codec metric.Codec, store RecordSource, params Params) *Graph {
	return &Graph{
		codec:  codec,
		store:  store,
		params: params,
		rnd:    rand.New(rand.NewSource(1)),
	}
}

// SearchResult is one ranked hit from Search.
type SearchResult struct {
	ID       uint32
	Distance float64
}

// Len returns the number of live (non-tombstoned) records currently
// indexed.
func (g *Graph) Len() int {
	g.liveMu.RLock()
	defer g.liveMu.RUnlock()
	return g.live
}

func (g *Graph) randomLevel() int {
	g.rndMu.Lock()
	u := g.rnd.Float64()
	g.rndMu.Unlock()
	if u <= 0 {
		u = 1e-300
	}
	level := int(math.Floor(-math.Log(u) * g.params.mL()))
	if level >= maxLayers {
		level = maxLayers - 1
	}
	return level
}

func (g *Graph) nodeAt(id uint32) *node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if int(id) >= len(g.nodes) {
		return nil
	}
	return g.nodes[id]
}

func (g *Graph) placeNode(n *node) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for uint32(len(g.nodes)) <= n.id {
		g.nodes = append(g.nodes, nil)
	}
	g.nodes[n.id] = n
}

func (g *Graph) distanceToStored(query metric.Raw, id uint32) (float64, error) {
	rec, err := g.store.ReadRecord(id)
	if err != nil {
		return 0, err
	}
	return g.codec.Distance(query, rec), nil
}

// EntryPoint returns the current graph entry point and whether one
// exists; a collection with no live records has none.
func (g *Graph) EntryPoint() (uint32, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.entryPoint, g.hasEntry
}

// errEmptyGraph is returned internally when a search is attempted before
// any node has been inserted.
var errEmptyGraph = vecerrors.New(vecerrors.NotFound, "graph has no entry point", nil)
