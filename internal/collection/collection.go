// Package collection wires components A through E into the lifecycle of
// a single named collection: it owns the logical clock, the external-id
// to internal-id mapping, and the per-collection write token described in
// spec.md §5 and §9.
package collection

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	vecerrors "github.com/Aman-CERP/amanmcp/internal/errors"
	"github.com/Aman-CERP/amanmcp/internal/hnsw"
	"github.com/Aman-CERP/amanmcp/internal/merkle"
	"github.com/Aman-CERP/amanmcp/internal/metaindex"
	"github.com/Aman-CERP/amanmcp/internal/metric"
	"github.com/Aman-CERP/amanmcp/internal/store"
	"github.com/Aman-CERP/amanmcp/internal/wal"
)

// State is a step in a collection's lifecycle.
type State int

const (
	Open State = iota
	Serving
	Draining
	Closed
)

func (s State) String() string {
	switch s {
	case Open:
		return "open"
	case Serving:
		return "serving"
	case Draining:
		return "draining"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// Meta is the persisted per-collection descriptor, stored as meta.json
// alongside wal.log, chunks/, and index.snap per spec.md §6.
type Meta struct {
	Name         string             `json:"name"`
	Dim          int                `json:"dim"`
	Metric       metric.Kind        `json:"metric"`
	Quantization metric.Quantization `json:"quantization"`
	CreatedAt    int64              `json:"created_at"`
}

// record is what gets appended to the WAL and what ApplyUpsert /
// replication pass around: one mutation of one external id.
type record struct {
	Op         byte              `json:"op"`
	ExternalID uint32            `json:"external_id"`
	InternalID uint32            `json:"internal_id"`
	Vector     metric.Raw        `json:"vector,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

const (
	opInsert byte = iota
	opUpsert
	opDelete
)

// Collection is one open collection: the codec bound at open time, its
// segmented store, write-ahead log, HNSW graph, and Merkle digest.
type Collection struct {
	name   string
	dir    string
	codec  metric.Codec
	params hnsw.Params

	store  *store.Store
	log    *wal.Log
	digest *merkle.Digest
	meta   *metaindex.Index

	graphMu sync.RWMutex
	graph   *hnsw.Graph

	clock atomic.Uint64

	idMu               sync.RWMutex
	externalToInt      map[uint32]uint32
	internalToExternal map[uint32]uint32
	metadataByInt      map[uint32]map[string]string

	writeToken chan struct{}

	stateMu sync.Mutex
	state   State
}

// Options configures Open.
type Options struct {
	Dim          int
	Metric       metric.Kind
	Quantization metric.Quantization
	Params       hnsw.Params
	Durability   wal.Durability
	MaxOpenChunks int
}

// Open opens (or creates) the collection directory dir, restoring the
// graph from index.snap and replaying the WAL tail if the snapshot's
// clock is behind the log, per spec.md §4.C/§4.D.
func Open(name, dir string, opts Options) (*Collection, error) {
	codec, err := metric.NewCodec(opts.Metric, opts.Quantization, opts.Dim)
	if err != nil {
		return nil, err
	}

	st, err := store.Open(filepath.Join(dir, "chunks"), codec.RecordSize(), opts.MaxOpenChunks)
	if err != nil {
		return nil, err
	}

	l, err := wal.Open(filepath.Join(dir, "wal.log"), opts.Durability)
	if err != nil {
		return nil, err
	}

	mi, err := metaindex.Open(dir)
	if err != nil {
		return nil, err
	}

	c := &Collection{
		name:          name,
		dir:           dir,
		codec:         codec,
		params:        opts.Params,
		store:         st,
		log:           l,
		digest:        merkle.New(),
		meta:          mi,
		externalToInt:      make(map[uint32]uint32),
		internalToExternal: make(map[uint32]uint32),
		metadataByInt:      make(map[uint32]map[string]string),
		writeToken:         make(chan struct{}, 1),
		state:              Open,
	}

	snapshotClock, err := c.restoreSnapshot()
	if err != nil {
		return nil, err
	}

	c.clock.Store(snapshotClock)
	if err := wal.Replay(filepath.Join(dir, "wal.log"), snapshotClock, func(r wal.Record) error {
		c.clock.Store(r.Clock)
		return c.applyReplayedRecord(r)
	}); err != nil {
		return nil, err
	}

	c.state = Serving
	return c, nil
}

// WriteMeta persists the collection descriptor to meta.json, called once
// at creation time.
func WriteMeta(dir string, m Meta) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return vecerrors.Wrap(vecerrors.IoError, err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return vecerrors.Wrap(vecerrors.InvalidInput, err)
	}
	if err := os.WriteFile(filepath.Join(dir, "meta.json"), data, 0o644); err != nil {
		return vecerrors.Wrap(vecerrors.IoError, err)
	}
	return nil
}

// ReadMeta loads the collection descriptor previously written by
// WriteMeta.
func ReadMeta(dir string) (Meta, error) {
	var m Meta
	data, err := os.ReadFile(filepath.Join(dir, "meta.json"))
	if err != nil {
		if os.IsNotExist(err) {
			return m, vecerrors.NotFoundf("no meta.json in %s", dir)
		}
		return m, vecerrors.Wrap(vecerrors.IoError, err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, vecerrors.Wrap(vecerrors.Corruption, err)
	}
	return m, nil
}

func (c *Collection) restoreSnapshot() (uint64, error) {
	path := filepath.Join(c.dir, "index.snap")
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		c.graph = hnsw.New(c.codec, c.store, c.params)
		return 0, nil
	}
	if err != nil {
		return 0, vecerrors.Wrap(vecerrors.IoError, err)
	}
	defer f.Close()

	g, clock, err := hnsw.Restore(f, c.codec, c.store, c.params)
	if err != nil {
		if vecerrors.CodeOf(err) == vecerrors.Corruption {
			// Corrupt snapshot falls through to a full WAL replay, per
			// spec.md §7.
			c.graph = hnsw.New(c.codec, c.store, c.params)
			return 0, nil
		}
		return 0, err
	}
	c.graph = g
	return clock, nil
}

func (c *Collection) applyReplayedRecord(r wal.Record) error {
	var rec record
	if err := json.Unmarshal(r.Payload, &rec); err != nil {
		return vecerrors.Wrap(vecerrors.Corruption, err)
	}

	if rec.Op == opDelete {
		c.idMu.Lock()
		delete(c.externalToInt, rec.ExternalID)
		delete(c.internalToExternal, rec.InternalID)
		delete(c.metadataByInt, rec.InternalID)
		c.idMu.Unlock()

		_ = c.meta.Delete(context.Background(), rec.InternalID)
		return c.graph.Delete(rec.InternalID)
	}

	c.idMu.Lock()
	prevInternalID, hadPrev := c.externalToInt[rec.ExternalID]
	hadPrev = hadPrev && prevInternalID != rec.InternalID
	c.externalToInt[rec.ExternalID] = rec.InternalID
	c.internalToExternal[rec.InternalID] = rec.ExternalID
	if hadPrev {
		delete(c.internalToExternal, prevInternalID)
		delete(c.metadataByInt, prevInternalID)
	}
	if rec.Metadata != nil {
		c.metadataByInt[rec.InternalID] = rec.Metadata
	}
	c.idMu.Unlock()

	bytes := c.codec.Encode(rec.Vector)
	if err := c.store.WriteRecord(rec.InternalID, bytes); err != nil {
		return err
	}
	c.digest.Upsert(rec.InternalID, bytes)
	if rec.Metadata != nil {
		if err := c.meta.Put(context.Background(), rec.InternalID, rec.Metadata); err != nil {
			return err
		}
	}
	if err := c.graph.Insert(rec.InternalID, rec.Vector); err != nil {
		return err
	}

	// The upsert's prior internal id is now unreachable from any external
	// id; fold its tombstone into the graph and digest so it stops
	// contributing a duplicate live record (spec.md §3 one-record-per-id).
	if hadPrev {
		if err := c.meta.Delete(context.Background(), prevInternalID); err != nil {
			return err
		}
		c.digest.Remove(prevInternalID)
		return c.graph.Delete(prevInternalID)
	}
	return nil
}

// acquireWriteToken blocks until the collection-level write token is
// free or ctx is done, per spec.md §5.
func (c *Collection) acquireWriteToken(ctx context.Context) error {
	select {
	case c.writeToken <- struct{}{}:
		return nil
	case <-ctx.Done():
		return vecerrors.New(vecerrors.Cancelled, "timed out acquiring collection write token", ctx.Err())
	}
}

func (c *Collection) releaseWriteToken() {
	<-c.writeToken
}

func (c *Collection) nextClock() uint64 {
	return c.clock.Add(1)
}

// Clock returns the current logical clock value.
func (c *Collection) Clock() uint64 {
	return c.clock.Load()
}

// Name returns the collection's name.
func (c *Collection) Name() string { return c.name }

// State returns the collection's current lifecycle state.
func (c *Collection) State() State {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

func (c *Collection) setState(s State) {
	c.stateMu.Lock()
	c.state = s
	c.stateMu.Unlock()
}

// Insert assigns a fresh internal id to v under externalID and logs an
// insert, or — if externalID is already assigned — logs an upsert, writes
// v under a freshly allocated internal id and tombstones the prior one, so
// exactly one live record remains for externalID. Either way the mutation is durably logged
// before it reaches the store or index, per spec.md's data-flow
// description in §2.
func (c *Collection) Insert(ctx context.Context, externalID uint32, v metric.Raw, metadata map[string]string) error {
	if err := c.codec.Validate(v); err != nil {
		return err
	}
	if err := c.acquireWriteToken(ctx); err != nil {
		return err
	}
	defer c.releaseWriteToken()

	c.idMu.RLock()
	prevInternalID, isUpsert := c.externalToInt[externalID]
	c.idMu.RUnlock()

	clock := c.nextClock()
	internalID := c.store.Allocate()

	op := opInsert
	if isUpsert {
		op = opUpsert
	}

	rec := record{Op: op, ExternalID: externalID, InternalID: internalID, Vector: v, Metadata: metadata}
	payload, err := json.Marshal(rec)
	if err != nil {
		return vecerrors.Wrap(vecerrors.InvalidInput, err)
	}
	if err := c.log.Append(wal.Record{Clock: clock, Payload: payload}); err != nil {
		return err
	}

	bytes := c.codec.Encode(v)
	if err := c.store.WriteRecord(internalID, bytes); err != nil {
		return err
	}
	c.digest.Upsert(internalID, bytes)

	c.idMu.Lock()
	c.externalToInt[externalID] = internalID
	c.internalToExternal[internalID] = externalID
	if isUpsert {
		delete(c.internalToExternal, prevInternalID)
		delete(c.metadataByInt, prevInternalID)
	}
	if metadata != nil {
		c.metadataByInt[internalID] = metadata
	}
	c.idMu.Unlock()

	if metadata != nil {
		if err := c.meta.Put(ctx, internalID, metadata); err != nil {
			return err
		}
	}

	c.graphMu.RLock()
	g := c.graph
	c.graphMu.RUnlock()
	if err := g.Insert(internalID, v); err != nil {
		return err
	}

	// The prior internal id is now unreachable from any external id; fold
	// its tombstone into the graph and digest immediately rather than
	// leaving a duplicate live record that no vacuum predicate can ever
	// reach (it no longer appears in externalToInt at all).
	if isUpsert {
		if err := c.meta.Delete(ctx, prevInternalID); err != nil {
			return err
		}
		c.digest.Remove(prevInternalID)
		return g.Delete(prevInternalID)
	}
	return nil
}

// Delete tombstones externalID's record. Per spec.md §4.D the graph edge
// list is left intact; only a future vacuum physically reclaims it.
func (c *Collection) Delete(ctx context.Context, externalID uint32) error {
	if err := c.acquireWriteToken(ctx); err != nil {
		return err
	}
	defer c.releaseWriteToken()

	c.idMu.RLock()
	internalID, ok := c.externalToInt[externalID]
	c.idMu.RUnlock()
	if !ok {
		return vecerrors.NotFoundf("external id %d not found in collection %q", externalID, c.name)
	}

	clock := c.nextClock()
	rec := record{Op: opDelete, ExternalID: externalID, InternalID: internalID}
	payload, err := json.Marshal(rec)
	if err != nil {
		return vecerrors.Wrap(vecerrors.InvalidInput, err)
	}
	if err := c.log.Append(wal.Record{Clock: clock, Payload: payload}); err != nil {
		return err
	}
	if err := c.meta.Delete(ctx, internalID); err != nil {
		return err
	}

	c.idMu.Lock()
	delete(c.externalToInt, externalID)
	delete(c.internalToExternal, internalID)
	delete(c.metadataByInt, internalID)
	c.idMu.Unlock()

	c.graphMu.RLock()
	g := c.graph
	c.graphMu.RUnlock()
	return g.Delete(internalID)
}

// Search runs a top-k approximate nearest-neighbour query, translating
// the graph's internal ids back to the external ids callers assigned.
func (c *Collection) Search(query metric.Raw, k, efSearch int) ([]hnsw.SearchResult, error) {
	c.graphMu.RLock()
	g := c.graph
	c.graphMu.RUnlock()
	hits, err := g.Search(query, k, efSearch)
	if err != nil {
		return nil, err
	}
	return c.translateResults(hits), nil
}

// translateResults rewrites internal-id search hits to the external ids
// the caller assigned at insert time; a hit with no surviving external
// mapping (a just-vacated id racing a concurrent delete) is dropped.
func (c *Collection) translateResults(hits []hnsw.SearchResult) []hnsw.SearchResult {
	c.idMu.RLock()
	defer c.idMu.RUnlock()

	out := make([]hnsw.SearchResult, 0, len(hits))
	for _, h := range hits {
		externalID, ok := c.internalToExternal[h.ID]
		if !ok {
			continue
		}
		out = append(out, hnsw.SearchResult{ID: externalID, Distance: h.Distance})
	}
	return out
}

// SearchFiltered runs Search restricted to candidates whose metadata
// matches key == value, evaluated against the SQLite side table rather
// than decoding every candidate's stored record (spec.md §4.D).
func (c *Collection) SearchFiltered(ctx context.Context, query metric.Raw, k, efSearch int, key, value string) ([]hnsw.SearchResult, error) {
	allowed, err := c.meta.MatchingKeyValue(ctx, key, value)
	if err != nil {
		return nil, err
	}
	allowedSet := make(map[uint32]struct{}, len(allowed))
	for _, id := range allowed {
		allowedSet[id] = struct{}{}
	}

	// Over-fetch to compensate for post-filtering; a wider ef_search widens
	// the candidate pool so filtering rarely starves the result set.
	widenedEf := efSearch
	if widenedEf < k*4 {
		widenedEf = k * 4
	}

	c.graphMu.RLock()
	g := c.graph
	c.graphMu.RUnlock()

	hits, err := g.Search(query, widenedEf, widenedEf)
	if err != nil {
		return nil, err
	}

	filtered := make([]hnsw.SearchResult, 0, k)
	for _, h := range hits {
		if _, ok := allowedSet[h.ID]; !ok {
			continue
		}
		filtered = append(filtered, h)
		if len(filtered) == k {
			break
		}
	}
	return c.translateResults(filtered), nil
}

// ApplyUpsert implements replica.Sink: it writes a record arriving from a
// leader directly to the store/digest/graph, bypassing this collection's
// own WAL (the leader's WAL is the durable record of the mutation).
func (c *Collection) ApplyUpsert(internalID uint32, rec []byte) error {
	if err := c.store.WriteRecord(internalID, rec); err != nil {
		return err
	}
	c.digest.Upsert(internalID, rec)

	c.graphMu.RLock()
	g := c.graph
	c.graphMu.RUnlock()

	v := c.codec.Decode(rec)
	return g.Insert(internalID, v)
}

// Digest exposes the collection's Merkle digest for replication.
func (c *Collection) Digest() *merkle.Digest { return c.digest }

// Len reports the number of live records currently indexed.
func (c *Collection) Len() int {
	c.graphMu.RLock()
	defer c.graphMu.RUnlock()
	return c.graph.Len()
}

// Close drains in-flight writes, flushes the store, and releases the
// write-ahead log.
func (c *Collection) Close() error {
	c.setState(Draining)
	if err := c.acquireWriteToken(context.Background()); err != nil {
		return err
	}
	defer c.releaseWriteToken()

	if err := c.log.Close(); err != nil {
		return err
	}
	if err := c.store.Close(); err != nil {
		return err
	}
	if err := c.meta.Close(); err != nil {
		return err
	}
	c.setState(Closed)
	return nil
}
