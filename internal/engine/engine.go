package engine

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/Aman-CERP/amanmcp/internal/collection"
	vecerrors "github.com/Aman-CERP/amanmcp/internal/errors"
	"github.com/Aman-CERP/amanmcp/internal/hnsw"
	"github.com/Aman-CERP/amanmcp/internal/wal"
)

// Engine is the process-wide registry of open collections: every RPC
// handler reaches a collection through here rather than holding its own
// reference, so ListCollections, DeleteCollection, and shutdown see a
// consistent view.
type Engine struct {
	dataDir string

	mu          sync.RWMutex
	collections map[string]*openCollection
}

type openCollection struct {
	coll      *collection.Collection
	snapshots *collection.SnapshotScheduler
	vacuums   *collection.VacuumScheduler
}

// New returns an Engine rooted at dataDir. dataDir is created if absent.
func New(dataDir string) (*Engine, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, vecerrors.Wrap(vecerrors.IoError, err)
	}
	return &Engine{dataDir: dataDir, collections: make(map[string]*openCollection)}, nil
}

func (e *Engine) dirFor(name string) string {
	return filepath.Join(e.dataDir, name)
}

// Discover lists every collection persisted under the data directory,
// whether or not it is currently open. A fresh CLI process has an empty
// in-memory registry, so collection listing/deletion goes through disk
// discovery rather than ListCollections.
func (e *Engine) Discover() ([]string, error) {
	entries, err := os.ReadDir(e.dataDir)
	if err != nil {
		return nil, vecerrors.Wrap(vecerrors.IoError, err)
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := collection.ReadMeta(filepath.Join(e.dataDir, entry.Name())); err == nil {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

// Create makes a new collection on disk and opens it, failing with
// AlreadyExists if name is already open or has persisted metadata.
func (e *Engine) Create(name string, opts collection.Options) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.collections[name]; ok {
		return vecerrors.New(vecerrors.AlreadyExists, "collection already open: "+name, nil)
	}

	dir := e.dirFor(name)
	if _, err := collection.ReadMeta(dir); err == nil {
		return vecerrors.New(vecerrors.AlreadyExists, "collection already exists: "+name, nil)
	}

	meta := collection.Meta{
		Name:         name,
		Dim:          opts.Dim,
		Metric:       opts.Metric,
		Quantization: opts.Quantization,
		CreatedAt:    time.Now().Unix(),
	}
	if err := collection.WriteMeta(dir, meta); err != nil {
		return err
	}

	return e.openLocked(name, dir, opts)
}

// Open loads an already-created collection's metadata from disk and opens
// it, restoring it into the registry. If the collection is already open
// this is a no-op.
func (e *Engine) Open(name string, durability wal.Durability, params hnsw.Params, maxOpenChunks int) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.collections[name]; ok {
		return nil
	}

	dir := e.dirFor(name)
	meta, err := collection.ReadMeta(dir)
	if err != nil {
		return err
	}

	opts := collection.Options{
		Dim:           meta.Dim,
		Metric:        meta.Metric,
		Quantization:  meta.Quantization,
		Params:        params,
		Durability:    durability,
		MaxOpenChunks: maxOpenChunks,
	}
	return e.openLocked(name, dir, opts)
}

func (e *Engine) openLocked(name, dir string, opts collection.Options) error {
	c, err := collection.Open(name, dir, opts)
	if err != nil {
		return err
	}

	oc := &openCollection{
		coll:      c,
		snapshots: collection.NewSnapshotScheduler(c, 0),
		vacuums:   collection.NewVacuumScheduler(c),
	}
	ctx := context.Background()
	oc.snapshots.Start(ctx)
	oc.vacuums.Start(ctx)

	e.collections[name] = oc
	return nil
}

// Get returns the named open collection.
func (e *Engine) Get(name string) (*collection.Collection, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	oc, ok := e.collections[name]
	if !ok {
		return nil, vecerrors.NotFoundf("collection not found: %s", name)
	}
	return oc.coll, nil
}

// ListCollections returns the names of every currently open collection.
func (e *Engine) ListCollections() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()

	names := make([]string, 0, len(e.collections))
	for name := range e.collections {
		names = append(names, name)
	}
	return names
}

// DeleteCollection closes and removes a collection's entire on-disk
// directory. This is destructive and not recoverable.
func (e *Engine) DeleteCollection(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	oc, ok := e.collections[name]
	if !ok {
		return vecerrors.NotFoundf("collection not found: %s", name)
	}

	oc.snapshots.Stop()
	oc.vacuums.Stop()
	if err := oc.coll.Close(); err != nil {
		return err
	}
	delete(e.collections, name)

	if err := os.RemoveAll(e.dirFor(name)); err != nil {
		return vecerrors.Wrap(vecerrors.IoError, err)
	}
	return nil
}

// Close stops every background scheduler and closes every open
// collection, in preparation for process shutdown.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var firstErr error
	for name, oc := range e.collections {
		oc.snapshots.Stop()
		oc.vacuums.Stop()
		if err := oc.coll.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		delete(e.collections, name)
	}
	return firstErr
}
