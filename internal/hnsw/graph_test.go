package hnsw

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/amanmcp/internal/metric"
)

// memStore is a minimal in-memory RecordSource standing in for
// internal/store in these tests.
type memStore struct {
	codec   metric.Codec
	records map[uint32][]byte
}

func newMemStore(codec metric.Codec) *memStore {
	return &memStore{codec: codec, records: make(map[uint32][]byte)}
}

func (s *memStore) ReadRecord(id uint32) ([]byte, error) {
	rec, ok := s.records[id]
	if !ok {
		return nil, assertNotFound{id}
	}
	return rec, nil
}

func (s *memStore) put(id uint32, v metric.Raw) {
	s.records[id] = s.codec.Encode(v)
}

type assertNotFound struct{ id uint32 }

func (e assertNotFound) Error() string { return "record not found" }

func setupGraph(t *testing.T, dim int) (*Graph, *memStore, metric.Codec) {
	t.Helper()
	codec, err := metric.NewCodec(metric.Euclidean, metric.None, dim)
	require.NoError(t, err)
	store := newMemStore(codec)
	g := New(codec, store, DefaultParams())
	return g, store, codec
}

func TestGraph_InsertThenSearchFindsExactMatch(t *testing.T) {
	g, store, _ := setupGraph(t, 3)

	v := metric.Raw{0.1, 0.2, 0.3}
	store.put(1, v)
	require.NoError(t, g.Insert(1, v))

	results, err := g.Search(v, 1, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint32(1), results[0].ID)
	assert.Less(t, results[0].Distance, 1e-6)
}

func TestGraph_SearchReturnsKNearest(t *testing.T) {
	g, store, _ := setupGraph(t, 2)

	points := map[uint32]metric.Raw{
		1: {0, 0},
		2: {1, 0},
		3: {5, 5},
		4: {0.5, 0},
	}
	for id, v := range points {
		store.put(id, v)
		require.NoError(t, g.Insert(id, v))
	}

	results, err := g.Search(metric.Raw{0, 0}, 2, 50)
	require.NoError(t, err)
	require.Len(t, results, 2)
	ids := []uint32{results[0].ID, results[1].ID}
	assert.Contains(t, ids, uint32(1))
	assert.Contains(t, ids, uint32(4))
}

func TestGraph_DeleteExcludesFromSearch(t *testing.T) {
	g, store, _ := setupGraph(t, 2)

	v1 := metric.Raw{0, 0}
	v2 := metric.Raw{0.01, 0}
	store.put(1, v1)
	store.put(2, v2)
	require.NoError(t, g.Insert(1, v1))
	require.NoError(t, g.Insert(2, v2))

	require.NoError(t, g.Delete(1))

	results, err := g.Search(metric.Raw{0, 0}, 1, 50)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint32(2), results[0].ID)
	assert.True(t, g.IsTombstoned(1))
}

func TestGraph_InsertDeleteInsertSameIDYieldsLatestRecord(t *testing.T) {
	g, store, _ := setupGraph(t, 2)

	first := metric.Raw{0, 0}
	store.put(1, first)
	require.NoError(t, g.Insert(1, first))
	require.NoError(t, g.Delete(1))

	second := metric.Raw{9, 9}
	store.put(1, second)
	require.NoError(t, g.Insert(1, second))

	assert.False(t, g.IsTombstoned(1))
	results, err := g.Search(metric.Raw{9, 9}, 1, 50)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint32(1), results[0].ID)
}

func TestGraph_EntryPointReplacedAfterDeletingIt(t *testing.T) {
	g, store, _ := setupGraph(t, 2)
	v1 := metric.Raw{0, 0}
	v2 := metric.Raw{1, 1}
	store.put(1, v1)
	store.put(2, v2)
	require.NoError(t, g.Insert(1, v1))
	require.NoError(t, g.Insert(2, v2))

	entry, ok := g.EntryPoint()
	require.True(t, ok)
	require.NoError(t, g.Delete(entry))

	_, ok = g.EntryPoint()
	assert.True(t, ok)
}

func TestGraph_RebuildDropsTombstonedAndFilteredRecords(t *testing.T) {
	g, store, codec := setupGraph(t, 2)

	for id, v := range map[uint32]metric.Raw{
		1: {0, 0},
		2: {1, 1},
		3: {2, 2},
	} {
		store.put(id, v)
		require.NoError(t, g.Insert(id, v))
	}
	require.NoError(t, g.Delete(2))

	ids := []uint32{1, 2, 3}
	vectors := func(id uint32) (metric.Raw, error) {
		rec, err := store.ReadRecord(id)
		if err != nil {
			return nil, err
		}
		return codec.Decode(rec), nil
	}
	keep := func(id uint32) bool { return id != 2 && !g.IsTombstoned(id) }

	rebuilt, err := Rebuild(codec, store, DefaultParams(), ids, keep, vectors)
	require.NoError(t, err)
	assert.Equal(t, 2, rebuilt.Len())

	results, err := rebuilt.Search(metric.Raw{0, 0}, 3, 50)
	require.NoError(t, err)
	for _, r := range results {
		assert.NotEqual(t, uint32(2), r.ID)
	}
}

func TestGraph_SnapshotRestoreRoundtrip(t *testing.T) {
	g, store, codec := setupGraph(t, 2)
	for id, v := range map[uint32]metric.Raw{
		1: {0, 0},
		2: {1, 1},
		3: {2, 0},
	} {
		store.put(id, v)
		require.NoError(t, g.Insert(id, v))
	}
	require.NoError(t, g.Delete(3))

	var buf bytes.Buffer
	require.NoError(t, g.Snapshot(&buf, 42))

	restored, clock, err := Restore(&buf, codec, store, DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, uint64(42), clock)
	assert.Equal(t, 2, restored.Len())
	assert.True(t, restored.IsTombstoned(3))

	results, err := restored.Search(metric.Raw{0, 0}, 1, 50)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, uint32(1), results[0].ID)
}

func TestGraph_SearchIsDeterministicForFixedEf(t *testing.T) {
	g, store, _ := setupGraph(t, 4)
	rnd := rand.New(rand.NewSource(3))
	for id := uint32(0); id < 40; id++ {
		v := metric.Raw{rnd.Float64(), rnd.Float64(), rnd.Float64(), rnd.Float64()}
		store.put(id, v)
		require.NoError(t, g.Insert(id, v))
	}

	query := metric.Raw{0.5, 0.5, 0.5, 0.5}
	first, err := g.Search(query, 5, 30)
	require.NoError(t, err)
	second, err := g.Search(query, 5, 30)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestGraph_UpsertIsIdempotentInValue(t *testing.T) {
	g, store, _ := setupGraph(t, 2)
	v := metric.Raw{3, 4}
	store.put(1, v)
	require.NoError(t, g.Insert(1, v))

	results1, err := g.Search(v, 1, 10)
	require.NoError(t, err)

	// Re-inserting the same id/value (an upsert overwrite) must not
	// change the observable nearest-neighbour result.
	store.put(1, v)
	require.NoError(t, g.Insert(1, v))

	results2, err := g.Search(v, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, results1[0].ID, results2[0].ID)
}
