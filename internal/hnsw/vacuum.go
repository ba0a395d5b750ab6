package hnsw

import "github.com/Aman-CERP/amanmcp/internal/metric"

// Rebuild constructs a fresh graph containing only the ids accepted by
// keep, in a side arena, per spec.md §4.D: the caller (internal/collection)
// atomically swaps the returned graph in for the old one once construction
// completes, and the old graph is then discarded. vectors returns the
// vector to re-insert for an id; the collection's caller decodes it from
// the stored (possibly quantized) record.
func Rebuild(codec metric.Codec, store RecordSource, params Params, ids []uint32, keep func(id uint32) bool, vectors func(id uint32) (metric.Raw, error)) (*Graph, error) {
	fresh := New(codec, store, params)
	for _, id := range ids {
		if keep != nil && !keep(id) {
			continue
		}
		v, err := vectors(id)
		if err != nil {
			return nil, err
		}
		if err := fresh.Insert(id, v); err != nil {
			return nil, err
		}
	}
	return fresh, nil
}
