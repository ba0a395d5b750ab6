// Package metaindex keeps a small per-collection SQLite side table of
// internal-id -> metadata key/value pairs, so a vacuum's metadata filter
// predicate (spec.md §4.D, e.g. "energy < 0.1") can be evaluated with a
// SQL query instead of decoding every record out of the segmented store.
package metaindex

import (
	"context"
	"database/sql"
	"path/filepath"

	_ "modernc.org/sqlite"

	vecerrors "github.com/Aman-CERP/amanmcp/internal/errors"
)

// Index is the metadata side table for one collection.
type Index struct {
	db *sql.DB
}

// Open opens (creating if absent) the metadata.db file inside dir.
func Open(dir string) (*Index, error) {
	path := filepath.Join(dir, "metadata.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, vecerrors.Wrap(vecerrors.IoError, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers anyway

	const ddl = `
CREATE TABLE IF NOT EXISTS metadata (
	internal_id INTEGER NOT NULL,
	key         TEXT NOT NULL,
	value       TEXT NOT NULL,
	PRIMARY KEY (internal_id, key)
);
CREATE INDEX IF NOT EXISTS metadata_key_value ON metadata(key, value);
`
	if _, err := db.Exec(ddl); err != nil {
		_ = db.Close()
		return nil, vecerrors.Wrap(vecerrors.IoError, err)
	}

	return &Index{db: db}, nil
}

// Put replaces every metadata row for internalID.
func (i *Index) Put(ctx context.Context, internalID uint32, metadata map[string]string) error {
	tx, err := i.db.BeginTx(ctx, nil)
	if err != nil {
		return vecerrors.Wrap(vecerrors.IoError, err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM metadata WHERE internal_id = ?`, internalID); err != nil {
		return vecerrors.Wrap(vecerrors.IoError, err)
	}
	for k, v := range metadata {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO metadata (internal_id, key, value) VALUES (?, ?, ?)`,
			internalID, k, v); err != nil {
			return vecerrors.Wrap(vecerrors.IoError, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return vecerrors.Wrap(vecerrors.IoError, err)
	}
	return nil
}

// Delete removes every metadata row for internalID.
func (i *Index) Delete(ctx context.Context, internalID uint32) error {
	if _, err := i.db.ExecContext(ctx, `DELETE FROM metadata WHERE internal_id = ?`, internalID); err != nil {
		return vecerrors.Wrap(vecerrors.IoError, err)
	}
	return nil
}

// Get returns the metadata map for internalID.
func (i *Index) Get(ctx context.Context, internalID uint32) (map[string]string, error) {
	rows, err := i.db.QueryContext(ctx, `SELECT key, value FROM metadata WHERE internal_id = ?`, internalID)
	if err != nil {
		return nil, vecerrors.Wrap(vecerrors.IoError, err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, vecerrors.Wrap(vecerrors.IoError, err)
		}
		out[k] = v
	}
	return out, rows.Err()
}

// MatchingKeyValue returns every internal id whose metadata has key == value,
// the equality-filter case of spec.md §4.D's SearchRequest.Filters.
func (i *Index) MatchingKeyValue(ctx context.Context, key, value string) ([]uint32, error) {
	rows, err := i.db.QueryContext(ctx,
		`SELECT internal_id FROM metadata WHERE key = ? AND value = ?`, key, value)
	if err != nil {
		return nil, vecerrors.Wrap(vecerrors.IoError, err)
	}
	defer rows.Close()

	var ids []uint32
	for rows.Next() {
		var id uint32
		if err := rows.Scan(&id); err != nil {
			return nil, vecerrors.Wrap(vecerrors.IoError, err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// BuildDropPredicate compiles a vacuum "drop when key == value" rule into a
// closure over purely in-memory metadata, for callers that already hold a
// snapshot of the metadata map (collection.Vacuum does) and want to avoid a
// DB round trip per candidate id.
func BuildDropPredicate(key, value string) func(metadata map[string]string) bool {
	return func(metadata map[string]string) bool {
		return metadata[key] == value
	}
}

// Close releases the underlying database handle.
func (i *Index) Close() error {
	if err := i.db.Close(); err != nil {
		return vecerrors.Wrap(vecerrors.IoError, err)
	}
	return nil
}
