package store

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_WriteReadRoundtrip(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 16, 4)
	require.NoError(t, err)
	defer s.Close()

	id := s.Allocate()
	rec := make([]byte, 16)
	for i := range rec {
		rec[i] = byte(i + 1)
	}
	require.NoError(t, s.WriteRecord(id, rec))

	got, err := s.ReadRecord(id)
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestStore_RejectsOutOfRangeRead(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 16, 4)
	require.NoError(t, err)
	defer s.Close()

	_, err = s.ReadRecord(0)
	assert.Error(t, err)
}

func TestStore_CrossesChunkBoundary(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 8, 2)
	require.NoError(t, err)
	defer s.Close()

	// Force two distinct chunk files by writing directly at the boundary id.
	boundary := uint32(RecordsPerChunk)
	rec := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	for id := boundary - 1; id <= boundary; id++ {
		require.NoError(t, s.WriteRecord(id, rec))
	}

	assert.FileExists(t, filepath.Join(dir, "chunk_0.dat"))
	assert.FileExists(t, filepath.Join(dir, "chunk_1.dat"))

	got, err := s.ReadRecord(boundary)
	require.NoError(t, err)
	assert.Equal(t, rec, got)
}

func TestStore_SecondOpenFailsWhileLocked(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 16, 4)
	require.NoError(t, err)
	defer s.Close()

	_, err = Open(dir, 16, 4)
	assert.Error(t, err)
}

func TestStore_RecoversExtentAfterReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 16, 4)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		id := s.Allocate()
		rec := make([]byte, 16)
		rec[0] = byte(i + 1)
		require.NoError(t, s.WriteRecord(id, rec))
	}
	require.NoError(t, s.Close())

	reopened, err := Open(dir, 16, 4)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, uint32(5), reopened.Extent())

	got, err := reopened.ReadRecord(4)
	require.NoError(t, err)
	assert.Equal(t, byte(5), got[0])
}

func TestStore_TruncatedTailRecordStopsExtentRecovery(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 16, 4)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		id := s.Allocate()
		rec := make([]byte, 16)
		rec[0] = byte(i + 1)
		require.NoError(t, s.WriteRecord(id, rec))
	}
	require.NoError(t, s.Close())

	// Zero out the third record directly on disk, simulating a crash that
	// left a chunk partially written past the true used extent.
	f, err := os.OpenFile(filepath.Join(dir, "chunk_0.dat"), os.O_RDWR, 0o644)
	require.NoError(t, err)
	_, err = f.WriteAt(make([]byte, 16), 32)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	reopened, err := Open(dir, 16, 4)
	require.NoError(t, err)
	defer reopened.Close()

	assert.Equal(t, uint32(2), reopened.Extent())
}

func TestStore_FlushDoesNotError(t *testing.T) {
	dir := t.TempDir()
	s, err := Open(dir, 16, 4)
	require.NoError(t, err)
	defer s.Close()

	id := s.Allocate()
	require.NoError(t, s.WriteRecord(id, make([]byte, 16)))
	assert.NoError(t, s.Flush())
}

func TestStore_LRUEvictsColdChunks(t *testing.T) {
	dir := t.TempDir()
	// maxOpenChunks=1 forces every chunk access beyond the first to evict.
	s, err := Open(dir, 8, 1)
	require.NoError(t, err)
	defer s.Close()

	recA := []byte{1, 1, 1, 1, 1, 1, 1, 1}
	recB := []byte{2, 2, 2, 2, 2, 2, 2, 2}

	idA := uint32(0)
	idB := uint32(RecordsPerChunk)

	require.NoError(t, s.WriteRecord(idA, recA))
	require.NoError(t, s.WriteRecord(idB, recB))

	gotA, err := s.ReadRecord(idA)
	require.NoError(t, err)
	assert.Equal(t, recA, gotA)
}
