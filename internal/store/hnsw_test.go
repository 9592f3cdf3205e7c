package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHNSWStoreAddAndSearch(t *testing.T) {
	ctx := context.Background()
	s, err := NewHNSWStore(DefaultHNSWConfig(3))
	require.NoError(t, err)
	defer s.Close()

	err = s.Add(ctx,
		[]string{"a", "b", "c"},
		[][]float32{
			{1, 0, 0},
			{0, 1, 0},
			{0.9, 0.1, 0},
		})
	require.NoError(t, err)
	assert.Equal(t, 3, s.Count())
	assert.Equal(t, 3, s.Dimensions())

	results, err := s.Search(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ChunkID)
	assert.InDelta(t, 1.0, float64(results[0].Score), 1e-5)
}

func TestHNSWStoreDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	s, err := NewHNSWStore(DefaultHNSWConfig(4))
	require.NoError(t, err)
	defer s.Close()

	err = s.Add(ctx, []string{"a"}, [][]float32{{1, 0}})
	var dimErr ErrDimensionMismatch
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, 4, dimErr.Expected)

	_, err = s.Search(ctx, []float32{1, 0}, 1)
	assert.Error(t, err)
}

func TestHNSWStoreReplaceOrphansOldKey(t *testing.T) {
	ctx := context.Background()
	s, err := NewHNSWStore(DefaultHNSWConfig(2))
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Add(ctx, []string{"a"}, [][]float32{{1, 0}}))
	require.NoError(t, s.Add(ctx, []string{"a"}, [][]float32{{0, 1}}))
	assert.Equal(t, 1, s.Count())

	results, err := s.Search(ctx, []float32{0, 1}, 5)
	require.NoError(t, err)
	// The orphaned node must not surface under the old ID.
	for _, r := range results {
		if r.ChunkID == "a" {
			assert.InDelta(t, 1.0, float64(r.Score), 1e-5)
		}
	}
}

func TestHNSWStoreEmptySearch(t *testing.T) {
	ctx := context.Background()
	s, err := NewHNSWStore(DefaultHNSWConfig(2))
	require.NoError(t, err)
	defer s.Close()

	results, err := s.Search(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestHNSWStoreSaveLoad(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "dense.hnsw")

	s, err := NewHNSWStore(DefaultHNSWConfig(2))
	require.NoError(t, err)
	require.NoError(t, s.Add(ctx,
		[]string{"a", "b"},
		[][]float32{{1, 0}, {0, 1}}))
	require.NoError(t, s.Save(path))
	require.NoError(t, s.Close())

	loaded, err := NewHNSWStore(DefaultHNSWConfig(2))
	require.NoError(t, err)
	defer loaded.Close()
	require.NoError(t, loaded.Load(path))

	assert.Equal(t, 2, loaded.Count())
	results, err := loaded.Search(ctx, []float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "a", results[0].ChunkID)
}

func TestHNSWStoreInvalidConfig(t *testing.T) {
	_, err := NewHNSWStore(HNSWConfig{Dimensions: 0})
	assert.Error(t, err)
}
