package store

import (
	"context"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlatStoreAddAndSearch(t *testing.T) {
	ctx := context.Background()
	s, err := NewFlatStore(3)
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

	results, err := s.Search(ctx, []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ChunkID)
	assert.Equal(t, "c", results[1].ChunkID)
	assert.InDelta(t, 1.0, float64(results[0].Score), 1e-6)
}

func TestFlatStoreNormalizesOnInsert(t *testing.T) {
	ctx := context.Background()
	s, err := NewFlatStore(2)
	require.NoError(t, err)
	defer s.Close()

	// Same direction, different magnitudes: scores must be identical.
	require.NoError(t, s.Add(ctx, []string{"small"}, [][]float32{{0.1, 0.1}}))
	require.NoError(t, s.Add(ctx, []string{"large"}, [][]float32{{100, 100}}))

	results, err := s.Search(ctx, []float32{1, 1}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.InDelta(t, float64(results[0].Score), float64(results[1].Score), 1e-6)
}

func TestFlatStoreTieBreakByInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s, err := NewFlatStore(2)
	require.NoError(t, err)
	defer s.Close()

	// Identical vectors score identically; first inserted wins.
	require.NoError(t, s.Add(ctx,
		[]string{"first", "second", "third"},
		[][]float32{{1, 0}, {1, 0}, {1, 0}}))

	results, err := s.Search(ctx, []float32{1, 0}, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "first", results[0].ChunkID)
	assert.Equal(t, "second", results[1].ChunkID)
	assert.Equal(t, "third", results[2].ChunkID)
}

func TestFlatStoreRepeatedIDReplaces(t *testing.T) {
	ctx := context.Background()
	s, err := NewFlatStore(2)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Add(ctx, []string{"a"}, [][]float32{{1, 0}}))
	require.NoError(t, s.Add(ctx, []string{"a"}, [][]float32{{0, 1}}))
	assert.Equal(t, 1, s.Count())

	results, err := s.Search(ctx, []float32{0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.InDelta(t, 1.0, float64(results[0].Score), 1e-6)
}

func TestFlatStoreDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	s, err := NewFlatStore(3)
	require.NoError(t, err)
	defer s.Close()

	err = s.Add(ctx, []string{"a"}, [][]float32{{1, 0}})
	require.Error(t, err)
	var dimErr ErrDimensionMismatch
	require.ErrorAs(t, err, &dimErr)
	assert.Equal(t, 3, dimErr.Expected)
	assert.Equal(t, 2, dimErr.Got)

	_, err = s.Search(ctx, []float32{1, 0}, 1)
	assert.Error(t, err)
}

func TestFlatStoreEmptySearch(t *testing.T) {
	ctx := context.Background()
	s, err := NewFlatStore(2)
	require.NoError(t, err)
	defer s.Close()

	results, err := s.Search(ctx, []float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestFlatStoreKLargerThanCount(t *testing.T) {
	ctx := context.Background()
	s, err := NewFlatStore(2)
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Add(ctx, []string{"a", "b"}, [][]float32{{1, 0}, {0, 1}}))

	results, err := s.Search(ctx, []float32{1, 0}, 100)
	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestFlatStoreSaveLoad(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "dense.flat")

	query := []float32{0.8, 0.6}

	s, err := NewFlatStore(2)
	require.NoError(t, err)
	require.NoError(t, s.Add(ctx, []string{"a", "b"}, [][]float32{{1, 0}, {0, 1}}))
	before, err := s.Search(ctx, query, 2)
	require.NoError(t, err)
	require.NoError(t, s.Save(path))
	require.NoError(t, s.Close())

	loaded, err := NewFlatStore(2)
	require.NoError(t, err)
	defer loaded.Close()
	require.NoError(t, loaded.Load(path))

	assert.Equal(t, 2, loaded.Count())
	after, err := loaded.Search(ctx, query, 2)
	require.NoError(t, err)
	require.Len(t, after, 2)
	assert.Equal(t, "a", after[0].ChunkID)

	// A reloaded index scores identically to the one it was saved from.
	for i := range before {
		assert.Equal(t, before[i].ChunkID, after[i].ChunkID)
		assert.InDelta(t, float64(before[i].Score), float64(after[i].Score), 1e-6)
	}
}

func TestNormalizeVectorInPlace(t *testing.T) {
	v := []float32{3, 4}
	normalizeVectorInPlace(v)

	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-6)

	// Zero vector stays zero rather than producing NaN.
	z := []float32{0, 0}
	normalizeVectorInPlace(z)
	assert.Equal(t, []float32{0, 0}, z)
}
