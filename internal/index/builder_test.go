package index

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrag/patrag/internal/embed"
	"github.com/patrag/patrag/internal/store"
)

func newTestBuilder(t *testing.T) (*Builder, string) {
	t.Helper()
	dir := t.TempDir()
	b, err := NewBuilder(BuilderConfig{IndexDir: dir, EmbedBatchSize: 2},
		embed.NewStaticEmbedder(0), slog.Default())
	require.NoError(t, err)
	return b, dir
}

func buildCorpus(n int) []*store.Chunk {
	chunks := make([]*store.Chunk, n)
	for i := range chunks {
		chunks[i] = &store.Chunk{
			ID:      fmt.Sprintf("chunk-%03d", i),
			Text:    fmt.Sprintf("passage %d about claim interpretation and abstract requirements", i),
			Section: fmt.Sprintf("MPEP %d", 600+i),
		}
	}
	return chunks
}

func TestBuildAndLoad(t *testing.T) {
	ctx := context.Background()
	b, dir := newTestBuilder(t)
	chunks := buildCorpus(5)

	require.NoError(t, b.Build(ctx, chunks, false))
	assert.Equal(t, StateReady, b.State())
	assert.NoDirExists(t, filepath.Join(dir, stagingName))

	stores, err := b.Load(ctx)
	require.NoError(t, err)
	defer stores.Close()

	assert.Equal(t, 5, stores.Manifest.ChunkCount)
	assert.Equal(t, "static-hash", stores.Manifest.ModelName)
	assert.Equal(t, DenseKindFlat, stores.Manifest.DenseKind)
	assert.Equal(t, 5, stores.Dense.Count())

	count, err := stores.Chunks.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, count)
	assert.Equal(t, 5, stores.Sparse.Stats().DocumentCount)
}

func TestBuildIdempotent(t *testing.T) {
	ctx := context.Background()
	b, dir := newTestBuilder(t)
	chunks := buildCorpus(3)

	require.NoError(t, b.Build(ctx, chunks, false))
	first, err := LoadManifest(dir)
	require.NoError(t, err)

	// Same corpus, no force: manifest (including its timestamp) unchanged.
	require.NoError(t, b.Build(ctx, chunks, false))
	second, err := LoadManifest(dir)
	require.NoError(t, err)
	assert.Equal(t, first.BuiltAt, second.BuiltAt)
	assert.Equal(t, first.CorpusChecksum, second.CorpusChecksum)
}

func TestBuildForceRebuilds(t *testing.T) {
	ctx := context.Background()
	b, dir := newTestBuilder(t)
	chunks := buildCorpus(3)

	require.NoError(t, b.Build(ctx, chunks, false))
	first, err := LoadManifest(dir)
	require.NoError(t, err)

	require.NoError(t, b.Build(ctx, chunks, true))
	second, err := LoadManifest(dir)
	require.NoError(t, err)
	assert.True(t, second.BuiltAt.After(first.BuiltAt) || second.BuiltAt.Equal(first.BuiltAt))
	assert.Equal(t, first.CorpusChecksum, second.CorpusChecksum)
}

func TestBuildChangedCorpusRebuilds(t *testing.T) {
	ctx := context.Background()
	b, dir := newTestBuilder(t)

	require.NoError(t, b.Build(ctx, buildCorpus(3), false))
	first, err := LoadManifest(dir)
	require.NoError(t, err)

	require.NoError(t, b.Build(ctx, buildCorpus(4), false))
	second, err := LoadManifest(dir)
	require.NoError(t, err)
	assert.NotEqual(t, first.CorpusChecksum, second.CorpusChecksum)
	assert.Equal(t, 4, second.ChunkCount)
}

func TestBuildEmptyCorpus(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBuilder(t)

	require.NoError(t, b.Build(ctx, nil, false))

	status, err := b.Status()
	require.NoError(t, err)
	assert.True(t, status.Built)
	assert.Equal(t, 0, status.ChunkCount)

	stores, err := b.Load(ctx)
	require.NoError(t, err)
	defer stores.Close()
	assert.Equal(t, 0, stores.Dense.Count())
}

func TestLoadWithoutBuild(t *testing.T) {
	ctx := context.Background()
	b, _ := newTestBuilder(t)

	_, err := b.Load(ctx)
	assert.ErrorIs(t, err, ErrNotBuilt)
}

func TestLoadModelMismatch(t *testing.T) {
	ctx := context.Background()
	b, dir := newTestBuilder(t)
	require.NoError(t, b.Build(ctx, buildCorpus(2), false))

	other, err := NewBuilder(BuilderConfig{IndexDir: dir},
		embed.NewStaticEmbedder(128), slog.Default())
	require.NoError(t, err)
	// Same model name but different dimension must be rejected.
	_, err = other.Load(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rebuild required")
}

func TestStatusUnbuilt(t *testing.T) {
	b, _ := newTestBuilder(t)

	status, err := b.Status()
	require.NoError(t, err)
	assert.False(t, status.Built)
	assert.Equal(t, StateUnbuilt, status.State)
}

func TestBuildFailureLeavesUnbuilt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	b, _ := newTestBuilder(t)
	err := b.Build(ctx, buildCorpus(10), false)
	require.Error(t, err)
	assert.Equal(t, StateUnbuilt, b.State())

	status, statusErr := b.Status()
	require.NoError(t, statusErr)
	assert.False(t, status.Built)
}

// faultyEmbedder fails every embedding call after the first failAt calls.
type faultyEmbedder struct {
	embed.Embedder
	calls  int
	failAt int
}

func (f *faultyEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.calls > f.failAt {
		return nil, errors.New("provider unreachable")
	}
	return f.Embedder.EmbedBatch(ctx, texts)
}

func (f *faultyEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.calls > f.failAt {
		return nil, errors.New("provider unreachable")
	}
	return f.Embedder.Embed(ctx, text)
}

func TestFailedRebuildKeepsCommittedGeneration(t *testing.T) {
	ctx := context.Background()
	b, dir := newTestBuilder(t)
	require.NoError(t, b.Build(ctx, buildCorpus(3), false))

	broken := &faultyEmbedder{Embedder: embed.NewStaticEmbedder(0)}
	b2, err := NewBuilder(BuilderConfig{IndexDir: dir, EmbedBatchSize: 2}, broken, slog.Default())
	require.NoError(t, err)

	require.Error(t, b2.Build(ctx, buildCorpus(5), true))
	assert.Equal(t, StateReady, b2.State())

	// The committed generation survives the failed rebuild and loads in full.
	stores, err := b.Load(ctx)
	require.NoError(t, err)
	defer stores.Close()
	assert.Equal(t, 3, stores.Manifest.ChunkCount)
	assert.Equal(t, 3, stores.Dense.Count())

	count, err := stores.Chunks.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestBuildAbortsOnMidBuildFailover(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	// The primary serves one batch and then dies, so the fallback would
	// embed the rest with a different model.
	primary := &faultyEmbedder{Embedder: embed.NewStaticEmbedder(0), failAt: 1}
	fallback, err := embed.NewFallbackEmbedder(primary, embed.NewStaticEmbedder(0), slog.Default())
	require.NoError(t, err)

	b, err := NewBuilder(BuilderConfig{IndexDir: dir, EmbedBatchSize: 2}, fallback, slog.Default())
	require.NoError(t, err)

	err = b.Build(ctx, buildCorpus(6), false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed over during build")

	// Nothing was committed.
	_, err = LoadManifest(dir)
	assert.ErrorIs(t, err, ErrNotBuilt)
}

func TestCorpusChecksumSensitivity(t *testing.T) {
	a := buildCorpus(3)
	assert.Equal(t, CorpusChecksum(a), CorpusChecksum(buildCorpus(3)))

	b := buildCorpus(3)
	b[1].Text = "changed passage"
	assert.NotEqual(t, CorpusChecksum(a), CorpusChecksum(b))
}

func TestNewBuilderRequiresDir(t *testing.T) {
	_, err := NewBuilder(BuilderConfig{}, embed.NewStaticEmbedder(0), nil)
	assert.Error(t, err)
}
