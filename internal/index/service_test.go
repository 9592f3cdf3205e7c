package index

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrag/patrag/internal/embed"
	"github.com/patrag/patrag/internal/search"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	embedder := embed.NewStaticEmbedder(0)
	b, err := NewBuilder(BuilderConfig{IndexDir: t.TempDir()}, embedder, slog.Default())
	require.NoError(t, err)

	factory := func(stores *Stores) *search.Engine {
		return search.NewEngine(stores.Chunks, stores.Sparse, stores.Dense,
			embedder, nil, nil, nil, search.EngineConfig{}, slog.Default())
	}
	svc := NewService(b, factory, slog.Default())
	t.Cleanup(func() { svc.Close() })
	return svc
}

func TestServiceLoadBeforeBuild(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	err := svc.Load(ctx)
	assert.ErrorIs(t, err, ErrNotBuilt)
	assert.Nil(t, svc.Engine())
}

func TestServiceRebuildInstallsEngine(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	require.NoError(t, svc.Rebuild(ctx, buildCorpus(4), false))
	engine := svc.Engine()
	require.NotNil(t, engine)

	results, err := engine.Search(ctx, "claim interpretation", search.Options{TopK: 2})
	require.NoError(t, err)
	assert.NotEmpty(t, results)
}

func TestServiceRebuildSwapsHandle(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	require.NoError(t, svc.Rebuild(ctx, buildCorpus(2), false))
	first := svc.Engine()

	require.NoError(t, svc.Rebuild(ctx, buildCorpus(5), true))
	second := svc.Engine()

	assert.NotSame(t, first, second)
	stats, err := second.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.ChunkCount)
}

func TestServiceStatus(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t)

	status, err := svc.Status()
	require.NoError(t, err)
	assert.False(t, status.Built)

	require.NoError(t, svc.Rebuild(ctx, buildCorpus(3), false))
	status, err = svc.Status()
	require.NoError(t, err)
	assert.True(t, status.Built)
	assert.Equal(t, 3, status.ChunkCount)
}
