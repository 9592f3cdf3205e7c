package embed

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingEmbedder always errors.
type failingEmbedder struct {
	*StaticEmbedder
	calls int
}

func (f *failingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	return nil, errors.New("provider unreachable")
}

func (f *failingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	return nil, errors.New("provider unreachable")
}

func (f *failingEmbedder) ModelName() string { return "failing" }

func newFallbackForTest(t *testing.T, primary, secondary Embedder) *FallbackEmbedder {
	t.Helper()
	f, err := NewFallbackEmbedder(primary, secondary, slog.Default())
	require.NoError(t, err)
	f.retry = RetryConfig{MaxRetries: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1.0}
	t.Cleanup(func() { f.Close() })
	return f
}

func TestFallbackEmbedderUsesPrimaryWhenHealthy(t *testing.T) {
	ctx := context.Background()
	primary := NewStaticEmbedder(0)
	secondary := NewStaticEmbedder(0)
	f := newFallbackForTest(t, primary, secondary)

	v, err := f.Embed(ctx, "claim")
	require.NoError(t, err)
	assert.Len(t, v, StaticDimensions)
	assert.Equal(t, "static-hash", f.ModelName())
}

func TestFallbackEmbedderFailsOver(t *testing.T) {
	ctx := context.Background()
	primary := &failingEmbedder{StaticEmbedder: NewStaticEmbedder(0)}
	secondary := NewStaticEmbedder(0)
	f := newFallbackForTest(t, primary, secondary)

	assert.False(t, f.Degraded())

	v, err := f.Embed(ctx, "claim")
	require.NoError(t, err)
	assert.Len(t, v, StaticDimensions)

	// One initial attempt plus one retry before failover.
	assert.Equal(t, 2, primary.calls)

	// Failover is visible to callers, and survives cache wrapping so the
	// index builder can refuse to mix vector models.
	assert.True(t, f.Degraded())
	assert.True(t, NewCachedEmbedder(f, 10).Degraded())
}

func TestFallbackEmbedderFailoverIsSticky(t *testing.T) {
	ctx := context.Background()
	primary := &failingEmbedder{StaticEmbedder: NewStaticEmbedder(0)}
	secondary := NewStaticEmbedder(0)
	f := newFallbackForTest(t, primary, secondary)

	_, err := f.Embed(ctx, "first")
	require.NoError(t, err)
	callsAfterFailover := primary.calls

	_, err = f.Embed(ctx, "second")
	require.NoError(t, err)

	// The primary is never retried once failover happened.
	assert.Equal(t, callsAfterFailover, primary.calls)
}

func TestFallbackEmbedderRejectsDimensionMismatch(t *testing.T) {
	primary := NewStaticEmbedder(256)
	secondary := NewStaticEmbedder(128)

	_, err := NewFallbackEmbedder(primary, secondary, slog.Default())
	assert.Error(t, err)
}

func TestWithRetrySucceedsAfterTransientFailure(t *testing.T) {
	ctx := context.Background()
	cfg := RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1.0}

	attempts := 0
	err := WithRetry(ctx, cfg, func() error {
		attempts++
		if attempts < 2 {
			return errors.New("transient")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestWithRetryExhausts(t *testing.T) {
	ctx := context.Background()
	cfg := RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond, Multiplier: 1.0}

	attempts := 0
	err := WithRetry(ctx, cfg, func() error {
		attempts++
		return errors.New("permanent")
	})
	require.Error(t, err)
	assert.Equal(t, 3, attempts)
}

func TestWithRetryHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := WithRetry(ctx, DefaultRetryConfig(), func() error {
		return errors.New("never reached retry wait")
	})
	assert.ErrorIs(t, err, context.Canceled)
}
