package embed

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// FallbackEmbedder tries a primary provider and fails over to a secondary
// one when the primary is down. Typical wiring is OpenAI primary with a
// local Ollama fallback, or Ollama primary with the static embedder as a
// last resort.
//
// Failover is sticky for the process lifetime: mixing vectors from two
// models in one index would corrupt similarity scores, so once a query has
// been served by the fallback, the primary is not retried. The builder must
// not use a FallbackEmbedder whose providers have different dimensions; the
// constructor rejects that.
type FallbackEmbedder struct {
	primary   Embedder
	secondary Embedder
	retry     RetryConfig
	logger    *slog.Logger

	mu       sync.Mutex
	failedTo bool // true once failover happened
}

var _ Embedder = (*FallbackEmbedder)(nil)

// NewFallbackEmbedder wires a primary and secondary provider.
// Both must report the same dimension.
func NewFallbackEmbedder(primary, secondary Embedder, logger *slog.Logger) (*FallbackEmbedder, error) {
	if logger == nil {
		logger = slog.Default()
	}
	pd, sd := primary.Dimensions(), secondary.Dimensions()
	if pd != 0 && sd != 0 && pd != sd {
		return nil, fmt.Errorf("fallback dimension mismatch: primary %d, secondary %d", pd, sd)
	}

	return &FallbackEmbedder{
		primary:   primary,
		secondary: secondary,
		retry: RetryConfig{
			MaxRetries:   1,
			InitialDelay: 500 * time.Millisecond,
			MaxDelay:     500 * time.Millisecond,
			Multiplier:   1.0,
		},
		logger: logger,
	}, nil
}

// active returns the provider currently serving requests.
func (f *FallbackEmbedder) active() Embedder {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failedTo {
		return f.secondary
	}
	return f.primary
}

// failover switches to the secondary provider permanently.
func (f *FallbackEmbedder) failover(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failedTo {
		return
	}
	f.failedTo = true
	f.logger.Warn("embedding provider failed, switching to fallback",
		"primary", f.primary.ModelName(),
		"fallback", f.secondary.ModelName(),
		"error", err)
}

// Embed generates an embedding, failing over on primary errors.
func (f *FallbackEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings, failing over on primary errors.
func (f *FallbackEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if f.active() == f.secondary {
		return f.secondary.EmbedBatch(ctx, texts)
	}

	var result [][]float32
	err := WithRetry(ctx, f.retry, func() error {
		var embedErr error
		result, embedErr = f.primary.EmbedBatch(ctx, texts)
		return embedErr
	})
	if err == nil {
		return result, nil
	}
	if ctx.Err() != nil {
		return nil, err
	}

	f.failover(err)
	return f.secondary.EmbedBatch(ctx, texts)
}

// Degraded reports whether failover to the secondary has occurred.
func (f *FallbackEmbedder) Degraded() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failedTo
}

// Dimensions returns the active provider's dimension.
func (f *FallbackEmbedder) Dimensions() int {
	if d := f.primary.Dimensions(); d != 0 {
		return d
	}
	return f.secondary.Dimensions()
}

// ModelName returns the active provider's model identifier.
func (f *FallbackEmbedder) ModelName() string {
	return f.active().ModelName()
}

// Available reports whether either provider is ready.
func (f *FallbackEmbedder) Available(ctx context.Context) bool {
	return f.active().Available(ctx)
}

// Close closes both providers.
func (f *FallbackEmbedder) Close() error {
	err1 := f.primary.Close()
	err2 := f.secondary.Close()
	if err1 != nil {
		return err1
	}
	return err2
}
