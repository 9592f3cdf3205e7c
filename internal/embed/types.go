// Package embed generates dense vector embeddings for corpus chunks and
// queries. Providers sit behind the Embedder interface; the builder and the
// query path share one instance so index-time and query-time vectors come
// from the same model.
package embed

import (
	"context"
	"errors"
	"math"
	"time"
)

const (
	// MinBatchSize is the minimum allowed batch size.
	MinBatchSize = 1

	// MaxBatchSize caps batch size to bound request payloads.
	MaxBatchSize = 256

	// DefaultBatchSize is the default batch size for embedding requests.
	DefaultBatchSize = 32

	// DefaultTimeout is the per-request timeout for embedding providers.
	DefaultTimeout = 60 * time.Second

	// DefaultMaxRetries is the number of retry attempts for transient
	// provider failures.
	DefaultMaxRetries = 3

	// MaxTextLength is the character budget per text. Providers reject or
	// silently truncate over-long inputs inconsistently, so texts are
	// truncated here, before any request leaves the process.
	MaxTextLength = 8192
)

// StaticDimensions is the dimension of the deterministic static embedder.
const StaticDimensions = 256

var (
	// ErrEmptyText indicates an attempt to embed empty or whitespace text.
	ErrEmptyText = errors.New("cannot embed empty text")

	// ErrEmbedderClosed indicates use after Close.
	ErrEmbedderClosed = errors.New("embedder is closed")
)

// Embedder generates vector embeddings for text.
// All vectors from one Embedder have the same dimension, reported by
// Dimensions. Implementations return L2-normalized vectors.
type Embedder interface {
	// Embed generates the embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts, in order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the embedding dimension.
	Dimensions() int

	// ModelName returns the model identifier recorded in the index manifest.
	ModelName() string

	// Available reports whether the provider is reachable and ready.
	Available(ctx context.Context) bool

	// Close releases resources.
	Close() error
}

// Degradable is implemented by embedders that can switch to a different
// backend at runtime. Vectors produced before and after the switch come from
// different models, which the index builder must never mix in one index.
type Degradable interface {
	// Degraded reports whether the switch has occurred.
	Degraded() bool
}

// truncateText enforces MaxTextLength, cutting at a rune boundary.
func truncateText(text string) string {
	if len(text) <= MaxTextLength {
		return text
	}
	runes := []rune(text)
	if len(runes) > MaxTextLength {
		runes = runes[:MaxTextLength]
	}
	return string(runes)
}

// normalizeVector normalizes a vector to unit length. Zero vectors are
// returned unchanged.
func normalizeVector(v []float32) []float32 {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}

	magnitude := math.Sqrt(sumSquares)
	if magnitude == 0 {
		return v
	}

	normalized := make([]float32, len(v))
	for i, val := range v {
		normalized[i] = float32(float64(val) / magnitude)
	}
	return normalized
}

// MeanVector averages a set of equal-length vectors and normalizes the
// result. Used to collapse multiple expansion embeddings into one query
// vector. Returns nil for empty input.
func MeanVector(vectors [][]float32) []float32 {
	if len(vectors) == 0 {
		return nil
	}
	if len(vectors) == 1 {
		return normalizeVector(vectors[0])
	}

	dims := len(vectors[0])
	sum := make([]float64, dims)
	for _, v := range vectors {
		for i, val := range v {
			sum[i] += float64(val)
		}
	}

	mean := make([]float32, dims)
	inv := 1.0 / float64(len(vectors))
	for i, s := range sum {
		mean[i] = float32(s * inv)
	}
	return normalizeVector(mean)
}
