// Package store provides the persistence layer for indexed corpora: chunk
// metadata (SQLite), the sparse keyword index (Bleve BM25), and the dense
// vector index (flat exact scan or HNSW).
package store

import (
	"context"
	"fmt"
	"time"
)

// Chunk is a retrievable unit of corpus text with stable identity.
// The ID is unique within a corpus and immutable once assigned; Text is never
// mutated after creation — a changed passage is a new chunk in a rebuild.
type Chunk struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Section  string            `json:"section"`
	Page     int               `json:"page,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`

	CreatedAt time.Time `json:"created_at,omitempty"`
}

// ChunkStore persists chunk text and metadata.
// Append-only during a build, read-only during search. Chunks are never
// deleted individually — only as part of a full rebuild (Clear).
type ChunkStore interface {
	// SaveChunks appends a batch of chunks.
	SaveChunks(ctx context.Context, chunks []*Chunk) error

	// GetChunk returns a single chunk by ID.
	GetChunk(ctx context.Context, id string) (*Chunk, error)

	// GetChunks returns chunks for the given IDs in one query.
	// Missing IDs are silently omitted from the result.
	GetChunks(ctx context.Context, ids []string) ([]*Chunk, error)

	// GetBySection returns all chunks whose section label matches exactly,
	// in insertion order. Used for direct lookup bypassing ranking.
	GetBySection(ctx context.Context, section string) ([]*Chunk, error)

	// SectionsByPrefix returns the IDs of chunks whose section label starts
	// with the given prefix. Used for pre-fusion source filtering.
	SectionsByPrefix(ctx context.Context, prefix string) (map[string]struct{}, error)

	// Count returns the number of stored chunks.
	Count(ctx context.Context) (int, error)

	// Clear removes all chunks. Only the builder calls this, at the start
	// of a full rebuild.
	Clear(ctx context.Context) error

	Close() error
}

// Document is the unit handed to the sparse index.
type Document struct {
	ID      string
	Content string
}

// SparseResult is a single keyword-search hit.
type SparseResult struct {
	ChunkID      string
	Score        float64
	MatchedTerms []string
}

// SparseStats describes the sparse index contents.
type SparseStats struct {
	DocumentCount int
}

// SparseIndex provides BM25 keyword search over tokenized chunk text.
// Build-time and query-time tokenization must be identical; a mismatch
// silently degrades recall.
type SparseIndex interface {
	Index(ctx context.Context, docs []*Document) error

	// Search returns up to limit documents containing at least one query
	// token, ordered by descending BM25 score. Chunks with zero overlap are
	// absent (callers treat absence as score 0).
	Search(ctx context.Context, query string, limit int) ([]*SparseResult, error)

	Stats() *SparseStats
	Close() error
}

// VectorResult is a single dense-search hit. Score is inner product of
// L2-normalized vectors, i.e. cosine similarity.
type VectorResult struct {
	ChunkID string
	Score   float32
}

// VectorStore provides top-k nearest-neighbor search over L2-normalized
// embeddings by inner product. Implementations may be exact (FlatStore) or
// approximate (HNSWStore) behind the same contract.
type VectorStore interface {
	// Add inserts vectors with their chunk IDs. Vectors are normalized on
	// insert so inner-product search equals cosine similarity.
	Add(ctx context.Context, ids []string, vectors [][]float32) error

	// Search returns up to min(k, Count()) results ordered by descending
	// score, ties broken by insertion order. Empty store returns an empty
	// slice, not an error.
	Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error)

	Count() int
	Dimensions() int

	Save(path string) error
	Load(path string) error
	Close() error
}

// ErrDimensionMismatch indicates a vector whose dimension does not match the
// store. Fatal: never silently truncated.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("embedding dimension mismatch: expected %d, got %d (run 'patrag index --force' to rebuild)", e.Expected, e.Got)
}
