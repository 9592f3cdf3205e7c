package store

import (
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// FlatStore is an exact inner-product vector index: a brute-force scan over
// L2-normalized embeddings. Insertion is O(1), search is O(n·d). At the
// corpus scales this serves by default (up to a few hundred thousand chunks)
// a scan completes well inside the query latency budget; larger corpora use
// HNSWStore behind the same contract.
type FlatStore struct {
	mu     sync.RWMutex
	dims   int
	ids    []string
	vecs   [][]float32
	pos    map[string]int // chunk ID -> insertion position
	closed bool
}

var _ VectorStore = (*FlatStore)(nil)

// flatSnapshot is the gob-encoded persistence format.
type flatSnapshot struct {
	Dims    int
	IDs     []string
	Vectors [][]float32
}

// NewFlatStore creates an empty flat store for vectors of the given dimension.
func NewFlatStore(dims int) (*FlatStore, error) {
	if dims <= 0 {
		return nil, fmt.Errorf("invalid dimensions: %d", dims)
	}
	return &FlatStore{
		dims: dims,
		pos:  make(map[string]int),
	}, nil
}

// Add appends vectors in order. Vectors are normalized on insert; a repeated
// ID replaces the stored vector in place, keeping its original position.
func (s *FlatStore) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	for _, v := range vectors {
		if len(v) != s.dims {
			return ErrDimensionMismatch{Expected: s.dims, Got: len(v)}
		}
	}

	for i, id := range ids {
		vec := make([]float32, s.dims)
		copy(vec, vectors[i])
		normalizeVectorInPlace(vec)

		if p, exists := s.pos[id]; exists {
			s.vecs[p] = vec
			continue
		}
		s.pos[id] = len(s.ids)
		s.ids = append(s.ids, id)
		s.vecs = append(s.vecs, vec)
	}

	return nil
}

// Search scans all vectors and returns the top k by inner product, descending,
// ties broken by insertion order. An empty store returns an empty slice.
func (s *FlatStore) Search(ctx context.Context, query []float32, k int) ([]*VectorResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, fmt.Errorf("store is closed")
	}
	if len(query) != s.dims {
		return nil, ErrDimensionMismatch{Expected: s.dims, Got: len(query)}
	}
	if len(s.ids) == 0 || k <= 0 {
		return []*VectorResult{}, nil
	}

	q := make([]float32, s.dims)
	copy(q, query)
	normalizeVectorInPlace(q)

	type scored struct {
		idx   int
		score float32
	}
	all := make([]scored, len(s.vecs))
	for i, v := range s.vecs {
		all[i] = scored{idx: i, score: dotProduct(q, v)}
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].score != all[j].score {
			return all[i].score > all[j].score
		}
		return all[i].idx < all[j].idx
	})

	if k > len(all) {
		k = len(all)
	}

	results := make([]*VectorResult, k)
	for i := 0; i < k; i++ {
		results[i] = &VectorResult{
			ChunkID: s.ids[all[i].idx],
			Score:   all[i].score,
		}
	}
	return results, nil
}

// Count returns the number of stored vectors.
func (s *FlatStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.ids)
}

// Dimensions returns the vector dimension.
func (s *FlatStore) Dimensions() int {
	return s.dims
}

// Save persists the store atomically (temp file + rename).
func (s *FlatStore) Save(path string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create index file: %w", err)
	}

	snap := flatSnapshot{Dims: s.dims, IDs: s.ids, Vectors: s.vecs}
	if err := gob.NewEncoder(file).Encode(snap); err != nil {
		file.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("encode flat index: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close index file: %w", err)
	}

	return os.Rename(tmpPath, path)
}

// Load replaces the store contents from disk.
func (s *FlatStore) Load(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return fmt.Errorf("store is closed")
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open flat index: %w", err)
	}
	defer file.Close()

	var snap flatSnapshot
	if err := gob.NewDecoder(file).Decode(&snap); err != nil {
		return fmt.Errorf("decode flat index: %w", err)
	}

	s.dims = snap.Dims
	s.ids = snap.IDs
	s.vecs = snap.Vectors
	s.pos = make(map[string]int, len(snap.IDs))
	for i, id := range snap.IDs {
		s.pos[id] = i
	}

	return nil
}

// Close releases resources.
func (s *FlatStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.ids = nil
	s.vecs = nil
	s.pos = nil
	return nil
}

// dotProduct computes the inner product of two equal-length vectors.
func dotProduct(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// normalizeVectorInPlace normalizes a vector to unit length in place.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	invMagnitude := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= invMagnitude
	}
}
