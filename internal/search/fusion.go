package search

import (
	"sort"

	"github.com/patrag/patrag/internal/store"
)

// DefaultRRFConstant is the standard RRF smoothing parameter. k=60 is the
// widely used default (Azure AI Search, OpenSearch).
const DefaultRRFConstant = 60

// FusedResult is a candidate after Reciprocal Rank Fusion, carrying the
// per-source diagnostics forward.
type FusedResult struct {
	ChunkID      string
	RRFScore     float64
	SparseScore  float64
	SparseRank   int // 1-indexed, 0 if absent from the sparse ranking
	DenseScore   float64
	DenseRank    int // 1-indexed, 0 if absent from the dense ranking
	InBoth       bool
	MatchedTerms []string
}

// RRFFusion combines sparse and dense rankings by reciprocal rank:
//
//	fused(d) = Σ_sources 1 / (k + rank(d))
//
// A candidate absent from a source receives no contribution from that
// source. Ties are broken by first-seen order: the dense ranking is
// processed first, then the sparse ranking.
type RRFFusion struct {
	K int
}

// NewRRFFusion creates a fusion instance. Non-positive k selects the
// default of 60.
func NewRRFFusion(k int) *RRFFusion {
	if k <= 0 {
		k = DefaultRRFConstant
	}
	return &RRFFusion{K: k}
}

// Fuse merges the two rankings into a single list ordered by descending RRF
// score. Input rankings must already be ordered best-first; rank positions
// are their 1-indexed list positions.
func (f *RRFFusion) Fuse(dense []*store.VectorResult, sparse []*store.SparseResult) []*FusedResult {
	if len(dense) == 0 && len(sparse) == 0 {
		return []*FusedResult{}
	}

	byID := make(map[string]*FusedResult, len(dense)+len(sparse))
	order := make([]*FusedResult, 0, len(dense)+len(sparse))

	get := func(id string) *FusedResult {
		if r, ok := byID[id]; ok {
			return r
		}
		r := &FusedResult{ChunkID: id}
		byID[id] = r
		order = append(order, r)
		return r
	}

	for i, d := range dense {
		r := get(d.ChunkID)
		r.DenseScore = float64(d.Score)
		r.DenseRank = i + 1
		r.RRFScore += 1.0 / float64(f.K+i+1)
	}

	for i, s := range sparse {
		r := get(s.ChunkID)
		r.SparseScore = s.Score
		r.SparseRank = i + 1
		r.MatchedTerms = s.MatchedTerms
		r.RRFScore += 1.0 / float64(f.K+i+1)
		if r.DenseRank > 0 {
			r.InBoth = true
		}
	}

	// Stable sort keeps first-seen order for equal scores.
	sort.SliceStable(order, func(i, j int) bool {
		return order[i].RRFScore > order[j].RRFScore
	})

	return order
}
