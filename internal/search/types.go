// Package search implements the hybrid query path: sparse and dense retrieval
// in parallel, Reciprocal Rank Fusion, optional HyDE query expansion, and
// cross-encoder reranking of the fused candidates.
package search

import "fmt"

// Limits and defaults for the query path.
const (
	// DefaultTopK is the default number of final results.
	DefaultTopK = 10

	// MaxTopK caps the number of final results.
	MaxTopK = 100

	// DefaultTopNPerSource is the default per-source candidate depth before
	// fusion.
	DefaultTopNPerSource = 50

	// DefaultRerankDepth is how many fused candidates go to the reranker.
	DefaultRerankDepth = 50
)

// ExpansionMode selects HyDE query expansion behavior.
type ExpansionMode string

const (
	// ExpansionNone embeds the raw query only.
	ExpansionNone ExpansionMode = "none"

	// ExpansionSingle generates one hypothetical passage and embeds it
	// together with the raw query.
	ExpansionSingle ExpansionMode = "single"

	// ExpansionMultiple generates several hypothetical passages; all vectors
	// are averaged with the raw query vector.
	ExpansionMultiple ExpansionMode = "multiple"
)

// ParseExpansionMode validates a mode string.
func ParseExpansionMode(s string) (ExpansionMode, error) {
	switch ExpansionMode(s) {
	case ExpansionNone, ExpansionSingle, ExpansionMultiple:
		return ExpansionMode(s), nil
	case "":
		return ExpansionNone, nil
	default:
		return "", fmt.Errorf("unknown expansion mode %q (want none, single or multiple)", s)
	}
}

// Options configures a single search call. The zero value gets defaults
// applied by the engine.
type Options struct {
	// TopK is the number of final results (default 10, max 100).
	TopK int

	// TopNPerSource is the candidate depth taken from each source before
	// fusion (default 50).
	TopNPerSource int

	// SectionPrefix restricts candidates to chunks whose section label
	// starts with this prefix. Applied per source ranking before fusion.
	SectionPrefix string

	// Expansion overrides the engine's configured expansion mode when
	// non-empty.
	Expansion ExpansionMode

	// SkipRerank bypasses the reranker, surfacing RRF order directly.
	SkipRerank bool
}

// Result is a single ranked search hit. Diagnostic fields carry the
// per-stage scores; Score is the surfaced relevance (reranker score when
// reranking ran, RRF score otherwise).
type Result struct {
	ChunkID string `json:"chunk_id"`
	Text    string `json:"text"`
	Section string `json:"section"`
	Page    int    `json:"page,omitempty"`

	// Rank is the 1-indexed final position.
	Rank int `json:"rank"`

	// Score is the surfaced relevance score.
	Score float64 `json:"score"`

	// Diagnostics.
	RRFScore     float64  `json:"rrf_score"`
	SparseScore  float64  `json:"sparse_score,omitempty"`
	SparseRank   int      `json:"sparse_rank,omitempty"`
	DenseScore   float64  `json:"dense_score,omitempty"`
	DenseRank    int      `json:"dense_rank,omitempty"`
	Reranked     bool     `json:"reranked"`
	MatchedTerms []string `json:"matched_terms,omitempty"`
}

// Stats describes the engine's loaded indexes.
type Stats struct {
	ChunkCount  int    `json:"chunk_count"`
	VectorCount int    `json:"vector_count"`
	SparseCount int    `json:"sparse_count"`
	ModelName   string `json:"model_name"`
	Dimensions  int    `json:"dimensions"`
}
