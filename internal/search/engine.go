package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/patrag/patrag/internal/embed"
	"github.com/patrag/patrag/internal/store"
)

// filterOverfetch is how much deeper each source is read when a section
// filter is active, so the post-filter ranking can still fill top-N.
const filterOverfetch = 4

// EngineConfig holds the query-path defaults an Engine is created with.
// Per-call Options override the overridable parts.
type EngineConfig struct {
	// Expansion is the default HyDE mode.
	Expansion ExpansionMode

	// RerankDepth is how many fused candidates are rescored.
	RerankDepth int

	// TopNPerSource is the default per-source candidate depth.
	TopNPerSource int

	// QueryPrefix is prepended to queries before embedding, for models with
	// query/passage asymmetry. Empty for symmetric models.
	QueryPrefix string
}

// Engine is the hybrid query path over one loaded index generation: sparse
// and dense retrieval in parallel, RRF fusion, optional expansion and
// reranking. Engines are read-only after construction; a rebuild produces a
// new Engine and the owner swaps handles.
type Engine struct {
	chunks   store.ChunkStore
	sparse   store.SparseIndex
	dense    store.VectorStore
	embedder embed.Embedder
	expander *Expander
	fusion   *RRFFusion
	reranker Reranker
	config   EngineConfig
	logger   *slog.Logger
}

// NewEngine wires the query path. A nil reranker is replaced by NoOpReranker;
// a nil generator inside the expander disables expansion.
func NewEngine(
	chunks store.ChunkStore,
	sparse store.SparseIndex,
	dense store.VectorStore,
	embedder embed.Embedder,
	generator Generator,
	reranker Reranker,
	fusion *RRFFusion,
	cfg EngineConfig,
	logger *slog.Logger,
) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if reranker == nil {
		reranker = &NoOpReranker{}
	}
	if fusion == nil {
		fusion = NewRRFFusion(DefaultRRFConstant)
	}
	if cfg.RerankDepth <= 0 {
		cfg.RerankDepth = DefaultRerankDepth
	}
	if cfg.TopNPerSource <= 0 {
		cfg.TopNPerSource = DefaultTopNPerSource
	}

	return &Engine{
		chunks:   chunks,
		sparse:   sparse,
		dense:    dense,
		embedder: embedder,
		expander: NewExpander(embedder, generator, logger),
		fusion:   fusion,
		reranker: reranker,
		config:   cfg,
		logger:   logger,
	}
}

// Search runs the full hybrid pipeline and returns the final ranked results.
func (e *Engine) Search(ctx context.Context, query string, opts Options) ([]*Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("query must not be empty")
	}
	e.applyDefaults(&opts)

	start := time.Now()

	mode := e.config.Expansion
	if opts.Expansion != "" {
		mode = opts.Expansion
	}

	queryVec, err := e.expander.QueryVector(ctx, e.config.QueryPrefix+query, mode)
	if err != nil {
		return nil, err
	}

	// The requested top-K may exceed the configured per-source depth; widen
	// the candidate pool so the final slice can fill.
	perSource := opts.TopNPerSource
	if opts.TopK > perSource {
		perSource = opts.TopK
	}
	fetchN := perSource
	if opts.SectionPrefix != "" {
		fetchN *= filterOverfetch
	}

	dense, sparse, err := e.retrieve(ctx, query, queryVec, fetchN)
	if err != nil {
		return nil, err
	}

	if opts.SectionPrefix != "" {
		dense, sparse, err = e.filterBySection(ctx, opts.SectionPrefix, dense, sparse)
		if err != nil {
			return nil, err
		}
	}
	dense = truncateDense(dense, perSource)
	sparse = truncateSparse(sparse, perSource)

	fused := e.fusion.Fuse(dense, sparse)
	if len(fused) == 0 {
		return []*Result{}, nil
	}

	results, err := e.finalize(ctx, query, fused, opts)
	if err != nil {
		return nil, err
	}

	e.logger.Debug("search completed",
		"query_len", len(query),
		"expansion", string(mode),
		"candidates", len(fused),
		"results", len(results),
		"duration_ms", time.Since(start).Milliseconds())

	return results, nil
}

func (e *Engine) applyDefaults(opts *Options) {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.TopK > MaxTopK {
		opts.TopK = MaxTopK
	}
	if opts.TopNPerSource <= 0 {
		opts.TopNPerSource = e.config.TopNPerSource
	}
}

// retrieve runs the dense and sparse lookups concurrently. One source
// failing degrades to a single-source ranking with a logged warning; both
// failing fails the search.
func (e *Engine) retrieve(ctx context.Context, query string, queryVec []float32, n int) ([]*store.VectorResult, []*store.SparseResult, error) {
	var (
		dense     []*store.VectorResult
		sparse    []*store.SparseResult
		denseErr  error
		sparseErr error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		dense, denseErr = e.dense.Search(gctx, queryVec, n)
		return nil
	})
	g.Go(func() error {
		sparse, sparseErr = e.sparse.Search(gctx, query, n)
		return nil
	})
	_ = g.Wait()

	if denseErr != nil && sparseErr != nil {
		return nil, nil, fmt.Errorf("both retrieval sources failed: %w",
			errors.Join(denseErr, sparseErr))
	}
	if denseErr != nil {
		e.logger.Warn("dense retrieval failed, using sparse ranking only", "error", denseErr)
		dense = nil
	}
	if sparseErr != nil {
		e.logger.Warn("sparse retrieval failed, using dense ranking only", "error", sparseErr)
		sparse = nil
	}

	return dense, sparse, nil
}

// filterBySection drops candidates outside the section prefix from each
// source ranking, preserving per-source order.
func (e *Engine) filterBySection(ctx context.Context, prefix string, dense []*store.VectorResult, sparse []*store.SparseResult) ([]*store.VectorResult, []*store.SparseResult, error) {
	allowed, err := e.chunks.SectionsByPrefix(ctx, prefix)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve section filter: %w", err)
	}

	fd := dense[:0]
	for _, d := range dense {
		if _, ok := allowed[d.ChunkID]; ok {
			fd = append(fd, d)
		}
	}
	fs := sparse[:0]
	for _, s := range sparse {
		if _, ok := allowed[s.ChunkID]; ok {
			fs = append(fs, s)
		}
	}
	return fd, fs, nil
}

func truncateDense(r []*store.VectorResult, n int) []*store.VectorResult {
	if len(r) > n {
		return r[:n]
	}
	return r
}

func truncateSparse(r []*store.SparseResult, n int) []*store.SparseResult {
	if len(r) > n {
		return r[:n]
	}
	return r
}

// finalize enriches the fused candidates with chunk text, reranks the top
// slice, and assembles the final ranked results.
func (e *Engine) finalize(ctx context.Context, query string, fused []*FusedResult, opts Options) ([]*Result, error) {
	depth := e.config.RerankDepth
	if opts.TopK > depth {
		depth = opts.TopK
	}
	if depth > len(fused) {
		depth = len(fused)
	}
	head := fused[:depth]

	ids := make([]string, len(head))
	for i, f := range head {
		ids[i] = f.ChunkID
	}
	chunks, err := e.chunks.GetChunks(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load result chunks: %w", err)
	}
	byID := make(map[string]*store.Chunk, len(chunks))
	for _, c := range chunks {
		byID[c.ID] = c
	}

	results := make([]*Result, 0, len(head))
	for _, f := range head {
		chunk, ok := byID[f.ChunkID]
		if !ok {
			// Index and chunk store drifted; skip rather than surface a
			// textless hit.
			e.logger.Warn("fused candidate missing from chunk store", "chunk_id", f.ChunkID)
			continue
		}
		results = append(results, &Result{
			ChunkID:      f.ChunkID,
			Text:         chunk.Text,
			Section:      chunk.Section,
			Page:         chunk.Page,
			Score:        f.RRFScore,
			RRFScore:     f.RRFScore,
			SparseScore:  f.SparseScore,
			SparseRank:   f.SparseRank,
			DenseScore:   f.DenseScore,
			DenseRank:    f.DenseRank,
			MatchedTerms: f.MatchedTerms,
		})
	}

	if !opts.SkipRerank {
		e.rerank(ctx, query, results)
	}

	if len(results) > opts.TopK {
		results = results[:opts.TopK]
	}
	for i, r := range results {
		r.Rank = i + 1
	}
	return results, nil
}

// rerank rescores results with the cross-encoder and reorders by its score.
// A reranker failure degrades to the fused order with a logged warning.
func (e *Engine) rerank(ctx context.Context, query string, results []*Result) {
	if _, isNoOp := e.reranker.(*NoOpReranker); isNoOp || len(results) == 0 {
		return
	}

	candidates := make([]Candidate, len(results))
	for i, r := range results {
		candidates[i] = Candidate{ChunkID: r.ChunkID, Text: r.Text}
	}

	scores, err := e.reranker.Rerank(ctx, query, candidates)
	if err != nil {
		e.logger.Warn("reranking failed, keeping fused order", "error", err)
		return
	}

	for i, r := range results {
		r.Score = scores[i]
		r.Reranked = true
	}
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
}

// Section returns all chunks with the exact section label, in insertion
// order, bypassing ranking entirely.
func (e *Engine) Section(ctx context.Context, label string) ([]*store.Chunk, error) {
	return e.chunks.GetBySection(ctx, label)
}

// Stats reports the loaded index generation.
func (e *Engine) Stats(ctx context.Context) (*Stats, error) {
	chunkCount, err := e.chunks.Count(ctx)
	if err != nil {
		return nil, err
	}
	return &Stats{
		ChunkCount:  chunkCount,
		VectorCount: e.dense.Count(),
		SparseCount: e.sparse.Stats().DocumentCount,
		ModelName:   e.embedder.ModelName(),
		Dimensions:  e.embedder.Dimensions(),
	}, nil
}

// Close releases the engine's resources.
func (e *Engine) Close() error {
	var errs []error
	if err := e.reranker.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.sparse.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.dense.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := e.chunks.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
