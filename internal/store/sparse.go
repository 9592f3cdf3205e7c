package store

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	"github.com/blevesearch/bleve/v2/search"
	index "github.com/blevesearch/bleve_index_api"
)

const (
	// LegalTokenizerName is the registered name of the word tokenizer.
	LegalTokenizerName = "legal_tokenizer"

	// LegalStopFilterName is the registered name of the stop word filter.
	LegalStopFilterName = "legal_stop"

	// LegalAnalyzerName is the registered name of the analyzer used for both
	// indexing and queries. A single shared analyzer guarantees build-time
	// and query-time tokenization stay identical.
	LegalAnalyzerName = "legal_analyzer"
)

func init() {
	_ = registry.RegisterTokenizer(LegalTokenizerName, legalTokenizerConstructor)
	_ = registry.RegisterTokenFilter(LegalStopFilterName, legalStopFilterConstructor)
}

// SparseConfig configures the BM25 keyword index.
type SparseConfig struct {
	// StopWords filtered during analysis. Defaults to DefaultStopWords.
	StopWords []string
}

// DefaultSparseConfig returns the default sparse index configuration.
func DefaultSparseConfig() SparseConfig {
	return SparseConfig{StopWords: DefaultStopWords}
}

// BleveSparseIndex wraps Bleve v2 with BM25 scoring for keyword search.
type BleveSparseIndex struct {
	mu     sync.RWMutex
	index  bleve.Index
	path   string
	config SparseConfig
	closed bool
}

var _ SparseIndex = (*BleveSparseIndex)(nil)

// bleveDocument is the document shape stored in Bleve.
type bleveDocument struct {
	Content string `json:"content"`
}

// NewBleveSparseIndex creates or opens a BM25 index at path.
// An empty path creates an in-memory index (used by tests and small builds).
func NewBleveSparseIndex(path string, config SparseConfig) (*BleveSparseIndex, error) {
	indexMapping, err := createIndexMapping(config)
	if err != nil {
		return nil, fmt.Errorf("create index mapping: %w", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		idx, err = bleve.Open(path)
		if err == bleve.ErrorIndexPathDoesNotExist {
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open sparse index: %w", err)
	}

	return &BleveSparseIndex{
		index:  idx,
		path:   path,
		config: config,
	}, nil
}

// createIndexMapping builds the Bleve mapping with the legal-text analyzer
// and BM25 scoring. The stop word list is stored in the mapping itself, so
// reopened indexes analyze with the list they were built with.
func createIndexMapping(cfg SparseConfig) (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()

	stopWords := cfg.StopWords
	if len(stopWords) == 0 {
		stopWords = DefaultStopWords
	}
	words := make([]interface{}, len(stopWords))
	for i, w := range stopWords {
		words[i] = w
	}
	err := indexMapping.AddCustomTokenFilter(LegalStopFilterName, map[string]interface{}{
		"type":       LegalStopFilterName,
		"stop_words": words,
	})
	if err != nil {
		return nil, fmt.Errorf("add stop word filter: %w", err)
	}

	err = indexMapping.AddCustomAnalyzer(LegalAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": LegalTokenizerName,
		"token_filters": []string{
			lowercase.Name,
			LegalStopFilterName,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("add custom analyzer: %w", err)
	}

	indexMapping.DefaultAnalyzer = LegalAnalyzerName
	indexMapping.ScoringModel = index.BM25Scoring

	return indexMapping, nil
}

// Index adds documents to the index.
func (b *BleveSparseIndex) Index(ctx context.Context, docs []*Document) error {
	if len(docs) == 0 {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("sparse index is closed")
	}

	batch := b.index.NewBatch()
	for _, doc := range docs {
		if err := batch.Index(doc.ID, bleveDocument{Content: doc.Content}); err != nil {
			return fmt.Errorf("index document %s: %w", doc.ID, err)
		}
	}

	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("execute batch: %w", err)
	}

	return nil
}

// Search returns up to limit documents matching query, scored by BM25.
// Only documents sharing at least one analyzed token with the query appear.
func (b *BleveSparseIndex) Search(ctx context.Context, queryStr string, limit int) ([]*SparseResult, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, fmt.Errorf("sparse index is closed")
	}

	if strings.TrimSpace(queryStr) == "" {
		return []*SparseResult{}, nil
	}

	matchQuery := bleve.NewMatchQuery(queryStr)
	matchQuery.SetField("content")
	matchQuery.Analyzer = LegalAnalyzerName

	searchRequest := bleve.NewSearchRequest(matchQuery)
	searchRequest.Size = limit
	searchRequest.IncludeLocations = true

	result, err := b.index.SearchInContext(ctx, searchRequest)
	if err != nil {
		return nil, fmt.Errorf("sparse search: %w", err)
	}

	results := make([]*SparseResult, 0, len(result.Hits))
	for _, hit := range result.Hits {
		results = append(results, &SparseResult{
			ChunkID:      hit.ID,
			Score:        hit.Score,
			MatchedTerms: extractMatchedTerms(hit),
		})
	}

	return results, nil
}

// Stats returns index statistics.
func (b *BleveSparseIndex) Stats() *SparseStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return &SparseStats{}
	}

	docCount, _ := b.index.DocCount()
	return &SparseStats{DocumentCount: int(docCount)}
}

// Close closes the underlying Bleve index. Disk-backed indexes persist their
// contents automatically; there is no separate save step.
func (b *BleveSparseIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	b.closed = true
	if b.index != nil {
		return b.index.Close()
	}
	return nil
}

// extractMatchedTerms collects matched terms from a search hit.
func extractMatchedTerms(hit *search.DocumentMatch) []string {
	terms := make(map[string]struct{})
	for field, locations := range hit.Locations {
		if field == "content" {
			for term := range locations {
				terms[term] = struct{}{}
			}
		}
	}

	result := make([]string, 0, len(terms))
	for term := range terms {
		result = append(result, term)
	}
	return result
}

// legalTokenizerConstructor creates the word tokenizer for Bleve.
func legalTokenizerConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.Tokenizer, error) {
	return &bleveLegalTokenizer{}, nil
}

// bleveLegalTokenizer adapts TokenizeText to the Bleve tokenizer interface.
type bleveLegalTokenizer struct{}

func (t *bleveLegalTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := string(input)
	locs := wordRegex.FindAllStringIndex(text, -1)

	result := make(analysis.TokenStream, 0, len(locs))
	for i, loc := range locs {
		result = append(result, &analysis.Token{
			Term:     []byte(strings.ToLower(text[loc[0]:loc[1]])),
			Start:    loc[0],
			End:      loc[1],
			Position: i + 1,
			Type:     analysis.AlphaNumeric,
		})
	}
	return result
}

// legalStopFilterConstructor creates the stop word filter for Bleve. The
// word list comes from the mapping's filter config; a mapping without one
// (or one loaded from an older index) gets the defaults. The config arrives
// as []interface{} when the mapping is round-tripped through JSON on open.
func legalStopFilterConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.TokenFilter, error) {
	words := DefaultStopWords
	switch raw := config["stop_words"].(type) {
	case []string:
		words = raw
	case []interface{}:
		words = make([]string, 0, len(raw))
		for _, w := range raw {
			if s, ok := w.(string); ok {
				words = append(words, s)
			}
		}
	}
	return &bleveLegalStopFilter{stopWords: BuildStopWordMap(words)}, nil
}

type bleveLegalStopFilter struct {
	stopWords map[string]struct{}
}

func (f *bleveLegalStopFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	result := make(analysis.TokenStream, 0, len(input))
	for _, token := range input {
		if _, isStop := f.stopWords[string(token.Term)]; !isStop {
			result = append(result, token)
		}
	}
	return result
}
