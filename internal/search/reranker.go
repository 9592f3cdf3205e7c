package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Candidate is a (chunk, text) pair handed to the reranker.
type Candidate struct {
	ChunkID string
	Text    string
}

// Reranker rescores candidates against the query with a cross-encoder.
// Returned scores are parallel to the input candidates.
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []Candidate) ([]float64, error)
	Close() error
}

// NoOpReranker preserves the incoming order. Used when no reranking service
// is configured; the engine then surfaces RRF scores directly.
type NoOpReranker struct{}

var _ Reranker = (*NoOpReranker)(nil)

// Rerank returns descending placeholder scores so relative order is kept.
func (n *NoOpReranker) Rerank(ctx context.Context, query string, candidates []Candidate) ([]float64, error) {
	scores := make([]float64, len(candidates))
	for i := range candidates {
		scores[i] = float64(len(candidates) - i)
	}
	return scores, nil
}

// Close is a no-op.
func (n *NoOpReranker) Close() error { return nil }

// Reranker service defaults.
const (
	DefaultRerankerTimeout   = 30 * time.Second
	DefaultRerankerBatchSize = 16
)

// RerankerConfig configures the HTTP cross-encoder client.
type RerankerConfig struct {
	// Endpoint is the rerank service base URL. Required.
	Endpoint string

	// Model is the cross-encoder model name sent with each request.
	Model string

	// Timeout bounds each HTTP request.
	Timeout time.Duration

	// BatchSize is the number of (query, doc) pairs per request.
	BatchSize int
}

// HTTPReranker scores (query, document) pairs via a cross-encoder service
// speaking the common /rerank JSON protocol (TEI, Cohere-compatible
// gateways).
type HTTPReranker struct {
	client *http.Client
	config RerankerConfig

	mu     sync.RWMutex
	closed bool
}

var _ Reranker = (*HTTPReranker)(nil)

type rerankRequest struct {
	Model     string   `json:"model,omitempty"`
	Query     string   `json:"query"`
	Documents []string `json:"documents"`
}

type rerankResponse struct {
	Results []struct {
		Index int     `json:"index"`
		Score float64 `json:"relevance_score"`
	} `json:"results"`
}

// NewHTTPReranker creates a reranker client. No health check happens here;
// the first Rerank call surfaces connectivity errors.
func NewHTTPReranker(cfg RerankerConfig) (*HTTPReranker, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("reranker endpoint is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultRerankerTimeout
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultRerankerBatchSize
	}

	return &HTTPReranker{
		client: &http.Client{
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     30 * time.Second,
			},
		},
		config: cfg,
	}, nil
}

// Rerank scores all candidates in batches of the configured size.
func (r *HTTPReranker) Rerank(ctx context.Context, query string, candidates []Candidate) ([]float64, error) {
	r.mu.RLock()
	if r.closed {
		r.mu.RUnlock()
		return nil, fmt.Errorf("reranker is closed")
	}
	r.mu.RUnlock()

	if len(candidates) == 0 {
		return []float64{}, nil
	}

	scores := make([]float64, len(candidates))
	for start := 0; start < len(candidates); start += r.config.BatchSize {
		end := start + r.config.BatchSize
		if end > len(candidates) {
			end = len(candidates)
		}

		batchScores, err := r.rerankBatch(ctx, query, candidates[start:end])
		if err != nil {
			return nil, err
		}
		copy(scores[start:end], batchScores)
	}

	return scores, nil
}

func (r *HTTPReranker) rerankBatch(ctx context.Context, query string, batch []Candidate) ([]float64, error) {
	docs := make([]string, len(batch))
	for i, c := range batch {
		docs[i] = c.Text
	}

	reqCtx, cancel := context.WithTimeout(ctx, r.config.Timeout)
	defer cancel()

	body, err := json.Marshal(rerankRequest{
		Model:     r.config.Model,
		Query:     query,
		Documents: docs,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost,
		strings.TrimRight(r.config.Endpoint, "/")+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("reranker returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var rerankResp rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&rerankResp); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}
	if len(rerankResp.Results) != len(batch) {
		return nil, fmt.Errorf("expected %d rerank scores, got %d", len(batch), len(rerankResp.Results))
	}

	scores := make([]float64, len(batch))
	seen := make([]bool, len(batch))
	for _, res := range rerankResp.Results {
		if res.Index < 0 || res.Index >= len(batch) {
			return nil, fmt.Errorf("rerank index %d out of range", res.Index)
		}
		scores[res.Index] = res.Score
		seen[res.Index] = true
	}
	for i, ok := range seen {
		if !ok {
			return nil, fmt.Errorf("missing rerank score for document %d", i)
		}
	}

	return scores, nil
}

// Close releases idle connections.
func (r *HTTPReranker) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	r.closed = true
	if t, ok := r.client.Transport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
	return nil
}
