package embed

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newOllamaTestServer(t *testing.T, dims int) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			w.WriteHeader(http.StatusOK)
		case "/api/embed":
			var req ollamaEmbedRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

			embeddings := make([][]float32, len(req.Input))
			for i := range req.Input {
				v := make([]float32, dims)
				v[i%dims] = 1
				embeddings[i] = v
			}
			_ = json.NewEncoder(w).Encode(ollamaEmbedResponse{Embeddings: embeddings})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestOllamaEmbedderBatch(t *testing.T) {
	ctx := context.Background()
	server := newOllamaTestServer(t, 4)

	e := NewOllamaEmbedder(OllamaConfig{Host: server.URL, Model: "test-model"})
	defer e.Close()

	vectors, err := e.EmbedBatch(ctx, []string{"first", "second"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Len(t, vectors[0], 4)

	// Dimensions auto-detected from the first response.
	assert.Equal(t, 4, e.Dimensions())
	assert.Equal(t, "test-model", e.ModelName())
}

func TestOllamaEmbedderAvailable(t *testing.T) {
	ctx := context.Background()
	server := newOllamaTestServer(t, 4)

	e := NewOllamaEmbedder(OllamaConfig{Host: server.URL})
	defer e.Close()
	assert.True(t, e.Available(ctx))

	down := NewOllamaEmbedder(OllamaConfig{Host: "http://127.0.0.1:1"})
	defer down.Close()
	assert.False(t, down.Available(ctx))
}

func TestOllamaEmbedderServerError(t *testing.T) {
	ctx := context.Background()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer server.Close()

	e := NewOllamaEmbedder(OllamaConfig{Host: server.URL})
	defer e.Close()

	_, err := e.Embed(ctx, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestOllamaEmbedderRejectsEmptyText(t *testing.T) {
	ctx := context.Background()
	server := newOllamaTestServer(t, 4)

	e := NewOllamaEmbedder(OllamaConfig{Host: server.URL})
	defer e.Close()

	_, err := e.Embed(ctx, "")
	assert.ErrorIs(t, err, ErrEmptyText)
}

func TestOllamaEmbedderDimensionMismatchAcrossCalls(t *testing.T) {
	ctx := context.Background()
	server := newOllamaTestServer(t, 4)

	e := NewOllamaEmbedder(OllamaConfig{Host: server.URL, Dimensions: 8})
	defer e.Close()

	// Configured 8, server returns 4: must error, never truncate or pad.
	_, err := e.Embed(ctx, "text")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dimension")
}

func TestOllamaEmbedderClosed(t *testing.T) {
	ctx := context.Background()
	server := newOllamaTestServer(t, 4)

	e := NewOllamaEmbedder(OllamaConfig{Host: server.URL})
	require.NoError(t, e.Close())

	_, err := e.Embed(ctx, "text")
	assert.ErrorIs(t, err, ErrEmbedderClosed)
}
