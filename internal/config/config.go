// Package config holds the explicit, typed configuration of the retrieval
// engine. Precedence: built-in defaults, then the YAML file, then PATRAG_*
// environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the complete engine configuration.
type Config struct {
	IndexDir   string           `yaml:"index_dir"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Search     SearchConfig     `yaml:"search"`
	Reranker   RerankerConfig   `yaml:"reranker"`
	Expansion  ExpansionConfig  `yaml:"expansion"`
	LogLevel   string           `yaml:"log_level"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider selects the backend: "openai", "ollama" or "static".
	Provider string `yaml:"provider"`

	// Model is the embedding model name, recorded in the index manifest.
	Model string `yaml:"model"`

	// Dimensions is the expected vector dimension. Zero auto-detects.
	Dimensions int `yaml:"dimensions"`

	// BatchSize is the number of chunks embedded per provider call.
	BatchSize int `yaml:"batch_size"`

	// OpenAIBaseURL overrides the OpenAI-compatible endpoint.
	OpenAIBaseURL string `yaml:"openai_base_url"`

	// OllamaHost is the Ollama API endpoint.
	OllamaHost string `yaml:"ollama_host"`

	// Timeout bounds each embedding request.
	Timeout time.Duration `yaml:"timeout"`

	// CacheSize is the query-embedding LRU capacity.
	CacheSize int `yaml:"cache_size"`

	// Fallback enables failover to the static embedder when the provider
	// is unreachable. Queries degrade; builds should run with a healthy
	// provider.
	Fallback bool `yaml:"fallback"`
}

// SearchConfig configures the query path.
type SearchConfig struct {
	// RRFConstant is the RRF smoothing parameter k.
	RRFConstant int `yaml:"rrf_constant"`

	// TopNPerSource is the per-source candidate depth before fusion.
	TopNPerSource int `yaml:"top_n_per_source"`

	// FinalTopK is the default number of surfaced results.
	FinalTopK int `yaml:"final_top_k"`

	// FlatMaxVectors is the corpus size threshold for switching the dense
	// index from exact flat scan to HNSW.
	FlatMaxVectors int `yaml:"flat_max_vectors"`

	// QueryPrefix is prepended to queries before embedding, for models
	// with query/passage asymmetry.
	QueryPrefix string `yaml:"query_prefix"`
}

// RerankerConfig configures the cross-encoder service client.
type RerankerConfig struct {
	// Endpoint is the rerank service base URL. Empty disables reranking.
	Endpoint string `yaml:"endpoint"`

	// Model is the cross-encoder model name.
	Model string `yaml:"model"`

	// BatchSize is the number of (query, doc) pairs per request.
	BatchSize int `yaml:"batch_size"`

	// Depth is how many fused candidates are rescored.
	Depth int `yaml:"depth"`
}

// ExpansionConfig configures HyDE query expansion.
type ExpansionConfig struct {
	// Mode is "none", "single" or "multiple".
	Mode string `yaml:"mode"`

	// Generator selects the backend: "rule-based" or "openai".
	Generator string `yaml:"generator"`

	// OpenAIModel is the chat model for the openai generator.
	OpenAIModel string `yaml:"openai_model"`
}

// Default returns the built-in defaults: fully local operation with the
// Ollama provider and offline rule-based expansion.
func Default() *Config {
	return &Config{
		IndexDir: ".patrag",
		Embeddings: EmbeddingsConfig{
			Provider:  "ollama",
			Model:     "nomic-embed-text",
			BatchSize: 32,
			Timeout:   60 * time.Second,
			CacheSize: 1000,
			Fallback:  true,
		},
		Search: SearchConfig{
			RRFConstant:    60,
			TopNPerSource:  50,
			FinalTopK:      10,
			FlatMaxVectors: 200_000,
		},
		Reranker: RerankerConfig{
			BatchSize: 16,
			Depth:     50,
		},
		Expansion: ExpansionConfig{
			Mode:      "none",
			Generator: "rule-based",
		},
		LogLevel: "info",
	}
}

// Load reads configuration from path, layering it over the defaults and
// applying environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides applies PATRAG_* environment variables, which take
// precedence over the file.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("PATRAG_INDEX_DIR"); v != "" {
		c.IndexDir = v
	}
	if v := os.Getenv("PATRAG_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("PATRAG_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("PATRAG_OLLAMA_HOST"); v != "" {
		c.Embeddings.OllamaHost = v
	}
	if v := os.Getenv("PATRAG_OPENAI_BASE_URL"); v != "" {
		c.Embeddings.OpenAIBaseURL = v
	}
	if v := os.Getenv("PATRAG_RRF_CONSTANT"); v != "" {
		if k, err := strconv.Atoi(v); err == nil {
			c.Search.RRFConstant = k
		}
	}
	if v := os.Getenv("PATRAG_EXPANSION_MODE"); v != "" {
		c.Expansion.Mode = v
	}
	if v := os.Getenv("PATRAG_RERANKER_ENDPOINT"); v != "" {
		c.Reranker.Endpoint = v
	}
	if v := os.Getenv("PATRAG_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	if c.IndexDir == "" {
		return fmt.Errorf("index_dir must not be empty")
	}

	switch c.Embeddings.Provider {
	case "openai", "ollama", "static":
	default:
		return fmt.Errorf("unknown embeddings provider %q (want openai, ollama or static)", c.Embeddings.Provider)
	}
	if c.Embeddings.BatchSize < 1 || c.Embeddings.BatchSize > 256 {
		return fmt.Errorf("embeddings batch_size %d out of range [1,256]", c.Embeddings.BatchSize)
	}

	if c.Search.RRFConstant <= 0 {
		return fmt.Errorf("rrf_constant must be positive, got %d", c.Search.RRFConstant)
	}
	if c.Search.TopNPerSource <= 0 {
		return fmt.Errorf("top_n_per_source must be positive, got %d", c.Search.TopNPerSource)
	}
	if c.Search.FinalTopK <= 0 || c.Search.FinalTopK > 100 {
		return fmt.Errorf("final_top_k %d out of range [1,100]", c.Search.FinalTopK)
	}

	switch c.Expansion.Mode {
	case "none", "single", "multiple":
	default:
		return fmt.Errorf("unknown expansion mode %q (want none, single or multiple)", c.Expansion.Mode)
	}
	switch c.Expansion.Generator {
	case "rule-based", "openai":
	default:
		return fmt.Errorf("unknown expansion generator %q (want rule-based or openai)", c.Expansion.Generator)
	}

	if c.Reranker.Depth <= 0 {
		return fmt.Errorf("reranker depth must be positive, got %d", c.Reranker.Depth)
	}

	return nil
}
