// Package cmd provides the CLI commands for patrag.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/patrag/patrag/internal/config"
	"github.com/patrag/patrag/internal/embed"
	"github.com/patrag/patrag/internal/index"
	"github.com/patrag/patrag/internal/logging"
	"github.com/patrag/patrag/internal/search"
	"github.com/patrag/patrag/pkg/version"
)

var (
	configPath string
	debugMode  bool
)

// NewRootCmd creates the root command for the patrag CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "patrag",
		Short: "Hybrid retrieval over patent-examination corpora",
		Long: `patrag indexes a chunked legal/patent corpus and serves hybrid
queries over it: BM25 keyword search and dense vector search fused with
Reciprocal Rank Fusion, with optional HyDE query expansion and
cross-encoder reranking.`,
		Version:       version.String(),
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", "patrag.yaml", "Path to the configuration file")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newSectionCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

// Execute runs the CLI.
func Execute() error {
	return NewRootCmd().Execute()
}

// loadConfig loads configuration and installs the logger.
func loadConfig() (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}

	level := cfg.LogLevel
	if debugMode {
		level = "debug"
	}
	logger := logging.Setup(logging.Config{Level: level})

	return cfg, logger, nil
}

// buildEmbedder wires the configured embedding provider, with caching and
// the optional static fallback.
func buildEmbedder(cfg *config.Config, logger *slog.Logger) (embed.Embedder, error) {
	var provider embed.Embedder
	switch cfg.Embeddings.Provider {
	case "openai":
		e, err := embed.NewOpenAIEmbedder(embed.OpenAIConfig{
			APIKey:     os.Getenv("OPENAI_API_KEY"),
			BaseURL:    cfg.Embeddings.OpenAIBaseURL,
			Model:      cfg.Embeddings.Model,
			Dimensions: cfg.Embeddings.Dimensions,
		})
		if err != nil {
			return nil, err
		}
		provider = e
	case "ollama":
		provider = embed.NewOllamaEmbedder(embed.OllamaConfig{
			Host:       cfg.Embeddings.OllamaHost,
			Model:      cfg.Embeddings.Model,
			Timeout:    cfg.Embeddings.Timeout,
			Dimensions: cfg.Embeddings.Dimensions,
		})
	case "static":
		provider = embed.NewStaticEmbedder(cfg.Embeddings.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embeddings provider %q", cfg.Embeddings.Provider)
	}

	if cfg.Embeddings.Fallback && cfg.Embeddings.Provider != "static" {
		f, err := embed.NewFallbackEmbedder(provider,
			embed.NewStaticEmbedder(cfg.Embeddings.Dimensions), logger)
		if err != nil {
			return nil, err
		}
		provider = f
	}

	return embed.NewCachedEmbedder(provider, cfg.Embeddings.CacheSize), nil
}

// buildGenerator wires the configured HyDE generator. Expansion mode "none"
// returns nil.
func buildGenerator(cfg *config.Config) (search.Generator, error) {
	if cfg.Expansion.Mode == "none" {
		return nil, nil
	}
	switch cfg.Expansion.Generator {
	case "rule-based":
		return search.NewRuleBasedGenerator(), nil
	case "openai":
		return search.NewOpenAIGenerator(os.Getenv("OPENAI_API_KEY"),
			cfg.Embeddings.OpenAIBaseURL, cfg.Expansion.OpenAIModel)
	default:
		return nil, fmt.Errorf("unknown expansion generator %q", cfg.Expansion.Generator)
	}
}

// buildReranker wires the cross-encoder client. No endpoint means no
// reranking.
func buildReranker(cfg *config.Config) (search.Reranker, error) {
	if cfg.Reranker.Endpoint == "" {
		return &search.NoOpReranker{}, nil
	}
	return search.NewHTTPReranker(search.RerankerConfig{
		Endpoint:  cfg.Reranker.Endpoint,
		Model:     cfg.Reranker.Model,
		BatchSize: cfg.Reranker.BatchSize,
	})
}

// newService wires the full lifecycle service from configuration.
func newService(cfg *config.Config, logger *slog.Logger) (*index.Service, error) {
	embedder, err := buildEmbedder(cfg, logger)
	if err != nil {
		return nil, err
	}
	generator, err := buildGenerator(cfg)
	if err != nil {
		return nil, err
	}
	reranker, err := buildReranker(cfg)
	if err != nil {
		return nil, err
	}

	builder, err := index.NewBuilder(index.BuilderConfig{
		IndexDir:       cfg.IndexDir,
		EmbedBatchSize: cfg.Embeddings.BatchSize,
		FlatMaxVectors: cfg.Search.FlatMaxVectors,
	}, embedder, logger)
	if err != nil {
		return nil, err
	}

	mode, err := search.ParseExpansionMode(cfg.Expansion.Mode)
	if err != nil {
		return nil, err
	}

	factory := func(stores *index.Stores) *search.Engine {
		return search.NewEngine(stores.Chunks, stores.Sparse, stores.Dense,
			embedder, generator, reranker,
			search.NewRRFFusion(cfg.Search.RRFConstant),
			search.EngineConfig{
				Expansion:     mode,
				RerankDepth:   cfg.Reranker.Depth,
				TopNPerSource: cfg.Search.TopNPerSource,
				QueryPrefix:   cfg.Search.QueryPrefix,
			}, logger)
	}

	return index.NewService(builder, factory, logger), nil
}
