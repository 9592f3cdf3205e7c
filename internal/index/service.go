package index

import (
	"context"
	"log/slog"
	"sync"

	"github.com/patrag/patrag/internal/search"
	"github.com/patrag/patrag/internal/store"
)

// EngineFactory builds a query engine over one loaded generation.
type EngineFactory func(stores *Stores) *search.Engine

// Service couples the builder with the live query engine. Queries keep
// using the engine loaded from the last committed generation; a successful
// rebuild swaps the handle and closes the previous generation's stores.
type Service struct {
	builder *Builder
	factory EngineFactory
	logger  *slog.Logger

	mu     sync.RWMutex
	engine *search.Engine
}

// NewService creates a lifecycle service. No engine is loaded yet; call
// Load or Rebuild first.
func NewService(builder *Builder, factory EngineFactory, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		builder: builder,
		factory: factory,
		logger:  logger,
	}
}

// Load opens the committed generation and installs its engine.
func (s *Service) Load(ctx context.Context) error {
	stores, err := s.builder.Load(ctx)
	if err != nil {
		return err
	}
	s.swap(stores)
	return nil
}

// Rebuild builds a new generation and, on success, swaps the live engine to
// it. On failure the previous engine keeps serving.
func (s *Service) Rebuild(ctx context.Context, chunks []*store.Chunk, force bool) error {
	if err := s.builder.Build(ctx, chunks, force); err != nil {
		return err
	}
	return s.Load(ctx)
}

func (s *Service) swap(stores *Stores) {
	next := s.factory(stores)

	s.mu.Lock()
	prev := s.engine
	s.engine = next
	s.mu.Unlock()

	if prev != nil {
		if err := prev.Close(); err != nil {
			s.logger.Warn("closing previous index generation", "error", err)
		}
	}
}

// Engine returns the live engine, or nil before the first Load.
func (s *Service) Engine() *search.Engine {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engine
}

// Status proxies the builder's status.
func (s *Service) Status() (*Status, error) {
	return s.builder.Status()
}

// Close closes the live engine.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine == nil {
		return nil
	}
	err := s.engine.Close()
	s.engine = nil
	return err
}
