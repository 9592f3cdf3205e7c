package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"github.com/patrag/patrag/internal/embed"
	"github.com/patrag/patrag/internal/store"
)

// Build defaults.
const (
	DefaultEmbedBatchSize = 32

	// DefaultFlatMaxVectors is the corpus size up to which the exact flat
	// index is used. Beyond it the approximate HNSW index takes over.
	DefaultFlatMaxVectors = 200_000
)

// Artifact names inside the index directory.
const (
	chunksFile = "chunks.db"
	sparseDir  = "sparse.bleve"
	denseFlat  = "dense.flat"
	denseHNSW  = "dense.hnsw"
	buildLock  = ".build.lock"

	// stagingName is the directory a build assembles its artifacts in
	// before they replace the committed generation.
	stagingName = ".staging"
)

// ErrBuildInProgress indicates another build holds the lock.
var ErrBuildInProgress = errors.New("another build is already in progress")

// State is the lifecycle state of the index.
type State string

const (
	StateUnbuilt  State = "unbuilt"
	StateBuilding State = "building"
	StateReady    State = "ready"
	StateFailed   State = "failed"
)

// BuilderConfig configures the index builder.
type BuilderConfig struct {
	// IndexDir is the directory holding all artifacts.
	IndexDir string

	// EmbedBatchSize is the number of chunks embedded per provider call.
	EmbedBatchSize int

	// FlatMaxVectors is the corpus size threshold for switching from the
	// exact flat index to HNSW.
	FlatMaxVectors int
}

// Builder creates and loads index generations. One Builder serializes its
// own builds with an in-process mutex; the on-disk flock additionally rejects
// concurrent builds from other processes sharing the index directory.
type Builder struct {
	config   BuilderConfig
	embedder embed.Embedder
	logger   *slog.Logger

	buildMu sync.Mutex

	stateMu sync.RWMutex
	state   State
}

// Stores bundles the opened artifacts of one committed generation.
type Stores struct {
	Manifest *Manifest
	Chunks   store.ChunkStore
	Sparse   store.SparseIndex
	Dense    store.VectorStore
}

// Close closes all stores.
func (s *Stores) Close() error {
	var errs []error
	if s.Sparse != nil {
		errs = append(errs, s.Sparse.Close())
	}
	if s.Dense != nil {
		errs = append(errs, s.Dense.Close())
	}
	if s.Chunks != nil {
		errs = append(errs, s.Chunks.Close())
	}
	return errors.Join(errs...)
}

// Status reports the index lifecycle state and manifest summary.
type Status struct {
	State      State     `json:"state"`
	Built      bool      `json:"built"`
	ChunkCount int       `json:"chunk_count"`
	ModelName  string    `json:"model_name,omitempty"`
	Dimensions int       `json:"dimensions,omitempty"`
	BuiltAt    time.Time `json:"built_at,omitempty"`
}

// NewBuilder creates a builder over the given index directory.
func NewBuilder(cfg BuilderConfig, embedder embed.Embedder, logger *slog.Logger) (*Builder, error) {
	if cfg.IndexDir == "" {
		return nil, fmt.Errorf("index directory is required")
	}
	if cfg.EmbedBatchSize <= 0 {
		cfg.EmbedBatchSize = DefaultEmbedBatchSize
	}
	if cfg.EmbedBatchSize > embed.MaxBatchSize {
		cfg.EmbedBatchSize = embed.MaxBatchSize
	}
	if cfg.FlatMaxVectors <= 0 {
		cfg.FlatMaxVectors = DefaultFlatMaxVectors
	}
	if logger == nil {
		logger = slog.Default()
	}

	b := &Builder{
		config:   cfg,
		embedder: embedder,
		logger:   logger,
		state:    StateUnbuilt,
	}
	if _, err := LoadManifest(cfg.IndexDir); err == nil {
		b.state = StateReady
	}
	return b, nil
}

// State returns the current lifecycle state.
func (b *Builder) State() State {
	b.stateMu.RLock()
	defer b.stateMu.RUnlock()
	return b.state
}

func (b *Builder) setState(s State) {
	b.stateMu.Lock()
	b.state = s
	b.stateMu.Unlock()
}

// CorpusChecksum hashes chunk identity and text in order. Builds with the
// same checksum and model are byte-equivalent, which is what makes Build
// idempotent.
func CorpusChecksum(chunks []*store.Chunk) string {
	h := sha256.New()
	for _, c := range chunks {
		h.Write([]byte(c.ID))
		h.Write([]byte{0})
		h.Write([]byte(c.Text))
		h.Write([]byte{'\n'})
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Build creates a new index generation from the chunks. When force is false
// and the committed manifest already matches the corpus and model, Build is
// a no-op. The new generation is assembled in a staging directory and only
// replaces the committed one after its manifest is written, so a failure at
// any point before commit leaves the previous generation intact.
func (b *Builder) Build(ctx context.Context, chunks []*store.Chunk, force bool) error {
	if !b.buildMu.TryLock() {
		return ErrBuildInProgress
	}
	defer b.buildMu.Unlock()

	if err := os.MkdirAll(b.config.IndexDir, 0o755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}

	lock := flock.New(filepath.Join(b.config.IndexDir, buildLock))
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire build lock: %w", err)
	}
	if !locked {
		return ErrBuildInProgress
	}
	defer func() { _ = lock.Unlock() }()

	checksum := CorpusChecksum(chunks)
	if !force {
		if m, loadErr := LoadManifest(b.config.IndexDir); loadErr == nil {
			if m.CorpusChecksum == checksum && m.ModelName == b.embedder.ModelName() {
				b.logger.Info("index up to date, skipping build",
					"chunk_count", m.ChunkCount,
					"built_at", m.BuiltAt)
				b.setState(StateReady)
				return nil
			}
		}
	}

	b.setState(StateBuilding)
	start := time.Now()
	b.logger.Info("index build started",
		"chunk_count", len(chunks),
		"model", b.embedder.ModelName(),
		"force", force)

	if err := b.build(ctx, chunks, checksum); err != nil {
		b.setState(StateFailed)
		// The committed generation, if any, was never touched.
		if _, loadErr := LoadManifest(b.config.IndexDir); loadErr == nil {
			b.setState(StateReady)
		} else {
			b.setState(StateUnbuilt)
		}
		return err
	}

	b.setState(StateReady)
	b.logger.Info("index build completed",
		"chunk_count", len(chunks),
		"duration_ms", time.Since(start).Milliseconds())
	return nil
}

func (b *Builder) build(ctx context.Context, chunks []*store.Chunk, checksum string) error {
	staging := filepath.Join(b.config.IndexDir, stagingName)
	if err := os.RemoveAll(staging); err != nil {
		return fmt.Errorf("clear staging directory: %w", err)
	}
	if err := os.MkdirAll(staging, 0o755); err != nil {
		return fmt.Errorf("create staging directory: %w", err)
	}
	defer func() { _ = os.RemoveAll(staging) }()

	dims, err := b.resolveDimensions(ctx)
	if err != nil {
		return err
	}

	// A failover before the first batch still embeds the whole corpus with
	// one consistent model. A failover in the middle would mix vectors from
	// two models in one index, so any change observed after this point
	// aborts the build.
	degradedAtStart := embedderDegraded(b.embedder)

	denseKind := DenseKindFlat
	if len(chunks) > b.config.FlatMaxVectors {
		denseKind = DenseKindHNSW
	}

	stores, err := b.openForBuild(staging, dims, denseKind)
	if err != nil {
		return err
	}

	buildErr := func() error {
		batch := b.config.EmbedBatchSize
		for startIdx := 0; startIdx < len(chunks); startIdx += batch {
			if err := ctx.Err(); err != nil {
				return err
			}
			end := startIdx + batch
			if end > len(chunks) {
				end = len(chunks)
			}
			if err := b.buildBatch(ctx, stores, chunks[startIdx:end]); err != nil {
				return fmt.Errorf("build batch at %d: %w", startIdx, err)
			}
			if embedderDegraded(b.embedder) != degradedAtStart {
				return fmt.Errorf("embedding provider failed over during build: rebuild with a healthy provider")
			}
		}

		if err := stores.Dense.Save(filepath.Join(staging, denseArtifact(denseKind))); err != nil {
			return fmt.Errorf("persist dense index: %w", err)
		}

		return SaveManifest(staging, &Manifest{
			Version:        ManifestVersion,
			ModelName:      b.embedder.ModelName(),
			Dimensions:     dims,
			ChunkCount:     len(chunks),
			DenseKind:      denseKind,
			CorpusChecksum: checksum,
			BuiltAt:        time.Now().UTC(),
		})
	}()

	// The stores must be closed before their files move out of staging.
	closeErr := stores.Close()
	if buildErr != nil {
		return buildErr
	}
	if closeErr != nil {
		return fmt.Errorf("close staged artifacts: %w", closeErr)
	}

	return b.commit(staging)
}

// commit replaces the committed generation with the staged one. The old
// manifest is removed first and the staged one renamed in last, so a crash
// anywhere inside commit reads as unbuilt, never as a manifest over
// mismatched artifacts.
func (b *Builder) commit(staging string) error {
	b.removeArtifacts()

	entries, err := os.ReadDir(staging)
	if err != nil {
		return fmt.Errorf("read staging directory: %w", err)
	}
	for _, entry := range entries {
		if entry.Name() == ManifestFile {
			continue
		}
		src := filepath.Join(staging, entry.Name())
		dst := filepath.Join(b.config.IndexDir, entry.Name())
		if err := os.Rename(src, dst); err != nil {
			return fmt.Errorf("commit artifact %s: %w", entry.Name(), err)
		}
	}

	src := filepath.Join(staging, ManifestFile)
	if err := os.Rename(src, filepath.Join(b.config.IndexDir, ManifestFile)); err != nil {
		return fmt.Errorf("commit manifest: %w", err)
	}
	return nil
}

// embedderDegraded reports whether the embedder has failed over to a
// different backend.
func embedderDegraded(e embed.Embedder) bool {
	if d, ok := e.(embed.Degradable); ok {
		return d.Degraded()
	}
	return false
}

// resolveDimensions returns the embedder's dimension, probing with one
// request when the provider auto-detects lazily.
func (b *Builder) resolveDimensions(ctx context.Context) (int, error) {
	if dims := b.embedder.Dimensions(); dims > 0 {
		return dims, nil
	}
	vec, err := b.embedder.Embed(ctx, "dimension probe")
	if err != nil {
		return 0, fmt.Errorf("detect embedding dimensions: %w", err)
	}
	return len(vec), nil
}

// openForBuild opens a fresh artifact set under dir.
func (b *Builder) openForBuild(dir string, dims int, denseKind string) (*Stores, error) {
	chunkStore, err := store.NewSQLiteChunkStore(filepath.Join(dir, chunksFile))
	if err != nil {
		return nil, fmt.Errorf("open chunk store: %w", err)
	}

	sparse, err := store.NewBleveSparseIndex(filepath.Join(dir, sparseDir), store.DefaultSparseConfig())
	if err != nil {
		chunkStore.Close()
		return nil, fmt.Errorf("open sparse index: %w", err)
	}

	var dense store.VectorStore
	if denseKind == DenseKindHNSW {
		dense, err = store.NewHNSWStore(store.DefaultHNSWConfig(dims))
	} else {
		dense, err = store.NewFlatStore(dims)
	}
	if err != nil {
		sparse.Close()
		chunkStore.Close()
		return nil, fmt.Errorf("open dense index: %w", err)
	}

	return &Stores{Chunks: chunkStore, Sparse: sparse, Dense: dense}, nil
}

func (b *Builder) buildBatch(ctx context.Context, stores *Stores, batch []*store.Chunk) error {
	if err := stores.Chunks.SaveChunks(ctx, batch); err != nil {
		return err
	}

	docs := make([]*store.Document, len(batch))
	ids := make([]string, len(batch))
	texts := make([]string, len(batch))
	for i, c := range batch {
		docs[i] = &store.Document{ID: c.ID, Content: c.Text}
		ids[i] = c.ID
		texts[i] = c.Text
	}

	if err := stores.Sparse.Index(ctx, docs); err != nil {
		return err
	}

	vectors, err := b.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed batch: %w", err)
	}
	return stores.Dense.Add(ctx, ids, vectors)
}

// Load opens the committed generation, validating the manifest against the
// configured model first.
func (b *Builder) Load(ctx context.Context) (*Stores, error) {
	m, err := LoadManifest(b.config.IndexDir)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(b.embedder.ModelName(), b.embedder.Dimensions()); err != nil {
		return nil, err
	}

	chunkStore, err := store.NewSQLiteChunkStore(filepath.Join(b.config.IndexDir, chunksFile))
	if err != nil {
		return nil, fmt.Errorf("open chunk store: %w", err)
	}

	sparse, err := store.NewBleveSparseIndex(filepath.Join(b.config.IndexDir, sparseDir), store.DefaultSparseConfig())
	if err != nil {
		chunkStore.Close()
		return nil, fmt.Errorf("open sparse index: %w", err)
	}

	var dense store.VectorStore
	if m.DenseKind == DenseKindHNSW {
		dense, err = store.NewHNSWStore(store.DefaultHNSWConfig(m.Dimensions))
	} else {
		dense, err = store.NewFlatStore(m.Dimensions)
	}
	if err == nil && m.ChunkCount > 0 {
		err = dense.Load(b.densePath(m.DenseKind))
	}
	if err != nil {
		sparse.Close()
		chunkStore.Close()
		return nil, fmt.Errorf("load dense index: %w", err)
	}

	b.setState(StateReady)
	return &Stores{Manifest: m, Chunks: chunkStore, Sparse: sparse, Dense: dense}, nil
}

// Status summarizes the committed generation without opening artifacts.
func (b *Builder) Status() (*Status, error) {
	state := b.State()

	m, err := LoadManifest(b.config.IndexDir)
	if errors.Is(err, ErrNotBuilt) {
		return &Status{State: state}, nil
	}
	if err != nil {
		return nil, err
	}

	return &Status{
		State:      state,
		Built:      true,
		ChunkCount: m.ChunkCount,
		ModelName:  m.ModelName,
		Dimensions: m.Dimensions,
		BuiltAt:    m.BuiltAt,
	}, nil
}

func denseArtifact(kind string) string {
	if kind == DenseKindHNSW {
		return denseHNSW
	}
	return denseFlat
}

func (b *Builder) densePath(kind string) string {
	return filepath.Join(b.config.IndexDir, denseArtifact(kind))
}

// removeArtifacts deletes every artifact of the committed generation,
// manifest first. Only commit calls this; a failed build never touches the
// committed set.
func (b *Builder) removeArtifacts() {
	dir := b.config.IndexDir
	for _, name := range []string{
		ManifestFile,
		denseFlat, denseFlat + ".tmp",
		denseHNSW, denseHNSW + ".meta", denseHNSW + ".tmp", denseHNSW + ".meta.tmp",
		chunksFile, chunksFile + "-wal", chunksFile + "-shm",
	} {
		_ = os.Remove(filepath.Join(dir, name))
	}
	_ = os.RemoveAll(filepath.Join(dir, sparseDir))
}
