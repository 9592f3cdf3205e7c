// Package index owns the build lifecycle of a corpus: embedding chunks into
// the dense index, feeding the sparse index and chunk store, and committing
// the generation with an atomically written manifest. The manifest is the
// commit point; artifacts without one are an unbuilt (or failed) index.
package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// ManifestVersion is the current manifest schema version.
const ManifestVersion = 1

// ManifestFile is the manifest file name inside the index directory.
const ManifestFile = "manifest.json"

// Dense index kinds recorded in the manifest.
const (
	DenseKindFlat = "flat"
	DenseKindHNSW = "hnsw"
)

// ErrNotBuilt indicates no committed index exists at the configured path.
var ErrNotBuilt = errors.New("index not built: run 'patrag index' first")

// Manifest describes a committed index generation. It is written last during
// a build; its presence means every artifact it names is complete.
type Manifest struct {
	Version        int       `json:"version"`
	ModelName      string    `json:"model_name"`
	Dimensions     int       `json:"dimensions"`
	ChunkCount     int       `json:"chunk_count"`
	DenseKind      string    `json:"dense_kind"`
	CorpusChecksum string    `json:"corpus_checksum"`
	BuiltAt        time.Time `json:"built_at"`
}

// SaveManifest writes the manifest atomically (temp file + rename).
func SaveManifest(dir string, m *Manifest) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}

	path := filepath.Join(dir, ManifestFile)
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("commit manifest: %w", err)
	}
	return nil
}

// LoadManifest reads the manifest, returning ErrNotBuilt when none exists.
func LoadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotBuilt
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if m.Version != ManifestVersion {
		return nil, fmt.Errorf("manifest version %d not supported (want %d): rebuild required",
			m.Version, ManifestVersion)
	}
	return &m, nil
}

// Validate checks the manifest against the configured embedding model.
// A mismatch is fatal: vectors from a different model or dimension cannot be
// compared, so the only remedy is a rebuild.
func (m *Manifest) Validate(modelName string, dimensions int) error {
	if m.ModelName != modelName {
		return fmt.Errorf("index was built with model %q but %q is configured: rebuild required (patrag index --force)",
			m.ModelName, modelName)
	}
	if dimensions != 0 && m.Dimensions != dimensions {
		return fmt.Errorf("index dimension %d does not match model dimension %d: rebuild required (patrag index --force)",
			m.Dimensions, dimensions)
	}
	return nil
}
