package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrag/patrag/internal/config"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestInitWritesLoadableConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patrag.yaml")

	_, err := runCmd(t, "--config", path, "init")
	require.NoError(t, err)

	// The template must round-trip through the loader and keep the
	// defaults it documents.
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.Default().Search.RRFConstant, cfg.Search.RRFConstant)
	assert.Equal(t, config.Default().Embeddings.Provider, cfg.Embeddings.Provider)
}

func TestInitRefusesToOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patrag.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log_level: debug\n"), 0o644))

	_, err := runCmd(t, "--config", path, "init")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")

	_, err = runCmd(t, "--config", path, "init", "--force")
	require.NoError(t, err)
}
