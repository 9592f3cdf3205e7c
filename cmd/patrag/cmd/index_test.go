package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadChunkFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunks.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(
		`{"id":"c1","text":"The abstract may not exceed 150 words.","section":"MPEP 608.01(b)","page":12}
{"id":"c2","text":"Claims are given their broadest reasonable interpretation.","section":"MPEP 2111"}
`), 0o644))

	chunks, err := readChunkFile(path)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.Equal(t, "c1", chunks[0].ID)
	assert.Equal(t, 12, chunks[0].Page)
	assert.Equal(t, "MPEP 2111", chunks[1].Section)
}

func TestReadChunkFileNoTrailingNewline(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunks.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(`{"id":"c1","text":"passage"}`), 0o644))

	chunks, err := readChunkFile(path)
	require.NoError(t, err)
	assert.Len(t, chunks, 1)
}

func TestReadChunkFileMalformedLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "chunks.jsonl")
	require.NoError(t, os.WriteFile(path, []byte("{\"id\":\"c1\",\"text\":\"ok\"}\nnot json\n"), 0o644))

	_, err := readChunkFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestReadChunkFileMissing(t *testing.T) {
	_, err := readChunkFile(filepath.Join(t.TempDir(), "nope.jsonl"))
	assert.Error(t, err)
}
