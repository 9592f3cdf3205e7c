package version

import (
	"encoding/json"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionNotEmpty(t *testing.T) {
	assert.NotEmpty(t, Version)
	assert.Equal(t, Version, Short())
}

func TestStringContainsAllFields(t *testing.T) {
	s := String()
	assert.Contains(t, s, "patrag")
	assert.Contains(t, s, Version)
	assert.Contains(t, s, Commit)
	assert.Contains(t, s, GoVersion)
}

func TestInfoMarshalsToJSON(t *testing.T) {
	data, err := json.Marshal(Info())
	require.NoError(t, err)

	var decoded map[string]string
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, Version, decoded["version"])
	assert.Equal(t, runtime.GOOS, decoded["os"])
	assert.Equal(t, runtime.GOARCH, decoded["arch"])
}
