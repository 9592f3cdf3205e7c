package search

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patrag/patrag/internal/embed"
)

func TestRuleBasedGeneratorClaimDefiniteness(t *testing.T) {
	ctx := context.Background()
	g := NewRuleBasedGenerator()

	passages, err := g.Generate(ctx, "What are the claim definiteness requirements?", 3)
	require.NoError(t, err)
	require.NotEmpty(t, passages)
	assert.Contains(t, passages[0], "112(b)")
}

func TestRuleBasedGeneratorAbstract(t *testing.T) {
	ctx := context.Background()
	g := NewRuleBasedGenerator()

	passages, err := g.Generate(ctx, "patent abstract requirements", 1)
	require.NoError(t, err)
	require.Len(t, passages, 1)
	assert.Contains(t, passages[0], "150 words")
}

func TestRuleBasedGeneratorStatuteCitation(t *testing.T) {
	ctx := context.Background()
	g := NewRuleBasedGenerator()

	passages, err := g.Generate(ctx, "35 U.S.C. 103 obviousness", 2)
	require.NoError(t, err)
	require.NotEmpty(t, passages)
	assert.Contains(t, passages[0], "35 USC 103")
}

func TestRuleBasedGeneratorFallbackTemplate(t *testing.T) {
	ctx := context.Background()
	g := NewRuleBasedGenerator()

	passages, err := g.Generate(ctx, "restriction requirement between inventions", 2)
	require.NoError(t, err)
	require.Len(t, passages, 1)
	assert.True(t, strings.Contains(passages[0], "restriction requirement between inventions"))
}

func TestRuleBasedGeneratorHonorsN(t *testing.T) {
	ctx := context.Background()
	g := NewRuleBasedGenerator()

	// Query matching several claim templates still yields at most n.
	passages, err := g.Generate(ctx, "dependent claim format and antecedent basis definiteness", 2)
	require.NoError(t, err)
	assert.Len(t, passages, 2)

	none, err := g.Generate(ctx, "anything", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

// errorGenerator always fails.
type errorGenerator struct{}

func (errorGenerator) Generate(ctx context.Context, query string, n int) ([]string, error) {
	return nil, errors.New("generation service down")
}

func TestExpanderModeNone(t *testing.T) {
	ctx := context.Background()
	embedder := embed.NewStaticEmbedder(0)
	e := NewExpander(embedder, NewRuleBasedGenerator(), slog.Default())

	raw, err := embedder.Embed(ctx, "claim scope")
	require.NoError(t, err)

	v, err := e.QueryVector(ctx, "claim scope", ExpansionNone)
	require.NoError(t, err)
	assert.Equal(t, raw, v)
}

func TestExpanderNilGeneratorBehavesLikeNone(t *testing.T) {
	ctx := context.Background()
	embedder := embed.NewStaticEmbedder(0)
	e := NewExpander(embedder, nil, slog.Default())

	none, err := e.QueryVector(ctx, "claim scope", ExpansionNone)
	require.NoError(t, err)
	single, err := e.QueryVector(ctx, "claim scope", ExpansionSingle)
	require.NoError(t, err)

	assert.Equal(t, none, single)
}

func TestExpanderSingleBlendsPassage(t *testing.T) {
	ctx := context.Background()
	embedder := embed.NewStaticEmbedder(0)
	e := NewExpander(embedder, NewRuleBasedGenerator(), slog.Default())

	raw, err := e.QueryVector(ctx, "patent abstract requirements", ExpansionNone)
	require.NoError(t, err)
	expanded, err := e.QueryVector(ctx, "patent abstract requirements", ExpansionSingle)
	require.NoError(t, err)

	assert.NotEqual(t, raw, expanded)
	assert.Len(t, expanded, embedder.Dimensions())
}

func TestExpanderGeneratorFailureDegradesToRaw(t *testing.T) {
	ctx := context.Background()
	embedder := embed.NewStaticEmbedder(0)
	e := NewExpander(embedder, errorGenerator{}, slog.Default())

	raw, err := e.QueryVector(ctx, "claim scope", ExpansionNone)
	require.NoError(t, err)
	degraded, err := e.QueryVector(ctx, "claim scope", ExpansionMultiple)
	require.NoError(t, err)

	assert.Equal(t, raw, degraded)
}

func TestParseExpansionMode(t *testing.T) {
	mode, err := ParseExpansionMode("multiple")
	require.NoError(t, err)
	assert.Equal(t, ExpansionMultiple, mode)

	mode, err = ParseExpansionMode("")
	require.NoError(t, err)
	assert.Equal(t, ExpansionNone, mode)

	_, err = ParseExpansionMode("bogus")
	assert.Error(t, err)
}
