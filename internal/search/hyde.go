package search

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/patrag/patrag/internal/embed"
)

// Generator produces hypothetical passages for a query (HyDE). Implementations
// may call external models; the expander treats any failure as "no expansion".
type Generator interface {
	// Generate returns up to n hypothetical passages answering the query in
	// the register of the target corpus.
	Generate(ctx context.Context, query string, n int) ([]string, error)
}

// Expander turns a query into a single dense query vector, optionally
// blending in hypothetical-passage embeddings. Generator failure degrades to
// the raw-query embedding; a search never fails because expansion did.
type Expander struct {
	embedder  embed.Embedder
	generator Generator
	logger    *slog.Logger
}

// NewExpander wires an expander. A nil generator disables expansion: every
// mode behaves like ExpansionNone.
func NewExpander(embedder embed.Embedder, generator Generator, logger *slog.Logger) *Expander {
	if logger == nil {
		logger = slog.Default()
	}
	return &Expander{
		embedder:  embedder,
		generator: generator,
		logger:    logger,
	}
}

// QueryVector embeds the query according to mode. For single and multiple
// modes the raw query vector is always part of the average, so the result
// never drifts entirely away from the user's words.
func (e *Expander) QueryVector(ctx context.Context, query string, mode ExpansionMode) ([]float32, error) {
	raw, err := e.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if mode == ExpansionNone || mode == "" || e.generator == nil {
		return raw, nil
	}

	n := 1
	if mode == ExpansionMultiple {
		n = 3
	}

	passages, err := e.generator.Generate(ctx, query, n)
	if err != nil || len(passages) == 0 {
		e.logger.Warn("query expansion failed, using raw query embedding",
			"mode", string(mode),
			"error", err)
		return raw, nil
	}

	vectors := [][]float32{raw}
	for _, p := range passages {
		v, embErr := e.embedder.Embed(ctx, p)
		if embErr != nil {
			e.logger.Warn("expansion passage embedding failed, skipping passage",
				"error", embErr)
			continue
		}
		vectors = append(vectors, v)
	}

	return embed.MeanVector(vectors), nil
}

// usc citation pattern like "35 USC 112" or "35 u.s.c. § 103".
var uscPattern = regexp.MustCompile(`35\s*u\.?s\.?c\.?\s*§?\s*\d+`)

// RuleBasedGenerator expands queries using patent-law domain templates.
// Fully offline; the passages read like the examination manual so their
// embeddings land near the relevant corpus sections.
type RuleBasedGenerator struct{}

var _ Generator = (*RuleBasedGenerator)(nil)

// NewRuleBasedGenerator creates the offline template generator.
func NewRuleBasedGenerator() *RuleBasedGenerator {
	return &RuleBasedGenerator{}
}

// Generate matches query patterns against the template table and returns up
// to n passages. Unmatched queries get one generic patent-law framing.
func (g *RuleBasedGenerator) Generate(ctx context.Context, query string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}

	q := strings.ToLower(query)
	var passages []string

	if strings.Contains(q, "claim") {
		if strings.Contains(q, "definite") {
			passages = append(passages,
				"Under 35 USC 112(b), patent claims must be definite and particularly point out "+
					"and distinctly claim the subject matter of the invention. The claim language must "+
					"be sufficiently clear and precise to inform those skilled in the art of the scope "+
					"of the claimed invention with reasonable certainty.")
		}
		if strings.Contains(q, "format") || strings.Contains(q, "structure") {
			passages = append(passages,
				"Patent claims must be in the form of a single sentence beginning with a capital "+
					"letter and ending with a period. Each claim should include a preamble stating the "+
					"general nature of the invention, a transitional phrase, and a body that describes "+
					"the specific elements and limitations of the claimed invention.")
		}
		if strings.Contains(q, "antecedent") || strings.Contains(q, "basis") {
			passages = append(passages,
				"Proper antecedent basis requires that each element referred to using 'the' or 'said' "+
					"must have been previously introduced in the claim using 'a' or 'an'. This ensures "+
					"clarity and definiteness in claim language and prevents ambiguity about which "+
					"elements are being referenced.")
		}
		if strings.Contains(q, "dependent") {
			passages = append(passages,
				"A dependent claim refers back to and further limits a previous claim. Dependent "+
					"claims incorporate all limitations of the claim to which they refer and must be "+
					"construed to include all those limitations. The doctrine of claim differentiation "+
					"presumes different scope between independent and dependent claims.")
		}
	}

	if strings.Contains(q, "specification") || strings.Contains(q, "description") {
		if strings.Contains(q, "written description") || strings.Contains(q, "112(a)") {
			passages = append(passages,
				"The written description requirement under 35 USC 112(a) mandates that the "+
					"specification must describe the invention in sufficient detail to show that the "+
					"inventor possessed the claimed invention at the time of filing.")
		}
		if strings.Contains(q, "enable") {
			passages = append(passages,
				"Under 35 USC 112(a), the specification must enable a person skilled in the art to "+
					"make and use the full scope of the claimed invention without undue experimentation.")
		}
		if strings.Contains(q, "best mode") {
			passages = append(passages,
				"The best mode requirement under 35 USC 112(a) required disclosure of the best way "+
					"the inventor knew to practice the invention at the time of filing. Under the "+
					"America Invents Act, failure to disclose best mode is no longer a basis for "+
					"invalidity, though the requirement to disclose still exists.")
		}
	}

	if strings.Contains(q, "abstract") {
		passages = append(passages,
			"The abstract must be a brief summary of the technical disclosure, preferably 150 "+
				"words or less. It should enable the patent office and the public to quickly "+
				"determine the nature and gist of the technical disclosure. The abstract is not "+
				"used for interpreting the scope of claim protection.")
	}
	if strings.Contains(q, "drawing") {
		passages = append(passages,
			"Patent drawings must show every feature of the invention specified in the claims. "+
				"Drawings must follow specific rules regarding margins, views, symbols, legends, "+
				"and arrangement.")
	}

	if uscPattern.MatchString(q) || strings.Contains(q, "statute") {
		if strings.Contains(q, "101") || strings.Contains(q, "eligib") {
			passages = append(passages,
				"35 USC 101 defines patent-eligible subject matter: processes, machines, "+
					"manufactures, and compositions of matter. Abstract ideas, laws of nature, and "+
					"natural phenomena are not patentable. The Alice/Mayo framework evaluates whether "+
					"claims are directed to patent-eligible subject matter.")
		}
		if strings.Contains(q, "102") || strings.Contains(q, "novelty") {
			passages = append(passages,
				"35 USC 102 defines conditions for patentability relating to novelty. A patent may "+
					"not be obtained if the invention was known, used, patented, described in a printed "+
					"publication, or otherwise available to the public before the effective filing date.")
		}
		if strings.Contains(q, "103") || strings.Contains(q, "obvious") {
			passages = append(passages,
				"35 USC 103 prohibits patents on inventions that would have been obvious to a person "+
					"having ordinary skill in the art. The Graham factors consider the scope and content "+
					"of prior art, differences between prior art and claims, level of ordinary skill, "+
					"and secondary considerations like commercial success.")
		}
	}

	if len(passages) == 0 {
		passages = append(passages,
			"In patent law and the examination manual, regarding "+query+", the relevant "+
				"statutory and regulatory provisions establish specific requirements and procedures "+
				"that must be followed for patent prosecution and examination.")
	}

	if len(passages) > n {
		passages = passages[:n]
	}
	return passages, nil
}

// Chat generation defaults.
const (
	DefaultGeneratorModel     = "gpt-4o-mini"
	generatorMaxTokens        = 200
	hypotheticalPromptPattern = "You are a patent law expert. Given the query below, write a concise " +
		"hypothetical answer as it would appear in a patent examination manual.\n\n" +
		"Query: %s\n\n" +
		"Write a clear, technical answer (2-3 sentences) that would help find relevant manual sections:"
)

// OpenAIGenerator produces hypothetical passages with a chat model.
type OpenAIGenerator struct {
	client *openai.Client
	model  string
}

var _ Generator = (*OpenAIGenerator)(nil)

// NewOpenAIGenerator creates a chat-backed generator. Empty model selects
// the default.
func NewOpenAIGenerator(apiKey, baseURL, model string) (*OpenAIGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai generator: API key is required")
	}
	if model == "" {
		model = DefaultGeneratorModel
	}

	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	return &OpenAIGenerator{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
	}, nil
}

// Generate requests n hypothetical passages in one chat call each.
func (g *OpenAIGenerator) Generate(ctx context.Context, query string, n int) ([]string, error) {
	if n <= 0 {
		return nil, nil
	}

	passages := make([]string, 0, n)
	for i := 0; i < n; i++ {
		resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
			Model:     g.model,
			MaxTokens: generatorMaxTokens,
			// Nonzero temperature so multiple passages differ.
			Temperature: 0.7,
			Messages: []openai.ChatCompletionMessage{
				{
					Role:    openai.ChatMessageRoleUser,
					Content: fmt.Sprintf(hypotheticalPromptPattern, query),
				},
			},
		})
		if err != nil {
			if len(passages) > 0 {
				return passages, nil
			}
			return nil, fmt.Errorf("generate hypothetical passage: %w", err)
		}
		if len(resp.Choices) == 0 {
			continue
		}
		text := strings.TrimSpace(resp.Choices[0].Message.Content)
		if text != "" {
			passages = append(passages, text)
		}
	}

	return passages, nil
}
