package lookup

import (
	"context"
	"errors"
	"os"
	"strings"

	"google.golang.org/genai"
)

const DefaultGeminiModel = "gemini-2.5-flash"

// GeminiModels is the subset of genai.Models used here.
type GeminiModels interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

type GeminiGenerator struct {
	models GeminiModels
	model  string
}

func NewGeminiGenerator(models GeminiModels, model string) *GeminiGenerator {
	if strings.TrimSpace(model) == "" {
		model = DefaultGeminiModel
	}
	return &GeminiGenerator{models: models, model: model}
}

// NewGeminiGeneratorFromEnv reads GEMINI_API_KEY (or GOOGLE_API_KEY) and
// BIZFINDER_MODEL.
func NewGeminiGeneratorFromEnv(ctx context.Context) (*GeminiGenerator, error) {
	apiKey := strings.TrimSpace(os.Getenv("GEMINI_API_KEY"))
	if apiKey == "" {
		apiKey = strings.TrimSpace(os.Getenv("GOOGLE_API_KEY"))
	}
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY not configured")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, err
	}
	return NewGeminiGenerator(client.Models, os.Getenv("BIZFINDER_MODEL")), nil
}

func (g *GeminiGenerator) ModelName() string { return g.model }

func (g *GeminiGenerator) Generate(ctx context.Context, prompt string, opts GenerateOptions) (Generation, error) {
	var cfg *genai.GenerateContentConfig
	if opts.MapsGrounding {
		cfg = &genai.GenerateContentConfig{
			Tools: []*genai.Tool{{GoogleMaps: &genai.GoogleMaps{}}},
		}
	}
	resp, err := g.models.GenerateContent(ctx, g.model, genai.Text(prompt), cfg)
	if err != nil {
		return Generation{}, err
	}
	if resp == nil {
		return Generation{}, nil
	}
	return Generation{Text: resp.Text(), Citations: citationsFrom(resp)}, nil
}

// citationsFrom flattens the first candidate's grounding chunks. Maps chunks
// and web chunks both carry a title and a URI.
func citationsFrom(resp *genai.GenerateContentResponse) []Citation {
	if len(resp.Candidates) == 0 || resp.Candidates[0] == nil || resp.Candidates[0].GroundingMetadata == nil {
		return nil
	}
	var out []Citation
	for _, chunk := range resp.Candidates[0].GroundingMetadata.GroundingChunks {
		if chunk == nil {
			continue
		}
		switch {
		case chunk.Maps != nil && chunk.Maps.URI != "":
			out = append(out, Citation{Title: chunk.Maps.Title, URI: chunk.Maps.URI})
		case chunk.Web != nil && chunk.Web.URI != "":
			out = append(out, Citation{Title: chunk.Web.Title, URI: chunk.Web.URI})
		}
	}
	return out
}
