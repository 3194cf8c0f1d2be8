package lookup

import "context"

// Citation is one grounding source returned alongside generated text.
type Citation struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

type Generation struct {
	Text      string
	Citations []Citation
}

type GenerateOptions struct {
	// MapsGrounding asks the provider to ground the answer in map data.
	// Providers without such a tool ignore it.
	MapsGrounding bool
}

// Generator is the capability the lookup service needs from a language
// model provider.
type Generator interface {
	Generate(ctx context.Context, prompt string, opts GenerateOptions) (Generation, error)
	ModelName() string
}
