package lookup

import (
	"context"
	"errors"
	"os"
	"strings"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const (
	DefaultAnthropicModel = "claude-sonnet-4-5"

	anthropicSystemPrompt = "You are a local business research assistant. You list real businesses only and do not invent contact details. Follow the requested output format exactly."
)

type AnthropicMessager interface {
	New(ctx context.Context, params anthropic.MessageNewParams, opts ...option.RequestOption) (*anthropic.Message, error)
}

// AnthropicGenerator has no maps tool, so it never returns citations and
// every record falls back to a search link.
type AnthropicGenerator struct {
	messages AnthropicMessager
	model    string
}

type AnthropicClientCreator func(apiKey string) AnthropicMessager

func defaultAnthropicCreator(apiKey string) AnthropicMessager {
	c := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &c.Messages
}

var newAnthropicClient AnthropicClientCreator = defaultAnthropicCreator

func NewAnthropicGeneratorFromEnv() (*AnthropicGenerator, error) {
	apiKey := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY"))
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY not configured")
	}
	model := strings.TrimSpace(os.Getenv("BIZFINDER_MODEL"))
	if model == "" {
		model = DefaultAnthropicModel
	}
	return &AnthropicGenerator{messages: newAnthropicClient(apiKey), model: model}, nil
}

func (a *AnthropicGenerator) ModelName() string { return a.model }

func (a *AnthropicGenerator) Generate(ctx context.Context, prompt string, _ GenerateOptions) (Generation, error) {
	resp, err := a.messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(a.model),
		MaxTokens: 8192,
		System:    []anthropic.TextBlockParam{{Text: anthropicSystemPrompt}},
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
	})
	if err != nil {
		return Generation{}, err
	}
	var sb strings.Builder
	for _, b := range resp.Content {
		if b.Type == "text" {
			sb.WriteString(b.Text)
		}
	}
	return Generation{Text: sb.String()}, nil
}
