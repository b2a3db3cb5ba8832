package llm

import (
	"context"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicProvider generates via the Anthropic Messages API.
type AnthropicProvider struct {
	Model  anthropic.Model
	apiKey string
	client anthropic.Client
}

// NewAnthropicProvider creates a new Anthropic provider reading its key
// from env.
func NewAnthropicProvider(model, apiKeyEnv string) *AnthropicProvider {
	key := os.Getenv(apiKeyEnv)
	return &AnthropicProvider{
		Model:  anthropic.Model(model),
		apiKey: key,
		client: anthropic.NewClient(option.WithAPIKey(key)),
	}
}

func (a *AnthropicProvider) Name() string { return "anthropic" }

// IsConfigured checks if the API key is set.
func (a *AnthropicProvider) IsConfigured() bool {
	return a.apiKey != ""
}

// Generate sends a prompt to Claude and returns the response text.
func (a *AnthropicProvider) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if a.apiKey == "" {
		return "", provErr(a.Name(), "API key not configured", nil)
	}

	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.Model,
		MaxTokens: int64(maxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", provErr(a.Name(), "request failed", err)
	}

	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", provErr(a.Name(), "no text content in response", nil)
}
