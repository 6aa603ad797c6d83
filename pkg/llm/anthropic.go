package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
)

// AnthropicClient implements Client using the Anthropic API. It is the
// hosted-model alternative to the self-hosted Ollama client; both satisfy
// the same interface so the pipeline does not care which is wired in.
type AnthropicClient struct {
	log    *slog.Logger
	client anthropic.Client
	model  anthropic.Model
}

// NewAnthropicClient creates a new Anthropic-based LLM client. The API key is
// read from the environment by the SDK.
func NewAnthropicClient(log *slog.Logger, model anthropic.Model) *AnthropicClient {
	return &AnthropicClient{
		log:    log,
		client: anthropic.NewClient(),
		model:  model,
	}
}

// Generate sends a prompt and returns the response text.
func (c *AnthropicClient) Generate(ctx context.Context, prompt, system string, temperature float64, maxTokens int) (string, error) {
	if maxTokens == 0 {
		maxTokens = defaultOllamaMaxTokens
	}

	start := time.Now()
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       c.model,
		MaxTokens:   int64(maxTokens),
		Temperature: anthropic.Float(temperature),
		System: []anthropic.TextBlockParam{
			{Type: "text", Text: system},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		if c.log != nil {
			c.log.Error("anthropic: API call failed", "duration", time.Since(start), "error", err)
		}
		return "", fmt.Errorf("%w: %v", ErrService, err)
	}

	for _, block := range msg.Content {
		if block.Type == "text" {
			return block.Text, nil
		}
	}
	return "", fmt.Errorf("%w: no text content in response", ErrService)
}

// GenerateJSON sends a prompt requesting JSON-only output and parses the result.
func (c *AnthropicClient) GenerateJSON(ctx context.Context, prompt, system string, temperature float64) (map[string]any, error) {
	response, err := c.Generate(ctx, prompt, system+jsonInstruction, temperature, defaultOllamaMaxTokens)
	if err != nil {
		return nil, err
	}
	return ExtractObject(response)
}
