package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"
)

const (
	defaultOllamaTimeout   = 120 * time.Second
	defaultOllamaMaxTokens = 2048
)

// OllamaConfig holds the configuration for the Ollama client.
type OllamaConfig struct {
	Logger  *slog.Logger
	BaseURL string
	Model   string
	Timeout time.Duration
}

// OllamaClient implements Client against an Ollama HTTP server.
type OllamaClient struct {
	log     *slog.Logger
	baseURL string
	model   string
	http    *http.Client
}

// NewOllamaClient creates a new Ollama-backed LLM client.
func NewOllamaClient(cfg OllamaConfig) (*OllamaClient, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = defaultOllamaTimeout
	}
	return &OllamaClient{
		log:     cfg.Logger,
		baseURL: strings.TrimSuffix(cfg.BaseURL, "/"),
		model:   cfg.Model,
		http:    &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type ollamaGenerateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	System  string         `json:"system,omitempty"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type ollamaGenerateResponse struct {
	Response string `json:"response"`
}

// Generate sends a prompt and returns the raw response text.
func (c *OllamaClient) Generate(ctx context.Context, prompt, system string, temperature float64, maxTokens int) (string, error) {
	if maxTokens == 0 {
		maxTokens = defaultOllamaMaxTokens
	}

	payload := ollamaGenerateRequest{
		Model:  c.model,
		Prompt: prompt,
		System: system,
		Stream: false,
		Options: map[string]any{
			"temperature": temperature,
			"num_predict": maxTokens,
		},
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return "", c.transportError(err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("%w: failed to read response: %v", ErrServiceUnavailable, err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: status %d", ErrService, resp.StatusCode)
	}

	var parsed ollamaGenerateResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("%w: invalid response envelope: %v", ErrService, err)
	}

	if c.log != nil {
		c.log.Debug("ollama: completion finished",
			"model", c.model,
			"duration", time.Since(start),
			"promptLen", len(prompt),
			"responseLen", len(parsed.Response))
	}

	return parsed.Response, nil
}

// GenerateJSON sends a prompt requesting JSON-only output and parses the result.
func (c *OllamaClient) GenerateJSON(ctx context.Context, prompt, system string, temperature float64) (map[string]any, error) {
	enhanced := prompt + "\n\nIMPORTANT: Respond with ONLY valid JSON, nothing else."
	response, err := c.Generate(ctx, enhanced, system+jsonInstruction, temperature, defaultOllamaMaxTokens)
	if err != nil {
		return nil, err
	}

	obj, err := ExtractObject(response)
	if err != nil {
		if c.log != nil {
			c.log.Warn("ollama: could not recover JSON from response", "error", err)
		}
		return nil, err
	}
	return obj, nil
}

type ollamaEmbeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Embed returns the embedding vector for a text.
func (c *OllamaClient) Embed(ctx context.Context, text string) ([]float64, error) {
	body, err := json.Marshal(ollamaEmbeddingRequest{Model: c.model, Prompt: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, c.transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrService, resp.StatusCode)
	}

	var parsed ollamaEmbeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: invalid embedding response: %v", ErrService, err)
	}
	if len(parsed.Embedding) == 0 {
		return nil, fmt.Errorf("%w: empty embedding vector", ErrMalformedResponse)
	}
	return parsed.Embedding, nil
}

// HealthCheck reports whether the server is reachable and the model is loaded.
func (c *OllamaClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return c.transportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrService, resp.StatusCode)
	}

	var tags struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tags); err != nil {
		return fmt.Errorf("%w: invalid tags response: %v", ErrService, err)
	}

	base, _, _ := strings.Cut(c.model, ":")
	for _, m := range tags.Models {
		if strings.Contains(m.Name, base) {
			return nil
		}
	}
	if c.log != nil {
		c.log.Warn("ollama: configured model not found on server", "model", c.model)
	}
	return nil
}

// transportError maps network failures onto the service error taxonomy. The
// distinction matters upstream: transport failures are surfaced immediately
// instead of being fed into the SQL retry loop.
func (c *OllamaClient) transportError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: request timed out: %v", ErrServiceUnavailable, err)
	}
	return fmt.Errorf("%w: cannot connect to LLM server at %s (check that the server and tunnel are up): %v",
		ErrServiceUnavailable, c.baseURL, err)
}
