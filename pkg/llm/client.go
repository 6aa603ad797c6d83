// Package llm provides clients for text-generation services, with a
// structured-JSON mode that recovers objects from noisy model output.
package llm

import (
	"context"
	"errors"
)

// Client is the interface for interacting with an LLM.
type Client interface {
	// Generate sends a prompt and returns the free-text response.
	Generate(ctx context.Context, prompt, system string, temperature float64, maxTokens int) (string, error)

	// GenerateJSON sends a prompt requesting JSON-only output and returns
	// the parsed object. The response text is run through a layered
	// recovery before giving up with ErrMalformedResponse.
	GenerateJSON(ctx context.Context, prompt, system string, temperature float64) (map[string]any, error)
}

var (
	// ErrServiceUnavailable indicates the generation service could not be
	// reached (connection failure or timeout).
	ErrServiceUnavailable = errors.New("llm: service unavailable")

	// ErrService indicates the generation service answered with a non-2xx
	// status.
	ErrService = errors.New("llm: service error")

	// ErrMalformedResponse indicates the response text could not be coerced
	// into a JSON object after all recovery steps.
	ErrMalformedResponse = errors.New("llm: malformed response")
)

// jsonInstruction is appended to the system prompt for structured calls.
// Local models ignore softer phrasing often enough that the retry loop
// upstream depends on this being blunt.
const jsonInstruction = `
CRITICAL: You MUST respond with ONLY a valid JSON object.
- NO text before the JSON
- NO text after the JSON
- NO markdown code blocks
- NO explanations
- Start with { and end with }
- Example format: {"key": "value"}`
