// Package llm wraps Genkit generation and embedding behind a small client
// so the rest of docket never touches provider plugins directly.
package llm

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
	"github.com/pgvector/pgvector-go"
)

// Bounds on upstream provider calls. Expiry surfaces as an ordinary
// error, so each caller's fallback applies.
const (
	generateTimeout = 60 * time.Second
	embedTimeout    = 10 * time.Second
)

// Client executes model calls against whichever provider was registered
// during setup. The zero value is not usable; construct with New.
type Client struct {
	g         *genkit.Genkit
	modelName string // provider-qualified, e.g. "openai/gpt-4o-mini"
	embedder  ai.Embedder
	embedOpts any // provider-specific embed options (nil for providers without them)
	logger    *slog.Logger
}

// New creates a Client.
// embedOpts is passed through as ai.EmbedRequest.Options; the Gemini plugin
// needs an OutputDimensionality override there, OpenAI and Ollama take nil.
func New(g *genkit.Genkit, modelName string, embedder ai.Embedder, embedOpts any, logger *slog.Logger) (*Client, error) {
	if g == nil {
		return nil, fmt.Errorf("genkit instance is required")
	}
	if modelName == "" {
		return nil, fmt.Errorf("model name is required")
	}
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{g: g, modelName: modelName, embedder: embedder, embedOpts: embedOpts, logger: logger}, nil
}

// ModelName returns the provider-qualified model name the client calls.
func (c *Client) ModelName() string {
	return c.modelName
}

// Generate runs a plain text completion.
// A temperature of 0 leaves sampling at the provider default; genkit's
// portable config cannot express an explicit zero.
func (c *Client) Generate(ctx context.Context, prompt string, temperature float64) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()

	resp, err := genkit.Generate(ctx, c.g,
		ai.WithModelName(c.modelName),
		ai.WithPrompt(prompt),
		ai.WithConfig(&ai.GenerationCommonConfig{Temperature: temperature}),
	)
	if err != nil {
		return "", fmt.Errorf("generating completion: %w", err)
	}
	return strings.TrimSpace(resp.Text()), nil
}

// GenerateData runs a completion constrained to the JSON shape of T and
// parses the result. Callers still validate field values; the schema only
// constrains structure.
func GenerateData[T any](ctx context.Context, c *Client, prompt string, temperature float64) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, generateTimeout)
	defer cancel()

	var out T
	resp, err := genkit.Generate(ctx, c.g,
		ai.WithModelName(c.modelName),
		ai.WithPrompt(prompt),
		ai.WithConfig(&ai.GenerationCommonConfig{Temperature: temperature}),
		ai.WithOutputType(out),
	)
	if err != nil {
		return out, fmt.Errorf("generating structured output: %w", err)
	}
	if err := resp.Output(&out); err != nil {
		return out, fmt.Errorf("parsing structured output: %w", err)
	}
	return out, nil
}

// Embed generates a vector embedding for the given text.
func (c *Client) Embed(ctx context.Context, text string) (pgvector.Vector, error) {
	ctx, cancel := context.WithTimeout(ctx, embedTimeout)
	defer cancel()

	resp, err := c.embedder.Embed(ctx, &ai.EmbedRequest{
		Input:   []*ai.Document{ai.DocumentFromText(text, nil)},
		Options: c.embedOpts,
	})
	if err != nil {
		return pgvector.Vector{}, fmt.Errorf("embedding text: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Embedding) == 0 {
		return pgvector.Vector{}, fmt.Errorf("empty embedding response")
	}
	return pgvector.NewVector(resp.Embeddings[0].Embedding), nil
}
