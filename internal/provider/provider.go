// Package provider abstracts the LLM and embedding backends used by the
// documentation pipeline: relevance classification, doc generation, target
// resolution, and code-snippet embedding all go through these interfaces.
package provider

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors shared by all provider implementations. Callers branch on
// these with errors.Is rather than parsing provider-specific messages.
var (
	ErrRateLimit       = errors.New("rate limit exceeded")
	ErrTimeout         = errors.New("request timed out")
	ErrInvalidResponse = errors.New("invalid response from provider")
)

// Embedder turns text into a vector embedding. The indexer embeds code
// chunks with it; the retriever embeds change-summary queries.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// BatchEmbedder extends Embedder for providers with a native batch endpoint.
// Providers without one fall back to EmbedBatchSequential.
type BatchEmbedder interface {
	Embedder
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedBatchSequential embeds texts one at a time, stopping at the first
// failure or context cancellation. Indexing runs can be large, so the
// per-text cancellation check matters.
func EmbedBatchSequential(ctx context.Context, embedder Embedder, texts []string) ([][]float32, error) {
	results := make([][]float32, len(texts))
	for i, text := range texts {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		emb, err := embedder.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		results[i] = emb
	}
	return results, nil
}

// Completer produces a text completion for a prompt. Completions here are
// full documents or structured JSON verdicts, never streamed.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// EmbedderConfig selects and parameterizes an embedding backend.
type EmbedderConfig struct {
	Type   string
	Model  string
	APIKey string
	URL    string
}

// CompleterConfig selects and parameterizes an LLM backend.
type CompleterConfig struct {
	Type   string
	Model  string
	APIKey string
	URL    string
}
