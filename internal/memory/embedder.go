package memory

import (
	"context"
	"fmt"

	"continuum/internal/llm"
)

// HTTPEmbedder adapts the OpenAI-compatible /embeddings endpoint to the
// Embedder interface Archival Storage depends on.
type HTTPEmbedder struct {
	Host   string
	APIKey string
	Model  string
}

// NewHTTPEmbedder constructs an Embedder over an OpenAI-compatible
// embeddings host.
func NewHTTPEmbedder(host, apiKey, model string) *HTTPEmbedder {
	return &HTTPEmbedder{Host: host, APIKey: apiKey, Model: model}
}

// Embed turns a single text into a vector. The embeddings endpoint doesn't
// take a context, so cancellation can't interrupt an in-flight call; callers
// still pass ctx for future-proofing and to match the Embedder interface.
func (e *HTTPEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	req := llm.EmbeddingRequest{
		Input:          []string{text},
		Model:          e.Model,
		EncodingFormat: "float",
	}
	vectors, err := llm.FetchEmbeddings(e.Host, req, e.APIKey)
	if err != nil {
		return nil, fmt.Errorf("fetch embedding: %w", err)
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("embeddings host returned no vectors")
	}
	return vectors[0], nil
}
