// Package embedder adapts remote embedding providers behind one interface.
package embedder

import (
	"context"
	"errors"
	"fmt"

	"codescout/internal/config"
)

// ErrUnavailable indicates a transient provider failure (network error,
// server error, throttling). retryWithBackoff retries only errors wrapping
// it; anything else, such as a rejected request or bad credentials, fails
// the call immediately.
var ErrUnavailable = errors.New("embedding provider unavailable")

// Embedder converts text into fixed-dimension vectors. Query and document
// embedding go through the same model so similarity comparisons are valid.
type Embedder interface {
	// Embed returns one vector per input text, in input order.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// EmbedQuery embeds a single search query.
	EmbedQuery(ctx context.Context, text string) ([]float32, error)

	// Model identifies the embedding model. Vectors from different models
	// must never be mixed within a namespace.
	Model() string

	// Dimension is the length of returned vectors.
	Dimension() int

	// MaxBatchSize is the largest batch the provider accepts per call.
	MaxBatchSize() int
}

// New builds the embedder selected by config.
func New(cfg config.EmbeddingConfig) (Embedder, error) {
	switch cfg.Provider {
	case "ollama":
		return NewOllama(cfg), nil
	case "openai":
		return NewOpenAI(cfg)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.Provider)
	}
}
