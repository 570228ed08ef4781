package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"

	"codescout/internal/config"
)

const openaiEmbedURL = "https://api.openai.com/v1/embeddings"

// OpenAI calls the OpenAI embeddings API.
type OpenAI struct {
	apiKey    string
	model     string
	dimension int
	batchSize int
	client    *http.Client
}

// NewOpenAI creates an OpenAI embedder. The API key comes from config or
// the OPENAI_API_KEY environment variable.
func NewOpenAI(cfg config.EmbeddingConfig) (*OpenAI, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("openai api key not set (embedding.api_key or OPENAI_API_KEY)")
	}
	return &OpenAI{
		apiKey:    apiKey,
		model:     cfg.Model,
		dimension: cfg.Dimension,
		batchSize: cfg.BatchSize,
		client:    &http.Client{Timeout: cfg.Timeout},
	}, nil
}

func (e *OpenAI) Model() string     { return e.model }
func (e *OpenAI) Dimension() int    { return e.dimension }
func (e *OpenAI) MaxBatchSize() int { return e.batchSize }

type openaiEmbedRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type openaiEmbedResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Embed sends a batch of texts to OpenAI and returns their embeddings in
// input order.
func (e *OpenAI) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	body, err := json.Marshal(openaiEmbedRequest{
		Model: e.model,
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	return retryWithBackoff(ctx, func() ([][]float32, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost,
			openaiEmbedURL, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("build embed request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+e.apiKey)

		resp, err := e.client.Do(req)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			respBody, _ := io.ReadAll(resp.Body)
			if retryableStatus(resp.StatusCode) {
				return nil, fmt.Errorf("%w: openai returned %d: %s", ErrUnavailable, resp.StatusCode, string(respBody))
			}
			return nil, fmt.Errorf("openai returned %d: %s", resp.StatusCode, string(respBody))
		}

		var result openaiEmbedResponse
		if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
			return nil, fmt.Errorf("decode embed response: %w", err)
		}
		if len(result.Data) != len(texts) {
			return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(result.Data))
		}

		// The API may return items out of order; index is authoritative.
		embeddings := make([][]float32, len(texts))
		for _, item := range result.Data {
			if item.Index < 0 || item.Index >= len(embeddings) {
				return nil, fmt.Errorf("embedding index %d out of range", item.Index)
			}
			embeddings[item.Index] = item.Embedding
		}
		return embeddings, nil
	})
}

// EmbedQuery embeds a single text.
func (e *OpenAI) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	results, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return results[0], nil
}
