package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/poem-search-api/internal/metrics"
	"github.com/poem-search-api/pkg/schema/config"
)

const openaiProvider = "openai"

// OpenAIEmbedder implements Embedder against an OpenAI-compatible API
// (Ollama serves one under /v1).
type OpenAIEmbedder struct {
	client *openai.Client
	model  openai.EmbeddingModel
}

// NewOpenAIEmbedder creates an OpenAI-compatible embedder
func NewOpenAIEmbedder(cfg *config.Config) *OpenAIEmbedder {
	clientCfg := openai.DefaultConfig(cfg.OpenAIAPIKey)
	clientCfg.BaseURL = cfg.OpenAIBaseURL
	clientCfg.HTTPClient = &http.Client{Timeout: cfg.UpstreamTimeout}

	return &OpenAIEmbedder{
		client: openai.NewClientWithConfig(clientCfg),
		model:  openai.EmbeddingModel(cfg.EmbeddingModel),
	}
}

// Embed generates an embedding for a single text
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string, _ TaskType) (embedding []float64, err error) {
	start := time.Now()
	defer func() { metrics.ObserveEmbedding(openaiProvider, start, err) }()

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input:          []string{text},
		Model:          e.model,
		EncodingFormat: openai.EmbeddingEncodingFormatFloat,
	})
	if err != nil {
		return nil, parseAPIError(err)
	}

	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("empty embedding response")
	}

	vec := resp.Data[0].Embedding
	embedding = make([]float64, len(vec))
	for i, v := range vec {
		embedding[i] = float64(v)
	}
	return embedding, nil
}

// parseAPIError maps go-openai errors onto UpstreamEmbeddingError.
func parseAPIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &UpstreamEmbeddingError{
			Provider:   openaiProvider,
			StatusCode: apiErr.HTTPStatusCode,
			Body:       apiErr.Message,
		}
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &UpstreamEmbeddingError{
			Provider:   openaiProvider,
			StatusCode: reqErr.HTTPStatusCode,
			Body:       string(reqErr.Body),
		}
	}

	return &UpstreamEmbeddingError{Provider: openaiProvider, Body: err.Error()}
}
