package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/poem-search-api/internal/metrics"
	"github.com/poem-search-api/pkg/schema/config"
)

const ollamaProvider = "ollama"

// OllamaEmbedder implements Embedder using the Ollama embeddings endpoint
type OllamaEmbedder struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

// NewOllamaEmbedder creates a new Ollama HTTP embedder
func NewOllamaEmbedder(cfg *config.Config) *OllamaEmbedder {
	return &OllamaEmbedder{
		baseURL:    strings.TrimRight(cfg.OllamaURL, "/"),
		model:      cfg.EmbeddingModel,
		httpClient: &http.Client{Timeout: cfg.UpstreamTimeout},
	}
}

type ollamaEmbeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

type ollamaEmbeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Embed generates an embedding for a single text. Ollama has no task types,
// so query and document text are embedded the same way.
func (e *OllamaEmbedder) Embed(ctx context.Context, text string, _ TaskType) (embedding []float64, err error) {
	start := time.Now()
	defer func() { metrics.ObserveEmbedding(ollamaProvider, start, err) }()

	jsonBody, err := json.Marshal(ollamaEmbeddingRequest{
		Model:  e.model,
		Prompt: text,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/embeddings", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, &UpstreamEmbeddingError{Provider: ollamaProvider, Body: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return nil, &UpstreamEmbeddingError{
			Provider:   ollamaProvider,
			StatusCode: resp.StatusCode,
			Body:       string(body),
		}
	}

	var embResp ollamaEmbeddingResponse
	if err := json.NewDecoder(resp.Body).Decode(&embResp); err != nil {
		return nil, fmt.Errorf("decode embedding response: %w", err)
	}

	return embResp.Embedding, nil
}
