package services

import (
	"context"
	"fmt"

	"github.com/poem-search-api/pkg/schema/config"
)

// EmbeddingsService handles text embedding operations using a pluggable backend
type EmbeddingsService struct {
	embedder Embedder
}

// NewEmbeddingsService wraps an embedder
func NewEmbeddingsService(embedder Embedder) *EmbeddingsService {
	return &EmbeddingsService{embedder: embedder}
}

// NewEmbedder builds the embedder selected by cfg.EmbeddingProvider
func NewEmbedder(ctx context.Context, cfg *config.Config) (Embedder, error) {
	switch cfg.EmbeddingProvider {
	case "ollama", "":
		return NewOllamaEmbedder(cfg), nil
	case "openai":
		return NewOpenAIEmbedder(cfg), nil
	case "vertex":
		embedder, err := NewVertexEmbedder(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("create Vertex AI embedder: %w", err)
		}
		return embedder, nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.EmbeddingProvider)
	}
}

// EmbedQuery embeds a search query
func (s *EmbeddingsService) EmbedQuery(ctx context.Context, query string) ([]float64, error) {
	return s.embedder.Embed(ctx, query, TaskTypeQuery)
}

// EmbedPoem embeds a poem's document text for storage
func (s *EmbeddingsService) EmbedPoem(ctx context.Context, text string) ([]float64, error) {
	return s.embedder.Embed(ctx, text, TaskTypeDocument)
}

// Close releases the underlying client when it holds one
func (s *EmbeddingsService) Close() error {
	if c, ok := s.embedder.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
