package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/poem-search-api/internal/models"
)

var (
	// ErrPoemNotFound is returned when a poem id is not stored.
	ErrPoemNotFound = errors.New("poem not found")
	// ErrReadOnlyStore is returned by backends that cannot accept writes.
	ErrReadOnlyStore = errors.New("vector store is read-only")
)

// UpstreamSearchError reports a failed call to the vector index.
type UpstreamSearchError struct {
	Backend    string
	StatusCode int // 0 when not an HTTP failure
	Message    string
}

func (e *UpstreamSearchError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s search error: %s", e.Backend, e.Message)
	}
	return fmt.Sprintf("%s search error (status %d): %s", e.Backend, e.StatusCode, e.Message)
}

// VectorSearchRepository defines operations for vector similarity search
type VectorSearchRepository interface {
	// SearchPoems returns poems nearest to embedding, ordered by descending score
	SearchPoems(ctx context.Context, embedding []float64, opts models.SearchOptions) ([]models.SearchResult, error)

	// Ping checks that the index is reachable
	Ping(ctx context.Context) error
}

// PoemWriter defines write operations on the poem index
type PoemWriter interface {
	// EnsureCollection creates the index for vectors of the given dimension if missing
	EnsureCollection(ctx context.Context, dimension int) error

	// UpsertPoems stores poems with their embeddings; ids are idempotent keys
	UpsertPoems(ctx context.Context, poems []models.Poem, embeddings [][]float64) error

	// PoemExists reports whether a poem id is stored
	PoemExists(ctx context.Context, id string) (bool, error)

	// DeletePoem removes a poem; deleting a missing id is not an error
	DeletePoem(ctx context.Context, id string) error
}

// PoemStore is a vector index that supports both search and writes
type PoemStore interface {
	VectorSearchRepository
	PoemWriter
}
