package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/poem-search-api/internal/models"
	"github.com/poem-search-api/internal/repository"
)

// Query label prefixes; they match the labels of the embedded document text.
const (
	ThemeLabel    = "主题："
	ScenarioLabel = "场景："
)

// QueryEmbedder turns text into vectors
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, query string) ([]float64, error)
	EmbedPoem(ctx context.Context, text string) ([]float64, error)
}

// PoemSearchService sequences embedding and vector search for every surface
type PoemSearchService struct {
	embedder QueryEmbedder
	store    repository.PoemStore
	limiter  *semaphore.Weighted
	logger   *zap.Logger
}

// Option configures a PoemSearchService
type Option func(*PoemSearchService)

// WithMaxConcurrency bounds the number of pipelines talking to upstream
// services at once. n <= 0 leaves it unbounded.
func WithMaxConcurrency(n int) Option {
	return func(s *PoemSearchService) {
		if n > 0 {
			s.limiter = semaphore.NewWeighted(int64(n))
		}
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *PoemSearchService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewPoemSearchService creates a new poem search service
func NewPoemSearchService(embedder QueryEmbedder, store repository.PoemStore, opts ...Option) *PoemSearchService {
	s := &PoemSearchService{
		embedder: embedder,
		store:    store,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Search embeds the query once and runs one similarity search with it.
// Errors from either step are returned as-is.
func (s *PoemSearchService) Search(ctx context.Context, query string, opts models.SearchOptions) ([]models.SearchResult, error) {
	results, _, err := s.SearchDebug(ctx, query, opts)
	return results, err
}

// SearchDebug is Search that also returns the query vector.
func (s *PoemSearchService) SearchDebug(ctx context.Context, query string, opts models.SearchOptions) ([]models.SearchResult, []float64, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, nil, err
	}
	defer release()

	opts = opts.Normalize()

	vector, err := s.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, nil, err
	}
	s.logger.Debug("query embedded", zap.Int("dimension", len(vector)))

	results, err := s.store.SearchPoems(ctx, vector, opts)
	if err != nil {
		return nil, nil, err
	}
	s.logger.Debug("vector search complete",
		zap.Int("results", len(results)),
		zap.Int("limit", opts.Limit),
		zap.Float64("min_score", opts.MinScore),
	)
	return results, vector, nil
}

// SearchByTheme searches with the theme label prefixed to the theme
func (s *PoemSearchService) SearchByTheme(ctx context.Context, theme string, opts models.SearchOptions) ([]models.SearchResult, error) {
	return s.Search(ctx, ThemeLabel+theme, opts)
}

// SearchByScenario searches with the scenario label prefixed to the scenario
func (s *PoemSearchService) SearchByScenario(ctx context.Context, scenario string, opts models.SearchOptions) ([]models.SearchResult, error) {
	return s.Search(ctx, ScenarioLabel+scenario, opts)
}

// ErrInvalidPoem is returned when a poem is missing its id or analysis
var ErrInvalidPoem = errors.New("invalid poem")

// AddPoem embeds a poem's analysis and stores it. Adding an existing id replaces it.
func (s *PoemSearchService) AddPoem(ctx context.Context, poem models.Poem) error {
	if err := validatePoem(poem); err != nil {
		return err
	}

	release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	vector, err := s.embedder.EmbedPoem(ctx, poem.Analysis.DocumentText())
	if err != nil {
		return err
	}

	if err := s.store.EnsureCollection(ctx, len(vector)); err != nil {
		return err
	}
	return s.store.UpsertPoems(ctx, []models.Poem{poem}, [][]float64{vector})
}

// UpdatePoem replaces a stored poem. It fails with repository.ErrPoemNotFound
// when the id is not stored.
func (s *PoemSearchService) UpdatePoem(ctx context.Context, id string, poem models.Poem) error {
	poem.ID = id
	if err := validatePoem(poem); err != nil {
		return err
	}

	exists, err := s.store.PoemExists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return repository.ErrPoemNotFound
	}

	release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	vector, err := s.embedder.EmbedPoem(ctx, poem.Analysis.DocumentText())
	if err != nil {
		return err
	}
	return s.store.UpsertPoems(ctx, []models.Poem{poem}, [][]float64{vector})
}

// DeletePoem removes a poem; removing a missing id succeeds
func (s *PoemSearchService) DeletePoem(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidPoem)
	}
	return s.store.DeletePoem(ctx, id)
}

// Ping checks the vector store
func (s *PoemSearchService) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *PoemSearchService) acquire(ctx context.Context) (func(), error) {
	if s.limiter == nil {
		return func() {}, nil
	}
	if err := s.limiter.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	return func() { s.limiter.Release(1) }, nil
}

func validatePoem(p models.Poem) error {
	if strings.TrimSpace(p.ID) == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidPoem)
	}
	if !p.Analysis.Complete() {
		return fmt.Errorf("%w: analysis requires theme, core_idea, applicable_scenario and modern_significance", ErrInvalidPoem)
	}
	return nil
}
