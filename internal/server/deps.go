package server

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/poem-search-api/internal/config"
	"github.com/poem-search-api/internal/repository"
	"github.com/poem-search-api/internal/repository/postgres"
	"github.com/poem-search-api/internal/repository/qdrant"
	"github.com/poem-search-api/internal/repository/vertex"
	"github.com/poem-search-api/internal/services"
	schemaconfig "github.com/poem-search-api/pkg/schema/config"
	"github.com/poem-search-api/pkg/schema/db"
	pkgservices "github.com/poem-search-api/pkg/schema/services"
)

// Dependencies are the upstream clients shared by the API binaries and poemctl
type Dependencies struct {
	Embeddings *pkgservices.EmbeddingsService
	Store      repository.PoemStore
	Search     *services.PoemSearchService

	closers []func() error
}

// NewDependencies builds the embedder and vector store selected by configuration
func NewDependencies(ctx context.Context, cfg *config.Config, schemaCfg *schemaconfig.Config, logger *zap.Logger) (*Dependencies, error) {
	deps := &Dependencies{}

	embedder, err := pkgservices.NewEmbedder(ctx, schemaCfg)
	if err != nil {
		return nil, err
	}
	deps.Embeddings = pkgservices.NewEmbeddingsService(embedder)
	deps.closers = append(deps.closers, deps.Embeddings.Close)

	store, err := deps.newStore(ctx, cfg, schemaCfg)
	if err != nil {
		_ = deps.Close()
		return nil, err
	}
	deps.Store = store

	logger.Info("upstream clients ready",
		zap.String("embedding_provider", schemaCfg.EmbeddingProvider),
		zap.String("embedding_model", schemaCfg.EmbeddingModel),
		zap.String("vector_backend", cfg.VectorBackend),
	)

	deps.Search = services.NewPoemSearchService(deps.Embeddings, deps.Store,
		services.WithMaxConcurrency(cfg.UpstreamMaxConcurrency),
		services.WithLogger(logger),
	)
	return deps, nil
}

func (d *Dependencies) newStore(ctx context.Context, cfg *config.Config, schemaCfg *schemaconfig.Config) (repository.PoemStore, error) {
	switch cfg.VectorBackend {
	case "qdrant", "":
		return qdrant.NewPoemRepository(qdrant.Config{
			URL:        schemaCfg.QdrantURL,
			APIKey:     schemaCfg.QdrantAPIKey,
			Collection: schemaCfg.QdrantCollection,
			Timeout:    schemaCfg.UpstreamTimeout,
		}), nil

	case "pgvector":
		pgDB, err := db.OpenPostgres(ctx, schemaCfg.PostgresURI)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, pgDB.Close)
		return postgres.NewPoemRepository(pgDB), nil

	case "vertex":
		pgDB, err := db.OpenPostgres(ctx, schemaCfg.PostgresURI)
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, pgDB.Close)

		repo, err := vertex.NewPoemRepository(ctx, vertex.Config{
			ProjectID:            cfg.VertexProjectID,
			Location:             cfg.VertexLocation,
			IndexEndpointID:      cfg.VertexIndexEndpointID,
			DeployedIndexID:      cfg.VertexDeployedIndexID,
			PublicEndpointDomain: cfg.VertexPublicEndpointDomain,
		}, postgres.NewPoemRepository(pgDB))
		if err != nil {
			return nil, fmt.Errorf("create Vertex AI vector repository: %w", err)
		}
		d.closers = append(d.closers, repo.Close)
		return repo, nil

	default:
		return nil, fmt.Errorf("unknown vector backend %q", cfg.VectorBackend)
	}
}

// Close releases clients in reverse order of creation
func (d *Dependencies) Close() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}
