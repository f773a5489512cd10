package vertex

import (
	"context"
	"fmt"
	"time"

	aiplatform "cloud.google.com/go/aiplatform/apiv1"
	aiplatformpb "cloud.google.com/go/aiplatform/apiv1/aiplatformpb"
	gax "github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"

	"github.com/poem-search-api/internal/metrics"
	"github.com/poem-search-api/internal/models"
	"github.com/poem-search-api/internal/repository"
)

// Ensure PoemRepository implements repository.PoemStore
var _ repository.PoemStore = (*PoemRepository)(nil)

const backendName = "vertex"

// Config holds Vertex AI Vector Search configuration
type Config struct {
	ProjectID            string // GCP project ID
	Location             string // e.g., "us-central1"
	IndexEndpointID      string // Deployed index endpoint ID
	DeployedIndexID      string // The deployed index ID within the endpoint
	PublicEndpointDomain string // Public endpoint domain for queries (e.g., "123.us-central1-456.vdb.vertexai.goog")
}

// neighborFinder is the slice of aiplatform.MatchClient used here
type neighborFinder interface {
	FindNeighbors(ctx context.Context, req *aiplatformpb.FindNeighborsRequest, opts ...gax.CallOption) (*aiplatformpb.FindNeighborsResponse, error)
}

// poemLookup resolves datapoint ids to poem metadata
type poemLookup interface {
	GetPoems(ctx context.Context, ids []string) (map[string]models.Poem, error)
	Ping(ctx context.Context) error
}

// PoemRepository implements repository.PoemStore using Vertex AI Vector Search.
// The index holds only vectors keyed by poem id; metadata comes from Postgres.
type PoemRepository struct {
	config Config
	finder neighborFinder
	closer func() error
	poems  poemLookup
}

// NewPoemRepository creates a new Vertex AI poem repository
func NewPoemRepository(ctx context.Context, config Config, poems poemLookup) (*PoemRepository, error) {
	// For public endpoints, use the public domain; otherwise use regional endpoint
	var endpoint string
	if config.PublicEndpointDomain != "" {
		endpoint = fmt.Sprintf("%s:443", config.PublicEndpointDomain)
	} else {
		endpoint = fmt.Sprintf("%s-aiplatform.googleapis.com:443", config.Location)
	}

	matchClient, err := aiplatform.NewMatchClient(ctx, option.WithEndpoint(endpoint))
	if err != nil {
		return nil, fmt.Errorf("create match client: %w", err)
	}

	return &PoemRepository{
		config: config,
		finder: matchClient,
		closer: matchClient.Close,
		poems:  poems,
	}, nil
}

// Close closes the Vertex AI client
func (r *PoemRepository) Close() error {
	if r.closer != nil {
		return r.closer()
	}
	return nil
}

func (r *PoemRepository) indexEndpoint() string {
	return fmt.Sprintf(
		"projects/%s/locations/%s/indexEndpoints/%s",
		r.config.ProjectID,
		r.config.Location,
		r.config.IndexEndpointID,
	)
}

// SearchPoems performs vector similarity search using Vertex AI Vector Search
func (r *PoemRepository) SearchPoems(ctx context.Context, embedding []float64, opts models.SearchOptions) (results []models.SearchResult, err error) {
	start := time.Now()
	defer func() { metrics.ObserveSearch(backendName, start, err) }()

	featureVector := make([]float32, len(embedding))
	for i, v := range embedding {
		featureVector[i] = float32(v)
	}

	resp, err := r.finder.FindNeighbors(ctx, &aiplatformpb.FindNeighborsRequest{
		IndexEndpoint:   r.indexEndpoint(),
		DeployedIndexId: r.config.DeployedIndexID,
		Queries: []*aiplatformpb.FindNeighborsRequest_Query{
			{
				Datapoint: &aiplatformpb.IndexDatapoint{
					FeatureVector: featureVector,
				},
				NeighborCount: int32(opts.Limit),
			},
		},
	})
	if err != nil {
		return nil, &repository.UpstreamSearchError{Backend: backendName, Message: err.Error()}
	}

	if len(resp.GetNearestNeighbors()) == 0 {
		return []models.SearchResult{}, nil
	}

	// Vertex AI returns cosine distance; similarity = 1 - distance.
	// The index has no score threshold, so the floor is applied here.
	var ids []string
	scores := make(map[string]float64)
	for _, neighbor := range resp.GetNearestNeighbors()[0].GetNeighbors() {
		score := 1 - float64(neighbor.GetDistance())
		if score < opts.MinScore {
			continue
		}
		id := neighbor.GetDatapoint().GetDatapointId()
		ids = append(ids, id)
		scores[id] = score
	}

	poems, err := r.poems.GetPoems(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("lookup poems: %w", err)
	}

	// Preserve the order from Vertex AI (sorted by relevance)
	results = make([]models.SearchResult, 0, len(ids))
	for _, id := range ids {
		if p, ok := poems[id]; ok {
			results = append(results, models.SearchResult{Poem: p, Score: scores[id]})
		}
	}
	return results, nil
}

// Ping checks the metadata database
func (r *PoemRepository) Ping(ctx context.Context) error {
	return r.poems.Ping(ctx)
}

// EnsureCollection is unsupported; indexes are provisioned out of band
func (r *PoemRepository) EnsureCollection(context.Context, int) error {
	return repository.ErrReadOnlyStore
}

// UpsertPoems is unsupported on Vertex AI
func (r *PoemRepository) UpsertPoems(context.Context, []models.Poem, [][]float64) error {
	return repository.ErrReadOnlyStore
}

// PoemExists is unsupported on Vertex AI
func (r *PoemRepository) PoemExists(context.Context, string) (bool, error) {
	return false, repository.ErrReadOnlyStore
}

// DeletePoem is unsupported on Vertex AI
func (r *PoemRepository) DeletePoem(context.Context, string) error {
	return repository.ErrReadOnlyStore
}
