package vertex

import (
	"context"
	"fmt"

	aiplatform "cloud.google.com/go/aiplatform/apiv1"
	aiplatformpb "cloud.google.com/go/aiplatform/apiv1/aiplatformpb"
	gax "github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"
)

// syncBatchSize is the number of datapoints per upsert request
const syncBatchSize = 100

type datapointUpserter interface {
	UpsertDatapoints(ctx context.Context, req *aiplatformpb.UpsertDatapointsRequest, opts ...gax.CallOption) (*aiplatformpb.UpsertDatapointsResponse, error)
}

// IndexSyncer streams embeddings into a Vector Search index with
// UpsertDatapoints. The serving repository stays read-only; this is the
// offline path that fills the index.
type IndexSyncer struct {
	client    datapointUpserter
	closer    func() error
	indexName string
	batch     []*aiplatformpb.IndexDatapoint
	total     int
}

// NewIndexSyncer creates an index client for projects/{project}/locations/{location}/indexes/{indexID}
func NewIndexSyncer(ctx context.Context, projectID, location, indexID string) (*IndexSyncer, error) {
	if projectID == "" || indexID == "" {
		return nil, fmt.Errorf("VERTEX_PROJECT_ID and VERTEX_INDEX_ID are required")
	}

	endpoint := fmt.Sprintf("%s-aiplatform.googleapis.com:443", location)
	client, err := aiplatform.NewIndexClient(ctx, option.WithEndpoint(endpoint))
	if err != nil {
		return nil, fmt.Errorf("create index client: %w", err)
	}

	return &IndexSyncer{
		client:    client,
		closer:    client.Close,
		indexName: fmt.Sprintf("projects/%s/locations/%s/indexes/%s", projectID, location, indexID),
	}, nil
}

// Add buffers one datapoint and upserts when the batch is full
func (s *IndexSyncer) Add(ctx context.Context, id, author string, embedding []float32) error {
	dp := &aiplatformpb.IndexDatapoint{
		DatapointId:   id,
		FeatureVector: embedding,
	}
	if author != "" {
		dp.Restricts = []*aiplatformpb.IndexDatapoint_Restriction{
			{Namespace: "author", AllowList: []string{author}},
		}
	}

	s.batch = append(s.batch, dp)
	if len(s.batch) >= syncBatchSize {
		return s.Flush(ctx)
	}
	return nil
}

// Flush upserts any buffered datapoints
func (s *IndexSyncer) Flush(ctx context.Context) error {
	if len(s.batch) == 0 {
		return nil
	}

	_, err := s.client.UpsertDatapoints(ctx, &aiplatformpb.UpsertDatapointsRequest{
		Index:      s.indexName,
		Datapoints: s.batch,
	})
	if err != nil {
		return fmt.Errorf("upsert %d datapoints: %w", len(s.batch), err)
	}

	s.total += len(s.batch)
	s.batch = nil
	return nil
}

// Total is the number of datapoints upserted so far
func (s *IndexSyncer) Total() int {
	return s.total
}

// Close closes the index client
func (s *IndexSyncer) Close() error {
	if s.closer != nil {
		return s.closer()
	}
	return nil
}
