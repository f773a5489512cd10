package vertex

import (
	"context"
	"errors"
	"testing"

	aiplatformpb "cloud.google.com/go/aiplatform/apiv1/aiplatformpb"
	gax "github.com/googleapis/gax-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeUpserter struct {
	requests []*aiplatformpb.UpsertDatapointsRequest
	err      error
}

func (f *fakeUpserter) UpsertDatapoints(_ context.Context, req *aiplatformpb.UpsertDatapointsRequest, _ ...gax.CallOption) (*aiplatformpb.UpsertDatapointsResponse, error) {
	f.requests = append(f.requests, req)
	return &aiplatformpb.UpsertDatapointsResponse{}, f.err
}

func TestIndexSyncer_Batches(t *testing.T) {
	fake := &fakeUpserter{}
	s := &IndexSyncer{client: fake, indexName: "projects/p/locations/l/indexes/i"}
	ctx := context.Background()

	for i := 0; i < syncBatchSize+5; i++ {
		require.NoError(t, s.Add(ctx, "id", "李白", []float32{1}))
	}
	require.Len(t, fake.requests, 1)
	assert.Len(t, fake.requests[0].GetDatapoints(), syncBatchSize)
	assert.Equal(t, "projects/p/locations/l/indexes/i", fake.requests[0].GetIndex())

	require.NoError(t, s.Flush(ctx))
	require.Len(t, fake.requests, 2)
	assert.Len(t, fake.requests[1].GetDatapoints(), 5)
	assert.Equal(t, syncBatchSize+5, s.Total())

	dp := fake.requests[1].GetDatapoints()[0]
	assert.Equal(t, "author", dp.GetRestricts()[0].GetNamespace())
	assert.Equal(t, []string{"李白"}, dp.GetRestricts()[0].GetAllowList())

	require.NoError(t, s.Flush(ctx))
	assert.Len(t, fake.requests, 2)
}

func TestIndexSyncer_Error(t *testing.T) {
	fake := &fakeUpserter{err: errors.New("permission denied")}
	s := &IndexSyncer{client: fake, indexName: "idx"}

	require.NoError(t, s.Add(context.Background(), "1", "", []float32{1}))
	err := s.Flush(context.Background())
	assert.ErrorContains(t, err, "upsert 1 datapoints: permission denied")
	assert.Zero(t, s.Total())
}

func TestNewIndexSyncer_RequiresIDs(t *testing.T) {
	_, err := NewIndexSyncer(context.Background(), "", "us-central1", "idx")
	assert.ErrorContains(t, err, "VERTEX_INDEX_ID are required")
}
