package services

import (
	"context"
	"fmt"
	"time"

	aiplatform "cloud.google.com/go/aiplatform/apiv1"
	"cloud.google.com/go/aiplatform/apiv1/aiplatformpb"
	"google.golang.org/api/option"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/poem-search-api/internal/metrics"
	"github.com/poem-search-api/pkg/schema/config"
)

const vertexProvider = "vertex"

// VertexEmbedder implements Embedder using Google Cloud Vertex AI
type VertexEmbedder struct {
	client   *aiplatform.PredictionClient
	endpoint string
}

// NewVertexEmbedder creates a new Vertex AI embedder
func NewVertexEmbedder(ctx context.Context, cfg *config.Config) (*VertexEmbedder, error) {
	if cfg.GCPProjectID == "" {
		return nil, fmt.Errorf("GCP_PROJECT_ID is required for Vertex AI embeddings")
	}

	clientEndpoint := fmt.Sprintf("%s-aiplatform.googleapis.com:443", cfg.GCPLocation)
	client, err := aiplatform.NewPredictionClient(ctx, option.WithEndpoint(clientEndpoint))
	if err != nil {
		return nil, fmt.Errorf("create prediction client: %w", err)
	}

	return &VertexEmbedder{
		client:   client,
		endpoint: vertexModelEndpoint(cfg),
	}, nil
}

func vertexModelEndpoint(cfg *config.Config) string {
	return fmt.Sprintf("projects/%s/locations/%s/publishers/google/models/%s",
		cfg.GCPProjectID, cfg.GCPLocation, cfg.VertexModel)
}

// Close closes the Vertex AI client
func (e *VertexEmbedder) Close() error {
	if e.client != nil {
		return e.client.Close()
	}
	return nil
}

// Embed generates an embedding for a single text
func (e *VertexEmbedder) Embed(ctx context.Context, text string, taskType TaskType) (embedding []float64, err error) {
	start := time.Now()
	defer func() { metrics.ObserveEmbedding(vertexProvider, start, err) }()

	instance, err := structpb.NewStruct(map[string]interface{}{
		"content":   text,
		"task_type": string(taskType),
	})
	if err != nil {
		return nil, fmt.Errorf("create instance: %w", err)
	}

	resp, err := e.client.Predict(ctx, &aiplatformpb.PredictRequest{
		Endpoint:  e.endpoint,
		Instances: []*structpb.Value{structpb.NewStructValue(instance)},
	})
	if err != nil {
		return nil, &UpstreamEmbeddingError{Provider: vertexProvider, Body: err.Error()}
	}

	if len(resp.Predictions) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}
	return predictionValues(resp.Predictions[0])
}

// predictionValues extracts embeddings.values from one prediction.
func predictionValues(prediction *structpb.Value) ([]float64, error) {
	predStruct := prediction.GetStructValue()
	if predStruct == nil {
		return nil, fmt.Errorf("unexpected prediction format")
	}

	embStruct := predStruct.GetFields()["embeddings"].GetStructValue()
	if embStruct == nil {
		return nil, fmt.Errorf("no embeddings field in prediction")
	}

	valuesList := embStruct.GetFields()["values"].GetListValue()
	if valuesList == nil {
		return nil, fmt.Errorf("no values field in embeddings")
	}

	embedding := make([]float64, len(valuesList.GetValues()))
	for i, v := range valuesList.GetValues() {
		embedding[i] = v.GetNumberValue()
	}
	return embedding, nil
}
