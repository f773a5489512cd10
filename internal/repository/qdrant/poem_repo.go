package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/poem-search-api/internal/metrics"
	"github.com/poem-search-api/internal/models"
	"github.com/poem-search-api/internal/repository"
)

// Ensure PoemRepository implements repository.PoemStore
var _ repository.PoemStore = (*PoemRepository)(nil)

const backendName = "qdrant"

// pointNamespace derives stable Qdrant point ids from poem ids.
var pointNamespace = uuid.MustParse("8d3c7a52-2f41-4c1e-9b6a-5e0f4d1b7c93")

// Config holds Qdrant connection settings
type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// PoemRepository implements repository.PoemStore over the Qdrant REST API
type PoemRepository struct {
	baseURL    string
	apiKey     string
	collection string
	httpClient *http.Client
}

// NewPoemRepository creates a new Qdrant poem repository
func NewPoemRepository(cfg Config) *PoemRepository {
	return &PoemRepository{
		baseURL:    strings.TrimRight(cfg.URL, "/"),
		apiKey:     cfg.APIKey,
		collection: cfg.Collection,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// PointID returns the Qdrant point id stored for a poem id
func PointID(poemID string) string {
	return uuid.NewSHA1(pointNamespace, []byte(poemID)).String()
}

type searchRequest struct {
	Vector         []float64 `json:"vector"`
	Limit          int       `json:"limit"`
	ScoreThreshold float64   `json:"score_threshold"`
	WithPayload    bool      `json:"with_payload"`
}

type scoredPoint struct {
	ID      any            `json:"id"`
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

type searchResponse struct {
	Result []scoredPoint `json:"result"`
}

type point struct {
	ID      string         `json:"id"`
	Vector  []float64      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

type upsertRequest struct {
	Points []point `json:"points"`
}

// filter is a Qdrant payload filter. Poems are matched on payload.original_id
// so points written with any point id are found.
type filter struct {
	Must    []condition `json:"must,omitempty"`
	MustNot []condition `json:"must_not,omitempty"`
}

type condition struct {
	Key   string      `json:"key,omitempty"`
	Match *matchValue `json:"match,omitempty"`
	HasID []string    `json:"has_id,omitempty"`
}

type matchValue struct {
	Value string   `json:"value,omitempty"`
	Any   []string `json:"any,omitempty"`
}

func originalIDFilter(id string) filter {
	return filter{Must: []condition{{Key: "original_id", Match: &matchValue{Value: id}}}}
}

type countRequest struct {
	Filter filter `json:"filter"`
	Exact  bool   `json:"exact"`
}

type countResponse struct {
	Result struct {
		Count int `json:"count"`
	} `json:"result"`
}

type deleteRequest struct {
	Filter filter `json:"filter"`
}

type payloadIndexRequest struct {
	FieldName   string `json:"field_name"`
	FieldSchema string `json:"field_schema"`
}

type createCollectionRequest struct {
	Vectors vectorParams `json:"vectors"`
}

type vectorParams struct {
	Size     int    `json:"size"`
	Distance string `json:"distance"`
}

type errorResponse struct {
	Status struct {
		Error string `json:"error"`
	} `json:"status"`
}

// SearchPoems performs vector similarity search on the poem collection
func (r *PoemRepository) SearchPoems(ctx context.Context, embedding []float64, opts models.SearchOptions) (results []models.SearchResult, err error) {
	start := time.Now()
	defer func() { metrics.ObserveSearch(backendName, start, err) }()

	var resp searchResponse
	err = r.do(ctx, http.MethodPost, r.collectionPath("/points/search"), searchRequest{
		Vector:         embedding,
		Limit:          opts.Limit,
		ScoreThreshold: opts.MinScore,
		WithPayload:    true,
	}, &resp)
	if err != nil {
		return nil, err
	}

	results = make([]models.SearchResult, 0, len(resp.Result))
	for _, hit := range resp.Result {
		results = append(results, models.SearchResult{
			Poem:  poemFromPayload(hit.Payload),
			Score: hit.Score,
		})
	}
	return results, nil
}

// Ping checks that the collection is reachable
func (r *PoemRepository) Ping(ctx context.Context) error {
	return r.do(ctx, http.MethodGet, r.collectionPath(""), nil, nil)
}

// EnsureCollection creates the collection with cosine distance if it is missing
func (r *PoemRepository) EnsureCollection(ctx context.Context, dimension int) error {
	err := r.do(ctx, http.MethodGet, r.collectionPath(""), nil, nil)
	if err == nil {
		return nil
	}

	var upstream *repository.UpstreamSearchError
	if !errors.As(err, &upstream) || upstream.StatusCode != http.StatusNotFound {
		return fmt.Errorf("get collection: %w", err)
	}

	err = r.do(ctx, http.MethodPut, r.collectionPath(""), createCollectionRequest{
		Vectors: vectorParams{Size: dimension, Distance: "Cosine"},
	}, nil)
	if err != nil {
		return fmt.Errorf("create collection: %w", err)
	}

	err = r.do(ctx, http.MethodPut, r.collectionPath("/index?wait=true"), payloadIndexRequest{
		FieldName:   "original_id",
		FieldSchema: "keyword",
	}, nil)
	if err != nil {
		return fmt.Errorf("create original_id index: %w", err)
	}
	return nil
}

// UpsertPoems writes poems as points keyed by PointID, then removes any other
// points carrying the same original_id (points stored under random ids).
func (r *PoemRepository) UpsertPoems(ctx context.Context, poems []models.Poem, embeddings [][]float64) error {
	if len(poems) != len(embeddings) {
		return fmt.Errorf("upsert poems: %d poems but %d embeddings", len(poems), len(embeddings))
	}
	if len(poems) == 0 {
		return nil
	}

	points := make([]point, len(poems))
	ids := make([]string, len(poems))
	pointIDs := make([]string, len(poems))
	for i, p := range poems {
		ids[i] = p.ID
		pointIDs[i] = PointID(p.ID)
		points[i] = point{
			ID:      pointIDs[i],
			Vector:  embeddings[i],
			Payload: payloadFromPoem(p),
		}
	}

	if err := r.do(ctx, http.MethodPut, r.collectionPath("/points?wait=true"), upsertRequest{Points: points}, nil); err != nil {
		return fmt.Errorf("upsert points: %w", err)
	}

	stale := filter{
		Must:    []condition{{Key: "original_id", Match: &matchValue{Any: ids}}},
		MustNot: []condition{{HasID: pointIDs}},
	}
	if err := r.do(ctx, http.MethodPost, r.collectionPath("/points/delete?wait=true"), deleteRequest{Filter: stale}, nil); err != nil {
		return fmt.Errorf("delete stale points: %w", err)
	}
	return nil
}

// PoemExists reports whether any point carries the poem id
func (r *PoemRepository) PoemExists(ctx context.Context, id string) (bool, error) {
	var resp countResponse
	err := r.do(ctx, http.MethodPost, r.collectionPath("/points/count"), countRequest{
		Filter: originalIDFilter(id),
		Exact:  true,
	}, &resp)
	if err != nil {
		return false, fmt.Errorf("count points: %w", err)
	}
	return resp.Result.Count > 0, nil
}

// DeletePoem removes every point carrying the poem id
func (r *PoemRepository) DeletePoem(ctx context.Context, id string) error {
	err := r.do(ctx, http.MethodPost, r.collectionPath("/points/delete?wait=true"), deleteRequest{
		Filter: originalIDFilter(id),
	}, nil)
	if err != nil {
		return fmt.Errorf("delete points: %w", err)
	}
	return nil
}

func (r *PoemRepository) collectionPath(suffix string) string {
	return "/collections/" + url.PathEscape(r.collection) + suffix
}

// do sends a JSON request and decodes the JSON response into out (when non-nil).
// Non-2xx responses become *repository.UpstreamSearchError.
func (r *PoemRepository) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, r.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.apiKey != "" {
		req.Header.Set("api-key", r.apiKey)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return &repository.UpstreamSearchError{Backend: backendName, Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(resp.Body)
		return &repository.UpstreamSearchError{
			Backend:    backendName,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(raw),
		}
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// errorMessage prefers Qdrant's status.error over the raw body.
func errorMessage(raw []byte) string {
	var parsed errorResponse
	if json.Unmarshal(raw, &parsed) == nil && parsed.Status.Error != "" {
		return parsed.Status.Error
	}
	return strings.TrimSpace(string(raw))
}

func payloadFromPoem(p models.Poem) map[string]any {
	return map[string]any{
		"original_id":         p.ID,
		"title":               p.Title,
		"author":              p.Author,
		"content":             p.Content,
		"theme":               p.Analysis.Theme,
		"core_idea":           p.Analysis.CoreIdea,
		"applicable_scenario": p.Analysis.ApplicableScenario,
		"modern_significance": p.Analysis.ModernSignificance,
	}
}

func poemFromPayload(payload map[string]any) models.Poem {
	return models.Poem{
		ID:      stringField(payload, "original_id"),
		Title:   stringField(payload, "title"),
		Author:  stringField(payload, "author"),
		Content: stringField(payload, "content"),
		Analysis: models.Analysis{
			Theme:              stringField(payload, "theme"),
			CoreIdea:           stringField(payload, "core_idea"),
			ApplicableScenario: stringField(payload, "applicable_scenario"),
			ModernSignificance: stringField(payload, "modern_significance"),
		},
	}
}

// stringField reads a payload value as text. Numbers are formatted, anything
// else (missing, null, objects) reads as "".
func stringField(payload map[string]any, key string) string {
	switch v := payload[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return ""
	}
}
