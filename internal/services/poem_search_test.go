package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poem-search-api/internal/models"
	"github.com/poem-search-api/internal/repository"
)

type callLog struct {
	mu    sync.Mutex
	calls []string
}

func (l *callLog) add(name string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, name)
}

func (l *callLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}

type mockEmbedder struct {
	log     *callLog
	vector  []float64
	err     error
	queries []string
	docs    []string
}

func (m *mockEmbedder) EmbedQuery(_ context.Context, query string) ([]float64, error) {
	m.log.add("embed")
	m.queries = append(m.queries, query)
	return m.vector, m.err
}

func (m *mockEmbedder) EmbedPoem(_ context.Context, text string) ([]float64, error) {
	m.log.add("embed_poem")
	m.docs = append(m.docs, text)
	return m.vector, m.err
}

type mockStore struct {
	mu         sync.Mutex
	log        *callLog
	results    []models.SearchResult
	err        error
	exists     bool
	gotVector  []float64
	gotOpts    models.SearchOptions
	upserted   []models.Poem
	ensuredDim int
	deleted    []string
}

func (m *mockStore) SearchPoems(_ context.Context, embedding []float64, opts models.SearchOptions) ([]models.SearchResult, error) {
	m.log.add("search")
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gotVector = embedding
	m.gotOpts = opts
	return m.results, m.err
}

func (m *mockStore) Ping(context.Context) error { return m.err }

func (m *mockStore) EnsureCollection(_ context.Context, dimension int) error {
	m.log.add("ensure")
	m.ensuredDim = dimension
	return nil
}

func (m *mockStore) UpsertPoems(_ context.Context, poems []models.Poem, _ [][]float64) error {
	m.log.add("upsert")
	m.upserted = append(m.upserted, poems...)
	return m.err
}

func (m *mockStore) PoemExists(context.Context, string) (bool, error) {
	m.log.add("exists")
	return m.exists, nil
}

func (m *mockStore) DeletePoem(_ context.Context, id string) error {
	m.log.add("delete")
	m.deleted = append(m.deleted, id)
	return m.err
}

func newTestService(opts ...Option) (*PoemSearchService, *mockEmbedder, *mockStore, *callLog) {
	log := &callLog{}
	embedder := &mockEmbedder{log: log, vector: []float64{0.1, 0.2, 0.3}}
	store := &mockStore{log: log, results: []models.SearchResult{}}
	return NewPoemSearchService(embedder, store, opts...), embedder, store, log
}

func samplePoem() models.Poem {
	return models.Poem{
		ID:    "101",
		Title: "春夜喜雨",
		Analysis: models.Analysis{
			Theme:              "春雨",
			CoreIdea:           "润物无声",
			ApplicableScenario: "春天",
			ModernSignificance: "默默奉献",
		},
	}
}

func TestSearch_EmbedThenSearchOnce(t *testing.T) {
	svc, embedder, store, log := newTestService()
	store.results = []models.SearchResult{{Poem: models.Poem{ID: "1"}, Score: 0.9}}

	results, err := svc.Search(context.Background(), "spring rain", models.SearchOptions{Limit: 3, MinScore: 0.5})
	require.NoError(t, err)

	assert.Equal(t, []string{"embed", "search"}, log.list())
	assert.Equal(t, []string{"spring rain"}, embedder.queries)
	assert.Equal(t, embedder.vector, store.gotVector)
	assert.Equal(t, models.SearchOptions{Limit: 3, MinScore: 0.5}, store.gotOpts)
	assert.Len(t, results, 1)
}

func TestSearch_NormalizesOptions(t *testing.T) {
	svc, _, store, _ := newTestService()

	_, err := svc.Search(context.Background(), "q", models.SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.SearchOptions{Limit: 5, MinScore: 0}, store.gotOpts)

	_, err = svc.Search(context.Background(), "q", models.SearchOptions{Limit: 500, MinScore: -1})
	require.NoError(t, err)
	assert.Equal(t, models.SearchOptions{Limit: 500, MinScore: 0}, store.gotOpts)
}

func TestSearch_EmbeddingErrorSkipsSearch(t *testing.T) {
	svc, embedder, _, log := newTestService()
	embedder.err = errors.New("ollama service error: Service Unavailable - down")

	_, err := svc.Search(context.Background(), "q", models.SearchOptions{})
	assert.Same(t, embedder.err, err)
	assert.Equal(t, []string{"embed"}, log.list())
}

func TestSearch_SearchErrorUnchanged(t *testing.T) {
	svc, _, store, _ := newTestService()
	upstream := &repository.UpstreamSearchError{Backend: "qdrant", StatusCode: 500, Message: "boom"}
	store.err = upstream

	_, err := svc.Search(context.Background(), "q", models.SearchOptions{})
	assert.Same(t, upstream, err)
}

func TestSearchDebug_ReturnsVector(t *testing.T) {
	svc, embedder, _, _ := newTestService()

	_, vector, err := svc.SearchDebug(context.Background(), "q", models.SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, embedder.vector, vector)
}

func TestSearchByThemeAndScenario(t *testing.T) {
	svc, embedder, _, _ := newTestService()

	_, err := svc.SearchByTheme(context.Background(), "nostalgia", models.SearchOptions{})
	require.NoError(t, err)
	_, err = svc.SearchByScenario(context.Background(), "farewell", models.SearchOptions{})
	require.NoError(t, err)

	assert.Equal(t, []string{"主题：nostalgia", "场景：farewell"}, embedder.queries)
}

func TestSearch_ConcurrencyBound(t *testing.T) {
	var inFlight, peak int32
	log := &callLog{}
	embedder := &blockingEmbedder{inFlight: &inFlight, peak: &peak}
	store := &mockStore{log: log, results: []models.SearchResult{}}
	svc := NewPoemSearchService(embedder, store, WithMaxConcurrency(2))

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Search(context.Background(), "q", models.SearchOptions{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
}

func TestSearch_CancelledWhileWaiting(t *testing.T) {
	svc, _, _, log := newTestService(WithMaxConcurrency(1))
	require.NoError(t, svc.limiter.Acquire(context.Background(), 1))
	defer svc.limiter.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := svc.Search(ctx, "q", models.SearchOptions{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, log.list())
}

type blockingEmbedder struct {
	inFlight *int32
	peak     *int32
}

func (b *blockingEmbedder) EmbedQuery(context.Context, string) ([]float64, error) {
	n := atomic.AddInt32(b.inFlight, 1)
	for {
		p := atomic.LoadInt32(b.peak)
		if n <= p || atomic.CompareAndSwapInt32(b.peak, p, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	atomic.AddInt32(b.inFlight, -1)
	return []float64{1}, nil
}

func (b *blockingEmbedder) EmbedPoem(ctx context.Context, text string) ([]float64, error) {
	return b.EmbedQuery(ctx, text)
}

func TestAddPoem(t *testing.T) {
	svc, embedder, store, log := newTestService()

	require.NoError(t, svc.AddPoem(context.Background(), samplePoem()))

	assert.Equal(t, []string{"embed_poem", "ensure", "upsert"}, log.list())
	assert.Equal(t, []string{"主题：春雨\n核心思想：润物无声\n适用场景：春天\n现代意义：默默奉献"}, embedder.docs)
	assert.Equal(t, 3, store.ensuredDim)
	require.Len(t, store.upserted, 1)
	assert.Equal(t, "101", store.upserted[0].ID)
}

func TestAddPoem_Invalid(t *testing.T) {
	svc, _, _, log := newTestService()

	p := samplePoem()
	p.Analysis.CoreIdea = ""
	assert.ErrorIs(t, svc.AddPoem(context.Background(), p), ErrInvalidPoem)

	p = samplePoem()
	p.ID = " "
	assert.ErrorIs(t, svc.AddPoem(context.Background(), p), ErrInvalidPoem)

	assert.Empty(t, log.list())
}

func TestUpdatePoem(t *testing.T) {
	t.Run("missing", func(t *testing.T) {
		svc, _, _, log := newTestService()

		err := svc.UpdatePoem(context.Background(), "101", samplePoem())
		assert.ErrorIs(t, err, repository.ErrPoemNotFound)
		assert.Equal(t, []string{"exists"}, log.list())
	})

	t.Run("existing", func(t *testing.T) {
		svc, _, store, log := newTestService()
		store.exists = true

		p := samplePoem()
		p.ID = "ignored"
		require.NoError(t, svc.UpdatePoem(context.Background(), "101", p))
		assert.Equal(t, []string{"exists", "embed_poem", "upsert"}, log.list())
		assert.Equal(t, "101", store.upserted[0].ID)
	})
}

func TestDeletePoem(t *testing.T) {
	svc, _, store, _ := newTestService()

	require.NoError(t, svc.DeletePoem(context.Background(), "101"))
	assert.Equal(t, []string{"101"}, store.deleted)

	assert.ErrorIs(t, svc.DeletePoem(context.Background(), ""), ErrInvalidPoem)
}
