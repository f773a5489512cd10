package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/poem-search-api/internal/models"
)

type fakeEmbedder struct {
	mu    sync.Mutex
	texts []string
	fail  map[string]bool
}

func (f *fakeEmbedder) EmbedPoem(_ context.Context, text string) ([]float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.texts = append(f.texts, text)
	if f.fail[text] {
		return nil, errors.New("ollama service error: Internal Server Error - boom")
	}
	return []float64{0.1, 0.2, 0.3, 0.4}, nil
}

type fakeWriter struct {
	mu        sync.Mutex
	ensured   []int
	batches   [][]models.Poem
	upsertErr error
	ensureErr error
}

func (f *fakeWriter) EnsureCollection(_ context.Context, dimension int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensured = append(f.ensured, dimension)
	return f.ensureErr
}

func (f *fakeWriter) UpsertPoems(_ context.Context, poems []models.Poem, embeddings [][]float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(poems) != len(embeddings) {
		return fmt.Errorf("mismatch")
	}
	f.batches = append(f.batches, append([]models.Poem(nil), poems...))
	return f.upsertErr
}

func (f *fakeWriter) PoemExists(context.Context, string) (bool, error) { return false, nil }
func (f *fakeWriter) DeletePoem(context.Context, string) error         { return nil }

func (f *fakeWriter) storedIDs() []string {
	var ids []string
	for _, b := range f.batches {
		for _, p := range b {
			ids = append(ids, p.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

func poemLine(id any, kind string, theme string) string {
	idJSON := "null"
	switch v := id.(type) {
	case string:
		idJSON = fmt.Sprintf("%q", v)
	case int:
		idJSON = fmt.Sprint(v)
	}
	return fmt.Sprintf(`{"id":%s,"title":"t%v","author":"李白","content":"c","kind_cn":%q,`+
		`"analysis":{"theme":%q,"core_idea":"思","applicable_scenario":"景","modern_significance":"义"}}`,
		idJSON, id, kind, theme)
}

func TestRun_SkipsAndStores(t *testing.T) {
	input := strings.Join([]string{
		poemLine(1, "诗", "春"),
		poemLine(2, "词", "夏"),   // not a poem
		poemLine(3, "诗", ""),    // incomplete analysis
		"",                      // blank
		`{"id": 4, "kind_cn": `, // broken
		poemLine("a5", "诗", "秋"),
		poemLine(nil, "诗", "冬"),
	}, "\n")

	embedder := &fakeEmbedder{}
	writer := &fakeWriter{}
	p, err := NewPipeline(embedder, writer, WithWorkers(3), WithBatchSize(2))
	require.NoError(t, err)
	defer p.Release()

	stats, err := p.Run(context.Background(), strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, Stats{Processed: 3, Skipped: 2, Failed: 1}, stats)
	assert.Equal(t, []int{4}, writer.ensured)
	assert.Equal(t, []string{"1", "6", "a5"}, writer.storedIDs())
	assert.Len(t, writer.batches, 2)
	assert.Contains(t, embedder.texts, "主题：春\n核心思想：思\n适用场景：景\n现代意义：义")
}

func TestRun_EmbeddingFailuresAreCounted(t *testing.T) {
	failing := models.Analysis{Theme: "坏", CoreIdea: "思", ApplicableScenario: "景", ModernSignificance: "义"}
	embedder := &fakeEmbedder{fail: map[string]bool{failing.DocumentText(): true}}
	writer := &fakeWriter{}
	p, err := NewPipeline(embedder, writer, WithRateLimit(1000))
	require.NoError(t, err)
	defer p.Release()

	input := poemLine(1, "诗", "好") + "\n" + poemLine(2, "诗", "坏")
	stats, err := p.Run(context.Background(), strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, Stats{Processed: 1, Failed: 1}, stats)
	assert.Equal(t, []string{"1"}, writer.storedIDs())
}

func TestRun_UpsertFailureStops(t *testing.T) {
	writer := &fakeWriter{upsertErr: errors.New("qdrant down")}
	p, err := NewPipeline(&fakeEmbedder{}, writer, WithWorkers(1), WithBatchSize(1))
	require.NoError(t, err)
	defer p.Release()

	var lines []string
	for i := 0; i < 5; i++ {
		lines = append(lines, poemLine(i, "诗", "春"))
	}

	stats, err := p.Run(context.Background(), strings.NewReader(strings.Join(lines, "\n")))
	assert.ErrorContains(t, err, "qdrant down")
	assert.Zero(t, stats.Processed)
	assert.GreaterOrEqual(t, stats.Failed, 1)
}

func TestRun_EnsureCollectionFailure(t *testing.T) {
	writer := &fakeWriter{ensureErr: errors.New("forbidden")}
	p, err := NewPipeline(&fakeEmbedder{}, writer)
	require.NoError(t, err)
	defer p.Release()

	_, err = p.Run(context.Background(), strings.NewReader(poemLine(1, "诗", "春")))
	assert.ErrorContains(t, err, "ensure collection: forbidden")
	assert.Empty(t, writer.batches)
}

func TestRun_NothingToStore(t *testing.T) {
	writer := &fakeWriter{}
	p, err := NewPipeline(&fakeEmbedder{}, writer)
	require.NoError(t, err)
	defer p.Release()

	stats, err := p.Run(context.Background(), strings.NewReader(poemLine(1, "词", "春")))
	require.NoError(t, err)
	assert.Equal(t, Stats{Skipped: 1}, stats)
	assert.Empty(t, writer.ensured)
}

func TestNewPipeline_RequiresDependencies(t *testing.T) {
	_, err := NewPipeline(nil, &fakeWriter{})
	assert.ErrorIs(t, err, ErrEmbedderRequired)

	_, err = NewPipeline(&fakeEmbedder{}, nil)
	assert.ErrorIs(t, err, ErrStoreRequired)
}

func TestToPoem_IDs(t *testing.T) {
	src, err := decodeSourcePoem([]byte(`{"id": 12345678901, "title": "x"}`))
	require.NoError(t, err)
	assert.Equal(t, "12345678901", toPoem(src, "0").ID)

	src, err = decodeSourcePoem([]byte(`{"title": "x"}`))
	require.NoError(t, err)
	assert.Equal(t, "7", toPoem(src, "7").ID)
}
