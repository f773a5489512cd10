// Package ingest loads analysed poems from JSONL into the vector store.
package ingest

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"runtime"
	"strconv"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/poem-search-api/internal/models"
	"github.com/poem-search-api/internal/repository"
)

const (
	// DefaultBatchSize is the number of poems upserted per request
	DefaultBatchSize = 100
	// poemKind is the kind_cn value of the records that get indexed
	poemKind = "诗"

	maxLineSize = 10 * 1024 * 1024
)

// ErrEmbedderRequired and ErrStoreRequired are returned by NewPipeline.
var (
	ErrEmbedderRequired = errors.New("embedder is required")
	ErrStoreRequired    = errors.New("store is required")
)

// Embedder embeds poem document text
type Embedder interface {
	EmbedPoem(ctx context.Context, text string) ([]float64, error)
}

// Stats summarises a run
type Stats struct {
	Processed int // poems stored
	Skipped   int // records that are not poems or lack analysis
	Failed    int // records that could not be parsed, embedded or stored
}

// Pipeline embeds poems concurrently and upserts them in batches.
type Pipeline struct {
	embedder  Embedder
	store     repository.PoemWriter
	pool      *ants.Pool
	limiter   *rate.Limiter
	batchSize int
	logger    *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline) error

// WithWorkers sets the number of concurrent embedding workers.
func WithWorkers(n int) Option {
	return func(p *Pipeline) error {
		if n < 1 {
			n = 1
		}
		pool, err := ants.NewPool(n)
		if err != nil {
			return fmt.Errorf("create worker pool: %w", err)
		}
		if p.pool != nil {
			p.pool.Release()
		}
		p.pool = pool
		return nil
	}
}

// WithRateLimit caps embedding requests per second. Zero or less disables the cap.
func WithRateLimit(perSecond float64) Option {
	return func(p *Pipeline) error {
		if perSecond <= 0 {
			p.limiter = rate.NewLimiter(rate.Inf, 0)
			return nil
		}
		p.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		return nil
	}
}

// WithBatchSize sets how many poems go into one upsert.
func WithBatchSize(n int) Option {
	return func(p *Pipeline) error {
		if n < 1 {
			n = DefaultBatchSize
		}
		p.batchSize = n
		return nil
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) error {
		if logger != nil {
			p.logger = logger
		}
		return nil
	}
}

// NewPipeline creates an ingestion pipeline. Call Release when done.
func NewPipeline(embedder Embedder, store repository.PoemWriter, opts ...Option) (*Pipeline, error) {
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}
	if store == nil {
		return nil, ErrStoreRequired
	}

	p := &Pipeline{
		embedder:  embedder,
		store:     store,
		limiter:   rate.NewLimiter(rate.Inf, 0),
		batchSize: DefaultBatchSize,
		logger:    zap.NewNop(),
	}

	opts = append([]Option{WithWorkers(max(runtime.NumCPU()/2, 1))}, opts...)
	for _, opt := range opts {
		if err := opt(p); err != nil {
			p.Release()
			return nil, err
		}
	}
	return p, nil
}

// Release stops the worker pool.
func (p *Pipeline) Release() {
	if p.pool != nil {
		p.pool.Release()
	}
}

type embeddedPoem struct {
	poem   models.Poem
	vector []float64
}

type counter struct {
	mu    sync.Mutex
	stats Stats
}

func (c *counter) add(processed, skipped, failed int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.Processed += processed
	c.stats.Skipped += skipped
	c.stats.Failed += failed
}

func (c *counter) snapshot() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Run reads one SourcePoem per line from r and stores every complete poem.
// The collection is created from the dimension of the first vector. A failed
// upsert stops the run and is returned along with the stats so far.
func (p *Pipeline) Run(ctx context.Context, r io.Reader) (Stats, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var count counter
	embedded := make(chan embeddedPoem)
	collectDone := make(chan error, 1)

	go func() {
		collectDone <- p.collect(ctx, cancel, embedded, &count)
	}()

	var wg sync.WaitGroup
	readErr := p.read(ctx, r, &wg, embedded, &count)

	wg.Wait()
	close(embedded)
	collectErr := <-collectDone

	stats := count.snapshot()
	p.logger.Info("ingestion finished",
		zap.Int("processed", stats.Processed),
		zap.Int("skipped", stats.Skipped),
		zap.Int("failed", stats.Failed),
	)

	if collectErr != nil {
		return stats, collectErr
	}
	return stats, readErr
}

// read parses lines and hands poems to the worker pool.
func (p *Pipeline) read(ctx context.Context, r io.Reader, wg *sync.WaitGroup, out chan<- embeddedPoem, count *counter) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	line := 0
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		line++

		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		source, err := decodeSourcePoem(raw)
		if err != nil {
			p.logger.Warn("skipping unparsable line", zap.Int("line", line), zap.Error(err))
			count.add(0, 0, 1)
			continue
		}

		if source.KindCN != poemKind {
			count.add(0, 1, 0)
			continue
		}
		if !source.Analysis.Complete() {
			p.logger.Info("skipping poem without full analysis",
				zap.Int("line", line), zap.String("title", source.Title))
			count.add(0, 1, 0)
			continue
		}

		poem := toPoem(source, strconv.Itoa(line-1))

		wg.Add(1)
		err = p.pool.Submit(func() {
			defer wg.Done()
			p.embed(ctx, poem, out, count)
		})
		if err != nil {
			wg.Done()
			return fmt.Errorf("submit embedding task: %w", err)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read input: %w", err)
	}
	return nil
}

func (p *Pipeline) embed(ctx context.Context, poem models.Poem, out chan<- embeddedPoem, count *counter) {
	if err := p.limiter.Wait(ctx); err != nil {
		count.add(0, 0, 1)
		return
	}

	vector, err := p.embedder.EmbedPoem(ctx, poem.Analysis.DocumentText())
	if err != nil {
		p.logger.Warn("embedding failed", zap.String("id", poem.ID), zap.Error(err))
		count.add(0, 0, 1)
		return
	}

	select {
	case out <- embeddedPoem{poem: poem, vector: vector}:
	case <-ctx.Done():
		count.add(0, 0, 1)
	}
}

// collect batches embedded poems into upserts. After a failure it keeps
// draining in so workers never block.
func (p *Pipeline) collect(ctx context.Context, cancel context.CancelFunc, in <-chan embeddedPoem, count *counter) error {
	var (
		batch   []embeddedPoem
		ensured bool
		failure error
	)

	flush := func() {
		if len(batch) == 0 || failure != nil {
			return
		}
		if !ensured {
			dim := len(batch[0].vector)
			if err := p.store.EnsureCollection(ctx, dim); err != nil {
				failure = fmt.Errorf("ensure collection: %w", err)
				count.add(0, 0, len(batch))
				cancel()
				return
			}
			p.logger.Info("collection ready", zap.Int("dimension", dim))
			ensured = true
		}

		poems := make([]models.Poem, len(batch))
		vectors := make([][]float64, len(batch))
		for i, e := range batch {
			poems[i] = e.poem
			vectors[i] = e.vector
		}

		if err := p.store.UpsertPoems(ctx, poems, vectors); err != nil {
			failure = fmt.Errorf("upsert batch of %d poems: %w", len(batch), err)
			count.add(0, 0, len(batch))
			cancel()
			return
		}
		count.add(len(batch), 0, 0)
		p.logger.Info("batch stored", zap.Int("size", len(batch)), zap.Int("processed", count.snapshot().Processed))
		batch = batch[:0]
	}

	for e := range in {
		if failure != nil {
			count.add(0, 0, 1)
			continue
		}
		batch = append(batch, e)
		if len(batch) >= p.batchSize {
			flush()
		}
	}
	flush()
	return failure
}

func decodeSourcePoem(raw []byte) (models.SourcePoem, error) {
	var source models.SourcePoem
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&source); err != nil {
		return models.SourcePoem{}, fmt.Errorf("decode poem: %w", err)
	}
	return source, nil
}

// toPoem converts an input record; records without an id use fallbackID.
func toPoem(s models.SourcePoem, fallbackID string) models.Poem {
	id := fallbackID
	if s.ID != nil {
		id = fmt.Sprint(s.ID)
	}
	return models.Poem{
		ID:       id,
		Title:    s.Title,
		Author:   s.Author,
		Content:  s.Content,
		Analysis: s.Analysis,
	}
}
