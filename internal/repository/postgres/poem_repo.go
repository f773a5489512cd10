package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pgvector/pgvector-go"

	"github.com/poem-search-api/internal/metrics"
	"github.com/poem-search-api/internal/models"
	"github.com/poem-search-api/internal/repository"
)

// Ensure PoemRepository implements repository.PoemStore
var _ repository.PoemStore = (*PoemRepository)(nil)

const backendName = "pgvector"

// PoemRepository implements repository.PoemStore for PostgreSQL with pgvector
type PoemRepository struct {
	db *sqlx.DB
}

// NewPoemRepository creates a new PostgreSQL poem repository
func NewPoemRepository(db *sqlx.DB) *PoemRepository {
	return &PoemRepository{db: db}
}

type poemRow struct {
	ID                 string  `db:"id"`
	Title              string  `db:"title"`
	Author             string  `db:"author"`
	Content            string  `db:"content"`
	Theme              string  `db:"theme"`
	CoreIdea           string  `db:"core_idea"`
	ApplicableScenario string  `db:"applicable_scenario"`
	ModernSignificance string  `db:"modern_significance"`
	Score              float64 `db:"score"`
}

func (r poemRow) poem() models.Poem {
	return models.Poem{
		ID:      r.ID,
		Title:   r.Title,
		Author:  r.Author,
		Content: r.Content,
		Analysis: models.Analysis{
			Theme:              r.Theme,
			CoreIdea:           r.CoreIdea,
			ApplicableScenario: r.ApplicableScenario,
			ModernSignificance: r.ModernSignificance,
		},
	}
}

// SearchPoems performs cosine similarity search on poems using pgvector
func (r *PoemRepository) SearchPoems(ctx context.Context, embedding []float64, opts models.SearchOptions) (results []models.SearchResult, err error) {
	start := time.Now()
	defer func() { metrics.ObserveSearch(backendName, start, err) }()

	vec := pgvector.NewVector(float32Slice(embedding))

	rows, err := r.db.QueryxContext(ctx, `
		SELECT id, title, author, content, theme, core_idea, applicable_scenario, modern_significance,
		       1 - (embedding <=> $1::vector) AS score
		FROM poems
		WHERE 1 - (embedding <=> $1::vector) >= $2
		ORDER BY embedding <=> $1::vector
		LIMIT $3
	`, vec, opts.MinScore, opts.Limit)
	if err != nil {
		return nil, &repository.UpstreamSearchError{Backend: backendName, Message: err.Error()}
	}
	defer rows.Close()

	results = []models.SearchResult{}
	for rows.Next() {
		var row poemRow
		if err := rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("scan poem result: %w", err)
		}
		results = append(results, models.SearchResult{Poem: row.poem(), Score: row.Score})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate poem results: %w", err)
	}
	return results, nil
}

// GetPoems loads poems by id. Missing ids are absent from the map.
func (r *PoemRepository) GetPoems(ctx context.Context, ids []string) (map[string]models.Poem, error) {
	poems := make(map[string]models.Poem, len(ids))
	if len(ids) == 0 {
		return poems, nil
	}

	query, args, err := sqlx.In(`
		SELECT id, title, author, content, theme, core_idea, applicable_scenario, modern_significance
		FROM poems
		WHERE id IN (?)
	`, ids)
	if err != nil {
		return nil, fmt.Errorf("build IN query: %w", err)
	}

	rows, err := r.db.QueryxContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query poems: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row poemRow
		if err := rows.StructScan(&row); err != nil {
			return nil, fmt.Errorf("scan poem: %w", err)
		}
		poems[row.ID] = row.poem()
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate poems: %w", err)
	}
	return poems, nil
}

// Ping checks database connectivity
func (r *PoemRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// EnsureCollection creates the pgvector extension and poems table if missing
func (r *PoemRepository) EnsureCollection(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid vector dimension %d", dimension)
	}

	if _, err := r.db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}

	// Dimension is an int, so formatting it into DDL is safe
	_, err := r.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS poems (
			id                  TEXT PRIMARY KEY,
			title               TEXT NOT NULL DEFAULT '',
			author              TEXT NOT NULL DEFAULT '',
			content             TEXT NOT NULL DEFAULT '',
			theme               TEXT NOT NULL DEFAULT '',
			core_idea           TEXT NOT NULL DEFAULT '',
			applicable_scenario TEXT NOT NULL DEFAULT '',
			modern_significance TEXT NOT NULL DEFAULT '',
			embedding           vector(%d) NOT NULL
		)
	`, dimension))
	if err != nil {
		return fmt.Errorf("create poems table: %w", err)
	}
	return nil
}

// UpsertPoems inserts or replaces poems keyed by id in a single transaction
func (r *PoemRepository) UpsertPoems(ctx context.Context, poems []models.Poem, embeddings [][]float64) error {
	if len(poems) != len(embeddings) {
		return fmt.Errorf("upsert poems: %d poems but %d embeddings", len(poems), len(embeddings))
	}
	if len(poems) == 0 {
		return nil
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO poems (id, title, author, content, theme, core_idea, applicable_scenario, modern_significance, embedding)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			author = EXCLUDED.author,
			content = EXCLUDED.content,
			theme = EXCLUDED.theme,
			core_idea = EXCLUDED.core_idea,
			applicable_scenario = EXCLUDED.applicable_scenario,
			modern_significance = EXCLUDED.modern_significance,
			embedding = EXCLUDED.embedding
	`)
	if err != nil {
		return fmt.Errorf("prepare upsert: %w", err)
	}
	defer stmt.Close()

	for i, p := range poems {
		_, err := stmt.ExecContext(ctx,
			p.ID, p.Title, p.Author, p.Content,
			p.Analysis.Theme, p.Analysis.CoreIdea, p.Analysis.ApplicableScenario, p.Analysis.ModernSignificance,
			pgvector.NewVector(float32Slice(embeddings[i])),
		)
		if err != nil {
			return fmt.Errorf("upsert poem %s: %w", p.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit upsert: %w", err)
	}
	return nil
}

// PoemExists reports whether a poem id is stored
func (r *PoemRepository) PoemExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM poems WHERE id = $1)`, id); err != nil {
		return false, fmt.Errorf("check poem exists: %w", err)
	}
	return exists, nil
}

// DeletePoem removes a poem by id
func (r *PoemRepository) DeletePoem(ctx context.Context, id string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM poems WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete poem: %w", err)
	}
	return nil
}

// float32Slice converts []float64 to []float32 for pgvector
func float32Slice(f64 []float64) []float32 {
	f32 := make([]float32, len(f64))
	for i, v := range f64 {
		f32[i] = float32(v)
	}
	return f32
}

// EachEmbedding streams every stored poem id, author and embedding to fn in id
// order. It returns the number of rows visited.
func (r *PoemRepository) EachEmbedding(ctx context.Context, fn func(id, author string, embedding []float32) error) (int, error) {
	rows, err := r.db.QueryxContext(ctx, `
		SELECT id, author, embedding
		FROM poems
		WHERE embedding IS NOT NULL
		ORDER BY id
	`)
	if err != nil {
		return 0, fmt.Errorf("query embeddings: %w", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var (
			id, author string
			embedding  pgvector.Vector
		)
		if err := rows.Scan(&id, &author, &embedding); err != nil {
			return count, fmt.Errorf("scan embedding: %w", err)
		}
		if err := fn(id, author, embedding.Slice()); err != nil {
			return count, err
		}
		count++
	}
	if err := rows.Err(); err != nil {
		return count, fmt.Errorf("iterate embeddings: %w", err)
	}
	return count, nil
}
