package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/poem-search-api/internal/models"
)

type stubSearcher struct {
	queries []string
	opts    models.SearchOptions
	results []models.SearchResult
	err     error
}

func (s *stubSearcher) Search(_ context.Context, query string, opts models.SearchOptions) ([]models.SearchResult, error) {
	s.queries = append(s.queries, query)
	s.opts = opts
	return s.results, s.err
}

func TestPrintResults(t *testing.T) {
	var out bytes.Buffer
	printResults(&out, []models.SearchResult{{
		Poem: models.Poem{
			Title:    "静夜思",
			Author:   "李白",
			Analysis: models.Analysis{Theme: "思乡"},
		},
		Score: 0.87654,
	}})

	assert.Contains(t, out.String(), "Found 1 poems")
	assert.Contains(t, out.String(), "score:    0.877")
	assert.Contains(t, out.String(), "title:    静夜思")
	assert.Contains(t, out.String(), "主题：思乡")
}

func TestPrintResults_Empty(t *testing.T) {
	var out bytes.Buffer
	printResults(&out, nil)
	assert.Equal(t, "No matching poems.\n", out.String())
}

func TestSearchLoop(t *testing.T) {
	s := &stubSearcher{results: []models.SearchResult{{Poem: models.Poem{Title: "春晓"}, Score: 0.5}}}
	in := strings.NewReader("spring rain\n\n  moon  \nQ\nnever read\n")
	var out bytes.Buffer

	err := searchLoop(context.Background(), in, &out, s, models.SearchOptions{Limit: 3})
	require.NoError(t, err)

	assert.Equal(t, []string{"spring rain", "moon"}, s.queries)
	assert.Equal(t, 3, s.opts.Limit)
	assert.Equal(t, 2, strings.Count(out.String(), "title:    春晓"))
}

func TestSearchLoop_ErrorsDoNotStopLoop(t *testing.T) {
	s := &stubSearcher{err: errors.New("ollama service error: Bad Gateway - ")}
	var out bytes.Buffer

	err := searchLoop(context.Background(), strings.NewReader("a\nb\n"), &out, s, models.SearchOptions{})
	require.NoError(t, err)

	assert.Len(t, s.queries, 2)
	assert.Equal(t, 2, strings.Count(out.String(), "search failed: ollama service error: Bad Gateway"))
}

func TestApp_Flags(t *testing.T) {
	app := newApp()
	app.Writer = &bytes.Buffer{}
	app.ErrWriter = &bytes.Buffer{}
	app.ExitErrHandler = func(*cli.Context, error) {}

	t.Run("ingest requires file", func(t *testing.T) {
		err := app.Run([]string{"poemctl", "ingest"})
		assert.ErrorContains(t, err, `Required flag "file" not set`)
	})

	t.Run("ingest reports missing file", func(t *testing.T) {
		err := app.Run([]string{"poemctl", "ingest", "--file", "/nonexistent/poems.jsonl"})
		assert.ErrorContains(t, err, "open input")
	})

	t.Run("delete needs an id", func(t *testing.T) {
		err := app.Run([]string{"poemctl", "delete"})
		assert.ErrorContains(t, err, "exactly one poem id")
	})
}

func TestJoinArgs(t *testing.T) {
	assert.Equal(t, "spring rain", joinArgs([]string{"spring", "rain"}))
	assert.Equal(t, "", joinArgs(nil))
}
