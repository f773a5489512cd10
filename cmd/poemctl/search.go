package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/poem-search-api/internal/models"
)

type searcher interface {
	Search(ctx context.Context, query string, opts models.SearchOptions) ([]models.SearchResult, error)
}

func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// searchLoop reads one query per line until EOF or "q".
// A failed search is reported and the loop continues.
func searchLoop(ctx context.Context, in io.Reader, out io.Writer, s searcher, opts models.SearchOptions) error {
	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprintln(out, "\nEnter a query ('q' to quit):")
		if !scanner.Scan() {
			return scanner.Err()
		}

		query := strings.TrimSpace(scanner.Text())
		if strings.EqualFold(query, "q") {
			return nil
		}
		if query == "" {
			continue
		}

		results, err := s.Search(ctx, query, opts)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintf(out, "search failed: %v\n", err)
			continue
		}
		printResults(out, results)
	}
}

func printResults(out io.Writer, results []models.SearchResult) {
	if len(results) == 0 {
		fmt.Fprintln(out, "No matching poems.")
		return
	}

	fmt.Fprintf(out, "Found %d poems:\n\n", len(results))
	for _, r := range results {
		fmt.Fprintf(out, "score:    %.3f\n", r.Score)
		fmt.Fprintf(out, "title:    %s\n", r.Title)
		fmt.Fprintf(out, "author:   %s\n", r.Author)
		fmt.Fprintf(out, "content:  %s\n", r.Content)
		fmt.Fprintln(out, "--- analysis ---")
		fmt.Fprintf(out, "主题：%s\n", r.Analysis.Theme)
		fmt.Fprintf(out, "核心思想：%s\n", r.Analysis.CoreIdea)
		fmt.Fprintf(out, "适用场景：%s\n", r.Analysis.ApplicableScenario)
		fmt.Fprintf(out, "现代意义：%s\n", r.Analysis.ModernSignificance)
		fmt.Fprintln(out, strings.Repeat("=", 50))
	}
}
