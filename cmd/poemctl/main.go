package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/poem-search-api/internal/config"
	"github.com/poem-search-api/internal/ingest"
	"github.com/poem-search-api/internal/models"
	"github.com/poem-search-api/internal/repository/postgres"
	"github.com/poem-search-api/internal/repository/vertex"
	"github.com/poem-search-api/internal/server"
	"github.com/poem-search-api/pkg/logger"
	schemaconfig "github.com/poem-search-api/pkg/schema/config"
	"github.com/poem-search-api/pkg/schema/db"
)

func main() {
	// Load .env file if present
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "poemctl",
		Usage: "Load and query the poem vector index",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "Embed analysed poems from a JSONL file and store them",
				Action:    ingestCommand,
				ArgsUsage: " ",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "file",
						Aliases:  []string{"f"},
						Usage:    "Path to the JSONL file of analysed poems",
						Required: true,
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of poems per upsert",
						Value: ingest.DefaultBatchSize,
					},
					&cli.IntFlag{
						Name:  "workers",
						Usage: "Number of concurrent embedding requests",
						Value: 4,
					},
					&cli.Float64Flag{
						Name:  "rate",
						Usage: "Maximum embedding requests per second (0 for no limit)",
						Value: 10,
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Search poems; without a query, read queries interactively",
				Action:    searchCommand,
				ArgsUsage: "[query]",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "Number of results",
						Value:   models.DefaultLimit,
					},
					&cli.Float64Flag{
						Name:  "min-score",
						Usage: "Minimum similarity score",
						Value: 0,
					},
				},
			},
			{
				Name:   "export",
				Usage:  "Export pgvector embeddings as a Vertex AI Vector Search import file",
				Action: exportCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "Output JSONL file path",
						Value:   "embeddings.jsonl",
					},
				},
			},
			{
				Name:   "sync-vertex",
				Usage:  "Stream pgvector embeddings into the Vertex AI Vector Search index",
				Action: syncVertexCommand,
			},
			{
				Name:      "delete",
				Usage:     "Remove a poem from the index",
				Action:    deleteCommand,
				ArgsUsage: "<id>",
			},
		},
	}
}

// withDependencies builds a logger and the upstream clients for one command.
func withDependencies(c *cli.Context, fn func(*server.Dependencies, *zap.Logger) error) error {
	cfg := config.GetConfig()

	logCfg := *cfg
	if level := c.String("log-level"); level != "" {
		logCfg.LogLevel = level
	}
	log, err := logger.New(&logCfg, "poemctl")
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	deps, err := server.NewDependencies(c.Context, cfg, schemaconfig.GetConfig(), log)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}
	defer func() {
		if err := deps.Close(); err != nil {
			log.Warn("error closing upstream clients", zap.Error(err))
		}
	}()

	return fn(deps, log)
}

func ingestCommand(c *cli.Context) error {
	file, err := os.Open(c.String("file"))
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer file.Close()

	return withDependencies(c, func(deps *server.Dependencies, log *zap.Logger) error {
		pipeline, err := ingest.NewPipeline(deps.Embeddings, deps.Store,
			ingest.WithWorkers(c.Int("workers")),
			ingest.WithRateLimit(c.Float64("rate")),
			ingest.WithBatchSize(c.Int("batch-size")),
			ingest.WithLogger(log),
		)
		if err != nil {
			return err
		}
		defer pipeline.Release()

		stats, err := pipeline.Run(c.Context, file)
		fmt.Fprintf(c.App.Writer, "processed: %d, skipped: %d, failed: %d\n", stats.Processed, stats.Skipped, stats.Failed)
		return err
	})
}

func searchCommand(c *cli.Context) error {
	opts := models.SearchOptions{Limit: c.Int("limit"), MinScore: c.Float64("min-score")}

	return withDependencies(c, func(deps *server.Dependencies, _ *zap.Logger) error {
		if c.Args().Len() > 0 {
			results, err := deps.Search.Search(c.Context, joinArgs(c.Args().Slice()), opts)
			if err != nil {
				return err
			}
			printResults(c.App.Writer, results)
			return nil
		}
		return searchLoop(c.Context, c.App.Reader, c.App.Writer, deps.Search, opts)
	})
}

func deleteCommand(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return cli.Exit("delete takes exactly one poem id", 1)
	}
	id := c.Args().First()

	return withDependencies(c, func(deps *server.Dependencies, _ *zap.Logger) error {
		if err := deps.Search.DeletePoem(c.Context, id); err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "deleted %s\n", id)
		return nil
	})
}

// exportCommand reads embeddings straight from Postgres, whatever VECTOR_BACKEND is.
func exportCommand(c *cli.Context) error {
	pgDB, err := db.OpenPostgres(c.Context, schemaconfig.GetConfig().PostgresURI)
	if err != nil {
		return err
	}
	defer pgDB.Close()

	output := c.String("output")
	f, err := os.Create(output)
	if err != nil {
		return fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	w := vertex.NewDatapointWriter(f)
	count, err := postgres.NewPoemRepository(pgDB).EachEmbedding(c.Context, w.Write)
	if err != nil {
		return fmt.Errorf("export embeddings: %w", err)
	}

	fmt.Fprintf(c.App.Writer, "exported %d embeddings to %s\n", count, output)
	return nil
}

func syncVertexCommand(c *cli.Context) error {
	cfg := config.GetConfig()

	pgDB, err := db.OpenPostgres(c.Context, schemaconfig.GetConfig().PostgresURI)
	if err != nil {
		return err
	}
	defer pgDB.Close()

	syncer, err := vertex.NewIndexSyncer(c.Context, cfg.VertexProjectID, cfg.VertexLocation, cfg.VertexIndexID)
	if err != nil {
		return err
	}
	defer syncer.Close()

	_, err = postgres.NewPoemRepository(pgDB).EachEmbedding(c.Context, func(id, author string, embedding []float32) error {
		return syncer.Add(c.Context, id, author, embedding)
	})
	if err != nil {
		return fmt.Errorf("sync embeddings: %w", err)
	}
	if err := syncer.Flush(c.Context); err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "upserted %d datapoints\n", syncer.Total())
	return nil
}
