package server

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/poem-search-api/internal/config"
	"github.com/poem-search-api/pkg/logger"
	schemaconfig "github.com/poem-search-api/pkg/schema/config"
)

// Serve runs one surface with configuration from the environment until
// SIGINT or SIGTERM.
func Serve(surface Surface) error {
	cfg := config.GetConfig()
	schemaCfg := schemaconfig.GetConfig()

	log, err := logger.New(cfg, string(surface))
	if err != nil {
		return fmt.Errorf("create logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	deps, err := NewDependencies(ctx, cfg, schemaCfg, log)
	if err != nil {
		return fmt.Errorf("initialize dependencies: %w", err)
	}
	defer func() {
		if err := deps.Close(); err != nil {
			log.Warn("error closing upstream clients", zap.Error(err))
		}
	}()

	srv, err := New(surface, cfg, deps, log)
	if err != nil {
		return err
	}

	if err := srv.Run(ctx); err != nil {
		return err
	}
	log.Info("server stopped")
	return nil
}
