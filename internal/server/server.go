package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/poem-search-api/internal/config"
	"github.com/poem-search-api/internal/handlers"
	"github.com/poem-search-api/internal/metrics"
	"github.com/poem-search-api/internal/middleware"
)

// Surface selects which API a binary serves
type Surface string

const (
	SurfacePublic Surface = "public"
	SurfaceAdmin  Surface = "admin"
	SurfaceMCP    Surface = "mcp"
)

const shutdownTimeout = 10 * time.Second

// Server is one API surface bound to its upstream clients
type Server struct {
	echo    *echo.Echo
	surface Surface
	port    string
	logger  *zap.Logger
}

// New builds the router for a surface. The search service comes from deps.
func New(surface Surface, cfg *config.Config, deps *Dependencies, logger *zap.Logger) (*Server, error) {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.RequestID())
	e.Use(middleware.RequestLogger(logger))
	e.Use(metrics.Middleware())
	e.Use(middleware.CORSMiddleware(cfg.CORSOrigins))

	handlers.NewHealthHandler(deps.Search, logger).RegisterRoutes(e.Group(""))
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	switch surface {
	case SurfacePublic:
		handlers.NewPublicHandler(deps.Search, logger).RegisterRoutes(e.Group("/v1/services"))
	case SurfaceAdmin:
		if len(cfg.AdminAPIKeys) == 0 {
			logger.Warn("ADMIN_API_KEYS is empty, admin endpoints are unauthenticated")
		}
		admin := e.Group("/v1/admin", middleware.BearerAuthMiddleware(cfg.AdminAPIKeys))
		handlers.NewAdminHandler(deps.Search, deps.Search, logger).RegisterRoutes(admin)
	case SurfaceMCP:
		handlers.NewMCPHandler(deps.Search, logger).RegisterRoutes(e.Group("/v1/mcp"))
	default:
		return nil, fmt.Errorf("unknown surface %q", surface)
	}

	return &Server{echo: e, surface: surface, port: cfg.Port, logger: logger}, nil
}

// Handler exposes the router
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Run serves until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context) error {
	addr := fmt.Sprintf(":%s", s.port)
	errCh := make(chan error, 1)

	go func() {
		s.logger.Info("starting poem search API", zap.String("surface", string(s.surface)), zap.String("addr", addr))
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("start server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown server: %w", err)
	}
	return nil
}
