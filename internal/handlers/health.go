package handlers

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// Pinger checks a dependency
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	vector Pinger
	logger *zap.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(vector Pinger, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{vector: vector, logger: logger}
}

// HealthResponse is the response for health checks
type HealthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Health handles GET /health
func (h *HealthHandler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// VectorHealth handles GET /health/vector
func (h *HealthHandler) VectorHealth(c echo.Context) error {
	if err := h.vector.Ping(c.Request().Context()); err != nil {
		h.logger.Warn("vector store health check failed", zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, HealthResponse{
			Status: "error",
			Error:  err.Error(),
		})
	}
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// RegisterRoutes registers health check routes
func (h *HealthHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/health", h.Health)
	g.GET("/health/vector", h.VectorHealth)
}
