package handlers

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/poem-search-api/internal/models"
)

const (
	mcpResponseType = "poems_search"
	mcpErrorType    = "error"
)

// MCPHandler serves search to MCP tool consumers
type MCPHandler struct {
	search PoemSearcher
	logger *zap.Logger
	now    func() time.Time
}

// NewMCPHandler creates a new MCP handler
func NewMCPHandler(search PoemSearcher, logger *zap.Logger) *MCPHandler {
	return &MCPHandler{search: search, logger: logger, now: time.Now}
}

// Search handles POST /poems/search
func (h *MCPHandler) Search(c echo.Context) error {
	var req models.MCPSearchRequest
	if err := c.Bind(&req); err != nil {
		return h.respondError(c, http.StatusBadRequest, "Invalid request body")
	}
	if req.Query == "" {
		return h.respondError(c, http.StatusBadRequest, "Query is required")
	}

	results, err := h.search.Search(c.Request().Context(), req.Query, req.Parameters)
	if err != nil {
		h.logger.Error("mcp search failed", zap.String("query", req.Query), zap.Error(err))
		return h.respondError(c, http.StatusInternalServerError, errorMessage(err))
	}
	if results == nil {
		results = []models.SearchResult{}
	}

	return c.JSON(http.StatusOK, models.MCPSearchResponse{
		ResponseType: mcpResponseType,
		Data:         results,
		Metadata: models.MCPMetadata{
			Total:     len(results),
			QueryTime: h.now().UnixMilli(),
		},
	})
}

func (h *MCPHandler) respondError(c echo.Context, status int, message string) error {
	return c.JSON(status, models.MCPErrorResponse{ResponseType: mcpErrorType, Error: message})
}

// RegisterRoutes registers MCP routes
func (h *MCPHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/poems/search", h.Search)
}
