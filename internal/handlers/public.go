package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/poem-search-api/internal/models"
)

// PublicHandler serves the public search surface
type PublicHandler struct {
	search PoemSearcher
	logger *zap.Logger
}

// NewPublicHandler creates a new public search handler
func NewPublicHandler(search PoemSearcher, logger *zap.Logger) *PublicHandler {
	return &PublicHandler{search: search, logger: logger}
}

// Search handles GET /poems/search?q=&limit=
func (h *PublicHandler) Search(c echo.Context) error {
	query := c.QueryParam("q")
	if query == "" {
		return respondError(c, http.StatusBadRequest, "Query parameter is required")
	}

	results, err := h.search.Search(c.Request().Context(), query, models.SearchOptions{Limit: queryLimit(c)})
	if err != nil {
		h.logger.Error("poem search failed", zap.String("query", query), zap.Error(err))
		return respondError(c, http.StatusInternalServerError, errorMessage(err))
	}
	return respondResults(c, results)
}

// SearchByTheme handles GET /poems/theme/:theme
func (h *PublicHandler) SearchByTheme(c echo.Context) error {
	theme := pathParam(c, "theme")
	if theme == "" {
		return respondError(c, http.StatusBadRequest, "Theme parameter is required")
	}

	results, err := h.search.SearchByTheme(c.Request().Context(), theme, models.SearchOptions{Limit: queryLimit(c)})
	if err != nil {
		h.logger.Error("theme search failed", zap.String("theme", theme), zap.Error(err))
		return respondError(c, http.StatusInternalServerError, errorMessage(err))
	}
	return respondResults(c, results)
}

// SearchByScenario handles GET /poems/scenario/:scenario
func (h *PublicHandler) SearchByScenario(c echo.Context) error {
	scenario := pathParam(c, "scenario")
	if scenario == "" {
		return respondError(c, http.StatusBadRequest, "Scenario parameter is required")
	}

	results, err := h.search.SearchByScenario(c.Request().Context(), scenario, models.SearchOptions{Limit: queryLimit(c)})
	if err != nil {
		h.logger.Error("scenario search failed", zap.String("scenario", scenario), zap.Error(err))
		return respondError(c, http.StatusInternalServerError, errorMessage(err))
	}
	return respondResults(c, results)
}

// RegisterRoutes registers public search routes
func (h *PublicHandler) RegisterRoutes(g *echo.Group) {
	g.GET("/poems/search", h.Search)
	g.GET("/poems/theme/:theme", h.SearchByTheme)
	g.GET("/poems/scenario/:scenario", h.SearchByScenario)
}
