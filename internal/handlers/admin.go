package handlers

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/poem-search-api/internal/models"
)

// AdminHandler serves the admin surface: search with debug output and poem writes
type AdminHandler struct {
	search PoemSearcher
	editor PoemEditor
	logger *zap.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(search PoemSearcher, editor PoemEditor, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{search: search, editor: editor, logger: logger}
}

// Search handles POST /poems/search
func (h *AdminHandler) Search(c echo.Context) error {
	var req models.AdminSearchRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, http.StatusBadRequest, "Invalid request body")
	}
	if req.Query == "" {
		return respondError(c, http.StatusBadRequest, "Query is required")
	}

	ctx := c.Request().Context()

	if !req.Debug {
		results, err := h.search.Search(ctx, req.Query, req.Options)
		if err != nil {
			h.logger.Error("admin search failed", zap.String("query", req.Query), zap.Error(err))
			return respondError(c, http.StatusInternalServerError, errorMessage(err))
		}
		return respondResults(c, results)
	}

	results, vector, err := h.search.SearchDebug(ctx, req.Query, req.Options)
	if err != nil {
		h.logger.Error("admin debug search failed", zap.String("query", req.Query), zap.Error(err))
		return respondError(c, http.StatusInternalServerError, errorMessage(err))
	}
	if results == nil {
		results = []models.SearchResult{}
	}

	scores := make([]float64, len(results))
	for i, r := range results {
		scores[i] = r.Score
	}

	return c.JSON(http.StatusOK, models.SearchResponse{
		Success: true,
		Data:    results,
		Debug: &models.DebugInfo{
			VectorDetails:   true,
			VectorDimension: len(vector),
			QueryVector:     vector,
			RawScores:       scores,
		},
	})
}

// AddPoem handles POST /poems
func (h *AdminHandler) AddPoem(c echo.Context) error {
	var poem models.Poem
	if err := c.Bind(&poem); err != nil {
		return respondError(c, http.StatusBadRequest, "Invalid request body")
	}

	if err := h.editor.AddPoem(c.Request().Context(), poem); err != nil {
		h.logger.Error("add poem failed", zap.String("id", poem.ID), zap.Error(err))
		return respondError(c, statusFor(err), errorMessage(err))
	}

	h.logger.Info("poem added", zap.String("id", poem.ID))
	return c.JSON(http.StatusCreated, models.PoemWriteResponse{
		Success: true,
		Data:    models.PoemReference{ID: poem.ID},
	})
}

// UpdatePoem handles PUT /poems/:id
func (h *AdminHandler) UpdatePoem(c echo.Context) error {
	id := pathParam(c, "id")

	var poem models.Poem
	if err := c.Bind(&poem); err != nil {
		return respondError(c, http.StatusBadRequest, "Invalid request body")
	}

	if err := h.editor.UpdatePoem(c.Request().Context(), id, poem); err != nil {
		h.logger.Error("update poem failed", zap.String("id", id), zap.Error(err))
		return respondError(c, statusFor(err), errorMessage(err))
	}

	h.logger.Info("poem updated", zap.String("id", id))
	return c.JSON(http.StatusOK, models.PoemWriteResponse{
		Success: true,
		Data:    models.PoemReference{ID: id},
	})
}

// DeletePoem handles DELETE /poems/:id
func (h *AdminHandler) DeletePoem(c echo.Context) error {
	id := pathParam(c, "id")

	if err := h.editor.DeletePoem(c.Request().Context(), id); err != nil {
		h.logger.Error("delete poem failed", zap.String("id", id), zap.Error(err))
		return respondError(c, statusFor(err), errorMessage(err))
	}

	h.logger.Info("poem deleted", zap.String("id", id))
	return c.NoContent(http.StatusNoContent)
}

// RegisterRoutes registers admin routes
func (h *AdminHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/poems/search", h.Search)
	g.POST("/poems", h.AddPoem)
	g.PUT("/poems/:id", h.UpdatePoem)
	g.DELETE("/poems/:id", h.DeletePoem)
}
