package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/poem-search-api/internal/models"
	"github.com/poem-search-api/internal/repository"
	"github.com/poem-search-api/internal/services"
)

const unknownError = "Unknown error"

// PoemSearcher runs searches for the route handlers
type PoemSearcher interface {
	Search(ctx context.Context, query string, opts models.SearchOptions) ([]models.SearchResult, error)
	SearchDebug(ctx context.Context, query string, opts models.SearchOptions) ([]models.SearchResult, []float64, error)
	SearchByTheme(ctx context.Context, theme string, opts models.SearchOptions) ([]models.SearchResult, error)
	SearchByScenario(ctx context.Context, scenario string, opts models.SearchOptions) ([]models.SearchResult, error)
}

// PoemEditor writes poems for the admin handler
type PoemEditor interface {
	AddPoem(ctx context.Context, poem models.Poem) error
	UpdatePoem(ctx context.Context, id string, poem models.Poem) error
	DeletePoem(ctx context.Context, id string) error
}

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrInvalidPoem):
		return http.StatusBadRequest
	case errors.Is(err, repository.ErrPoemNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrReadOnlyStore):
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func errorMessage(err error) string {
	if err == nil || err.Error() == "" {
		return unknownError
	}
	return err.Error()
}

func respondError(c echo.Context, status int, message string) error {
	return c.JSON(status, models.ErrorResponse{Success: false, Error: message})
}

func respondResults(c echo.Context, results []models.SearchResult) error {
	if results == nil {
		results = []models.SearchResult{}
	}
	return c.JSON(http.StatusOK, models.SearchResponse{Success: true, Data: results})
}

// queryLimit reads ?limit=; anything unparsable leaves the default in place
func queryLimit(c echo.Context) int {
	n, err := strconv.Atoi(c.QueryParam("limit"))
	if err != nil {
		return 0
	}
	return n
}

func pathParam(c echo.Context, name string) string {
	value := c.Param(name)
	if unescaped, err := url.PathUnescape(value); err == nil {
		return unescaped
	}
	return value
}
