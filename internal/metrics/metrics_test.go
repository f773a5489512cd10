package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMiddleware_RecordsRoutePattern(t *testing.T) {
	e := echo.New()
	e.Use(Middleware())
	e.GET("/poems/theme/:theme", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/poems/theme/:theme", "200"))

	req := httptest.NewRequest(http.MethodGet, "/poems/theme/spring", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/poems/theme/:theme", "200"))
	assert.Equal(t, before+1, after)
}

func TestMiddleware_RecordsErrorStatus(t *testing.T) {
	e := echo.New()
	e.Use(Middleware())
	e.GET("/boom", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusBadGateway, "upstream down")
	})

	req := httptest.NewRequest(http.MethodGet, "/boom", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.GreaterOrEqual(t, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/boom", "502")), 1.0)
}

func TestMiddleware_PropagatesHandlerError(t *testing.T) {
	e := echo.New()
	handlerErr := echo.NewHTTPError(http.StatusBadRequest, "bad body")
	h := Middleware()(func(c echo.Context) error { return handlerErr })

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodPost, "/poems", http.NoBody), rec)

	err := h(c)
	assert.Same(t, handlerErr, err)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestObserveEmbedding(t *testing.T) {
	before := testutil.ToFloat64(EmbeddingRequestsTotal.WithLabelValues("test", "error"))
	ObserveEmbedding("test", time.Now(), errors.New("down"))
	assert.Equal(t, before+1, testutil.ToFloat64(EmbeddingRequestsTotal.WithLabelValues("test", "error")))

	before = testutil.ToFloat64(EmbeddingRequestsTotal.WithLabelValues("test", "success"))
	ObserveEmbedding("test", time.Now(), nil)
	assert.Equal(t, before+1, testutil.ToFloat64(EmbeddingRequestsTotal.WithLabelValues("test", "success")))
}

func TestObserveSearch(t *testing.T) {
	before := testutil.ToFloat64(VectorSearchRequestsTotal.WithLabelValues("test", "success"))
	ObserveSearch("test", time.Now(), nil)
	assert.Equal(t, before+1, testutil.ToFloat64(VectorSearchRequestsTotal.WithLabelValues("test", "success")))
}

func TestNormalizePath(t *testing.T) {
	assert.Equal(t, "unknown", normalizePath(""))
	assert.Equal(t, "/health", normalizePath("/health"))
}
