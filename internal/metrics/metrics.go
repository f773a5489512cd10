package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "poems"

var (
	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// EmbeddingRequestsTotal counts calls to the embedding provider.
	EmbeddingRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_requests_total",
			Help:      "Total number of embedding requests",
		},
		[]string{"provider", "status"},
	)

	// EmbeddingRequestDuration observes embedding provider latency.
	EmbeddingRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "embedding_request_duration_seconds",
			Help:      "Embedding request duration in seconds",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"provider"},
	)

	// VectorSearchRequestsTotal counts similarity queries per backend.
	VectorSearchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "vector_search_requests_total",
			Help:      "Total number of vector search requests",
		},
		[]string{"backend", "status"},
	)

	// VectorSearchDuration observes similarity query latency per backend.
	VectorSearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "vector_search_duration_seconds",
			Help:      "Vector search duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
		[]string{"backend"},
	)
)

func init() {
	prometheus.MustRegister(
		httpRequestDuration,
		httpRequestsTotal,
		EmbeddingRequestsTotal,
		EmbeddingRequestDuration,
		VectorSearchRequestsTotal,
		VectorSearchDuration,
	)
}

// ObserveEmbedding records the outcome of one embedding call.
func ObserveEmbedding(provider string, start time.Time, err error) {
	EmbeddingRequestsTotal.WithLabelValues(provider, outcome(err)).Inc()
	if err == nil {
		EmbeddingRequestDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
	}
}

// ObserveSearch records the outcome of one similarity query.
func ObserveSearch(backend string, start time.Time, err error) {
	VectorSearchRequestsTotal.WithLabelValues(backend, outcome(err)).Inc()
	if err == nil {
		VectorSearchDuration.WithLabelValues(backend).Observe(time.Since(start).Seconds())
	}
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// Middleware records HTTP request duration and count, labelled by route pattern.
func Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				// Write the error response now so the status is final; the
				// error still propagates to the request logger.
				c.Error(err)
			}

			status := strconv.Itoa(c.Response().Status)
			path := normalizePath(c.Path())
			method := c.Request().Method

			httpRequestDuration.WithLabelValues(method, path, status).Observe(time.Since(start).Seconds())
			httpRequestsTotal.WithLabelValues(method, path, status).Inc()
			return err
		}
	}
}

// normalizePath keeps label cardinality bounded for unmatched routes.
func normalizePath(path string) string {
	if path == "" {
		return "unknown"
	}
	return path
}
