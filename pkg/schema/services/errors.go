package services

import (
	"fmt"
	"net/http"
)

// UpstreamEmbeddingError reports a failed call to the embedding provider.
type UpstreamEmbeddingError struct {
	Provider   string
	StatusCode int    // 0 when the request never got a response
	Body       string // upstream response body, or the transport error text
}

func (e *UpstreamEmbeddingError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s service error: %s", e.Provider, e.Body)
	}
	return fmt.Sprintf("%s service error: %s - %s", e.Provider, e.StatusText(), e.Body)
}

// StatusText is the reason phrase of the upstream status code.
func (e *UpstreamEmbeddingError) StatusText() string {
	if text := http.StatusText(e.StatusCode); text != "" {
		return text
	}
	return fmt.Sprintf("status %d", e.StatusCode)
}
