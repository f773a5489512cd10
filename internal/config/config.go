package config

import (
	"encoding/json"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Config holds all application configuration
type Config struct {
	// API Settings
	AppEnv   string
	LogLevel string
	Port     string

	// CORS
	CORSOrigins []string

	// Bearer keys accepted on the admin surface; empty disables auth
	AdminAPIKeys []string

	// Max concurrent embed+search pipelines; 0 is unbounded
	UpstreamMaxConcurrency int

	// Vector Search Backend: "qdrant", "pgvector" or "vertex"
	VectorBackend string

	// Vertex AI Vector Search settings (used when VectorBackend = "vertex")
	VertexProjectID            string
	VertexLocation             string
	VertexIndexID              string // index written by poemctl sync-vertex
	VertexIndexEndpointID      string
	VertexDeployedIndexID      string
	VertexPublicEndpointDomain string
}

var (
	config *Config
	once   sync.Once
)

// GetConfig returns the singleton configuration instance
func GetConfig() *Config {
	once.Do(func() {
		config = Load()
	})
	return config
}

// Load reads the configuration from the environment
func Load() *Config {
	return &Config{
		AppEnv:      getEnv("APP_ENV", "local"),
		LogLevel:    getEnv("LOG_LEVEL", ""),
		Port:        getEnv("PORT", "8080"),
		CORSOrigins: parseList(getEnv("CORS_ORIGINS", "*")),

		AdminAPIKeys: parseList(getEnv("ADMIN_API_KEYS", "")),

		UpstreamMaxConcurrency: getEnvInt("UPSTREAM_MAX_CONCURRENCY", 0),

		// Vector search backend configuration
		VectorBackend: getEnv("VECTOR_BACKEND", "qdrant"),

		// Vertex AI settings
		VertexProjectID:            getEnv("VERTEX_PROJECT_ID", ""),
		VertexLocation:             getEnv("VERTEX_LOCATION", "us-central1"),
		VertexIndexID:              getEnv("VERTEX_INDEX_ID", ""),
		VertexIndexEndpointID:      getEnv("VERTEX_INDEX_ENDPOINT_ID", ""),
		VertexDeployedIndexID:      getEnv("VERTEX_DEPLOYED_INDEX_ID", ""),
		VertexPublicEndpointDomain: getEnv("VERTEX_PUBLIC_ENDPOINT_DOMAIN", ""),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return defaultValue
		}
		return n
	}
	return defaultValue
}

// parseList accepts a JSON array or a comma separated list
func parseList(value string) []string {
	var items []string
	if err := json.Unmarshal([]byte(value), &items); err == nil {
		return items
	}
	parts := strings.Split(value, ",")
	items = make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			items = append(items, trimmed)
		}
	}
	return items
}
