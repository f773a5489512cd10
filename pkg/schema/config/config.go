package config

import (
	"os"
	"strconv"
	"sync"
	"time"
)

// Config holds configuration for embedding and vector storage operations.
// It is shared by the API binaries and poemctl.
type Config struct {
	// Embeddings
	EmbeddingProvider string // "ollama", "openai" or "vertex"
	EmbeddingModel    string
	OllamaURL         string // For ollama provider

	// OpenAI-compatible endpoint (when EmbeddingProvider = "openai")
	OpenAIBaseURL string
	OpenAIAPIKey  string

	// Vertex AI (when EmbeddingProvider = "vertex")
	GCPProjectID string
	GCPLocation  string
	VertexModel  string

	// Qdrant
	QdrantURL        string
	QdrantAPIKey     string
	QdrantCollection string

	// PostgreSQL (pgvector and vertex backends)
	PostgresURI string

	// Per-call timeout for the embedding and vector services
	UpstreamTimeout time.Duration
}

// DefaultEmbeddingModel is the model the poem collection was embedded with.
const DefaultEmbeddingModel = "viosay/conan-embedding-v1"

var (
	config *Config
	once   sync.Once
)

// GetConfig returns the memoised configuration loaded from the environment.
func GetConfig() *Config {
	once.Do(func() {
		config = Load()
	})
	return config
}

// Load reads the configuration from the environment.
func Load() *Config {
	return &Config{
		// Embeddings
		EmbeddingProvider: getEnv("EMBEDDING_PROVIDER", "ollama"),
		EmbeddingModel:    getEnv("EMBEDDING_MODEL", DefaultEmbeddingModel),
		OllamaURL:         getEnv("OLLAMA_API_URL", "http://localhost:11434"),

		OpenAIBaseURL: getEnv("OPENAI_BASE_URL", "http://localhost:11434/v1"),
		OpenAIAPIKey:  getEnv("OPENAI_API_KEY", "none"),

		// Vertex AI
		GCPProjectID: getEnv("GCP_PROJECT_ID", ""),
		GCPLocation:  getEnv("GCP_LOCATION", "us-central1"),
		VertexModel:  getEnv("VERTEX_MODEL", "text-multilingual-embedding-002"),

		// Qdrant
		QdrantURL:        getEnv("QDRANT_URL", "http://localhost:6333"),
		QdrantAPIKey:     getEnv("QDRANT_API_KEY", ""),
		QdrantCollection: getEnv("QDRANT_COLLECTION", "poems_analysis"),

		// PostgreSQL
		PostgresURI: getEnv("POSTGRES_URI", ""),

		UpstreamTimeout: getEnvDuration("UPSTREAM_TIMEOUT", 30*time.Second),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		d, err := time.ParseDuration(value)
		if err != nil {
			// Bare numbers are seconds
			secs, convErr := strconv.Atoi(value)
			if convErr != nil {
				return defaultValue
			}
			return time.Duration(secs) * time.Second
		}
		return d
	}
	return defaultValue
}
