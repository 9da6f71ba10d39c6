// Package config loads and validates application configuration from environment variables.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Server settings.
	Port int // MCP streamable-HTTP port; stdio transport ignores it.

	// Storage settings.
	StoreBackend string // "memory" or "postgres"
	DatabaseURL  string

	// Generation settings.
	GeminiAPIKey     string
	GeminiModel      string
	GeminiBaseURL    string // Override for tests and proxies; empty uses the public endpoint.
	ResearchParallel int    // Max concurrent deep-research runs per batch.

	// Embedding provider settings.
	EmbeddingProvider   string // "auto", "genai", "openai", or "noop"
	OpenAIAPIKey        string
	EmbeddingModel      string
	EmbeddingDimensions int // Vector dimensions; must match the chosen model's output.

	// Index settings.
	IndexBackend string // "sqlite" or "qdrant"
	IndexDir     string // SQLite index directory.
	QdrantURL    string
	QdrantAPIKey string
	ChunkSize    int
	ChunkOverlap int

	// News settings.
	NewsAPIKey   string // Empty falls back to model-generated news.
	NewsDaysBack int

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Operational settings.
	LogLevel       string
	ExtractRetries int
	ExtractDelay   time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		Port:                envInt("STRATALENS_PORT", 8080),
		StoreBackend:        envStr("STRATALENS_STORE", "memory"),
		DatabaseURL:         envStr("DATABASE_URL", ""),
		GeminiAPIKey:        envStr("GOOGLE_API_KEY", ""),
		GeminiModel:         envStr("STRATALENS_GEMINI_MODEL", "gemini-2.5-flash"),
		GeminiBaseURL:       envStr("STRATALENS_GEMINI_BASE_URL", ""),
		ResearchParallel:    envInt("STRATALENS_RESEARCH_PARALLEL", 4),
		EmbeddingProvider:   envStr("STRATALENS_EMBEDDING_PROVIDER", "auto"),
		OpenAIAPIKey:        envStr("OPENAI_API_KEY", ""),
		EmbeddingModel:      envStr("STRATALENS_EMBEDDING_MODEL", ""),
		EmbeddingDimensions: envInt("STRATALENS_EMBEDDING_DIMENSIONS", 768),
		IndexBackend:        envStr("STRATALENS_INDEX", "sqlite"),
		IndexDir:            envStr("STRATALENS_INDEX_DIR", "./data/index"),
		QdrantURL:           envStr("QDRANT_URL", "http://localhost:6333"),
		QdrantAPIKey:        envStr("QDRANT_API_KEY", ""),
		ChunkSize:           envInt("STRATALENS_CHUNK_SIZE", 1000),
		ChunkOverlap:        envInt("STRATALENS_CHUNK_OVERLAP", 200),
		NewsAPIKey:          envStr("NEWS_API_KEY", ""),
		NewsDaysBack:        envInt("STRATALENS_NEWS_DAYS_BACK", 30),
		OTELEndpoint:        envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:        envBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		ServiceName:         envStr("OTEL_SERVICE_NAME", "stratalens"),
		LogLevel:            envStr("STRATALENS_LOG_LEVEL", "info"),
		ExtractRetries:      envInt("STRATALENS_EXTRACT_RETRIES", 3),
		ExtractDelay:        envDuration("STRATALENS_EXTRACT_DELAY", 500*time.Millisecond),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that required configuration is present and coherent.
func (c Config) Validate() error {
	switch c.StoreBackend {
	case "memory", "postgres":
	default:
		return fmt.Errorf("config: STRATALENS_STORE must be memory or postgres, got %q", c.StoreBackend)
	}
	if c.StoreBackend == "postgres" && c.DatabaseURL == "" {
		return fmt.Errorf("config: DATABASE_URL is required with the postgres store")
	}
	switch c.IndexBackend {
	case "sqlite", "qdrant":
	default:
		return fmt.Errorf("config: STRATALENS_INDEX must be sqlite or qdrant, got %q", c.IndexBackend)
	}
	if c.IndexBackend == "qdrant" && c.QdrantURL == "" {
		return fmt.Errorf("config: QDRANT_URL is required with the qdrant index")
	}
	if c.EmbeddingDimensions <= 0 {
		return fmt.Errorf("config: STRATALENS_EMBEDDING_DIMENSIONS must be positive")
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("config: STRATALENS_CHUNK_SIZE must be positive")
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("config: STRATALENS_CHUNK_OVERLAP must be in [0, chunk size)")
	}
	if c.ResearchParallel <= 0 {
		return fmt.Errorf("config: STRATALENS_RESEARCH_PARALLEL must be positive")
	}
	if c.ExtractRetries <= 0 {
		return fmt.Errorf("config: STRATALENS_EXTRACT_RETRIES must be positive")
	}
	return nil
}

// SlogLevel maps LogLevel onto a slog level. Unknown values mean info.
func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
