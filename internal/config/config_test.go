package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "memory", cfg.StoreBackend)
	assert.Equal(t, "sqlite", cfg.IndexBackend)
	assert.Equal(t, "gemini-2.5-flash", cfg.GeminiModel)
	assert.Equal(t, 768, cfg.EmbeddingDimensions)
	assert.Equal(t, 1000, cfg.ChunkSize)
	assert.Equal(t, 200, cfg.ChunkOverlap)
	assert.Equal(t, 4, cfg.ResearchParallel)
	assert.Equal(t, 30, cfg.NewsDaysBack)
	assert.Equal(t, 3, cfg.ExtractRetries)
	assert.Equal(t, 500*time.Millisecond, cfg.ExtractDelay)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("STRATALENS_STORE", "postgres")
	t.Setenv("DATABASE_URL", "postgres://stratalens:pw@localhost:5432/stratalens")
	t.Setenv("STRATALENS_INDEX", "qdrant")
	t.Setenv("QDRANT_URL", "https://cluster.cloud.qdrant.io:6333")
	t.Setenv("STRATALENS_RESEARCH_PARALLEL", "8")
	t.Setenv("STRATALENS_EXTRACT_DELAY", "2s")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.StoreBackend)
	assert.Equal(t, "qdrant", cfg.IndexBackend)
	assert.Equal(t, 8, cfg.ResearchParallel)
	assert.Equal(t, 2*time.Second, cfg.ExtractDelay)
}

func TestValidatePostgresRequiresURL(t *testing.T) {
	t.Setenv("STRATALENS_STORE", "postgres")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_URL")
}

func TestValidateRejectsUnknownBackends(t *testing.T) {
	t.Setenv("STRATALENS_STORE", "etcd")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("STRATALENS_STORE", "memory")
	t.Setenv("STRATALENS_INDEX", "faiss")
	_, err = Load()
	require.Error(t, err)
}

func TestValidateChunkOverlapBounds(t *testing.T) {
	t.Setenv("STRATALENS_CHUNK_SIZE", "100")
	t.Setenv("STRATALENS_CHUNK_OVERLAP", "100")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "CHUNK_OVERLAP")
}

func TestEnvHelpersFallBackOnBadValues(t *testing.T) {
	t.Setenv("STRATALENS_RESEARCH_PARALLEL", "many")
	t.Setenv("STRATALENS_EXTRACT_DELAY", "soon")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.ResearchParallel)
	assert.Equal(t, 500*time.Millisecond, cfg.ExtractDelay)
}

func TestSlogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"info":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range cases {
		assert.Equal(t, want, Config{LogLevel: in}.SlogLevel(), "LogLevel=%q", in)
	}
}
