package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/stratalens-ai/stratalens/internal/answer"
	"github.com/stratalens-ai/stratalens/internal/config"
	"github.com/stratalens-ai/stratalens/internal/embedding"
	"github.com/stratalens-ai/stratalens/internal/extract"
	"github.com/stratalens-ai/stratalens/internal/index"
	"github.com/stratalens-ai/stratalens/internal/intel"
	"github.com/stratalens-ai/stratalens/internal/knowledge"
	"github.com/stratalens-ai/stratalens/internal/llm"
	"github.com/stratalens-ai/stratalens/internal/mcp"
	"github.com/stratalens-ai/stratalens/internal/news"
	"github.com/stratalens-ai/stratalens/internal/research"
	"github.com/stratalens-ai/stratalens/internal/storage"
	"github.com/stratalens-ai/stratalens/internal/telemetry"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	stdio := flag.Bool("stdio", false, "serve MCP over stdio instead of streamable HTTP")
	flag.Parse()

	// The level is adjustable so config.Load can apply STRATALENS_LOG_LEVEL
	// once parsed; until then the logger runs at info.
	level := new(slog.LevelVar)
	// Stdio transport owns stdout, so logs go to stderr.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger, level, *stdio); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger, level *slog.LevelVar, stdio bool) error {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	level.Set(cfg.SlogLevel())

	slog.Info("stratalens starting", "version", version, "store", cfg.StoreBackend, "index", cfg.IndexBackend)

	// Initialize OpenTelemetry.
	otelShutdown, err := telemetry.Init(ctx, cfg.OTELEndpoint, cfg.ServiceName, version, cfg.OTELInsecure)
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	// Storage backend.
	var store storage.Store
	switch cfg.StoreBackend {
	case "postgres":
		db, err := storage.NewDB(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			return fmt.Errorf("storage: %w", err)
		}
		defer db.Close()
		store = db
		logger.Info("storage: postgres")
	default:
		store = storage.NewMemory()
		logger.Warn("storage: in-memory (data is lost on restart)")
	}

	// Generation client. All analysis, research, and answering goes through it.
	gemini, err := llm.NewGemini(llm.GeminiConfig{
		APIKey:  cfg.GeminiAPIKey,
		BaseURL: cfg.GeminiBaseURL,
		Model:   cfg.GeminiModel,
	}, logger)
	if err != nil {
		return fmt.Errorf("llm: %w", err)
	}

	embedder := newEmbeddingProvider(ctx, cfg, logger)

	// Knowledge index.
	gatherer := knowledge.NewGatherer(store, logger)
	chunker := knowledge.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)

	var idx index.Index
	switch cfg.IndexBackend {
	case "qdrant":
		qdrantIdx, err := index.NewQdrant(index.QdrantConfig{
			URL:    cfg.QdrantURL,
			APIKey: cfg.QdrantAPIKey,
			Dims:   uint64(embedder.Dimensions()), //nolint:gosec // validated positive in config.Validate
		}, gatherer, chunker, embedder, logger)
		if err != nil {
			return fmt.Errorf("index: %w", err)
		}
		defer func() { _ = qdrantIdx.Close() }()
		if err := qdrantIdx.Healthy(ctx); err != nil {
			logger.Warn("qdrant not reachable at startup", "error", err)
		}
		idx = qdrantIdx
		logger.Info("index: qdrant", "url", cfg.QdrantURL)
	default:
		sqliteIdx, err := index.NewSQLite(cfg.IndexDir, gatherer, chunker, embedder, logger)
		if err != nil {
			return fmt.Errorf("index: %w", err)
		}
		idx = sqliteIdx
		logger.Info("index: sqlite", "dir", cfg.IndexDir)
	}

	// News source: NewsAPI when a key is configured, otherwise the model
	// generates coverage from its own search grounding.
	var fetcher news.Fetcher
	if cfg.NewsAPIKey != "" {
		client, err := news.NewClient(cfg.NewsAPIKey, logger)
		if err != nil {
			return fmt.Errorf("news: %w", err)
		}
		fetcher = client
		logger.Info("news: newsapi")
	} else {
		fetcher = news.NewGenerated(gemini, logger)
		logger.Info("news: model-generated (no NEWS_API_KEY)")
	}

	policy := extract.Policy{
		MaxAttempts: cfg.ExtractRetries,
		BaseDelay:   cfg.ExtractDelay,
		Logger:      logger,
	}

	intelSvc := intel.NewService(store, gemini, fetcher, logger,
		intel.WithExtractPolicy(policy),
		intel.WithNewsDaysBack(cfg.NewsDaysBack))
	runner := research.NewRunner(store, gemini, logger)
	orch := research.NewOrchestrator(store, runner, idx, logger, cfg.ResearchParallel)
	answerer := answer.NewPipeline(idx, gemini, logger)

	mcpSrv := mcp.New(store, intelSvc, orch, answerer, logger)

	if stdio {
		logger.Info("serving MCP over stdio")
		if err := mcpserver.ServeStdio(mcpSrv.MCPServer()); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("stdio server: %w", err)
		}
		return nil
	}

	// Streamable HTTP transport.
	mux := http.NewServeMux()
	mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(mcpSrv.MCPServer()))
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		pingCtx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := store.Ping(pingCtx); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"status":"degraded"}`))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	httpSrv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // deep research tool calls are slow
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving MCP over streamable HTTP", "addr", httpSrv.Addr, "path", "/mcp")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	slog.Info("stratalens shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown error", "error", err)
	}
	slog.Info("stratalens stopped")
	return nil
}

// newEmbeddingProvider creates an embedding provider based on configuration.
// Provider selection: "genai", "openai", "noop", or "auto" (default). Auto
// mode reuses the Gemini key for embeddings, then OpenAI if a key is present,
// else noop.
func newEmbeddingProvider(ctx context.Context, cfg config.Config, logger *slog.Logger) embedding.Provider {
	dims := cfg.EmbeddingDimensions

	switch cfg.EmbeddingProvider {
	case "genai":
		p, err := embedding.NewGenAIProvider(ctx, cfg.GeminiAPIKey, cfg.EmbeddingModel)
		if err != nil {
			logger.Error("genai provider init failed", "error", err)
			return embedding.NewNoopProvider(dims)
		}
		logger.Info("embedding provider: genai", "dimensions", p.Dimensions())
		return p

	case "openai":
		if cfg.OpenAIAPIKey == "" {
			logger.Error("OPENAI_API_KEY required when STRATALENS_EMBEDDING_PROVIDER=openai")
			return embedding.NewNoopProvider(dims)
		}
		model := cfg.EmbeddingModel
		if model == "" {
			model = "text-embedding-3-small"
		}
		logger.Info("embedding provider: openai", "model", model)
		return embedding.NewOpenAIProvider(cfg.OpenAIAPIKey, model)

	case "noop":
		logger.Info("embedding provider: noop (retrieval ranks by zero vectors)")
		return embedding.NewNoopProvider(dims)

	case "auto":
		fallthrough
	default:
		if cfg.GeminiAPIKey != "" {
			if p, err := embedding.NewGenAIProvider(ctx, cfg.GeminiAPIKey, cfg.EmbeddingModel); err == nil {
				logger.Info("embedding provider: genai (auto-detected)", "dimensions", p.Dimensions())
				return p
			} else {
				logger.Warn("genai provider init failed, trying fallbacks", "error", err)
			}
		}
		if cfg.OpenAIAPIKey != "" {
			model := cfg.EmbeddingModel
			if model == "" {
				model = "text-embedding-3-small"
			}
			logger.Info("embedding provider: openai (auto-detected)", "model", model)
			return embedding.NewOpenAIProvider(cfg.OpenAIAPIKey, model)
		}
		logger.Warn("no embedding provider available, using noop")
		return embedding.NewNoopProvider(dims)
	}
}
