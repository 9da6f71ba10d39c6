package index

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"github.com/qdrant/go-client/qdrant"
	"golang.org/x/sync/singleflight"

	"github.com/stratalens-ai/stratalens/internal/embedding"
	"github.com/stratalens-ai/stratalens/internal/knowledge"
	"github.com/stratalens-ai/stratalens/internal/model"
)

// upsertBatchSize bounds one Qdrant upsert call during rebuild.
const upsertBatchSize = 100

// QdrantConfig holds configuration for connecting to Qdrant.
type QdrantConfig struct {
	URL              string // e.g. "https://xyz.cloud.qdrant.io:6333" or "http://localhost:6333"
	APIKey           string
	CollectionPrefix string
	Dims             uint64
}

// Qdrant is an Index backed by Qdrant. Each company gets a
// generation-suffixed collection plus a stable alias; a rebuild fills a
// fresh generation, repoints the alias, and drops older generations, so
// queries through the alias never see a half-built index.
type Qdrant struct {
	client   *qdrant.Client
	prefix   string
	dims     uint64
	gatherer *knowledge.Gatherer
	chunker  *knowledge.Chunker
	embedder embedding.Provider
	logger   *slog.Logger

	healthGroup singleflight.Group
	healthErr   atomic.Value // stores *error (pointer-to-error, never nil pointer; inner error may be nil)
	healthAt    atomic.Int64 // unix nanos of last check
}

// parseQdrantURL extracts host, port, and TLS flag from a Qdrant URL.
// Accepts forms like "https://host:6333", "http://host:6333", or "host:6334".
func parseQdrantURL(rawURL string) (host string, port int, useTLS bool, err error) {
	u, parseErr := url.Parse(rawURL)
	if parseErr != nil || u.Host == "" {
		return "", 0, false, fmt.Errorf("index: invalid qdrant URL: %q", rawURL)
	}

	useTLS = u.Scheme == "https"
	host = u.Hostname()

	if portStr := u.Port(); portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return "", 0, false, fmt.Errorf("index: invalid port in qdrant URL: %q", portStr)
		}
		// If the user specified the REST port (6333), use the gRPC port (6334).
		if p == 6333 {
			port = 6334
		} else {
			port = p
		}
	} else {
		port = 6334
	}

	return host, port, useTLS, nil
}

// NewQdrant creates a Qdrant index and connects to the server via gRPC.
func NewQdrant(cfg QdrantConfig, g *knowledge.Gatherer, c *knowledge.Chunker, e embedding.Provider, logger *slog.Logger) (*Qdrant, error) {
	host, port, useTLS, err := parseQdrantURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("index: connect to qdrant at %s:%d: %w", host, port, err)
	}

	prefix := cfg.CollectionPrefix
	if prefix == "" {
		prefix = "chunks"
	}
	dims := cfg.Dims
	if dims == 0 {
		dims = uint64(e.Dimensions()) //nolint:gosec // dimensions are small positive constants
	}

	return &Qdrant{
		client:   client,
		prefix:   prefix,
		dims:     dims,
		gatherer: g,
		chunker:  c,
		embedder: e,
		logger:   logger,
	}, nil
}

// alias is the stable per-company name queries go through.
func (q *Qdrant) alias(companyID uuid.UUID) string {
	return fmt.Sprintf("%s_%s", q.prefix, companyID)
}

// generationPrefix is what every generation collection for a company
// starts with; the suffix is the creation time in unix nanos.
func (q *Qdrant) generationPrefix(companyID uuid.UUID) string {
	return fmt.Sprintf("%s_%s_", q.prefix, companyID)
}

// Rebuild gathers, chunks, embeds, writes a new generation collection,
// then swaps the company alias to it and drops older generations. Zero
// chunks skips the write and leaves any existing generation in place.
func (q *Qdrant) Rebuild(ctx context.Context, companyID uuid.UUID) error {
	chunks, err := collectChunks(ctx, q.gatherer, q.chunker, companyID)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		q.logger.Warn("index: no chunks to index, skipping rebuild", "company_id", companyID)
		return nil
	}

	vectors, err := embedChunks(ctx, q.embedder, chunks)
	if err != nil {
		return err
	}

	generation := fmt.Sprintf("%s%d", q.generationPrefix(companyID), time.Now().UnixNano())

	m := uint64(16)
	efConstruct := uint64(128)
	if err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: generation,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     q.dims,
			Distance: qdrant.Distance_Cosine,
			HnswConfig: &qdrant.HnswConfigDiff{
				M:           &m,
				EfConstruct: &efConstruct,
			},
		}),
	}); err != nil {
		return fmt.Errorf("index: create collection %q: %w", generation, err)
	}

	if err := q.upsertChunks(ctx, generation, chunks, vectors); err != nil {
		if delErr := q.client.DeleteCollection(ctx, generation); delErr != nil {
			q.logger.Warn("index: drop failed generation", "collection", generation, "error", delErr)
		}
		return err
	}

	// Repoint the alias, then clean up superseded generations. A query
	// racing the swap sees the previous generation, never a partial one.
	alias := q.alias(companyID)
	if err := q.client.DeleteAlias(ctx, alias); err != nil {
		q.logger.Debug("index: no previous alias to remove", "alias", alias, "error", err)
	}
	if err := q.client.CreateAlias(ctx, alias, generation); err != nil {
		return fmt.Errorf("index: point alias %q at %q: %w", alias, generation, err)
	}
	q.dropStaleGenerations(ctx, companyID, generation)

	q.logger.Info("index: rebuilt", "company_id", companyID, "collection", generation, "chunks", len(chunks))
	return nil
}

func (q *Qdrant) upsertChunks(ctx context.Context, collection string, chunks []model.KnowledgeChunk, vectors []pgvector.Vector) error {
	for start := 0; start < len(chunks); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(chunks))

		points := make([]*qdrant.PointStruct, 0, end-start)
		for i := start; i < end; i++ {
			ch := chunks[i]
			points = append(points, &qdrant.PointStruct{
				Id:      qdrant.NewID(uuid.NewString()),
				Vectors: qdrant.NewVectorsDense(vectors[i].Slice()),
				Payload: qdrant.NewValueMap(map[string]any{
					"text":        ch.Text,
					"source":      string(ch.Source),
					"entity_name": ch.EntityName,
					"seq":         int64(ch.Seq),
				}),
			})
		}

		if _, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: collection,
			Wait:           qdrant.PtrOf(true),
			Points:         points,
		}); err != nil {
			return fmt.Errorf("index: qdrant upsert %d points: %w", len(points), err)
		}
	}
	return nil
}

// dropStaleGenerations removes every generation collection for the
// company except current. Failures are logged, not propagated; a stale
// generation costs storage, not correctness.
func (q *Qdrant) dropStaleGenerations(ctx context.Context, companyID uuid.UUID, current string) {
	names, err := q.client.ListCollections(ctx)
	if err != nil {
		q.logger.Warn("index: list collections for cleanup", "error", err)
		return
	}
	prefix := q.generationPrefix(companyID)
	for _, name := range names {
		if name == current || !strings.HasPrefix(name, prefix) {
			continue
		}
		if err := q.client.DeleteCollection(ctx, name); err != nil {
			q.logger.Warn("index: drop stale generation", "collection", name, "error", err)
		}
	}
}

// hasGeneration reports whether any generation collection exists for the
// company.
func (q *Qdrant) hasGeneration(ctx context.Context, companyID uuid.UUID) (bool, error) {
	names, err := q.client.ListCollections(ctx)
	if err != nil {
		return false, fmt.Errorf("index: list collections: %w", err)
	}
	prefix := q.generationPrefix(companyID)
	for _, name := range names {
		if strings.HasPrefix(name, prefix) {
			return true, nil
		}
	}
	return false, nil
}

// Query embeds the question and returns the top-k chunks from the
// company's current generation, building the index on demand when none
// exists yet.
func (q *Qdrant) Query(ctx context.Context, companyID uuid.UUID, text string, k int) ([]ScoredChunk, error) {
	if k <= 0 {
		k = DefaultTopK
	}

	exists, err := q.hasGeneration(ctx, companyID)
	if err != nil {
		return nil, err
	}
	if !exists {
		q.logger.Warn("index: missing index, attempting build", "company_id", companyID)
		if err := q.Rebuild(ctx, companyID); err != nil {
			return nil, fmt.Errorf("index: build on demand: %w", err)
		}
		exists, err = q.hasGeneration(ctx, companyID)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, ErrIndexUnavailable
		}
	}

	queryVec, err := q.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("index: embed query: %w", err)
	}

	limit := uint64(k) //nolint:gosec // k is a small positive constant
	scored, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.alias(companyID),
		Query:          qdrant.NewQueryDense(queryVec.Slice()),
		Limit:          &limit,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("index: qdrant query: %w", err)
	}

	out := make([]ScoredChunk, 0, len(scored))
	for _, sp := range scored {
		payload := sp.Payload
		if payload == nil {
			continue
		}
		out = append(out, ScoredChunk{
			Chunk: model.KnowledgeChunk{
				Text:       payload["text"].GetStringValue(),
				Source:     model.ChunkSource(payload["source"].GetStringValue()),
				EntityName: payload["entity_name"].GetStringValue(),
				Seq:        int(payload["seq"].GetIntegerValue()),
			},
			Score: sp.Score,
		})
	}
	return out, nil
}

// Healthy returns nil if Qdrant is reachable. Results are cached for 5
// seconds to avoid hammering the health endpoint on every request.
// Concurrent calls after cache expiry are deduplicated via singleflight
// so only one gRPC call is made; all waiters share its result.
func (q *Qdrant) Healthy(ctx context.Context) error {
	// Fast path: return the cached result if fresh.
	if time.Since(time.Unix(0, q.healthAt.Load())) < 5*time.Second {
		return q.loadHealthErr()
	}

	// Deduplicate concurrent checks. Use context.Background() instead of
	// the caller's ctx because singleflight reuses the first caller's
	// context; if that caller cancels, all waiters would get a stale error.
	result, _, _ := q.healthGroup.Do("health", func() (any, error) {
		checkCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		_, err := q.client.HealthCheck(checkCtx)
		if err != nil {
			q.storeHealthErr(fmt.Errorf("index: qdrant unhealthy: %w", err))
		} else {
			q.storeHealthErr(nil)
		}
		q.healthAt.Store(time.Now().UnixNano())
		return q.loadHealthErr(), nil
	})
	if result == nil {
		return nil
	}
	return result.(error)
}

// storeHealthErr stores an error (or nil) in the atomic.Value.
// atomic.Value cannot store nil directly, so we wrap it in a pointer.
func (q *Qdrant) storeHealthErr(err error) {
	q.healthErr.Store(&err)
}

// loadHealthErr loads the cached health error.
func (q *Qdrant) loadHealthErr() error {
	v := q.healthErr.Load()
	if v == nil {
		return nil
	}
	return *v.(*error)
}

// Close shuts down the Qdrant gRPC connection.
func (q *Qdrant) Close() error {
	return q.client.Close()
}
