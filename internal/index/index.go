// Package index maintains the per-company retrieval index. A rebuild is a
// full replace: regather all company knowledge, rechunk, embed, write a
// fresh index, and atomically make it current. Concurrent queries see the
// old or the new index, never a partial one.
package index

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/stratalens-ai/stratalens/internal/embedding"
	"github.com/stratalens-ai/stratalens/internal/knowledge"
	"github.com/stratalens-ai/stratalens/internal/model"
)

// DefaultTopK is the number of chunks returned when the caller does not
// specify k.
const DefaultTopK = 5

// embedBatchSize bounds one embedding API call during rebuild.
const embedBatchSize = 100

// ErrIndexUnavailable is returned when a company has no index yet and one
// cannot be built, typically because there is no data to index.
var ErrIndexUnavailable = errors.New("index: unavailable")

// ScoredChunk is a retrieved chunk with its similarity score.
type ScoredChunk struct {
	Chunk model.KnowledgeChunk
	Score float32
}

// Index is the retrieval index over a company's knowledge.
type Index interface {
	// Rebuild replaces the company's index with a fresh one built from
	// current data. Zero gathered chunks skips the write and returns nil.
	Rebuild(ctx context.Context, companyID uuid.UUID) error

	// Query returns the k most similar chunks for the question text. It
	// returns ErrIndexUnavailable when no index exists and none can be
	// built.
	Query(ctx context.Context, companyID uuid.UUID, text string, k int) ([]ScoredChunk, error)
}

// collectChunks runs the gather-then-chunk half of a rebuild.
func collectChunks(ctx context.Context, g *knowledge.Gatherer, c *knowledge.Chunker, companyID uuid.UUID) ([]model.KnowledgeChunk, error) {
	docs, err := g.Gather(ctx, companyID)
	if err != nil {
		return nil, err
	}
	var chunks []model.KnowledgeChunk
	for _, doc := range docs {
		chunks = append(chunks, c.Split(doc)...)
	}
	return chunks, nil
}

// embedChunks embeds chunk texts in bounded batches, preserving order.
func embedChunks(ctx context.Context, provider embedding.Provider, chunks []model.KnowledgeChunk) ([]pgvector.Vector, error) {
	vectors := make([]pgvector.Vector, 0, len(chunks))
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := min(start+embedBatchSize, len(chunks))
		texts := make([]string, 0, end-start)
		for _, ch := range chunks[start:end] {
			texts = append(texts, ch.Text)
		}
		vecs, err := provider.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, fmt.Errorf("index: embed batch: %w", err)
		}
		if len(vecs) != len(texts) {
			return nil, fmt.Errorf("index: embed batch returned %d vectors for %d texts", len(vecs), len(texts))
		}
		vectors = append(vectors, vecs...)
	}
	return vectors, nil
}
