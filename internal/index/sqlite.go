package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/stratalens-ai/stratalens/internal/embedding"
	"github.com/stratalens-ai/stratalens/internal/knowledge"
	"github.com/stratalens-ai/stratalens/internal/model"

	_ "modernc.org/sqlite" // registers the "sqlite" database/sql driver
)

// SQLite is an Index backed by one SQLite file per company. Rebuild writes
// a complete new database under a unique temp name and renames it over the
// live file, so readers always see a consistent index. Concurrent rebuilds
// of the same company are safe: last rename wins.
type SQLite struct {
	dir      string
	gatherer *knowledge.Gatherer
	chunker  *knowledge.Chunker
	embedder embedding.Provider
	logger   *slog.Logger
}

// NewSQLite creates a SQLite index rooted at dir, creating dir if needed.
func NewSQLite(dir string, g *knowledge.Gatherer, c *knowledge.Chunker, e embedding.Provider, logger *slog.Logger) (*SQLite, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("index: create index dir: %w", err)
	}
	return &SQLite{dir: dir, gatherer: g, chunker: c, embedder: e, logger: logger}, nil
}

func (s *SQLite) path(companyID uuid.UUID) string {
	return filepath.Join(s.dir, fmt.Sprintf("idx_%s.db", companyID))
}

// Rebuild gathers, chunks, embeds, and atomically replaces the company's
// index file. Zero chunks skips the write and leaves any existing index in
// place.
func (s *SQLite) Rebuild(ctx context.Context, companyID uuid.UUID) error {
	chunks, err := collectChunks(ctx, s.gatherer, s.chunker, companyID)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		s.logger.Warn("index: no chunks to index, skipping rebuild", "company_id", companyID)
		return nil
	}

	vectors, err := embedChunks(ctx, s.embedder, chunks)
	if err != nil {
		return err
	}

	tmp := s.path(companyID) + ".tmp." + uuid.NewString()
	if err := s.writeIndexFile(ctx, tmp, chunks, vectors); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, s.path(companyID)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("index: activate new index: %w", err)
	}
	s.logger.Info("index: rebuilt", "company_id", companyID, "chunks", len(chunks))
	return nil
}

func (s *SQLite) writeIndexFile(ctx context.Context, path string, chunks []model.KnowledgeChunk, vectors []pgvector.Vector) error {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return fmt.Errorf("index: open new index: %w", err)
	}
	defer db.Close()

	if _, err := db.ExecContext(ctx, `CREATE TABLE chunks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		text TEXT NOT NULL,
		source TEXT NOT NULL,
		entity_name TEXT NOT NULL,
		seq INTEGER NOT NULL,
		embedding TEXT NOT NULL
	)`); err != nil {
		return fmt.Errorf("index: create schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("index: begin write: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (text, source, entity_name, seq, embedding) VALUES (?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("index: prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, ch := range chunks {
		emb, err := json.Marshal(vectors[i].Slice())
		if err != nil {
			return fmt.Errorf("index: encode embedding: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, ch.Text, string(ch.Source), ch.EntityName, ch.Seq, string(emb)); err != nil {
			return fmt.Errorf("index: insert chunk: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("index: commit index write: %w", err)
	}
	return nil
}

// Query loads the company's index, builds it on demand if missing, and
// returns the top-k chunks by cosine similarity to the question text.
func (s *SQLite) Query(ctx context.Context, companyID uuid.UUID, text string, k int) ([]ScoredChunk, error) {
	if k <= 0 {
		k = DefaultTopK
	}

	path := s.path(companyID)
	if _, err := os.Stat(path); err != nil {
		s.logger.Warn("index: missing index, attempting build", "company_id", companyID)
		if err := s.Rebuild(ctx, companyID); err != nil {
			return nil, fmt.Errorf("index: build on demand: %w", err)
		}
		if _, err := os.Stat(path); err != nil {
			return nil, ErrIndexUnavailable
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("index: open index: %w", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `SELECT text, source, entity_name, seq, embedding FROM chunks`)
	if err != nil {
		return nil, fmt.Errorf("index: read chunks: %w", err)
	}
	defer rows.Close()

	var chunks []model.KnowledgeChunk
	var corpus [][]float32
	for rows.Next() {
		var ch model.KnowledgeChunk
		var source, emb string
		if err := rows.Scan(&ch.Text, &source, &ch.EntityName, &ch.Seq, &emb); err != nil {
			return nil, fmt.Errorf("index: scan chunk: %w", err)
		}
		ch.Source = model.ChunkSource(source)
		var vec []float32
		if err := json.Unmarshal([]byte(emb), &vec); err != nil {
			return nil, fmt.Errorf("index: decode embedding: %w", err)
		}
		chunks = append(chunks, ch)
		corpus = append(corpus, vec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("index: read chunks: %w", err)
	}
	if len(chunks) == 0 {
		return nil, ErrIndexUnavailable
	}

	queryVec, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, fmt.Errorf("index: embed query: %w", err)
	}

	ranked := embedding.TopK(queryVec.Slice(), corpus, k)
	out := make([]ScoredChunk, 0, len(ranked))
	for _, r := range ranked {
		out = append(out, ScoredChunk{Chunk: chunks[r.Index], Score: float32(r.Similarity)})
	}
	return out, nil
}
