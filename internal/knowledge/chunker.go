// Package knowledge turns everything the service knows about a company into
// retrievable chunks: it gathers documents from the record store in a fixed
// order and splits them into fixed-size overlapping spans.
package knowledge

import (
	"github.com/stratalens-ai/stratalens/internal/model"
)

// DefaultChunkSize is the default number of characters per chunk.
const DefaultChunkSize = 1000

// DefaultChunkOverlap is the default number of overlapping characters.
const DefaultChunkOverlap = 200

// Chunker splits document text into fixed-size overlapping chunks.
type Chunker struct {
	chunkSize int
	overlap   int
}

// NewChunker creates a Chunker. Non-positive size or negative overlap fall
// back to defaults; overlap is clamped below the chunk size.
func NewChunker(size, overlap int) *Chunker {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = DefaultChunkOverlap
	}
	if overlap >= size {
		overlap = size / 4
	}
	return &Chunker{chunkSize: size, overlap: overlap}
}

// Split cuts a document into chunks of at most chunkSize characters with
// the configured overlap between consecutive chunks. Splitting is
// rune-aware so multi-byte text never breaks mid-character. Every chunk
// carries the document's source tag and entity name; Seq is its position.
func (c *Chunker) Split(doc Document) []model.KnowledgeChunk {
	if doc.Text == "" {
		return nil
	}

	runes := []rune(doc.Text)
	total := len(runes)
	step := c.chunkSize - c.overlap

	chunks := make([]model.KnowledgeChunk, 0, total/step+1)
	seq := 0
	for start := 0; start < total; start += step {
		end := start + c.chunkSize
		if end > total {
			end = total
		}
		chunks = append(chunks, model.KnowledgeChunk{
			Text:       string(runes[start:end]),
			Source:     doc.Source,
			EntityName: doc.EntityName,
			Seq:        seq,
		})
		seq++
		if end == total {
			break
		}
	}
	return chunks
}
