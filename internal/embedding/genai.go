package embedding

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"google.golang.org/genai"
)

const genaiDimensions = 768 // gemini-embedding-001

// GenAIProvider generates embeddings with the Gemini API.
type GenAIProvider struct {
	client *genai.Client
	model  string
}

// NewGenAIProvider creates a Gemini embedding provider. Model defaults to
// gemini-embedding-001.
func NewGenAIProvider(ctx context.Context, apiKey, model string) (*GenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("embedding: genai API key is required")
	}
	if model == "" {
		model = "gemini-embedding-001"
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey})
	if err != nil {
		return nil, fmt.Errorf("embedding: create genai client: %w", err)
	}
	return &GenAIProvider{client: client, model: model}, nil
}

// Dimensions returns the embedding vector size.
func (p *GenAIProvider) Dimensions() int {
	return genaiDimensions
}

// Embed generates a single embedding.
func (p *GenAIProvider) Embed(ctx context.Context, text string) (pgvector.Vector, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return pgvector.Vector{}, err
	}
	return vecs[0], nil
}

// EmbedBatch generates embeddings for multiple texts in one call.
func (p *GenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([]pgvector.Vector, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, len(texts))
	for i, text := range texts {
		contents[i] = genai.NewContentFromText(text, genai.RoleUser)
	}

	result, err := p.client.Models.EmbedContent(ctx, p.model, contents,
		&genai.EmbedContentConfig{TaskType: "RETRIEVAL_DOCUMENT"})
	if err != nil {
		return nil, fmt.Errorf("embedding: genai embed: %w", err)
	}
	if len(result.Embeddings) != len(texts) {
		return nil, fmt.Errorf("embedding: genai returned %d embeddings for %d texts",
			len(result.Embeddings), len(texts))
	}

	vecs := make([]pgvector.Vector, len(result.Embeddings))
	for i, emb := range result.Embeddings {
		vecs[i] = pgvector.NewVector(emb.Values)
	}
	return vecs, nil
}
