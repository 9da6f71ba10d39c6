// Package answer turns retrieval results into grounded answers: fetch the
// most relevant knowledge chunks for a question, hand them to the model as
// the only permitted context, and return its reply.
package answer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/stratalens-ai/stratalens/internal/index"
	"github.com/stratalens-ai/stratalens/internal/llm"
	"github.com/stratalens-ai/stratalens/internal/prompt"
)

// answerMaxOutputTokens bounds one grounded answer.
const answerMaxOutputTokens = 2048

// FallbackNoIndex is returned, with a nil error, when a company has no
// retrieval index and none can be built yet.
const FallbackNoIndex = "I apologize, but I don't have the necessary information indexed for this company yet. Please ensure the analysis has fully completed and try again shortly."

// Pipeline answers questions about a company using only indexed knowledge.
type Pipeline struct {
	index  index.Index
	gen    llm.Generator
	logger *slog.Logger
}

// NewPipeline creates a Pipeline.
func NewPipeline(idx index.Index, gen llm.Generator, logger *slog.Logger) *Pipeline {
	return &Pipeline{index: idx, gen: gen, logger: logger}
}

// Answer retrieves the top chunks for the question and asks the model to
// answer from them alone. A missing or empty index yields the friendly
// fallback and a nil error; retrieval and generation failures are real
// errors.
func (p *Pipeline) Answer(ctx context.Context, companyID uuid.UUID, question string) (string, error) {
	results, err := p.index.Query(ctx, companyID, question, index.DefaultTopK)
	if err != nil {
		if errors.Is(err, index.ErrIndexUnavailable) {
			p.logger.Warn("answer: no index available", "company_id", companyID)
			return FallbackNoIndex, nil
		}
		return "", fmt.Errorf("answer: retrieve context: %w", err)
	}
	if len(results) == 0 {
		p.logger.Warn("answer: retrieval returned nothing", "company_id", companyID)
		return FallbackNoIndex, nil
	}

	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n---\n\n")
		}
		fmt.Fprintf(&b, "[%s | %s]\n%s", r.Chunk.Source, r.Chunk.EntityName, r.Chunk.Text)
	}

	reply, err := p.gen.Generate(ctx, llm.Request{
		System:          prompt.System,
		Prompt:          prompt.GroundedAnswer(b.String(), question),
		MaxOutputTokens: answerMaxOutputTokens,
	})
	if err != nil {
		return "", fmt.Errorf("answer: generate: %w", err)
	}

	p.logger.Debug("answer: generated", "company_id", companyID, "chunks", len(results))
	return strings.TrimSpace(reply), nil
}
