package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/stratalens-ai/stratalens/internal/model"
	"github.com/stratalens-ai/stratalens/internal/storage"
)

// Document is one gathered text with its provenance.
type Document struct {
	Source     model.ChunkSource
	EntityName string
	Text       string
}

// Gatherer collects every piece of company knowledge from the store.
type Gatherer struct {
	store  storage.Store
	logger *slog.Logger
}

// NewGatherer creates a Gatherer.
func NewGatherer(store storage.Store, logger *slog.Logger) *Gatherer {
	return &Gatherer{store: store, logger: logger}
}

// Gather returns documents in a deterministic order: company profile,
// competitor profiles, completed deep-research reports, per-competitor
// news, then company insights. Completed research whose content is an
// error diagnostic is skipped. An unknown company or empty data yields an
// empty slice, not an error.
func (g *Gatherer) Gather(ctx context.Context, companyID uuid.UUID) ([]Document, error) {
	company, err := g.store.GetCompany(ctx, companyID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			g.logger.Warn("knowledge: company not found for gathering", "company_id", companyID)
			return nil, nil
		}
		return nil, fmt.Errorf("knowledge: load company: %w", err)
	}

	var docs []Document
	docs = append(docs, Document{
		Source:     model.SourceCompanyInfo,
		EntityName: company.Name,
		Text: fmt.Sprintf("Company Information:\nName: %s\nDescription: %s\nIndustry: %s",
			company.Name, orNA(company.Description), orNA(company.Industry)),
	})

	competitors, err := g.store.ListCompetitors(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("knowledge: list competitors: %w", err)
	}

	for _, comp := range competitors {
		docs = append(docs, Document{
			Source:     model.SourceCompetitorInfo,
			EntityName: comp.Name,
			Text: fmt.Sprintf("Competitor Information: %s\nDescription: %s\nStrengths: %s\nWeaknesses: %s",
				comp.Name, orNA(comp.Description),
				orNA(strings.Join(comp.Strengths, "; ")),
				orNA(strings.Join(comp.Weaknesses, "; "))),
		})
	}

	for _, comp := range competitors {
		if comp.ResearchStatus != model.ResearchCompleted || comp.ResearchMarkdown == "" {
			continue
		}
		if strings.HasPrefix(strings.TrimSpace(comp.ResearchMarkdown), "## Error") {
			g.logger.Warn("knowledge: skipping error-marked research", "competitor", comp.Name)
			continue
		}
		docs = append(docs, Document{
			Source:     model.SourceDeepResearch,
			EntityName: comp.Name,
			Text:       fmt.Sprintf("Deep Research Report for %s:\n\n%s", comp.Name, comp.ResearchMarkdown),
		})
	}

	for _, comp := range competitors {
		news, err := g.store.ListNews(ctx, comp.ID)
		if err != nil {
			return nil, fmt.Errorf("knowledge: list news for %s: %w", comp.ID, err)
		}
		for _, item := range news {
			docs = append(docs, Document{
				Source:     model.SourceNews,
				EntityName: comp.Name,
				Text: fmt.Sprintf("News/Development concerning %s:\nTitle: %s\nSource: %s\nPublished: %s\nContent: %s",
					comp.Name, orNA(item.Title), orNA(item.Source),
					item.PublishedAt.Format("2006-01-02"), orNA(item.Content)),
			})
		}
	}

	insights, err := g.store.ListInsights(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("knowledge: list insights: %w", err)
	}
	for _, in := range insights {
		docs = append(docs, Document{
			Source:     model.SourceInsight,
			EntityName: company.Name,
			Text: fmt.Sprintf("Strategic Insight (%s): %s\n%s\nRelated competitors: %s",
				orNA(in.Kind), orNA(in.Title), orNA(in.Content),
				orNA(strings.Join(in.RelatedCompetitors, ", "))),
		})
	}

	g.logger.Debug("knowledge: gathered documents", "company_id", companyID, "count", len(docs))
	return docs, nil
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
