package news

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stratalens-ai/stratalens/internal/extract"
	"github.com/stratalens-ai/stratalens/internal/llm"
	"github.com/stratalens-ai/stratalens/internal/prompt"
)

// generatedMaxOutputTokens bounds one news generation call.
const generatedMaxOutputTokens = 4096

// Generated is a Fetcher that asks a web-search-enabled model for recent
// coverage instead of a news API. Used when no NewsAPI key is configured.
type Generated struct {
	gen    llm.Generator
	policy extract.Policy
	logger *slog.Logger
}

// NewGenerated creates a model-backed Fetcher.
func NewGenerated(gen llm.Generator, logger *slog.Logger) *Generated {
	return &Generated{gen: gen, policy: extract.DefaultPolicy(logger), logger: logger}
}

type generatedArticle struct {
	Title       string `json:"title"`
	Source      string `json:"source"`
	URL         string `json:"url"`
	PublishedAt string `json:"publishedAt"`
	Content     string `json:"content"`
}

type generatedResponse struct {
	Articles []generatedArticle `json:"articles"`
}

// Fetch asks the model for significant recent news and parses the JSON it
// returns. Unparseable dates fall back to the current time so ordering
// stays sane.
func (g *Generated) Fetch(ctx context.Context, competitorName string, daysBack int) ([]Article, error) {
	if daysBack <= 0 {
		daysBack = DefaultDaysBack
	}

	var parsed generatedResponse
	err := g.policy.DoInto(ctx, &parsed, func(ctx context.Context) (string, error) {
		return g.gen.Generate(ctx, llm.Request{
			System:          prompt.System,
			Prompt:          prompt.CompetitorNews(competitorName, daysBack),
			MaxOutputTokens: generatedMaxOutputTokens,
			WebSearch:       true,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("news: generate articles for %q: %w", competitorName, err)
	}

	articles := make([]Article, 0, len(parsed.Articles))
	for _, a := range parsed.Articles {
		if a.Title == "" {
			continue
		}
		articles = append(articles, Article{
			Title:       a.Title,
			Source:      a.Source,
			URL:         a.URL,
			Content:     a.Content,
			PublishedAt: parsePublishedAt(a.PublishedAt, g.logger),
		})
	}

	g.logger.Info("news: generated articles", "competitor", competitorName, "count", len(articles))
	return articles, nil
}

func parsePublishedAt(s string, logger *slog.Logger) time.Time {
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	if s != "" {
		logger.Debug("news: unparseable publishedAt", "value", s)
	}
	return time.Now()
}
