// Package intel implements the analysis workflow around a company: profile
// it, identify its competitors, pull in recent news, and synthesize
// strategic insights. Every model response goes through the JSON extraction
// retry policy before anything is persisted.
package intel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/stratalens-ai/stratalens/internal/extract"
	"github.com/stratalens-ai/stratalens/internal/llm"
	"github.com/stratalens-ai/stratalens/internal/model"
	"github.com/stratalens-ai/stratalens/internal/news"
	"github.com/stratalens-ai/stratalens/internal/prompt"
	"github.com/stratalens-ai/stratalens/internal/storage"
)

// intelMaxOutputTokens bounds profile, competitor, and insight calls.
const intelMaxOutputTokens = 8192

// Service runs the company analysis workflow.
type Service struct {
	store        storage.Store
	gen          llm.Generator
	fetcher      news.Fetcher
	policy       extract.Policy
	newsDaysBack int
	logger       *slog.Logger
}

// Option configures a Service.
type Option func(*Service)

// WithExtractPolicy overrides the JSON extraction retry policy.
func WithExtractPolicy(p extract.Policy) Option {
	return func(s *Service) { s.policy = p }
}

// WithNewsDaysBack sets the news lookback window used when a caller does
// not pass one. Values <= 0 keep the default.
func WithNewsDaysBack(days int) Option {
	return func(s *Service) {
		if days > 0 {
			s.newsDaysBack = days
		}
	}
}

// NewService creates a Service.
func NewService(store storage.Store, gen llm.Generator, fetcher news.Fetcher, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:        store,
		gen:          gen,
		fetcher:      fetcher,
		policy:       extract.DefaultPolicy(logger),
		newsDaysBack: news.DefaultDaysBack,
		logger:       logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

type companyProfile struct {
	Description    string `json:"description"`
	Industry       string `json:"industry"`
	WelcomeMessage string `json:"welcome_message"`
}

// fallbackProfile is stored when the model cannot produce a usable
// profile, so onboarding never hard-fails on a flaky generation.
func fallbackProfile(name string) companyProfile {
	return companyProfile{
		Description:    fmt.Sprintf("%s is a company we don't have detailed information about yet.", name),
		Industry:       "Unknown",
		WelcomeMessage: fmt.Sprintf("Welcome, %s! We're gathering competitive intelligence for you.", name),
	}
}

// AnalyzeCompany returns the company record for name, creating and
// profiling it on first sight. An existing company with a filled profile
// is returned as-is; an existing record with an empty profile is
// re-profiled in place.
func (s *Service) AnalyzeCompany(ctx context.Context, name string) (model.Company, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return model.Company{}, fmt.Errorf("intel: company name is required")
	}

	existing, err := s.store.GetCompanyByName(ctx, name)
	switch {
	case err == nil:
		if existing.Description != "" {
			return existing, nil
		}
		profile := s.profileCompany(ctx, name)
		if err := s.store.UpdateCompanyProfile(ctx, existing.ID, profile.Description, profile.Industry, profile.WelcomeMessage); err != nil {
			return model.Company{}, fmt.Errorf("intel: update company profile: %w", err)
		}
		return s.store.GetCompany(ctx, existing.ID)
	case !errors.Is(err, storage.ErrNotFound):
		return model.Company{}, fmt.Errorf("intel: look up company %q: %w", name, err)
	}

	profile := s.profileCompany(ctx, name)
	created, err := s.store.CreateCompany(ctx, model.Company{
		Name:           name,
		Description:    profile.Description,
		Industry:       profile.Industry,
		WelcomeMessage: profile.WelcomeMessage,
	})
	if err != nil {
		return model.Company{}, fmt.Errorf("intel: create company: %w", err)
	}
	s.logger.Info("intel: company analyzed", "company_id", created.ID, "name", name)
	return created, nil
}

func (s *Service) profileCompany(ctx context.Context, name string) companyProfile {
	var profile companyProfile
	err := s.policy.DoInto(ctx, &profile, func(ctx context.Context) (string, error) {
		return s.gen.Generate(ctx, llm.Request{
			System:          prompt.System,
			Prompt:          prompt.CompanyAnalysis(name),
			MaxOutputTokens: intelMaxOutputTokens,
			WebSearch:       true,
		})
	})
	if err != nil || profile.Description == "" {
		s.logger.Warn("intel: falling back to default profile", "name", name, "error", err)
		return fallbackProfile(name)
	}
	if profile.Industry == "" {
		profile.Industry = "Unknown"
	}
	return profile
}

type competitorList struct {
	Competitors []struct {
		Name        string   `json:"name"`
		Description string   `json:"description"`
		Strengths   []string `json:"strengths"`
		Weaknesses  []string `json:"weaknesses"`
	} `json:"competitors"`
}

// IdentifyCompetitors asks the model for the company's competitors and
// persists the new ones with research not yet started. Competitors whose
// name matches an existing record (case-insensitive) are skipped, so
// re-running identification never duplicates or resets anything.
func (s *Service) IdentifyCompetitors(ctx context.Context, companyID uuid.UUID) ([]model.Competitor, error) {
	company, err := s.store.GetCompany(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("intel: load company: %w", err)
	}

	var parsed competitorList
	err = s.policy.DoInto(ctx, &parsed, func(ctx context.Context) (string, error) {
		return s.gen.Generate(ctx, llm.Request{
			System:          prompt.System,
			Prompt:          prompt.IdentifyCompetitors(company.Name, company.Description, company.Industry),
			MaxOutputTokens: intelMaxOutputTokens,
			WebSearch:       true,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("intel: identify competitors for %q: %w", company.Name, err)
	}

	existing, err := s.store.ListCompetitors(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("intel: list competitors: %w", err)
	}
	known := make(map[string]bool, len(existing))
	for _, c := range existing {
		known[strings.ToLower(c.Name)] = true
	}

	var created []model.Competitor
	for _, c := range parsed.Competitors {
		name := strings.TrimSpace(c.Name)
		if name == "" || known[strings.ToLower(name)] {
			continue
		}
		known[strings.ToLower(name)] = true

		comp, err := s.store.CreateCompetitor(ctx, model.Competitor{
			CompanyID:      companyID,
			Name:           name,
			Description:    c.Description,
			Strengths:      c.Strengths,
			Weaknesses:     c.Weaknesses,
			ResearchStatus: model.ResearchNotStarted,
		})
		if err != nil {
			return nil, fmt.Errorf("intel: create competitor %q: %w", name, err)
		}
		created = append(created, comp)
	}

	s.logger.Info("intel: competitors identified",
		"company_id", companyID, "returned", len(parsed.Competitors), "created", len(created))
	return created, nil
}

// GatherNews fetches recent coverage for a competitor and persists it.
// daysBack <= 0 uses the service's configured lookback window.
func (s *Service) GatherNews(ctx context.Context, competitorID uuid.UUID, daysBack int) ([]model.NewsArticle, error) {
	if daysBack <= 0 {
		daysBack = s.newsDaysBack
	}
	comp, err := s.store.GetCompetitor(ctx, competitorID)
	if err != nil {
		return nil, fmt.Errorf("intel: load competitor: %w", err)
	}

	articles, err := s.fetcher.Fetch(ctx, comp.Name, daysBack)
	if err != nil {
		return nil, fmt.Errorf("intel: fetch news for %q: %w", comp.Name, err)
	}

	stored := make([]model.NewsArticle, 0, len(articles))
	for _, a := range articles {
		rec, err := s.store.CreateNewsArticle(ctx, model.NewsArticle{
			CompetitorID: competitorID,
			Title:        a.Title,
			Source:       a.Source,
			URL:          a.URL,
			Content:      a.Content,
			PublishedAt:  a.PublishedAt,
		})
		if err != nil {
			return nil, fmt.Errorf("intel: store article %q: %w", a.Title, err)
		}
		stored = append(stored, rec)
	}

	s.logger.Info("intel: news gathered", "competitor", comp.Name, "count", len(stored))
	return stored, nil
}

type insightList struct {
	Insights []struct {
		Title              string   `json:"title"`
		Description        string   `json:"description"`
		Type               string   `json:"type"`
		RelatedCompetitors []string `json:"related_competitors"`
	} `json:"insights"`
}

// GenerateInsights synthesizes strategic insights from the company's
// competitor profiles and stored news, and persists them.
func (s *Service) GenerateInsights(ctx context.Context, companyID uuid.UUID) ([]model.Insight, error) {
	company, err := s.store.GetCompany(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("intel: load company: %w", err)
	}
	competitors, err := s.store.ListCompetitors(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("intel: list competitors: %w", err)
	}

	var parsed insightList
	err = s.policy.DoInto(ctx, &parsed, func(ctx context.Context) (string, error) {
		return s.gen.Generate(ctx, llm.Request{
			System:          prompt.System,
			Prompt:          prompt.GenerateInsights(company.Name, competitorsSummary(competitors), s.newsContext(ctx, competitors)),
			MaxOutputTokens: intelMaxOutputTokens,
		})
	})
	if err != nil {
		return nil, fmt.Errorf("intel: generate insights for %q: %w", company.Name, err)
	}

	stored := make([]model.Insight, 0, len(parsed.Insights))
	for _, in := range parsed.Insights {
		if strings.TrimSpace(in.Title) == "" {
			continue
		}
		rec, err := s.store.CreateInsight(ctx, model.Insight{
			CompanyID:          companyID,
			Title:              in.Title,
			Content:            in.Description,
			Kind:               normalizeInsightKind(in.Type),
			RelatedCompetitors: in.RelatedCompetitors,
		})
		if err != nil {
			return nil, fmt.Errorf("intel: store insight %q: %w", in.Title, err)
		}
		stored = append(stored, rec)
	}

	s.logger.Info("intel: insights generated", "company_id", companyID, "count", len(stored))
	return stored, nil
}

// normalizeInsightKind clamps the model's label to the known set.
func normalizeInsightKind(kind string) string {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "opportunity":
		return "opportunity"
	case "threat":
		return "threat"
	default:
		return "trend"
	}
}

func competitorsSummary(competitors []model.Competitor) string {
	if len(competitors) == 0 {
		return "No competitor profiles available."
	}
	var b strings.Builder
	for _, c := range competitors {
		fmt.Fprintf(&b, "- %s: %s\n", c.Name, c.Description)
		if len(c.Strengths) > 0 {
			fmt.Fprintf(&b, "  Strengths: %s\n", strings.Join(c.Strengths, "; "))
		}
		if len(c.Weaknesses) > 0 {
			fmt.Fprintf(&b, "  Weaknesses: %s\n", strings.Join(c.Weaknesses, "; "))
		}
	}
	return b.String()
}

// newsContext flattens stored news per competitor for the insights
// prompt. A failure to list one competitor's news is logged and skipped
// rather than aborting the synthesis.
func (s *Service) newsContext(ctx context.Context, competitors []model.Competitor) string {
	var b strings.Builder
	for _, c := range competitors {
		articles, err := s.store.ListNews(ctx, c.ID)
		if err != nil {
			s.logger.Warn("intel: list news for insights", "competitor", c.Name, "error", err)
			continue
		}
		if len(articles) == 0 {
			continue
		}
		fmt.Fprintf(&b, "===== NEWS FOR %s =====\n", c.Name)
		for _, a := range articles {
			fmt.Fprintf(&b, "HEADLINE: %s\nCONTENT: %s\n\n", a.Title, a.Content)
		}
	}
	return b.String()
}
