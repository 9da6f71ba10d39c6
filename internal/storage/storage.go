// Package storage defines the record store for companies, competitors, news,
// and insights, with an in-memory implementation for tests and development
// and a PostgreSQL implementation for production.
package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/stratalens-ai/stratalens/internal/model"
)

// ErrNotFound is returned when a requested entity does not exist.
var ErrNotFound = errors.New("storage: not found")

// Store is the persistence interface the service layer depends on.
// Implementations must make TryMarkResearchPending atomic with respect to
// concurrent callers for the same competitor.
type Store interface {
	CreateCompany(ctx context.Context, c model.Company) (model.Company, error)
	GetCompany(ctx context.Context, id uuid.UUID) (model.Company, error)
	GetCompanyByName(ctx context.Context, name string) (model.Company, error)
	ListCompanies(ctx context.Context) ([]model.Company, error)
	UpdateCompanyProfile(ctx context.Context, id uuid.UUID, description, industry, welcome string) error

	CreateCompetitor(ctx context.Context, c model.Competitor) (model.Competitor, error)
	GetCompetitor(ctx context.Context, id uuid.UUID) (model.Competitor, error)
	ListCompetitors(ctx context.Context, companyID uuid.UUID) ([]model.Competitor, error)

	// TryMarkResearchPending flips the competitor's research status to
	// pending if and only if the current status accepts a new trigger
	// (not_started or error). It returns false when the competitor is
	// already pending or completed.
	TryMarkResearchPending(ctx context.Context, competitorID uuid.UUID) (bool, error)

	// UpdateResearch records a research run's terminal state. Status must
	// be completed or error, and markdown must be non-empty.
	UpdateResearch(ctx context.Context, competitorID uuid.UUID, status model.ResearchStatus, markdown string) error

	CreateNewsArticle(ctx context.Context, a model.NewsArticle) (model.NewsArticle, error)
	ListNews(ctx context.Context, competitorID uuid.UUID) ([]model.NewsArticle, error)

	CreateInsight(ctx context.Context, in model.Insight) (model.Insight, error)
	ListInsights(ctx context.Context, companyID uuid.UUID) ([]model.Insight, error)

	Ping(ctx context.Context) error
}
