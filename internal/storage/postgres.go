package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stratalens-ai/stratalens/internal/model"
)

// DB is the PostgreSQL-backed Store.
type DB struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewDB connects a pool, verifies connectivity, and ensures the schema.
func NewDB(ctx context.Context, dsn string, logger *slog.Logger) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("storage: parse DSN: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("storage: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage: ping pool: %w", err)
	}
	db := &DB{pool: pool, logger: logger}
	if err := db.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return db, nil
}

// Pool returns the underlying connection pool for use by other packages.
func (db *DB) Pool() *pgxpool.Pool { return db.pool }

// Ping checks connectivity to the database.
func (db *DB) Ping(ctx context.Context) error { return db.pool.Ping(ctx) }

// Close shuts down the connection pool.
func (db *DB) Close() { db.pool.Close() }

func (db *DB) ensureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS companies (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			industry TEXT NOT NULL DEFAULT '',
			welcome_message TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS companies_name_lower_idx ON companies (lower(name))`,
		`CREATE TABLE IF NOT EXISTS competitors (
			id UUID PRIMARY KEY,
			company_id UUID NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			strengths TEXT[] NOT NULL DEFAULT '{}',
			weaknesses TEXT[] NOT NULL DEFAULT '{}',
			research_status TEXT NOT NULL DEFAULT 'not_started',
			research_markdown TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS competitors_company_idx ON competitors (company_id)`,
		`CREATE TABLE IF NOT EXISTS news_articles (
			id UUID PRIMARY KEY,
			competitor_id UUID NOT NULL REFERENCES competitors(id) ON DELETE CASCADE,
			title TEXT NOT NULL,
			source TEXT NOT NULL DEFAULT '',
			url TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL DEFAULT '',
			published_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS news_competitor_idx ON news_articles (competitor_id)`,
		`CREATE TABLE IF NOT EXISTS insights (
			id UUID PRIMARY KEY,
			company_id UUID NOT NULL REFERENCES companies(id) ON DELETE CASCADE,
			title TEXT NOT NULL,
			content TEXT NOT NULL DEFAULT '',
			kind TEXT NOT NULL DEFAULT '',
			related_competitors TEXT[] NOT NULL DEFAULT '{}',
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE INDEX IF NOT EXISTS insights_company_idx ON insights (company_id)`,
	}
	for _, s := range stmts {
		if _, err := db.pool.Exec(ctx, s); err != nil {
			return fmt.Errorf("storage: ensure schema: %w", err)
		}
	}
	return nil
}

func (db *DB) CreateCompany(ctx context.Context, c model.Company) (model.Company, error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO companies (id, name, description, industry, welcome_message, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		c.ID, c.Name, c.Description, c.Industry, c.WelcomeMessage, c.CreatedAt,
	)
	if err != nil {
		return model.Company{}, fmt.Errorf("storage: create company: %w", err)
	}
	return c, nil
}

func (db *DB) GetCompany(ctx context.Context, id uuid.UUID) (model.Company, error) {
	var c model.Company
	err := db.pool.QueryRow(ctx,
		`SELECT id, name, description, industry, welcome_message, created_at
		 FROM companies WHERE id = $1`, id,
	).Scan(&c.ID, &c.Name, &c.Description, &c.Industry, &c.WelcomeMessage, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Company{}, ErrNotFound
		}
		return model.Company{}, fmt.Errorf("storage: get company: %w", err)
	}
	return c, nil
}

func (db *DB) GetCompanyByName(ctx context.Context, name string) (model.Company, error) {
	var c model.Company
	err := db.pool.QueryRow(ctx,
		`SELECT id, name, description, industry, welcome_message, created_at
		 FROM companies WHERE lower(name) = lower($1)`, name,
	).Scan(&c.ID, &c.Name, &c.Description, &c.Industry, &c.WelcomeMessage, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Company{}, ErrNotFound
		}
		return model.Company{}, fmt.Errorf("storage: get company by name: %w", err)
	}
	return c, nil
}

func (db *DB) ListCompanies(ctx context.Context) ([]model.Company, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, name, description, industry, welcome_message, created_at
		 FROM companies ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("storage: list companies: %w", err)
	}
	defer rows.Close()
	var out []model.Company
	for rows.Next() {
		var c model.Company
		if err := rows.Scan(&c.ID, &c.Name, &c.Description, &c.Industry, &c.WelcomeMessage, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan company: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (db *DB) UpdateCompanyProfile(ctx context.Context, id uuid.UUID, description, industry, welcome string) error {
	tag, err := db.pool.Exec(ctx,
		`UPDATE companies SET description = $2, industry = $3, welcome_message = $4 WHERE id = $1`,
		id, description, industry, welcome,
	)
	if err != nil {
		return fmt.Errorf("storage: update company profile: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (db *DB) CreateCompetitor(ctx context.Context, c model.Competitor) (model.Competitor, error) {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.ResearchStatus == "" {
		c.ResearchStatus = model.ResearchNotStarted
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO competitors (id, company_id, name, description, strengths, weaknesses,
		 research_status, research_markdown, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.CompanyID, c.Name, c.Description, c.Strengths, c.Weaknesses,
		c.ResearchStatus, c.ResearchMarkdown, c.CreatedAt,
	)
	if err != nil {
		return model.Competitor{}, fmt.Errorf("storage: create competitor: %w", err)
	}
	return c, nil
}

func (db *DB) GetCompetitor(ctx context.Context, id uuid.UUID) (model.Competitor, error) {
	var c model.Competitor
	err := db.pool.QueryRow(ctx,
		`SELECT id, company_id, name, description, strengths, weaknesses,
		 research_status, research_markdown, created_at
		 FROM competitors WHERE id = $1`, id,
	).Scan(&c.ID, &c.CompanyID, &c.Name, &c.Description, &c.Strengths, &c.Weaknesses,
		&c.ResearchStatus, &c.ResearchMarkdown, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Competitor{}, ErrNotFound
		}
		return model.Competitor{}, fmt.Errorf("storage: get competitor: %w", err)
	}
	return c, nil
}

func (db *DB) ListCompetitors(ctx context.Context, companyID uuid.UUID) ([]model.Competitor, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, company_id, name, description, strengths, weaknesses,
		 research_status, research_markdown, created_at
		 FROM competitors WHERE company_id = $1 ORDER BY created_at`, companyID)
	if err != nil {
		return nil, fmt.Errorf("storage: list competitors: %w", err)
	}
	defer rows.Close()
	var out []model.Competitor
	for rows.Next() {
		var c model.Competitor
		if err := rows.Scan(&c.ID, &c.CompanyID, &c.Name, &c.Description, &c.Strengths, &c.Weaknesses,
			&c.ResearchStatus, &c.ResearchMarkdown, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan competitor: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// Research-path writes race when batch triggers and finishing runners hit
// the same competitor rows; serialization and deadlock errors there are
// worth a few retries.
const (
	researchWriteRetries   = 3
	researchWriteBaseDelay = 50 * time.Millisecond
)

// TryMarkResearchPending performs the compare-and-set in a single UPDATE so
// concurrent triggers for the same competitor cannot both win.
func (db *DB) TryMarkResearchPending(ctx context.Context, competitorID uuid.UUID) (bool, error) {
	var won bool
	err := WithRetry(ctx, researchWriteRetries, researchWriteBaseDelay, func() error {
		tag, err := db.pool.Exec(ctx,
			`UPDATE competitors SET research_status = $2
			 WHERE id = $1 AND research_status IN ($3, $4)`,
			competitorID, model.ResearchPending, model.ResearchNotStarted, model.ResearchError,
		)
		if err != nil {
			return fmt.Errorf("storage: mark research pending: %w", err)
		}
		won = tag.RowsAffected() == 1
		return nil
	})
	if err != nil {
		return false, err
	}
	if won {
		return true, nil
	}
	// Distinguish "exists but busy" from "missing".
	var exists bool
	if err := db.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM competitors WHERE id = $1)`, competitorID,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("storage: mark research pending: %w", err)
	}
	if !exists {
		return false, ErrNotFound
	}
	return false, nil
}

func (db *DB) UpdateResearch(ctx context.Context, competitorID uuid.UUID, status model.ResearchStatus, markdown string) error {
	if !status.Terminal() {
		return fmt.Errorf("storage: update research: non-terminal status %q", status)
	}
	if markdown == "" {
		return fmt.Errorf("storage: update research: empty content for %s", competitorID)
	}
	return WithRetry(ctx, researchWriteRetries, researchWriteBaseDelay, func() error {
		tag, err := db.pool.Exec(ctx,
			`UPDATE competitors SET research_status = $2, research_markdown = $3 WHERE id = $1`,
			competitorID, status, markdown,
		)
		if err != nil {
			return fmt.Errorf("storage: update research: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

func (db *DB) CreateNewsArticle(ctx context.Context, a model.NewsArticle) (model.NewsArticle, error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO news_articles (id, competitor_id, title, source, url, content, published_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		a.ID, a.CompetitorID, a.Title, a.Source, a.URL, a.Content, a.PublishedAt, a.CreatedAt,
	)
	if err != nil {
		return model.NewsArticle{}, fmt.Errorf("storage: create news article: %w", err)
	}
	return a, nil
}

func (db *DB) ListNews(ctx context.Context, competitorID uuid.UUID) ([]model.NewsArticle, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, competitor_id, title, source, url, content, published_at, created_at
		 FROM news_articles WHERE competitor_id = $1 ORDER BY created_at`, competitorID)
	if err != nil {
		return nil, fmt.Errorf("storage: list news: %w", err)
	}
	defer rows.Close()
	var out []model.NewsArticle
	for rows.Next() {
		var a model.NewsArticle
		if err := rows.Scan(&a.ID, &a.CompetitorID, &a.Title, &a.Source, &a.URL, &a.Content, &a.PublishedAt, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan news article: %w", err)
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (db *DB) CreateInsight(ctx context.Context, in model.Insight) (model.Insight, error) {
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now().UTC()
	}
	_, err := db.pool.Exec(ctx,
		`INSERT INTO insights (id, company_id, title, content, kind, related_competitors, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		in.ID, in.CompanyID, in.Title, in.Content, in.Kind, in.RelatedCompetitors, in.CreatedAt,
	)
	if err != nil {
		return model.Insight{}, fmt.Errorf("storage: create insight: %w", err)
	}
	return in, nil
}

func (db *DB) ListInsights(ctx context.Context, companyID uuid.UUID) ([]model.Insight, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT id, company_id, title, content, kind, related_competitors, created_at
		 FROM insights WHERE company_id = $1 ORDER BY created_at`, companyID)
	if err != nil {
		return nil, fmt.Errorf("storage: list insights: %w", err)
	}
	defer rows.Close()
	var out []model.Insight
	for rows.Next() {
		var in model.Insight
		if err := rows.Scan(&in.ID, &in.CompanyID, &in.Title, &in.Content, &in.Kind, &in.RelatedCompetitors, &in.CreatedAt); err != nil {
			return nil, fmt.Errorf("storage: scan insight: %w", err)
		}
		out = append(out, in)
	}
	return out, rows.Err()
}
