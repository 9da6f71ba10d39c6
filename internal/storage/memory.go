package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/stratalens-ai/stratalens/internal/model"
)

// Memory is a mutex-guarded in-memory Store. It backs tests and single
// process development runs; production uses the Postgres store.
type Memory struct {
	mu          sync.RWMutex
	companies   map[uuid.UUID]model.Company
	competitors map[uuid.UUID]model.Competitor
	news        map[uuid.UUID]model.NewsArticle
	insights    map[uuid.UUID]model.Insight
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		companies:   make(map[uuid.UUID]model.Company),
		competitors: make(map[uuid.UUID]model.Competitor),
		news:        make(map[uuid.UUID]model.NewsArticle),
		insights:    make(map[uuid.UUID]model.Insight),
	}
}

func (m *Memory) CreateCompany(_ context.Context, c model.Company) (model.Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	m.companies[c.ID] = c
	return c, nil
}

func (m *Memory) GetCompany(_ context.Context, id uuid.UUID) (model.Company, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.companies[id]
	if !ok {
		return model.Company{}, ErrNotFound
	}
	return c, nil
}

func (m *Memory) GetCompanyByName(_ context.Context, name string) (model.Company, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.companies {
		if strings.EqualFold(c.Name, name) {
			return c, nil
		}
	}
	return model.Company{}, ErrNotFound
}

func (m *Memory) ListCompanies(_ context.Context) ([]model.Company, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.Company, 0, len(m.companies))
	for _, c := range m.companies {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) UpdateCompanyProfile(_ context.Context, id uuid.UUID, description, industry, welcome string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.companies[id]
	if !ok {
		return ErrNotFound
	}
	c.Description = description
	c.Industry = industry
	c.WelcomeMessage = welcome
	m.companies[id] = c
	return nil
}

func (m *Memory) CreateCompetitor(_ context.Context, c model.Competitor) (model.Competitor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	if c.ResearchStatus == "" {
		c.ResearchStatus = model.ResearchNotStarted
	}
	m.competitors[c.ID] = c
	return c, nil
}

func (m *Memory) GetCompetitor(_ context.Context, id uuid.UUID) (model.Competitor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.competitors[id]
	if !ok {
		return model.Competitor{}, ErrNotFound
	}
	return c, nil
}

func (m *Memory) ListCompetitors(_ context.Context, companyID uuid.UUID) ([]model.Competitor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Competitor
	for _, c := range m.competitors {
		if c.CompanyID == companyID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) TryMarkResearchPending(_ context.Context, competitorID uuid.UUID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.competitors[competitorID]
	if !ok {
		return false, ErrNotFound
	}
	if !c.ResearchStatus.CanStartResearch() {
		return false, nil
	}
	c.ResearchStatus = model.ResearchPending
	m.competitors[competitorID] = c
	return true, nil
}

func (m *Memory) UpdateResearch(_ context.Context, competitorID uuid.UUID, status model.ResearchStatus, markdown string) error {
	if !status.Terminal() {
		return fmt.Errorf("storage: update research: non-terminal status %q", status)
	}
	if markdown == "" {
		return fmt.Errorf("storage: update research: empty content for %s", competitorID)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.competitors[competitorID]
	if !ok {
		return ErrNotFound
	}
	c.ResearchStatus = status
	c.ResearchMarkdown = markdown
	m.competitors[competitorID] = c
	return nil
}

func (m *Memory) CreateNewsArticle(_ context.Context, a model.NewsArticle) (model.NewsArticle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	m.news[a.ID] = a
	return a, nil
}

func (m *Memory) ListNews(_ context.Context, competitorID uuid.UUID) ([]model.NewsArticle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.NewsArticle
	for _, a := range m.news {
		if a.CompetitorID == competitorID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) CreateInsight(_ context.Context, in model.Insight) (model.Insight, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if in.ID == uuid.Nil {
		in.ID = uuid.New()
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = time.Now().UTC()
	}
	m.insights[in.ID] = in
	return in, nil
}

func (m *Memory) ListInsights(_ context.Context, companyID uuid.UUID) ([]model.Insight, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.Insight
	for _, in := range m.insights {
		if in.CompanyID == companyID {
			out = append(out, in)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) Ping(context.Context) error { return nil }
