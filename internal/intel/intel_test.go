package intel

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratalens-ai/stratalens/internal/extract"
	"github.com/stratalens-ai/stratalens/internal/llm"
	"github.com/stratalens-ai/stratalens/internal/model"
	"github.com/stratalens-ai/stratalens/internal/news"
	"github.com/stratalens-ai/stratalens/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// scriptedGenerator returns queued responses in order; the last entry
// repeats once the queue drains.
type scriptedGenerator struct {
	responses []string
	err       error
	calls     int
	requests  []llm.Request
}

func (s *scriptedGenerator) Generate(_ context.Context, req llm.Request) (string, error) {
	s.calls++
	s.requests = append(s.requests, req)
	if s.err != nil {
		return "", s.err
	}
	i := s.calls - 1
	if i >= len(s.responses) {
		i = len(s.responses) - 1
	}
	return s.responses[i], nil
}

type scriptedFetcher struct {
	articles []news.Article
	err      error
	gotName  string
	gotDays  int
}

func (s *scriptedFetcher) Fetch(_ context.Context, name string, daysBack int) ([]news.Article, error) {
	s.gotName = name
	s.gotDays = daysBack
	return s.articles, s.err
}

func newService(gen llm.Generator, fetcher news.Fetcher) (*Service, *storage.Memory) {
	store := storage.NewMemory()
	return NewService(store, gen, fetcher, testLogger()), store
}

func TestAnalyzeCompanyCreatesProfile(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{"```json\n" +
		`{"description": "Acme builds industrial robots.", "industry": "Robotics", "welcome_message": "Welcome, Acme!"}` +
		"\n```"}}
	svc, _ := newService(gen, &scriptedFetcher{})

	company, err := svc.AnalyzeCompany(context.Background(), "Acme Robotics")
	require.NoError(t, err)
	assert.Equal(t, "Acme Robotics", company.Name)
	assert.Equal(t, "Acme builds industrial robots.", company.Description)
	assert.Equal(t, "Robotics", company.Industry)
	assert.Equal(t, "Welcome, Acme!", company.WelcomeMessage)
	assert.NotEqual(t, company.ID.String(), "00000000-0000-0000-0000-000000000000")

	require.Len(t, gen.requests, 1)
	assert.True(t, gen.requests[0].WebSearch)
}

func TestAnalyzeCompanyIdempotent(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{
		`{"description": "First profile.", "industry": "Robotics", "welcome_message": "Hi"}`,
	}}
	svc, _ := newService(gen, &scriptedFetcher{})

	first, err := svc.AnalyzeCompany(context.Background(), "Acme Robotics")
	require.NoError(t, err)

	second, err := svc.AnalyzeCompany(context.Background(), "acme robotics")
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, gen.calls, "existing profile must not trigger another generation")
}

func TestAnalyzeCompanyFallbackProfile(t *testing.T) {
	// Generation keeps failing; the retry budget drains and the fallback
	// profile is stored instead of failing onboarding.
	gen := &scriptedGenerator{err: errors.New("model overloaded")}
	store := storage.NewMemory()
	svc := NewService(store, gen, &scriptedFetcher{}, testLogger(),
		WithExtractPolicy(extract.Policy{MaxAttempts: 2, BaseDelay: time.Millisecond, Logger: testLogger()}))

	company, err := svc.AnalyzeCompany(context.Background(), "Acme Robotics")
	require.NoError(t, err)
	assert.Contains(t, company.Description, "Acme Robotics")
	assert.Equal(t, "Unknown", company.Industry)
	assert.NotEmpty(t, company.WelcomeMessage)
}

func TestAnalyzeCompanyRequiresName(t *testing.T) {
	svc, _ := newService(&scriptedGenerator{responses: []string{"{}"}}, &scriptedFetcher{})
	_, err := svc.AnalyzeCompany(context.Background(), "   ")
	require.Error(t, err)
}

func TestIdentifyCompetitorsPersistsNew(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{
		`{"description": "d", "industry": "i", "welcome_message": "w"}`,
		`{"competitors": [
			{"name": "RivalCo", "description": "Robot rival", "strengths": ["brand"], "weaknesses": ["price"]},
			{"name": "", "description": "nameless noise"},
			{"name": "BotWorks", "description": "Budget robots", "strengths": ["cost"], "weaknesses": ["quality"]}
		]}`,
	}}
	svc, store := newService(gen, &scriptedFetcher{})

	company, err := svc.AnalyzeCompany(context.Background(), "Acme Robotics")
	require.NoError(t, err)

	created, err := svc.IdentifyCompetitors(context.Background(), company.ID)
	require.NoError(t, err)
	require.Len(t, created, 2)

	for _, c := range created {
		assert.Equal(t, model.ResearchNotStarted, c.ResearchStatus)
		assert.Equal(t, company.ID, c.CompanyID)
	}

	listed, err := store.ListCompetitors(context.Background(), company.ID)
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}

func TestIdentifyCompetitorsSkipsExisting(t *testing.T) {
	gen := &scriptedGenerator{responses: []string{
		`{"description": "d", "industry": "i", "welcome_message": "w"}`,
		`{"competitors": [{"name": "RivalCo", "description": "first run"}]}`,
		`{"competitors": [{"name": "rivalco", "description": "second run"}, {"name": "BotWorks", "description": "new"}]}`,
	}}
	svc, store := newService(gen, &scriptedFetcher{})

	company, err := svc.AnalyzeCompany(context.Background(), "Acme Robotics")
	require.NoError(t, err)

	first, err := svc.IdentifyCompetitors(context.Background(), company.ID)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// Re-running research state on RivalCo must survive re-identification.
	require.NoError(t, store.UpdateResearch(context.Background(), first[0].ID, model.ResearchCompleted, "# Report\nplenty of content here"))

	second, err := svc.IdentifyCompetitors(context.Background(), company.ID)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, "BotWorks", second[0].Name)

	kept, err := store.GetCompetitor(context.Background(), first[0].ID)
	require.NoError(t, err)
	assert.Equal(t, model.ResearchCompleted, kept.ResearchStatus)
}

func TestGatherNewsPersistsArticles(t *testing.T) {
	published := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	fetcher := &scriptedFetcher{articles: []news.Article{
		{Title: "RivalCo raises Series B", Source: "TechCrunch", URL: "https://example.com", Content: "Funding.", PublishedAt: published},
	}}
	gen := &scriptedGenerator{responses: []string{
		`{"description": "d", "industry": "i", "welcome_message": "w"}`,
		`{"competitors": [{"name": "RivalCo", "description": "rival"}]}`,
	}}
	svc, store := newService(gen, fetcher)

	company, err := svc.AnalyzeCompany(context.Background(), "Acme Robotics")
	require.NoError(t, err)
	comps, err := svc.IdentifyCompetitors(context.Background(), company.ID)
	require.NoError(t, err)

	stored, err := svc.GatherNews(context.Background(), comps[0].ID, 14)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "RivalCo", fetcher.gotName)
	assert.Equal(t, 14, fetcher.gotDays)
	assert.Equal(t, comps[0].ID, stored[0].CompetitorID)
	assert.Equal(t, published, stored[0].PublishedAt)

	listed, err := store.ListNews(context.Background(), comps[0].ID)
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}

func TestGatherNewsDefaultLookback(t *testing.T) {
	fetcher := &scriptedFetcher{}
	gen := &scriptedGenerator{responses: []string{
		`{"description": "d", "industry": "i", "welcome_message": "w"}`,
		`{"competitors": [{"name": "RivalCo", "description": "rival"}]}`,
	}}
	store := storage.NewMemory()
	svc := NewService(store, gen, fetcher, testLogger(), WithNewsDaysBack(7))

	company, err := svc.AnalyzeCompany(context.Background(), "Acme Robotics")
	require.NoError(t, err)
	comps, err := svc.IdentifyCompetitors(context.Background(), company.ID)
	require.NoError(t, err)

	// Zero means "use the configured window".
	_, err = svc.GatherNews(context.Background(), comps[0].ID, 0)
	require.NoError(t, err)
	assert.Equal(t, 7, fetcher.gotDays)

	// An explicit window still wins.
	_, err = svc.GatherNews(context.Background(), comps[0].ID, 14)
	require.NoError(t, err)
	assert.Equal(t, 14, fetcher.gotDays)
}

func TestGenerateInsightsUsesCompetitorAndNewsContext(t *testing.T) {
	fetcher := &scriptedFetcher{articles: []news.Article{
		{Title: "RivalCo expands", Source: "Wire", Content: "European launch."},
	}}
	gen := &scriptedGenerator{responses: []string{
		`{"description": "d", "industry": "i", "welcome_message": "w"}`,
		`{"competitors": [{"name": "RivalCo", "description": "rival", "strengths": ["brand"]}]}`,
		`{"insights": [
			{"title": "Expansion threat", "description": "RivalCo is moving into Europe.", "type": "threat", "related_competitors": ["RivalCo"]},
			{"title": "Unlabeled", "description": "No type given.", "type": "something else"},
			{"title": "   ", "description": "blank title dropped"}
		]}`,
	}}
	svc, store := newService(gen, fetcher)

	company, err := svc.AnalyzeCompany(context.Background(), "Acme Robotics")
	require.NoError(t, err)
	comps, err := svc.IdentifyCompetitors(context.Background(), company.ID)
	require.NoError(t, err)
	_, err = svc.GatherNews(context.Background(), comps[0].ID, 30)
	require.NoError(t, err)

	insights, err := svc.GenerateInsights(context.Background(), company.ID)
	require.NoError(t, err)
	require.Len(t, insights, 2)

	assert.Equal(t, "threat", insights[0].Kind)
	assert.Equal(t, []string{"RivalCo"}, insights[0].RelatedCompetitors)
	assert.Equal(t, "trend", insights[1].Kind, "unknown labels normalize to trend")

	// The synthesis prompt carries both competitor profiles and news.
	last := gen.requests[len(gen.requests)-1]
	assert.Contains(t, last.Prompt, "RivalCo: rival")
	assert.Contains(t, last.Prompt, "NEWS FOR RivalCo")
	assert.Contains(t, last.Prompt, "European launch.")

	listed, err := store.ListInsights(context.Background(), company.ID)
	require.NoError(t, err)
	assert.Len(t, listed, 2)
}

func TestGatherNewsUnknownCompetitor(t *testing.T) {
	svc, _ := newService(&scriptedGenerator{responses: []string{"{}"}}, &scriptedFetcher{})
	_, err := svc.GatherNews(context.Background(), uuid.New(), 30)
	require.Error(t, err)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}
