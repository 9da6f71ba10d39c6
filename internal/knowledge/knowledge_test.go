package knowledge

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratalens-ai/stratalens/internal/model"
	"github.com/stratalens-ai/stratalens/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestChunkerSplitSizesAndOverlap(t *testing.T) {
	c := NewChunker(100, 20)
	text := strings.Repeat("a", 250)
	chunks := c.Split(Document{Source: model.SourceDeepResearch, EntityName: "RivalCo", Text: text})

	// Starts at 0, 80, 160; the last chunk absorbs the tail.
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0].Text, 100)
	assert.Len(t, chunks[1].Text, 100)
	assert.Len(t, chunks[2].Text, 90)

	for i, ch := range chunks {
		assert.Equal(t, i, ch.Seq)
		assert.Equal(t, model.SourceDeepResearch, ch.Source)
		assert.Equal(t, "RivalCo", ch.EntityName)
	}
}

func TestChunkerOverlapContent(t *testing.T) {
	c := NewChunker(10, 4)
	chunks := c.Split(Document{Text: "abcdefghijklmnop"})
	require.Len(t, chunks, 2)
	assert.Equal(t, "abcdefghij", chunks[0].Text)
	assert.Equal(t, "ghijklmnop", chunks[1].Text)
}

func TestChunkerShortText(t *testing.T) {
	c := NewChunker(0, -1) // defaults
	chunks := c.Split(Document{Text: "short"})
	require.Len(t, chunks, 1)
	assert.Equal(t, "short", chunks[0].Text)
}

func TestChunkerEmptyText(t *testing.T) {
	assert.Nil(t, NewChunker(100, 20).Split(Document{}))
}

func TestChunkerRuneAware(t *testing.T) {
	c := NewChunker(4, 1)
	chunks := c.Split(Document{Text: "日本語のテキストです"})
	for _, ch := range chunks {
		assert.True(t, strings.ToValidUTF8(ch.Text, "") == ch.Text, "chunk must be valid UTF-8: %q", ch.Text)
	}
}

func TestChunkerDefaults(t *testing.T) {
	c := NewChunker(0, 0)
	assert.Equal(t, DefaultChunkSize, c.chunkSize)
	// Explicit zero overlap is respected.
	assert.Equal(t, 0, c.overlap)
}

func seedKnowledge(t *testing.T, store *storage.Memory) (uuid.UUID, model.Competitor) {
	t.Helper()
	ctx := context.Background()
	company, err := store.CreateCompany(ctx, model.Company{
		Name: "Acme Robotics", Description: "Builds robots", Industry: "Robotics",
	})
	require.NoError(t, err)
	comp, err := store.CreateCompetitor(ctx, model.Competitor{
		CompanyID: company.ID, Name: "RivalCo",
		Description: "Robot rival", Strengths: []string{"brand"}, Weaknesses: []string{"price"},
	})
	require.NoError(t, err)
	return company.ID, comp
}

func TestGatherOrderAndSources(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	companyID, comp := seedKnowledge(t, store)

	require.NoError(t, store.UpdateResearch(ctx, comp.ID, model.ResearchCompleted,
		"# RivalCo Report\n"+strings.Repeat("detail ", 20)))
	_, err := store.CreateNewsArticle(ctx, model.NewsArticle{
		CompetitorID: comp.ID, Title: "RivalCo raises Series B", Source: "TechCrunch", Content: "Funding news.",
	})
	require.NoError(t, err)
	_, err = store.CreateInsight(ctx, model.Insight{
		CompanyID: companyID, Title: "Pricing gap", Content: "Undercut on price.", Kind: "opportunity",
		RelatedCompetitors: []string{"RivalCo"},
	})
	require.NoError(t, err)

	docs, err := NewGatherer(store, testLogger()).Gather(ctx, companyID)
	require.NoError(t, err)
	require.Len(t, docs, 5)

	assert.Equal(t, model.SourceCompanyInfo, docs[0].Source)
	assert.Equal(t, model.SourceCompetitorInfo, docs[1].Source)
	assert.Equal(t, model.SourceDeepResearch, docs[2].Source)
	assert.Equal(t, model.SourceNews, docs[3].Source)
	assert.Equal(t, model.SourceInsight, docs[4].Source)

	assert.Contains(t, docs[0].Text, "Acme Robotics")
	assert.Contains(t, docs[1].Text, "Strengths: brand")
	assert.Contains(t, docs[2].Text, "Deep Research Report for RivalCo")
	assert.Contains(t, docs[3].Text, "Series B")
	assert.Contains(t, docs[4].Text, "Pricing gap")
}

func TestGatherSkipsIncompleteAndErrorResearch(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemory()
	companyID, comp := seedKnowledge(t, store)

	// Error-marked research content never enters the index.
	require.NoError(t, store.UpdateResearch(ctx, comp.ID, model.ResearchCompleted, "## Error\nresearch failed"))

	docs, err := NewGatherer(store, testLogger()).Gather(ctx, companyID)
	require.NoError(t, err)
	for _, d := range docs {
		assert.NotEqual(t, model.SourceDeepResearch, d.Source)
	}
}

func TestGatherUnknownCompanyEmpty(t *testing.T) {
	store := storage.NewMemory()
	docs, err := NewGatherer(store, testLogger()).Gather(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Empty(t, docs)
}
