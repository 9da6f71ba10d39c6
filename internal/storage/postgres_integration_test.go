package storage

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/stratalens-ai/stratalens/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type pgContainer struct {
	container testcontainers.Container
	dsn       string
}

func mustStartPostgres() *pgContainer {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:16-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "stratalens",
			"POSTGRES_PASSWORD": "stratalens",
			"POSTGRES_DB":       "stratalens",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start container: %v\n", err)
		os.Exit(1)
	}

	host, err := container.Host(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get container host: %v\n", err)
		os.Exit(1)
	}
	port, err := container.MappedPort(ctx, "5432")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to get container port: %v\n", err)
		os.Exit(1)
	}

	return &pgContainer{
		container: container,
		dsn:       fmt.Sprintf("postgres://stratalens:stratalens@%s:%s/stratalens?sslmode=disable", host, port.Port()),
	}
}

func (c *pgContainer) terminate() {
	_ = c.container.Terminate(context.Background())
}

// testDB is the shared store for all integration tests in this file. It is
// nil under -short, and every integration test skips itself then.
var testDB *DB

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	tc := mustStartPostgres()
	defer tc.terminate()

	db, err := NewDB(context.Background(), tc.dsn, testLogger())
	if err != nil {
		tc.terminate()
		panic(err)
	}
	testDB = db

	code := m.Run()
	db.Close()
	tc.terminate()
	os.Exit(code)
}

func requireDB(t *testing.T) *DB {
	t.Helper()
	if testDB == nil {
		t.Skip("integration test: postgres container not started under -short")
	}
	return testDB
}

func TestPostgresCompanyRoundTrip(t *testing.T) {
	db := requireDB(t)
	ctx := context.Background()

	created, err := db.CreateCompany(ctx, model.Company{
		Name: "IntegrationCo " + uuid.NewString(), Description: "desc", Industry: "Testing",
	})
	require.NoError(t, err)

	got, err := db.GetCompany(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Name, got.Name)

	byName, err := db.GetCompanyByName(ctx, created.Name)
	require.NoError(t, err)
	assert.Equal(t, created.ID, byName.ID)

	_, err = db.GetCompany(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresResearchCAS(t *testing.T) {
	db := requireDB(t)
	ctx := context.Background()

	company, err := db.CreateCompany(ctx, model.Company{Name: "CASCo " + uuid.NewString()})
	require.NoError(t, err)
	comp, err := db.CreateCompetitor(ctx, model.Competitor{
		CompanyID: company.ID, Name: "Rival", ResearchStatus: model.ResearchNotStarted,
	})
	require.NoError(t, err)

	// Exactly one concurrent trigger wins the pending slot.
	const n = 16
	var wg sync.WaitGroup
	wins := make(chan bool, n)
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := db.TryMarkResearchPending(ctx, comp.ID)
			if err == nil && ok {
				wins <- true
			}
		}()
	}
	wg.Wait()
	close(wins)
	assert.Len(t, drain(wins), 1)

	// Terminal write, then error status accepts a retry.
	require.NoError(t, db.UpdateResearch(ctx, comp.ID, model.ResearchError, "## Error\nfailed"))
	ok, err := db.TryMarkResearchPending(ctx, comp.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	// Pending rejects another trigger, and unknown ids surface ErrNotFound.
	ok, err = db.TryMarkResearchPending(ctx, comp.ID)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = db.TryMarkResearchPending(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresNewsAndInsights(t *testing.T) {
	db := requireDB(t)
	ctx := context.Background()

	company, err := db.CreateCompany(ctx, model.Company{Name: "NewsCo " + uuid.NewString()})
	require.NoError(t, err)
	comp, err := db.CreateCompetitor(ctx, model.Competitor{
		CompanyID: company.ID, Name: "Rival", Strengths: []string{"brand", "scale"},
	})
	require.NoError(t, err)

	_, err = db.CreateNewsArticle(ctx, model.NewsArticle{
		CompetitorID: comp.ID, Title: "Launch", Source: "Wire", Content: "Shipped.",
	})
	require.NoError(t, err)
	news, err := db.ListNews(ctx, comp.ID)
	require.NoError(t, err)
	require.Len(t, news, 1)

	_, err = db.CreateInsight(ctx, model.Insight{
		CompanyID: company.ID, Title: "Gap", Content: "Opportunity.", Kind: "opportunity",
		RelatedCompetitors: []string{"Rival"},
	})
	require.NoError(t, err)
	insights, err := db.ListInsights(ctx, company.ID)
	require.NoError(t, err)
	require.Len(t, insights, 1)
	assert.Equal(t, []string{"Rival"}, insights[0].RelatedCompetitors)

	// Array columns round-trip.
	got, err := db.GetCompetitor(ctx, comp.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"brand", "scale"}, got.Strengths)
}

func drain(ch chan bool) []bool {
	var out []bool
	for v := range ch {
		out = append(out, v)
	}
	return out
}
