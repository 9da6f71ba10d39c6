package research

import (
	"context"
	"flag"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratalens-ai/stratalens/internal/model"
	"github.com/stratalens-ai/stratalens/internal/storage"
	"github.com/stratalens-ai/stratalens/internal/testutil"
)

// integrationDB is shared by the tests in this file and nil under -short.
var integrationDB *storage.DB

func TestMain(m *testing.M) {
	flag.Parse()
	if testing.Short() {
		os.Exit(m.Run())
	}

	tc := testutil.MustStartPostgres()
	db, err := tc.NewTestDB(context.Background(), testutil.TestLogger())
	if err != nil {
		tc.Terminate()
		panic(err)
	}
	integrationDB = db

	code := m.Run()
	db.Close()
	tc.Terminate()
	os.Exit(code)
}

// persistingRunner writes a terminal research state like the real runner,
// without calling a model.
type persistingRunner struct {
	store storage.Store
	fail  map[uuid.UUID]bool
}

func (r *persistingRunner) Run(ctx context.Context, id uuid.UUID) Outcome {
	if r.fail[id] {
		_ = r.store.UpdateResearch(ctx, id, model.ResearchError, "## Error\ninjected failure")
		return Outcome{CompetitorID: id, Kind: Failed, Reason: "injected failure"}
	}
	_ = r.store.UpdateResearch(ctx, id, model.ResearchCompleted,
		"# Report\nDetailed findings with more than enough body text to count.")
	return Outcome{CompetitorID: id, Kind: Completed}
}

func TestBatchAgainstPostgres(t *testing.T) {
	if integrationDB == nil {
		t.Skip("integration test: postgres container not started under -short")
	}
	ctx := context.Background()
	db := integrationDB

	company, err := db.CreateCompany(ctx, model.Company{Name: "BatchCo " + uuid.NewString()})
	require.NoError(t, err)

	ids := make([]uuid.UUID, 0, 4)
	for _, name := range []string{"A", "B", "C", "D"} {
		comp, err := db.CreateCompetitor(ctx, model.Competitor{
			CompanyID: company.ID, Name: name, ResearchStatus: model.ResearchNotStarted,
		})
		require.NoError(t, err)
		ids = append(ids, comp.ID)
	}

	runner := &persistingRunner{store: db, fail: map[uuid.UUID]bool{ids[3]: true}}
	rebuilder := &countingRebuilder{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	orch := NewOrchestrator(db, runner, rebuilder, logger, 2)

	res, err := orch.TriggerBatch(ctx, company.ID, ids)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Succeeded)
	assert.Equal(t, 1, res.Failed)
	assert.Empty(t, res.Rejected)
	assert.Equal(t, int32(1), rebuilder.calls.Load())

	// Terminal statuses landed in the database.
	comps, err := db.ListCompetitors(ctx, company.ID)
	require.NoError(t, err)
	statuses := map[model.ResearchStatus]int{}
	for _, c := range comps {
		statuses[c.ResearchStatus]++
		assert.NotEmpty(t, c.ResearchMarkdown)
	}
	assert.Equal(t, 3, statuses[model.ResearchCompleted])
	assert.Equal(t, 1, statuses[model.ResearchError])

	// A second trigger only accepts the errored competitor.
	res, err = orch.TriggerBatch(ctx, company.ID, ids)
	require.NoError(t, err)
	assert.Len(t, res.Rejected, 3)
	assert.Len(t, res.Outcomes, 1)
}
