package research

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"golang.org/x/sync/errgroup"

	"github.com/stratalens-ai/stratalens/internal/storage"
)

// defaultMaxConcurrent caps parallel research runs per batch.
const defaultMaxConcurrent = 4

// TaskRunner executes one research task. Satisfied by *Runner; tests inject
// counters behind it.
type TaskRunner interface {
	Run(ctx context.Context, competitorID uuid.UUID) Outcome
}

// Rebuilder refreshes a company's retrieval index.
type Rebuilder interface {
	Rebuild(ctx context.Context, companyID uuid.UUID) error
}

// BatchResult aggregates one batch of research runs.
type BatchResult struct {
	CompanyID uuid.UUID
	Outcomes  []Outcome
	Succeeded int
	Failed    int
	// Rejected holds ids that were already pending or completed and were
	// not dispatched.
	Rejected []uuid.UUID
}

// Orchestrator fans research tasks out across goroutines and triggers the
// index rebuild exactly once per batch after all tasks finish. Individual
// task failures never cancel sibling tasks and never fail the batch; they
// are counted and reported.
type Orchestrator struct {
	store         storage.Store
	runner        TaskRunner
	index         Rebuilder
	logger        *slog.Logger
	maxConcurrent int

	runCounter      metric.Int64Counter
	rebuildDuration metric.Float64Histogram
}

// NewOrchestrator creates an Orchestrator. maxConcurrent <= 0 uses the
// default.
func NewOrchestrator(store storage.Store, runner TaskRunner, index Rebuilder, logger *slog.Logger, maxConcurrent int) *Orchestrator {
	if maxConcurrent <= 0 {
		maxConcurrent = defaultMaxConcurrent
	}
	meter := otel.Meter("stratalens/research")
	runCounter, _ := meter.Int64Counter("research.runs",
		metric.WithDescription("Research runs by outcome"))
	rebuildDuration, _ := meter.Float64Histogram("research.rebuild.duration",
		metric.WithDescription("Index rebuild duration after a batch"),
		metric.WithUnit("s"))
	return &Orchestrator{
		store:           store,
		runner:          runner,
		index:           index,
		logger:          logger,
		maxConcurrent:   maxConcurrent,
		runCounter:      runCounter,
		rebuildDuration: rebuildDuration,
	}
}

// Accept attempts the pending compare-and-set for a competitor. It returns
// false when the competitor is already pending or completed, which keeps
// at most one research run in flight per entity.
func (o *Orchestrator) Accept(ctx context.Context, competitorID uuid.UUID) (bool, error) {
	return o.store.TryMarkResearchPending(ctx, competitorID)
}

// RunBatch fans out one research run per accepted competitor, waits for all
// of them, then rebuilds the company index once. competitorIDs must already
// be marked pending via Accept; ids that were not accepted belong in
// BatchResult.Rejected by the caller.
func (o *Orchestrator) RunBatch(ctx context.Context, companyID uuid.UUID, competitorIDs []uuid.UUID) BatchResult {
	res := BatchResult{CompanyID: companyID, Outcomes: make([]Outcome, 0, len(competitorIDs))}
	if len(competitorIDs) == 0 {
		o.rebuild(ctx, companyID)
		return res
	}

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(o.maxConcurrent)
	for _, id := range competitorIDs {
		g.Go(func() error {
			out := o.runner.Run(ctx, id)
			mu.Lock()
			res.Outcomes = append(res.Outcomes, out)
			mu.Unlock()
			return nil
		})
	}
	// Runner tasks never return errors; failures are folded into Outcomes.
	_ = g.Wait()

	for _, out := range res.Outcomes {
		if out.Kind == Failed {
			res.Failed++
		} else {
			res.Succeeded++
		}
		o.runCounter.Add(ctx, 1, metric.WithAttributes(
			attribute.String("outcome", out.Kind.String())))
	}
	o.logger.Info("research: batch finished", "company_id", companyID,
		"total", len(competitorIDs), "succeeded", res.Succeeded, "failed", res.Failed)

	o.rebuild(ctx, companyID)
	return res
}

// TriggerBatch marks every competitor pending that accepts a trigger, then
// runs the batch over the accepted set. Rejected ids are reported, not
// retried.
func (o *Orchestrator) TriggerBatch(ctx context.Context, companyID uuid.UUID, competitorIDs []uuid.UUID) (BatchResult, error) {
	accepted := make([]uuid.UUID, 0, len(competitorIDs))
	var rejected []uuid.UUID
	for _, id := range competitorIDs {
		ok, err := o.Accept(ctx, id)
		if err != nil {
			return BatchResult{CompanyID: companyID}, err
		}
		if ok {
			accepted = append(accepted, id)
		} else {
			rejected = append(rejected, id)
		}
	}
	res := o.RunBatch(ctx, companyID, accepted)
	res.Rejected = rejected
	return res, nil
}

// RunSingle runs one research task and rebuilds the index for its company.
// The competitor must already be marked pending via Accept.
func (o *Orchestrator) RunSingle(ctx context.Context, companyID, competitorID uuid.UUID) Outcome {
	out := o.runner.Run(ctx, competitorID)
	o.runCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", out.Kind.String())))
	o.rebuild(ctx, companyID)
	return out
}

// rebuild refreshes the company index once. Rebuild failure is logged and
// never propagated as a batch failure; queries fall back to the previous
// index generation.
func (o *Orchestrator) rebuild(ctx context.Context, companyID uuid.UUID) {
	start := time.Now()
	if err := o.index.Rebuild(ctx, companyID); err != nil {
		o.logger.Error("research: index rebuild failed", "company_id", companyID, "error", err)
		return
	}
	o.rebuildDuration.Record(ctx, time.Since(start).Seconds())
	o.logger.Info("research: index rebuilt", "company_id", companyID,
		"duration", time.Since(start))
}
