package research

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/stratalens-ai/stratalens/internal/llm"
	"github.com/stratalens-ai/stratalens/internal/model"
	"github.com/stratalens-ai/stratalens/internal/prompt"
	"github.com/stratalens-ai/stratalens/internal/storage"
)

const researchMaxOutputTokens = 32768

// Runner executes one deep-research task for a competitor. The caller has
// already marked the competitor pending; Run guarantees exactly one
// terminal status write on every exit path, so a competitor is never left
// pending.
type Runner struct {
	store  storage.Store
	gen    llm.Generator
	logger *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(store storage.Store, gen llm.Generator, logger *slog.Logger) *Runner {
	return &Runner{store: store, gen: gen, logger: logger}
}

// Run loads the competitor, generates the long-form report, classifies it,
// and persists the terminal status. Failures of any kind, including panics
// in the generation path, fold into the returned Outcome; Run never
// propagates an error to the orchestrator.
func (r *Runner) Run(ctx context.Context, competitorID uuid.UUID) Outcome {
	comp, err := r.store.GetCompetitor(ctx, competitorID)
	if err != nil {
		r.logger.Error("research: load competitor", "competitor_id", competitorID, "error", err)
		// Best-effort cleanup so a transient load error does not leave the
		// competitor pending forever.
		diag := fmt.Sprintf("## Error\nCould not load competitor for research: %v", err)
		if uerr := r.store.UpdateResearch(context.WithoutCancel(ctx), competitorID, model.ResearchError, diag); uerr != nil {
			r.logger.Error("research: cleanup after load failure", "competitor_id", competitorID, "error", uerr)
		}
		return Outcome{CompetitorID: competitorID, Kind: Failed, Reason: fmt.Sprintf("load competitor: %v", err)}
	}

	companyName := ""
	if company, err := r.store.GetCompany(ctx, comp.CompanyID); err == nil {
		companyName = company.Name
	} else {
		// Missing owning company is survivable: the report is framed
		// standalone instead.
		r.logger.Warn("research: load owning company", "competitor_id", competitorID, "error", err)
	}

	cls := r.research(ctx, comp, companyName)

	status := model.ResearchCompleted
	if cls.Kind == Failed {
		status = model.ResearchError
	}
	out := Outcome{CompetitorID: competitorID, Kind: cls.Kind, Reason: cls.Reason}

	// The status write must survive caller cancellation; otherwise the
	// competitor is stuck pending and rejects all future triggers.
	if err := r.store.UpdateResearch(context.WithoutCancel(ctx), competitorID, status, cls.Content); err != nil {
		r.logger.Error("research: persist result", "competitor_id", competitorID,
			"status", status, "error", err)
		out.Kind = Failed
		if out.Reason == "" {
			out.Reason = fmt.Sprintf("persist research result: %v", err)
		}
		return out
	}

	r.logger.Info("research: run finished", "competitor_id", competitorID,
		"competitor", comp.Name, "outcome", cls.Kind.String())
	return out
}

// research performs the generation call and classification with panic
// containment, so a misbehaving backend cannot take down a batch.
func (r *Runner) research(ctx context.Context, comp model.Competitor, companyName string) (cls Classification) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("research: recovered panic", "competitor_id", comp.ID, "panic", rec)
			cls = Classification{
				Kind:    Failed,
				Content: fmt.Sprintf("## Error\nAn unexpected error occurred during research: %v", rec),
				Reason:  fmt.Sprintf("panic: %v", rec),
			}
		}
	}()

	raw, err := r.gen.Generate(ctx, llm.Request{
		System:          prompt.System,
		Prompt:          prompt.DeepResearch(comp.Name, comp.Description, companyName),
		MaxOutputTokens: researchMaxOutputTokens,
		WebSearch:       true,
	})
	if err != nil {
		return Classification{
			Kind:    Failed,
			Content: fmt.Sprintf("## Error\nAn unexpected error occurred during research: %v", err),
			Reason:  fmt.Sprintf("generation failed: %v", err),
		}
	}
	return Classify(raw)
}
