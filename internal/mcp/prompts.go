package mcp

import (
	"context"
	"fmt"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerPrompts() {
	// intel-workflow: system prompt snippet walking an agent through the
	// full analysis pipeline.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("intel-workflow",
			mcplib.WithPromptDescription("System prompt snippet explaining the StrataLens competitive intelligence workflow"),
		),
		s.handleWorkflowPrompt,
	)

	// competitive-briefing: ready-made briefing request for one company.
	s.mcpServer.AddPrompt(
		mcplib.NewPrompt("competitive-briefing",
			mcplib.WithPromptDescription("Ask for a competitive briefing built from a company's indexed intelligence"),
			mcplib.WithArgument("company_id",
				mcplib.ArgumentDescription("UUID of the company to brief on"),
				mcplib.RequiredArgument(),
			),
		),
		s.handleBriefingPrompt,
	)
}

func (s *Server) handleWorkflowPrompt(ctx context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	return &mcplib.GetPromptResult{
		Description: "StrataLens competitive intelligence workflow for AI agents",
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: `You have access to StrataLens, a competitive intelligence service.
It profiles a company, maps its competitor landscape, runs deep research
on each rival, and answers questions grounded in what it has gathered.

## The Pipeline

1. stratalens_analyze: onboard the company by name. Returns its id and profile.
2. stratalens_competitors: identify and persist its competitors.
3. stratalens_research_all: run deep research on every competitor that
   accepts a trigger. Competitors already pending or completed are
   rejected, not re-run. The knowledge index is rebuilt once at the end.
4. stratalens_news: pull recent coverage for a competitor.
5. stratalens_insights: synthesize opportunities, threats, and trends.
6. stratalens_ask: ask questions. Answers use only indexed knowledge,
   so run research before expecting substance.

## Things to know

- stratalens_status shows per-competitor research state
  (not_started, pending, completed, error). Retry after error is allowed;
  pending and completed reject new triggers.
- Deep research can take minutes per competitor. Check status rather
  than re-triggering.
- stratalens_ask answers "I don't have the necessary information" when
  nothing is indexed yet. That is a signal to run the pipeline, not an error.`,
				},
			},
		},
	}, nil
}

func (s *Server) handleBriefingPrompt(ctx context.Context, request mcplib.GetPromptRequest) (*mcplib.GetPromptResult, error) {
	companyID := request.Params.Arguments["company_id"]
	if companyID == "" {
		return nil, fmt.Errorf("company_id argument is required")
	}

	return &mcplib.GetPromptResult{
		Description: "Competitive briefing request",
		Messages: []mcplib.PromptMessage{
			{
				Role: mcplib.RoleUser,
				Content: mcplib.TextContent{
					Type: "text",
					Text: fmt.Sprintf(`Prepare a competitive briefing for company %s.

1. CALL stratalens_status with company_id="%s" and note which competitors
   have completed research.
2. CALL stratalens_ask with focused questions, one theme per call:
   - "What are the biggest competitive threats right now?"
   - "Where are competitors weakest?"
   - "What recent competitor moves matter most?"
3. SYNTHESIZE the answers into a short briefing: top threats, top
   opportunities, and recommended next actions. Only use information the
   tools returned; flag gaps where research has not completed.`, companyID, companyID),
				},
			},
		},
	}, nil
}
