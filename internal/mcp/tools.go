package mcp

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"

	"github.com/stratalens-ai/stratalens/internal/model"
	"github.com/stratalens-ai/stratalens/internal/research"
)

func (s *Server) registerTools() {
	// stratalens_analyze: onboard and profile a company.
	s.mcpServer.AddTool(
		mcplib.NewTool("stratalens_analyze",
			mcplib.WithDescription("Analyze a company: create it if unknown and generate its profile (description, industry, welcome message)"),
			mcplib.WithString("company_name", mcplib.Description("Name of the company to analyze"), mcplib.Required()),
		),
		s.handleAnalyze,
	)

	// stratalens_competitors: identify and persist competitors.
	s.mcpServer.AddTool(
		mcplib.NewTool("stratalens_competitors",
			mcplib.WithDescription("Identify the company's competitors and persist new ones with research not started"),
			mcplib.WithString("company_id", mcplib.Description("Company UUID"), mcplib.Required()),
		),
		s.handleCompetitors,
	)

	// stratalens_research: deep research for one competitor.
	s.mcpServer.AddTool(
		mcplib.NewTool("stratalens_research",
			mcplib.WithDescription("Run deep research for one competitor. Rejected when research is already pending or completed."),
			mcplib.WithString("competitor_id", mcplib.Description("Competitor UUID"), mcplib.Required()),
		),
		s.handleResearch,
	)

	// stratalens_research_all: fan research out across a company's competitors.
	s.mcpServer.AddTool(
		mcplib.NewTool("stratalens_research_all",
			mcplib.WithDescription("Run deep research concurrently for every competitor of a company that accepts a trigger, then rebuild the knowledge index once"),
			mcplib.WithString("company_id", mcplib.Description("Company UUID"), mcplib.Required()),
		),
		s.handleResearchAll,
	)

	// stratalens_status: research status per competitor.
	s.mcpServer.AddTool(
		mcplib.NewTool("stratalens_status",
			mcplib.WithDescription("Report the research status of every competitor of a company"),
			mcplib.WithString("company_id", mcplib.Description("Company UUID"), mcplib.Required()),
		),
		s.handleStatus,
	)

	// stratalens_news: gather recent competitor news.
	s.mcpServer.AddTool(
		mcplib.NewTool("stratalens_news",
			mcplib.WithDescription("Fetch and store recent news coverage for a competitor"),
			mcplib.WithString("competitor_id", mcplib.Description("Competitor UUID"), mcplib.Required()),
			mcplib.WithNumber("days_back", mcplib.Description("Lookback window in days (default 30)")),
		),
		s.handleNews,
	)

	// stratalens_insights: synthesize strategic insights.
	s.mcpServer.AddTool(
		mcplib.NewTool("stratalens_insights",
			mcplib.WithDescription("Synthesize strategic insights from competitor profiles and stored news"),
			mcplib.WithString("company_id", mcplib.Description("Company UUID"), mcplib.Required()),
		),
		s.handleInsights,
	)

	// stratalens_ask: grounded Q&A over indexed knowledge.
	s.mcpServer.AddTool(
		mcplib.NewTool("stratalens_ask",
			mcplib.WithDescription("Answer a question about a company using only its indexed competitive intelligence"),
			mcplib.WithString("company_id", mcplib.Description("Company UUID"), mcplib.Required()),
			mcplib.WithString("question", mcplib.Description("The question to answer"), mcplib.Required()),
		),
		s.handleAsk,
	)
}

func parseID(request mcplib.CallToolRequest, key string) (uuid.UUID, error) {
	raw := request.GetString(key, "")
	if raw == "" {
		return uuid.Nil, fmt.Errorf("%s is required", key)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%s is not a valid UUID: %v", key, err)
	}
	return id, nil
}

func (s *Server) handleAnalyze(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	name := request.GetString("company_name", "")
	if name == "" {
		return errorResult("company_name is required"), nil
	}

	company, err := s.intel.AnalyzeCompany(ctx, name)
	if err != nil {
		return errorResult(fmt.Sprintf("analyze failed: %v", err)), nil
	}
	return textResult(company), nil
}

func (s *Server) handleCompetitors(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	companyID, err := parseID(request, "company_id")
	if err != nil {
		return errorResult(err.Error()), nil
	}

	created, err := s.intel.IdentifyCompetitors(ctx, companyID)
	if err != nil {
		return errorResult(fmt.Sprintf("identify competitors failed: %v", err)), nil
	}
	all, err := s.store.ListCompetitors(ctx, companyID)
	if err != nil {
		return errorResult(fmt.Sprintf("list competitors failed: %v", err)), nil
	}

	return textResult(map[string]any{
		"created":     len(created),
		"competitors": all,
	}), nil
}

// outcomeStatus maps a run outcome onto the stored research status.
func outcomeStatus(kind research.Kind) model.ResearchStatus {
	if kind == research.Failed {
		return model.ResearchError
	}
	return model.ResearchCompleted
}

func (s *Server) handleResearch(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	competitorID, err := parseID(request, "competitor_id")
	if err != nil {
		return errorResult(err.Error()), nil
	}

	comp, err := s.store.GetCompetitor(ctx, competitorID)
	if err != nil {
		return errorResult(fmt.Sprintf("load competitor failed: %v", err)), nil
	}

	accepted, err := s.orch.Accept(ctx, competitorID)
	if err != nil {
		return errorResult(fmt.Sprintf("research trigger failed: %v", err)), nil
	}
	if !accepted {
		return textResult(map[string]any{
			"competitor_id": competitorID,
			"dispatched":    false,
			"status":        comp.ResearchStatus,
			"detail":        "research is already pending or completed for this competitor",
		}), nil
	}

	out := s.orch.RunSingle(ctx, comp.CompanyID, competitorID)
	return textResult(map[string]any{
		"competitor_id": competitorID,
		"dispatched":    true,
		"status":        outcomeStatus(out.Kind),
		"outcome":       out.Kind.String(),
		"detail":        out.Reason,
	}), nil
}

func (s *Server) handleResearchAll(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	companyID, err := parseID(request, "company_id")
	if err != nil {
		return errorResult(err.Error()), nil
	}

	competitors, err := s.store.ListCompetitors(ctx, companyID)
	if err != nil {
		return errorResult(fmt.Sprintf("list competitors failed: %v", err)), nil
	}
	ids := make([]uuid.UUID, 0, len(competitors))
	for _, c := range competitors {
		ids = append(ids, c.ID)
	}

	res, err := s.orch.TriggerBatch(ctx, companyID, ids)
	if err != nil {
		return errorResult(fmt.Sprintf("research batch failed: %v", err)), nil
	}

	outcomes := make([]map[string]any, 0, len(res.Outcomes))
	for _, out := range res.Outcomes {
		outcomes = append(outcomes, map[string]any{
			"competitor_id": out.CompetitorID,
			"status":        outcomeStatus(out.Kind),
			"outcome":       out.Kind.String(),
			"detail":        out.Reason,
		})
	}

	return textResult(map[string]any{
		"company_id": companyID,
		"succeeded":  res.Succeeded,
		"failed":     res.Failed,
		"rejected":   res.Rejected,
		"outcomes":   outcomes,
	}), nil
}

func (s *Server) handleStatus(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	companyID, err := parseID(request, "company_id")
	if err != nil {
		return errorResult(err.Error()), nil
	}

	competitors, err := s.store.ListCompetitors(ctx, companyID)
	if err != nil {
		return errorResult(fmt.Sprintf("list competitors failed: %v", err)), nil
	}

	statuses := make([]map[string]any, 0, len(competitors))
	for _, c := range competitors {
		statuses = append(statuses, map[string]any{
			"competitor_id":   c.ID,
			"name":            c.Name,
			"research_status": c.ResearchStatus,
		})
	}
	return textResult(map[string]any{
		"company_id":  companyID,
		"competitors": statuses,
	}), nil
}

func (s *Server) handleNews(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	competitorID, err := parseID(request, "competitor_id")
	if err != nil {
		return errorResult(err.Error()), nil
	}
	daysBack := request.GetInt("days_back", 0)

	articles, err := s.intel.GatherNews(ctx, competitorID, daysBack)
	if err != nil {
		return errorResult(fmt.Sprintf("gather news failed: %v", err)), nil
	}
	return textResult(map[string]any{
		"competitor_id": competitorID,
		"articles":      articles,
	}), nil
}

func (s *Server) handleInsights(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	companyID, err := parseID(request, "company_id")
	if err != nil {
		return errorResult(err.Error()), nil
	}

	insights, err := s.intel.GenerateInsights(ctx, companyID)
	if err != nil {
		return errorResult(fmt.Sprintf("generate insights failed: %v", err)), nil
	}
	return textResult(map[string]any{
		"company_id": companyID,
		"insights":   insights,
	}), nil
}

func (s *Server) handleAsk(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	companyID, err := parseID(request, "company_id")
	if err != nil {
		return errorResult(err.Error()), nil
	}
	question := request.GetString("question", "")
	if question == "" {
		return errorResult("question is required"), nil
	}

	reply, err := s.answerer.Answer(ctx, companyID, question)
	if err != nil {
		return errorResult(fmt.Sprintf("answer failed: %v", err)), nil
	}
	return textResult(map[string]any{
		"company_id": companyID,
		"question":   question,
		"answer":     reply,
	}), nil
}
