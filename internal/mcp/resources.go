package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	mcplib "github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerResources() {
	// stratalens://companies: every company under analysis.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"stratalens://companies",
			"Companies",
			mcplib.WithResourceDescription("All companies under analysis"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleCompaniesResource,
	)

	// stratalens://company/{id}/competitors: competitor profiles and research statuses.
	s.mcpServer.AddResourceTemplate(
		mcplib.NewResourceTemplate(
			"stratalens://company/{id}/competitors",
			"Company Competitors",
			mcplib.WithTemplateDescription("Competitor profiles and research statuses for a company"),
			mcplib.WithTemplateMIMEType("application/json"),
		),
		s.handleCompetitorsResource,
	)

	// stratalens://company/{id}/insights: generated strategic insights.
	s.mcpServer.AddResourceTemplate(
		mcplib.NewResourceTemplate(
			"stratalens://company/{id}/insights",
			"Company Insights",
			mcplib.WithTemplateDescription("Strategic insights generated for a company"),
			mcplib.WithTemplateMIMEType("application/json"),
		),
		s.handleInsightsResource,
	)
}

func (s *Server) handleCompaniesResource(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	companies, err := s.store.ListCompanies(ctx)
	if err != nil {
		return nil, fmt.Errorf("mcp: list companies: %w", err)
	}

	data, err := json.MarshalIndent(companies, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal companies: %w", err)
	}

	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      "stratalens://companies",
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

// companyIDFromURI pulls the {id} segment out of
// stratalens://company/{id}/<suffix>.
func companyIDFromURI(uri, suffix string) (uuid.UUID, error) {
	trimmed := strings.TrimPrefix(uri, "stratalens://company/")
	trimmed = strings.TrimSuffix(trimmed, "/"+suffix)
	id, err := uuid.Parse(trimmed)
	if err != nil {
		return uuid.Nil, fmt.Errorf("mcp: invalid company URI %q: %w", uri, err)
	}
	return id, nil
}

func (s *Server) handleCompetitorsResource(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	uri := request.Params.URI
	companyID, err := companyIDFromURI(uri, "competitors")
	if err != nil {
		return nil, err
	}

	competitors, err := s.store.ListCompetitors(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("mcp: list competitors: %w", err)
	}

	data, err := json.MarshalIndent(map[string]any{
		"company_id":  companyID,
		"competitors": competitors,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal competitors: %w", err)
	}

	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleInsightsResource(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	uri := request.Params.URI
	companyID, err := companyIDFromURI(uri, "insights")
	if err != nil {
		return nil, err
	}

	insights, err := s.store.ListInsights(ctx, companyID)
	if err != nil {
		return nil, fmt.Errorf("mcp: list insights: %w", err)
	}

	data, err := json.MarshalIndent(map[string]any{
		"company_id": companyID,
		"insights":   insights,
	}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal insights: %w", err)
	}

	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      uri,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
