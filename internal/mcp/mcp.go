// Package mcp implements the Model Context Protocol server for StrataLens.
//
// The MCP server exposes the analysis workflow as tools and the stored
// intelligence as resources, so MCP-compatible AI agents can onboard a
// company, trigger competitor research, and ask grounded questions.
package mcp

import (
	"encoding/json"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/stratalens-ai/stratalens/internal/answer"
	"github.com/stratalens-ai/stratalens/internal/intel"
	"github.com/stratalens-ai/stratalens/internal/research"
	"github.com/stratalens-ai/stratalens/internal/storage"
)

// Server wraps the MCP server with the StrataLens service layer.
type Server struct {
	mcpServer *mcpserver.MCPServer
	store     storage.Store
	intel     *intel.Service
	orch      *research.Orchestrator
	answerer  *answer.Pipeline
	logger    *slog.Logger
}

// New creates and configures a new MCP server with all resources, tools,
// and prompts.
func New(store storage.Store, svc *intel.Service, orch *research.Orchestrator, answerer *answer.Pipeline, logger *slog.Logger) *Server {
	s := &Server{
		store:    store,
		intel:    svc,
		orch:     orch,
		answerer: answerer,
		logger:   logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"stratalens",
		"0.1.0",
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolCapabilities(true),
	)

	s.registerResources()
	s.registerTools()
	s.registerPrompts()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func textResult(v any) *mcplib.CallToolResult {
	data, _ := json.MarshalIndent(v, "", "  ")
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
