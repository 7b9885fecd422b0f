package mcp

import (
	"context"
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/ragroute/internal/engine"
)

const (
	// ServerName is the MCP server name
	ServerName = "ragroute"
)

// ServerVersion is reported to MCP clients; set from the binary's version
var ServerVersion = "dev"

// Server wraps the MCP server with the engine it serves
type Server struct {
	mcp    *server.MCPServer
	engine *engine.Engine
	logger *slog.Logger
}

// NewServer creates a new MCP server over an assembled engine
func NewServer(e *engine.Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		mcp:    server.NewMCPServer(ServerName, ServerVersion),
		engine: e,
		logger: logger,
	}
	s.registerTools()
	return s
}

// Serve starts the MCP server on stdio and blocks until shutdown.
// The engine stays open; the caller closes it.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("mcp server listening on stdio", "version", ServerVersion)
	return server.ServeStdio(s.mcp)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(routeQueryTool(), s.handleRouteQuery)
	s.mcp.AddTool(searchTool(), s.handleSearch)
	s.mcp.AddTool(ingestCorpusTool(), s.handleIngestCorpus)
	s.mcp.AddTool(buildIndexTool(), s.handleBuildIndex)
	s.mcp.AddTool(backfillLexicalTool(), s.handleBackfillLexical)
	s.mcp.AddTool(setThresholdsTool(), s.handleSetThresholds)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}
