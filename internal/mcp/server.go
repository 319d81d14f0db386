package mcpserver

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"textingest/internal/service"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Server is the MCP server for textingest.
// It exposes run, validate, preview and history tools so agents can drive
// ingestion without the CLI.
type Server struct {
	mcp    *server.MCPServer
	ingest *service.IngestService
	logger *zap.Logger
}

// Deps holds all dependencies passed from the app layer to the MCP server.
type Deps struct {
	Ingest  *service.IngestService
	Logger  *zap.Logger
	Version string
}

// New creates and configures a new MCP server with all tools.
func New(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := &Server{ingest: deps.Ingest, logger: logger}

	s.mcp = server.NewMCPServer(
		"textingest-mcp",
		version,
		server.WithToolCapabilities(true),
	)
	s.registerIngestTools()
	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	s.logger.Info("starting MCP stdio server")
	return server.ServeStdio(s.mcp)
}

// MCPServer exposes the underlying server for in-process clients.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// ── Helpers ────────────────────────────────────────────────

// textResult creates a simple text tool result.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

// jsonResult serializes v to JSON and wraps it in a text tool result.
func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return textResult(string(data)), nil
}

// errorResult reports a tool-level failure to the agent.
func errorResult(err error) *mcp.CallToolResult {
	res := textResult(err.Error())
	res.IsError = true
	return res
}

func requireString(req mcp.CallToolRequest, key string) (string, error) {
	v, err := req.RequireString(key)
	if err != nil || v == "" {
		return "", fmt.Errorf("%s is required", key)
	}
	return v, nil
}

func boolPtr(v bool) *bool { return &v }
