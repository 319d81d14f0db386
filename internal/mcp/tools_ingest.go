package mcpserver

import (
	"context"
	"errors"

	"textingest/internal/etl"
	"textingest/internal/service"

	"github.com/mark3labs/mcp-go/mcp"
)

func (s *Server) registerIngestTools() {
	s.mcp.AddTool(mcp.NewTool("run_ingest",
		mcp.WithDescription("Decode a CSV or fixed-width data file with a schema and deliver each record to the schema's destination (queue, repository or both). Returns the run summary."),
		mcp.WithString("schemaPath", mcp.Description("Path to the JSON or YAML schema"), mcp.Required()),
		mcp.WithString("dataPath", mcp.Description("Path or http(s) URL of the data file"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{DestructiveHint: boolPtr(true)}),
	), s.handleRunIngest)

	s.mcp.AddTool(mcp.NewTool("validate_schema",
		mcp.WithDescription("Load and validate a schema without reading any data"),
		mcp.WithString("schemaPath", mcp.Description("Path to the JSON or YAML schema"), mcp.Required()),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handleValidateSchema)

	s.mcp.AddTool(mcp.NewTool("preview_records",
		mcp.WithDescription("Decode the first lines of a data file without delivering anything"),
		mcp.WithString("schemaPath", mcp.Description("Path to the JSON or YAML schema"), mcp.Required()),
		mcp.WithString("dataPath", mcp.Description("Path or http(s) URL of the data file"), mcp.Required()),
		mcp.WithNumber("limit", mcp.Description("Maximum number of lines to decode (default 10)")),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handlePreviewRecords)

	s.mcp.AddTool(mcp.NewTool("list_runs",
		mcp.WithDescription("List recent ingestion runs, newest first"),
		mcp.WithNumber("limit", mcp.Description("Maximum number of runs (default 20)")),
		mcp.WithToolAnnotation(mcp.ToolAnnotation{ReadOnlyHint: boolPtr(true)}),
	), s.handleListRuns)
}

// runResult is returned by run_ingest. Error is set when the run aborted
// after reading started.
type runResult struct {
	Status  string          `json:"status"`
	Summary *etl.RunSummary `json:"summary,omitempty"`
	Error   string          `json:"error,omitempty"`
}

func (s *Server) handleRunIngest(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	schemaPath, err := requireString(req, "schemaPath")
	if err != nil {
		return errorResult(err), nil
	}
	dataPath, err := requireString(req, "dataPath")
	if err != nil {
		return errorResult(err), nil
	}

	summary, runErr := s.ingest.Run(ctx, service.RunRequest{
		SchemaPath: schemaPath,
		DataPath:   dataPath,
		Trigger:    service.TriggerMCP,
	})
	if summary == nil {
		return errorResult(runErr), nil
	}
	res := runResult{Status: summary.Status(), Summary: summary}
	if runErr != nil {
		res.Status = etl.StatusError
		res.Error = runErr.Error()
	}
	return jsonResult(res)
}

func (s *Server) handleValidateSchema(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	schemaPath, err := requireString(req, "schemaPath")
	if err != nil {
		return errorResult(err), nil
	}
	schema, err := s.ingest.Validate(schemaPath)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(schema)
}

func (s *Server) handlePreviewRecords(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	schemaPath, err := requireString(req, "schemaPath")
	if err != nil {
		return errorResult(err), nil
	}
	dataPath, err := requireString(req, "dataPath")
	if err != nil {
		return errorResult(err), nil
	}
	limit := req.GetInt("limit", 10)
	if limit <= 0 {
		limit = 10
	}
	res, err := s.ingest.Preview(ctx, schemaPath, dataPath, limit)
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(res)
}

func (s *Server) handleListRuns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	logs, err := s.ingest.ListRuns(req.GetInt("limit", 20))
	if errors.Is(err, service.ErrHistoryDisabled) {
		return textResult(err.Error()), nil
	}
	if err != nil {
		return errorResult(err), nil
	}
	return jsonResult(logs)
}
