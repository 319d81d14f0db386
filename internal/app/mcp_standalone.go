package app

import (
	mcpserver "textingest/internal/mcp"
)

// serveMCP runs the ingestion tools as a standalone MCP server on
// stdin/stdout until the client disconnects. Logs stay on stderr.
func serveMCP(a *App) error {
	srv := mcpserver.New(mcpserver.Deps{
		Ingest:  a.ingest,
		Logger:  a.logger,
		Version: Version,
	})
	return srv.ServeStdio()
}
