package dbclient

import (
	"strings"

	"go.uber.org/zap"

	"textingest/internal/domain"

	_ "modernc.org/sqlite"
)

// newSQLiteConnector creates a connector for a SQLite file.
// Opens in WAL mode with busy timeout for concurrent access.
func newSQLiteConnector(conn domain.RepositoryConnection, logger *zap.Logger) (*sqlConnector, error) {
	path := strings.TrimPrefix(strings.TrimSpace(conn.DSN), "sqlite://")
	dsn := path
	if path != "" && !strings.Contains(path, "?") {
		dsn = path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}
	return newSQLConnector("sqlite", sqliteDialect, dsn, logger)
}
