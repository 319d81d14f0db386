package dbclient

import (
	"strings"

	"textingest/internal/domain"

	_ "github.com/go-sql-driver/mysql"
)

// buildMySQLDSN appends parseTime and utf8mb4 to the configured DSN
// (user:password@tcp(host:port)/dbname) unless already present.
func buildMySQLDSN(conn domain.RepositoryConnection) string {
	dsn := strings.TrimSpace(conn.DSN)
	if dsn == "" {
		return dsn
	}
	var params []string
	if !strings.Contains(dsn, "parseTime=") {
		params = append(params, "parseTime=true")
	}
	if !strings.Contains(dsn, "charset=") {
		params = append(params, "charset=utf8mb4")
	}
	if len(params) == 0 {
		return dsn
	}
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + strings.Join(params, "&")
}
