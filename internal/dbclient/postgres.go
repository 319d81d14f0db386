package dbclient

import (
	"fmt"
	"strings"

	"textingest/internal/domain"

	_ "github.com/lib/pq"
)

// buildPostgresDSN returns the configured DSN, defaulting sslmode to
// disable when a key/value DSN leaves it out.
func buildPostgresDSN(conn domain.RepositoryConnection) string {
	dsn := strings.TrimSpace(conn.DSN)
	if dsn == "" || strings.Contains(dsn, "sslmode") {
		return dsn
	}
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		return dsn + sep + "sslmode=disable"
	}
	return fmt.Sprintf("%s sslmode=disable", dsn)
}
