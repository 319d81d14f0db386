package dbclient

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"textingest/internal/domain"
	"textingest/internal/etl"
)

// Connector abstracts the repository sink: one document store per
// collection (MongoDB) or table (SQL drivers).
type Connector interface {
	// TestConnection verifies connectivity.
	TestConnection(ctx context.Context) error

	// Insert stores doc in collection. Errors are tagged with
	// etl.ErrSinkConnection or etl.ErrSinkRejected.
	Insert(ctx context.Context, collection string, doc etl.Document) error

	// Close closes the connection.
	Close() error
}

// NewConnector creates a Connector for the given repository connection.
// No network round trip happens here; call TestConnection to verify.
// A nil logger discards connection lifecycle logs.
func NewConnector(conn domain.RepositoryConnection, logger *zap.Logger) (Connector, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("driver", string(conn.Driver)))
	switch conn.Driver {
	case domain.RepositoryDriverSQLite:
		return newSQLiteConnector(conn, logger)
	case domain.RepositoryDriverMySQL:
		return newSQLConnector("mysql", mysqlDialect, buildMySQLDSN(conn), logger)
	case domain.RepositoryDriverPostgres:
		return newSQLConnector("postgres", postgresDialect, buildPostgresDSN(conn), logger)
	case domain.RepositoryDriverMongoDB, "":
		return newMongoConnector(conn, logger)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", conn.Driver)
	}
}
