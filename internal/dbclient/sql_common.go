package dbclient

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"regexp"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"textingest/internal/etl"
)

// dialect captures the per-driver SQL differences the connector needs.
type dialect struct {
	name        string
	quote       func(ident string) string
	placeholder func(n int) string
	createTable string // %s = quoted table name
}

var (
	postgresDialect = dialect{
		name:        "postgres",
		quote:       func(s string) string { return `"` + s + `"` },
		placeholder: func(n int) string { return fmt.Sprintf("$%d", n) },
		createTable: `CREATE TABLE IF NOT EXISTS %s (
			id         TEXT PRIMARY KEY,
			line       INTEGER NOT NULL,
			document   JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
	}
	mysqlDialect = dialect{
		name:        "mysql",
		quote:       func(s string) string { return "`" + s + "`" },
		placeholder: func(int) string { return "?" },
		createTable: `CREATE TABLE IF NOT EXISTS %s (
			id         VARCHAR(36) PRIMARY KEY,
			line       INT NOT NULL,
			document   JSON NOT NULL,
			created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	sqliteDialect = dialect{
		name:        "sqlite",
		quote:       func(s string) string { return `"` + s + `"` },
		placeholder: func(int) string { return "?" },
		createTable: `CREATE TABLE IF NOT EXISTS %s (
			id         TEXT PRIMARY KEY,
			line       INTEGER NOT NULL,
			document   TEXT NOT NULL,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]{0,62}$`)

// sqlConnector is the shared implementation for MySQL, Postgres, and SQLite.
// Each collection maps to a table holding one JSON document per row.
type sqlConnector struct {
	driverName string
	dialect    dialect
	db         *sql.DB
	logger     *zap.Logger

	mu     sync.Mutex
	tables map[string]bool // tables already ensured
}

// newSQLConnector creates a generic SQL connector.
func newSQLConnector(driverName string, d dialect, dsn string, logger *zap.Logger) (*sqlConnector, error) {
	if dsn == "" {
		return nil, fmt.Errorf("%s: empty DSN (set REPOSITORY_DSN)", driverName)
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driverName, err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(10 * time.Minute)

	logger.Debug("sql repository opened")
	return &sqlConnector{driverName: driverName, dialect: d, db: db, logger: logger, tables: map[string]bool{}}, nil
}

func (c *sqlConnector) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return c.db.PingContext(ctx)
}

// Insert stores doc as a JSON row in the table named collection,
// creating the table on first use.
func (c *sqlConnector) Insert(ctx context.Context, collection string, doc etl.Document) error {
	if !identRe.MatchString(collection) {
		return fmt.Errorf("%w: %q is not a valid table name", etl.ErrSinkRejected, collection)
	}
	body, err := doc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("%w: %v", etl.ErrSinkSerialization, err)
	}
	if err := c.ensureTable(ctx, collection); err != nil {
		return classifySQLError(err)
	}

	line := 0
	if l, ok := etl.LineFromContext(ctx); ok {
		line = l
	}
	query := fmt.Sprintf("INSERT INTO %s (id, line, document) VALUES (%s, %s, %s)",
		c.dialect.quote(collection),
		c.dialect.placeholder(1), c.dialect.placeholder(2), c.dialect.placeholder(3),
	)
	if _, err := c.db.ExecContext(ctx, query, uuid.NewString(), line, string(body)); err != nil {
		return classifySQLError(err)
	}
	return nil
}

func (c *sqlConnector) ensureTable(ctx context.Context, table string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tables[table] {
		return nil
	}
	if _, err := c.db.ExecContext(ctx, fmt.Sprintf(c.dialect.createTable, c.dialect.quote(table))); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	c.tables[table] = true
	c.logger.Debug("table ready", zap.String("table", table))
	return nil
}

func (c *sqlConnector) Close() error {
	c.logger.Debug("sql repository closed")
	return c.db.Close()
}

func classifySQLError(err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, driver.ErrBadConn), errors.Is(err, sql.ErrConnDone),
		errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr):
		return fmt.Errorf("%w: %v", etl.ErrSinkConnection, err)
	default:
		return fmt.Errorf("%w: %v", etl.ErrSinkRejected, err)
	}
}
