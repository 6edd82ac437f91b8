package dbclient

import (
	"context"
	"fmt"
	"log/slog"

	"partialdump/internal/dialect"
	"partialdump/internal/domain"
	"partialdump/internal/dump"
)

// Connector abstracts the source database of a dump.
type Connector interface {
	dump.Source

	// Dialect returns the escaping policy of the database.
	Dialect() dialect.Dialect

	// TestConnection verifies connectivity.
	TestConnection(ctx context.Context) error

	// FindForeignKeys reads the foreign keys of the connection's default schema.
	FindForeignKeys(ctx context.Context) ([]ForeignKey, error)

	// Close closes the connection pool.
	Close() error
}

// DefaultMaxConnections is the pool size used when none is configured.
const DefaultMaxConnections = 10

// NewConnector creates a Connector for the given database connection.
func NewConnector(ctx context.Context, conn *domain.DatabaseConnection, log *slog.Logger) (Connector, error) {
	if log == nil {
		log = slog.Default()
	}
	maxConns := conn.MaxConnections
	if maxConns <= 0 {
		maxConns = DefaultMaxConnections
	}
	d, err := dialect.ForDriver(conn.Driver)
	if err != nil {
		return nil, err
	}
	th := newThrottle(maxConns, conn.MaxQPS)

	switch conn.Driver {
	case domain.DatabaseDriverSQLite:
		return newSQLiteConnector(conn, d, maxConns, th, log)
	case domain.DatabaseDriverMySQL:
		dsn, err := buildMySQLDSN(conn)
		if err != nil {
			return nil, err
		}
		return newSQLConnector(sqlConnectorConfig{
			driverName:  "mysql",
			dsn:         dsn,
			dialect:     d,
			schema:      conn.Database,
			maxConns:    maxConns,
			throttle:    th,
			normalize:   normalizeMySQLValue,
			foreignKeys: findMySQLForeignKeys,
		}, log)
	case domain.DatabaseDriverMSSQL:
		return newSQLConnector(sqlConnectorConfig{
			driverName:  "sqlserver",
			dsn:         buildMSSQLDSN(conn),
			dialect:     d,
			schema:      "dbo",
			maxConns:    maxConns,
			throttle:    th,
			normalize:   normalizeMSSQLValue,
			foreignKeys: findMSSQLForeignKeys,
		}, log)
	case domain.DatabaseDriverPostgres:
		return newPostgresConnector(ctx, conn, maxConns, th, log)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", conn.Driver)
	}
}
