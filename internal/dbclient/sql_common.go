package dbclient

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"partialdump/internal/dialect"
	"partialdump/internal/dump"
)

// sqlConnectorConfig carries the per-driver parts of a sqlConnector.
type sqlConnectorConfig struct {
	driverName  string
	dsn         string
	dialect     dialect.Dialect
	schema      string // schema assigned to unqualified tables
	maxConns    int
	throttle    *throttle
	normalize   normalizer
	foreignKeys func(ctx context.Context, c *sqlConnector) ([]ForeignKey, error)
}

// sqlConnector is the shared database/sql implementation for MySQL, SQL Server and SQLite.
type sqlConnector struct {
	sqlConnectorConfig
	db  *sql.DB
	log *slog.Logger
}

// newSQLConnector creates a generic SQL connector.
func newSQLConnector(cfg sqlConnectorConfig, log *slog.Logger) (*sqlConnector, error) {
	db, err := sql.Open(cfg.driverName, cfg.dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.driverName, err)
	}
	db.SetMaxOpenConns(cfg.maxConns)
	db.SetMaxIdleConns(cfg.maxConns)
	db.SetConnMaxLifetime(10 * time.Minute)
	if cfg.normalize == nil {
		cfg.normalize = normalizeValue
	}

	return &sqlConnector{
		sqlConnectorConfig: cfg,
		db:                 db,
		log:                log.With("driver", cfg.driverName),
	}, nil
}

func (c *sqlConnector) Dialect() dialect.Dialect { return c.dialect }

func (c *sqlConnector) EscapeValue(v any) string { return c.dialect.EscapeValue(v) }

func (c *sqlConnector) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return c.db.PingContext(ctx)
}

func (c *sqlConnector) FindForeignKeys(ctx context.Context) ([]ForeignKey, error) {
	if c.foreignKeys == nil {
		return nil, fmt.Errorf("%s: foreign key discovery not supported", c.driverName)
	}
	return c.foreignKeys(ctx, c)
}

// Fetch executes query and streams its rows as Records. The connection slot
// is held until the iterator is closed.
func (c *sqlConnector) Fetch(ctx context.Context, query string) (dump.RecordIterator, error) {
	release, err := c.throttle.acquire(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := c.db.QueryContext(ctx, query)
	if err != nil {
		release()
		return nil, fmt.Errorf("query: %w", err)
	}

	types, err := rows.ColumnTypes()
	if err != nil {
		rows.Close()
		release()
		return nil, fmt.Errorf("columns: %w", err)
	}
	names := make([]string, len(types))
	dbTypes := make([]string, len(types))
	for i, t := range types {
		names[i] = t.Name()
		dbTypes[i] = t.DatabaseTypeName()
	}

	plan, err := planColumns(query, names, nil, c.schema)
	if err != nil {
		rows.Close()
		release()
		return nil, err
	}
	c.log.Debug("query opened", "tables", len(plan.slots), "columns", len(names))

	return &sqlRecordIterator{
		rows:      rows,
		plan:      plan,
		dbTypes:   dbTypes,
		normalize: c.normalize,
		release:   release,
	}, nil
}

func (c *sqlConnector) Close() error {
	return c.db.Close()
}

// ── Iterator ───────────────────────────────────────────────

type sqlRecordIterator struct {
	rows      *sql.Rows
	plan      columnPlan
	dbTypes   []string
	normalize normalizer
	release   func()

	queue   []dump.Record
	current dump.Record
	err     error
	closed  bool
}

func (it *sqlRecordIterator) Next() bool {
	for len(it.queue) == 0 {
		if it.closed || it.err != nil || !it.rows.Next() {
			it.current = dump.Record{}
			return false
		}
		values := make([]any, len(it.dbTypes))
		ptrs := make([]any, len(values))
		for j := range values {
			ptrs[j] = &values[j]
		}
		if err := it.rows.Scan(ptrs...); err != nil {
			it.err = fmt.Errorf("scan row: %w", err)
			return false
		}
		for j, v := range values {
			values[j] = it.normalize(v, it.dbTypes[j])
		}
		it.queue = it.plan.split(values)
	}
	it.current = it.queue[0]
	it.queue = it.queue[1:]
	return true
}

func (it *sqlRecordIterator) Record() dump.Record { return it.current }

func (it *sqlRecordIterator) Err() error {
	if it.err != nil {
		return it.err
	}
	if err := it.rows.Err(); err != nil {
		return fmt.Errorf("iterate: %w", err)
	}
	return nil
}

func (it *sqlRecordIterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	it.queue = nil
	err := it.rows.Close()
	it.release()
	return err
}
