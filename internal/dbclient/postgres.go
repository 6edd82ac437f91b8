package dbclient

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"partialdump/internal/dialect"
	"partialdump/internal/domain"
	"partialdump/internal/dump"
)

// buildPostgresDSN constructs a Postgres keyword/value connection string.
func buildPostgresDSN(conn *domain.DatabaseConnection) string {
	port := conn.Port
	if port == 0 {
		port = domain.DatabaseDriverPostgres.DefaultPort()
	}
	sslMode := conn.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		quoteConnValue(conn.Host), port, quoteConnValue(conn.User),
		quoteConnValue(conn.Password), quoteConnValue(conn.Database), quoteConnValue(sslMode),
	)
}

// quoteConnValue quotes a keyword/value connection string value.
func quoteConnValue(s string) string {
	if s != "" && !strings.ContainsAny(s, ` '\`) {
		return s
	}
	s = strings.ReplaceAll(s, `\`, `\\`)
	return "'" + strings.ReplaceAll(s, `'`, `\'`) + "'"
}

// postgresConnector talks to Postgres through a native pgx pool. Result
// columns carry their table OID, so rows split exactly even across aliased
// joins.
type postgresConnector struct {
	pool     *pgxpool.Pool
	throttle *throttle
	log      *slog.Logger

	mu        sync.Mutex
	schema    string            // current_schema(), resolved lazily
	relations map[uint32]origin // table OID -> schema/table
}

func newPostgresConnector(ctx context.Context, conn *domain.DatabaseConnection, maxConns int, th *throttle, log *slog.Logger) (*postgresConnector, error) {
	cfg, err := pgxpool.ParseConfig(buildPostgresDSN(conn))
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	// One spare connection for catalog lookups while every query slot is busy.
	cfg.MaxConns = int32(maxConns + 1)
	cfg.MaxConnLifetime = 10 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return &postgresConnector{
		pool:      pool,
		throttle:  th,
		log:       log.With("driver", "postgres"),
		relations: make(map[uint32]origin),
	}, nil
}

func (c *postgresConnector) Dialect() dialect.Dialect { return dialect.Postgres{} }

func (c *postgresConnector) EscapeValue(v any) string { return dialect.Postgres{}.EscapeValue(v) }

func (c *postgresConnector) TestConnection(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return c.pool.Ping(ctx)
}

func (c *postgresConnector) Close() error {
	c.pool.Close()
	return nil
}

func (c *postgresConnector) currentSchema(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.schema != "" {
		return c.schema, nil
	}
	if err := c.pool.QueryRow(ctx, `SELECT current_schema()::text`).Scan(&c.schema); err != nil {
		return "", fmt.Errorf("current schema: %w", err)
	}
	return c.schema, nil
}

func (c *postgresConnector) FindForeignKeys(ctx context.Context) ([]ForeignKey, error) {
	schema, err := c.currentSchema(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := c.pool.Query(ctx, postgresForeignKeysQuery, schema)
	if err != nil {
		return nil, fmt.Errorf("foreign keys: %w", err)
	}
	defer rows.Close()
	return scanForeignKeys(rows)
}

// Fetch executes query and streams its rows as Records.
func (c *postgresConnector) Fetch(ctx context.Context, query string) (dump.RecordIterator, error) {
	schema, err := c.currentSchema(ctx)
	if err != nil {
		return nil, err
	}
	release, err := c.throttle.acquire(ctx)
	if err != nil {
		return nil, err
	}

	rows, err := c.pool.Query(ctx, query)
	if err != nil {
		release()
		return nil, fmt.Errorf("query: %w", err)
	}

	fds := rows.FieldDescriptions()
	names := make([]string, len(fds))
	oids := make([]uint32, len(fds))
	for i, fd := range fds {
		names[i] = fd.Name
		oids[i] = fd.TableOID
	}
	known, err := c.resolveTables(ctx, oids)
	if err != nil {
		rows.Close()
		release()
		return nil, err
	}

	var plan columnPlan
	if len(fds) > 0 {
		plan, err = planColumns(query, names, known, schema)
		if err != nil {
			rows.Close()
			release()
			return nil, err
		}
	}
	c.log.Debug("query opened", "tables", len(plan.slots), "columns", len(names))

	return &pgxRecordIterator{rows: rows, plan: plan, release: release}, nil
}

// resolveTables maps table OIDs to schema and table names, caching lookups
// for the lifetime of the connector.
func (c *postgresConnector) resolveTables(ctx context.Context, oids []uint32) ([]origin, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var missing []uint32
	for _, oid := range oids {
		if _, ok := c.relations[oid]; oid != 0 && !ok {
			missing = append(missing, oid)
		}
	}
	if len(missing) > 0 {
		rows, err := c.pool.Query(ctx, `SELECT c.oid, n.nspname::text, c.relname::text
			FROM pg_catalog.pg_class c
			JOIN pg_catalog.pg_namespace n ON n.oid = c.relnamespace
			WHERE c.oid = ANY($1)`, missing)
		if err != nil {
			return nil, fmt.Errorf("resolve tables: %w", err)
		}
		for rows.Next() {
			var oid uint32
			var o origin
			if err := rows.Scan(&oid, &o.schema, &o.table); err != nil {
				rows.Close()
				return nil, fmt.Errorf("resolve tables: %w", err)
			}
			c.relations[oid] = o
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("resolve tables: %w", err)
		}
	}

	out := make([]origin, len(oids))
	for i, oid := range oids {
		out[i] = c.relations[oid]
	}
	return out, nil
}

// ── Iterator ───────────────────────────────────────────────

type pgxRecordIterator struct {
	rows    pgx.Rows
	plan    columnPlan
	release func()

	queue   []dump.Record
	current dump.Record
	err     error
	closed  bool
}

func (it *pgxRecordIterator) Next() bool {
	for len(it.queue) == 0 {
		if it.closed || it.err != nil || !it.rows.Next() {
			it.current = dump.Record{}
			return false
		}
		values, err := it.rows.Values()
		if err != nil {
			it.err = fmt.Errorf("decode row: %w", err)
			return false
		}
		for j, v := range values {
			values[j] = normalizePgxValue(v)
		}
		it.queue = it.plan.split(values)
	}
	it.current = it.queue[0]
	it.queue = it.queue[1:]
	return true
}

func (it *pgxRecordIterator) Record() dump.Record { return it.current }

func (it *pgxRecordIterator) Err() error {
	if it.err != nil {
		return it.err
	}
	return it.rows.Err()
}

func (it *pgxRecordIterator) Close() error {
	if it.closed {
		return nil
	}
	it.closed = true
	it.queue = nil
	it.rows.Close()
	it.release()
	return it.rows.Err()
}
