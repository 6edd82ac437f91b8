package dbclient

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"

	_ "modernc.org/sqlite"

	"partialdump/internal/dialect"
	"partialdump/internal/domain"
)

// newSQLiteConnector creates a read-only connector for an SQLite file.
// Host holds the file path.
func newSQLiteConnector(conn *domain.DatabaseConnection, d dialect.Dialect, maxConns int, th *throttle, log *slog.Logger) (*sqlConnector, error) {
	if conn.Host == "" {
		return nil, fmt.Errorf("sqlite: host must be the database file path")
	}
	if _, err := os.Stat(conn.Host); err != nil {
		return nil, fmt.Errorf("sqlite: %w", err)
	}
	dsn := "file:" + conn.Host + "?mode=ro&_pragma=busy_timeout(5000)&_pragma=query_only(1)"
	return newSQLConnector(sqlConnectorConfig{
		driverName:  "sqlite",
		dsn:         dsn,
		dialect:     d,
		maxConns:    maxConns,
		throttle:    th,
		normalize:   normalizeValue,
		foreignKeys: findSQLiteForeignKeys,
	}, log)
}

// findSQLiteForeignKeys reads pragma_foreign_key_list of every user table.
// A reference without target column points at the primary key.
func findSQLiteForeignKeys(ctx context.Context, c *sqlConnector) ([]ForeignKey, error) {
	tables, err := queryStrings(ctx, c.db,
		`SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}

	var fks []ForeignKey
	for _, table := range tables {
		rows, err := c.db.QueryContext(ctx,
			`SELECT id, "table", "from", "to" FROM pragma_foreign_key_list(?) ORDER BY id, seq`, table)
		if err != nil {
			return nil, fmt.Errorf("foreign keys of %s: %w", table, err)
		}
		for rows.Next() {
			var id int
			var ref, from string
			var to sql.NullString
			if err := rows.Scan(&id, &ref, &from, &to); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan foreign key: %w", err)
			}
			fks = append(fks, ForeignKey{
				Name:      fmt.Sprintf("%s_fk%d", table, id),
				Table:     table,
				Column:    from,
				RefTable:  ref,
				RefColumn: to.String,
			})
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
	}

	for i := range fks {
		if fks[i].RefColumn != "" {
			continue
		}
		pks, err := queryStrings(ctx, c.db,
			`SELECT name FROM pragma_table_info(?) WHERE pk > 0 ORDER BY pk`, fks[i].RefTable)
		if err != nil {
			return nil, fmt.Errorf("primary key of %s: %w", fks[i].RefTable, err)
		}
		if len(pks) == 0 {
			fks[i].RefColumn = "rowid"
		} else {
			fks[i].RefColumn = pks[0]
		}
	}
	return fks, nil
}

func queryStrings(ctx context.Context, db *sql.DB, query string, args ...any) ([]string, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
