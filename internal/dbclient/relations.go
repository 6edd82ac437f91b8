package dbclient

import (
	"context"
	"fmt"

	"partialdump/internal/dialect"
)

// ForeignKey is one column pair of a foreign key constraint: Table.Column
// references RefTable.RefColumn.
type ForeignKey struct {
	Name      string `json:"name"`
	Schema    string `json:"schema,omitempty"`
	Table     string `json:"table"`
	Column    string `json:"column"`
	RefSchema string `json:"refSchema,omitempty"`
	RefTable  string `json:"refTable"`
	RefColumn string `json:"refColumn"`
}

// PreRequisite returns the template that fetches the referenced rows of a
// batch of referencing rows.
func (fk ForeignKey) PreRequisite(d dialect.Dialect) string {
	target := d.QuoteIdentifier(fk.RefTable)
	if fk.RefSchema != "" {
		target = d.QuoteIdentifier(fk.RefSchema) + "." + target
	}
	source := fk.Table + "." + fk.Column
	if fk.Schema != "" {
		source = fk.Schema + "." + source
	}
	return fmt.Sprintf("SELECT * FROM %s WHERE %s IN ({{*%s}})",
		target, d.QuoteIdentifier(fk.RefColumn), source)
}

// PreRequisites renders every foreign key as a pre-requisite template,
// dropping duplicates.
func PreRequisites(fks []ForeignKey, d dialect.Dialect) []string {
	seen := make(map[string]struct{}, len(fks))
	out := make([]string, 0, len(fks))
	for _, fk := range fks {
		t := fk.PreRequisite(d)
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

const mysqlForeignKeysQuery = `SELECT CONSTRAINT_NAME, TABLE_SCHEMA, TABLE_NAME, COLUMN_NAME,
       REFERENCED_TABLE_SCHEMA, REFERENCED_TABLE_NAME, REFERENCED_COLUMN_NAME
FROM INFORMATION_SCHEMA.KEY_COLUMN_USAGE
WHERE REFERENCED_TABLE_NAME IS NOT NULL AND TABLE_SCHEMA = ?
ORDER BY TABLE_NAME, CONSTRAINT_NAME, ORDINAL_POSITION`

const referentialConstraintsQuery = `SELECT rc.CONSTRAINT_NAME, fk.TABLE_SCHEMA, fk.TABLE_NAME, fk.COLUMN_NAME,
       pk.TABLE_SCHEMA, pk.TABLE_NAME, pk.COLUMN_NAME
FROM INFORMATION_SCHEMA.REFERENTIAL_CONSTRAINTS rc
JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE fk
  ON fk.CONSTRAINT_SCHEMA = rc.CONSTRAINT_SCHEMA AND fk.CONSTRAINT_NAME = rc.CONSTRAINT_NAME
JOIN INFORMATION_SCHEMA.KEY_COLUMN_USAGE pk
  ON pk.CONSTRAINT_SCHEMA = rc.UNIQUE_CONSTRAINT_SCHEMA AND pk.CONSTRAINT_NAME = rc.UNIQUE_CONSTRAINT_NAME
 AND pk.ORDINAL_POSITION = fk.ORDINAL_POSITION
WHERE fk.TABLE_SCHEMA = %s
ORDER BY fk.TABLE_NAME, rc.CONSTRAINT_NAME, fk.ORDINAL_POSITION`

var mssqlForeignKeysQuery = fmt.Sprintf(referentialConstraintsQuery, "@p1")

// information_schema columns are domains over name; cast them for pgx.
const postgresForeignKeysQuery = `SELECT rc.constraint_name::text, fk.table_schema::text, fk.table_name::text, fk.column_name::text,
       pk.table_schema::text, pk.table_name::text, pk.column_name::text
FROM information_schema.referential_constraints rc
JOIN information_schema.key_column_usage fk
  ON fk.constraint_schema = rc.constraint_schema AND fk.constraint_name = rc.constraint_name
JOIN information_schema.key_column_usage pk
  ON pk.constraint_schema = rc.unique_constraint_schema AND pk.constraint_name = rc.unique_constraint_name
 AND pk.ordinal_position = fk.position_in_unique_constraint
WHERE fk.table_schema = $1
ORDER BY fk.table_name, rc.constraint_name, fk.ordinal_position`

// rowScanner is satisfied by both *sql.Rows and pgx.Rows.
type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanForeignKeys(rows rowScanner) ([]ForeignKey, error) {
	var fks []ForeignKey
	for rows.Next() {
		var fk ForeignKey
		if err := rows.Scan(&fk.Name, &fk.Schema, &fk.Table, &fk.Column,
			&fk.RefSchema, &fk.RefTable, &fk.RefColumn); err != nil {
			return nil, fmt.Errorf("scan foreign key: %w", err)
		}
		fks = append(fks, fk)
	}
	return fks, rows.Err()
}

func findMySQLForeignKeys(ctx context.Context, c *sqlConnector) ([]ForeignKey, error) {
	return c.findInfoSchemaForeignKeys(ctx, mysqlForeignKeysQuery, c.schema)
}

func findMSSQLForeignKeys(ctx context.Context, c *sqlConnector) ([]ForeignKey, error) {
	return c.findInfoSchemaForeignKeys(ctx, mssqlForeignKeysQuery, c.schema)
}

// findInfoSchemaForeignKeys runs an INFORMATION_SCHEMA foreign key query.
func (c *sqlConnector) findInfoSchemaForeignKeys(ctx context.Context, query, schema string) ([]ForeignKey, error) {
	rows, err := c.db.QueryContext(ctx, query, schema)
	if err != nil {
		return nil, fmt.Errorf("foreign keys: %w", err)
	}
	defer rows.Close()
	return scanForeignKeys(rows)
}
