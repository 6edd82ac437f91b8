package dialect

import (
	"fmt"
	"strings"

	"partialdump/internal/dump"
	"partialdump/internal/patch"
)

// InsertEncoder patches Records and renders them as INSERT statements.
// It implements dump.Encoder.
type InsertEncoder struct {
	Dialect Dialect
	Patches patch.Chain
	// SchemaMap renames source schemas in the output. When set, statements
	// are schema-qualified; a mapping to "" drops the qualifier.
	SchemaMap map[string]string
}

// Patch applies the patch chain and the schema map on a copy of rec.
func (e *InsertEncoder) Patch(rec dump.Record) (dump.Record, error) {
	out, err := e.Patches.Apply(rec)
	if err != nil {
		return dump.Record{}, err
	}
	if target, ok := e.SchemaMap[out.Schema]; ok {
		out.Schema = target
	}
	return out, nil
}

// Encode renders rec as one INSERT statement, without trailing semicolon.
func (e *InsertEncoder) Encode(rec dump.Record) (string, error) {
	if len(rec.Columns) == 0 {
		return "", fmt.Errorf("encode %s: record has no columns", rec.Key())
	}
	cols := make([]string, len(rec.Columns))
	vals := make([]string, len(rec.Columns))
	for i, c := range rec.Columns {
		cols[i] = e.Dialect.QuoteIdentifier(c)
		vals[i] = e.Dialect.EscapeValue(rec.Data[c])
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		e.tableName(rec), strings.Join(cols, ", "), strings.Join(vals, ", ")), nil
}

func (e *InsertEncoder) tableName(rec dump.Record) string {
	table := e.Dialect.QuoteIdentifier(rec.Table)
	if len(e.SchemaMap) == 0 || rec.Schema == "" {
		return table
	}
	return e.Dialect.QuoteIdentifier(rec.Schema) + "." + table
}
