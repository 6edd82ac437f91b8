package dump

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
)

// ── Record ─────────────────────────────────────────────────
// One decoded database row scoped to a single origin table.
// Connectors emit Records, the Dumper deduplicates and orders them,
// encoders turn them into statements.

// Point is a 2-D geometry value.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Record is a single row of one table flowing through the dump.
// Columns keeps the column order of the source result set; Data holds the values.
type Record struct {
	Schema  string         `json:"schema,omitempty"`
	Table   string         `json:"table"`
	Columns []string       `json:"columns"`
	Data    map[string]any `json:"data"`
}

// NewRecord builds a Record from parallel column/value slices.
func NewRecord(schema, table string, columns []string, values []any) Record {
	r := Record{
		Schema:  schema,
		Table:   table,
		Columns: make([]string, 0, len(columns)),
		Data:    make(map[string]any, len(columns)),
	}
	for i, col := range columns {
		if _, dup := r.Data[col]; !dup {
			r.Columns = append(r.Columns, col)
		}
		if i < len(values) {
			r.Data[col] = values[i]
		} else {
			r.Data[col] = nil
		}
	}
	return r
}

// Lookup returns the value of column, matched case-insensitively.
func (r Record) Lookup(column string) (any, bool) {
	if v, ok := r.Data[column]; ok {
		return v, true
	}
	for _, c := range r.Columns {
		if strings.EqualFold(c, column) {
			return r.Data[c], true
		}
	}
	return nil, false
}

// IsEmpty reports whether every value is NULL (an outer-join miss).
func (r Record) IsEmpty() bool {
	for _, v := range r.Data {
		if v != nil {
			return false
		}
	}
	return true
}

// Clone returns a copy whose Columns and Data can be modified freely.
func (r Record) Clone() Record {
	c := Record{
		Schema:  r.Schema,
		Table:   r.Table,
		Columns: append([]string(nil), r.Columns...),
		Data:    make(map[string]any, len(r.Data)),
	}
	for k, v := range r.Data {
		c.Data[k] = v
	}
	return c
}

// Key returns "schema.table", or "table" when there is no schema.
func (r Record) Key() string {
	if r.Schema == "" {
		return r.Table
	}
	return r.Schema + "." + r.Table
}

// ── Identity ───────────────────────────────────────────────

// Identity is the digest under which a Record is tracked in the seen set.
// Two distinct rows collide with probability about n²/2^65 for n rows
// (below 3e-6 for ten million rows); a collision drops the later row.
type Identity uint64

// IdentityOf returns the identity of r: (schema, table, id) when an id column
// holds a value, otherwise a digest of the whole record. Schema and table
// compare case-insensitively.
func IdentityOf(r Record) Identity {
	var b strings.Builder
	b.WriteString(strings.ToLower(r.Schema))
	b.WriteByte(0)
	b.WriteString(strings.ToLower(r.Table))
	b.WriteByte(0)
	if id, ok := r.Lookup("id"); ok && id != nil {
		b.WriteString("id\x00")
		writeCanonical(&b, id)
		return Identity(xxhash.Sum64String(b.String()))
	}
	b.WriteString("row\x00")
	for _, col := range r.Columns {
		b.WriteString(col)
		b.WriteByte('=')
		writeCanonical(&b, r.Data[col])
		b.WriteByte(0)
	}
	return Identity(xxhash.Sum64String(b.String()))
}

// writeCanonical writes a type-tagged rendering of v so that 1 and "1" differ.
func writeCanonical(b *strings.Builder, v any) {
	switch val := v.(type) {
	case nil:
		b.WriteString("n:")
	case string:
		b.WriteString("s:")
		b.WriteString(val)
	case []byte:
		b.WriteString("s:")
		b.Write(val)
	case bool:
		b.WriteString("b:")
		b.WriteString(strconv.FormatBool(val))
	case int64:
		b.WriteString("i:")
		b.WriteString(strconv.FormatInt(val, 10))
	case int:
		b.WriteString("i:")
		b.WriteString(strconv.Itoa(val))
	case int32:
		b.WriteString("i:")
		b.WriteString(strconv.FormatInt(int64(val), 10))
	case uint64:
		b.WriteString("i:")
		b.WriteString(strconv.FormatUint(val, 10))
	case float64:
		b.WriteString("f:")
		b.WriteString(strconv.FormatFloat(val, 'g', -1, 64))
	case time.Time:
		b.WriteString("t:")
		b.WriteString(val.UTC().Format(time.RFC3339Nano))
	case Point:
		fmt.Fprintf(b, "p:%g,%g", val.X, val.Y)
	default:
		fmt.Fprintf(b, "%T:%v", v, v)
	}
}
