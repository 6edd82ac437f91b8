package dbclient

import (
	"fmt"
	"strings"

	"partialdump/internal/dump"
)

// ── Column origins ─────────────────────────────────────────
// database/sql does not report which table a result column comes from.
// The plan attributes every column either to the table named by a
// "table.column" (or "schema.table.column") label, or to the first table of
// the FROM clause. A column name repeated within one table starts a new
// record of that table, so self-joins still split into one record per alias.
// When the FROM clause joins different tables, unlabelled columns are only
// accepted while they are unambiguous: no bare "*" and no repeated name.

type origin struct {
	schema string
	table  string
}

type columnPlan struct {
	slots  []origin // one Record per slot and row
	slotOf []int    // result column index -> slot
	names  []string // result column index -> column name in the Record
}

// planColumns builds the column plan of a result set. known holds origins
// reported by the driver, if any; defaultSchema is assigned to tables the
// query does not qualify.
func planColumns(query string, columns []string, known []origin, defaultSchema string) (columnPlan, error) {
	from := parseFrom(query)
	primary := from.primary()
	if primary.schema == "" {
		primary.schema = defaultSchema
	}
	joined := from.distinct() > 1

	plan := columnPlan{
		slotOf: make([]int, len(columns)),
		names:  make([]string, len(columns)),
	}
	current := map[origin]int{}           // origin -> its latest slot
	seen := map[int]map[string]struct{}{} // slot -> lower-cased names

	for i, col := range columns {
		var o origin
		name := col
		if i < len(known) && known[i].table != "" {
			o = known[i]
		} else {
			o, name = splitLabel(col, defaultSchema)
		}
		implicit := o.table == ""
		if implicit {
			if primary.table == "" {
				return columnPlan{}, fmt.Errorf("cannot determine the table of column %q", col)
			}
			if joined && from.star {
				return columnPlan{}, ambiguousColumn(col, from)
			}
			o = primary
		}

		slot, ok := current[o]
		if ok {
			if _, dup := seen[slot][strings.ToLower(name)]; dup {
				if implicit && joined {
					return columnPlan{}, ambiguousColumn(col, from)
				}
				ok = false
			}
		}
		if !ok {
			slot = len(plan.slots)
			plan.slots = append(plan.slots, o)
			current[o] = slot
			seen[slot] = map[string]struct{}{}
		}
		seen[slot][strings.ToLower(name)] = struct{}{}
		plan.slotOf[i] = slot
		plan.names[i] = name
	}
	return plan, nil
}

func ambiguousColumn(col string, from fromClause) error {
	names := make([]string, 0, len(from.tables))
	for _, t := range from.tables {
		if t.table != "" {
			names = append(names, t.table)
		}
	}
	return fmt.Errorf("column %q is ambiguous: the query joins %s; select joined columns with table.column labels",
		col, strings.Join(names, ", "))
}

// split turns one scanned row into its Records, dropping all-NULL ones.
func (p columnPlan) split(values []any) []dump.Record {
	cols := make([][]string, len(p.slots))
	vals := make([][]any, len(p.slots))
	for i, v := range values {
		s := p.slotOf[i]
		cols[s] = append(cols[s], p.names[i])
		vals[s] = append(vals[s], v)
	}
	out := make([]dump.Record, 0, len(p.slots))
	for s, o := range p.slots {
		rec := dump.NewRecord(o.schema, o.table, cols[s], vals[s])
		if rec.IsEmpty() {
			continue
		}
		out = append(out, rec)
	}
	return out
}

// splitLabel parses "table.column" and "schema.table.column" column labels.
// Plain names return an empty origin.
func splitLabel(label, defaultSchema string) (origin, string) {
	parts := strings.Split(label, ".")
	switch len(parts) {
	case 2:
		if parts[0] != "" && parts[1] != "" {
			return origin{schema: defaultSchema, table: parts[0]}, parts[1]
		}
	case 3:
		if parts[0] != "" && parts[1] != "" && parts[2] != "" {
			return origin{schema: parts[0], table: parts[1]}, parts[2]
		}
	}
	return origin{}, label
}

// fromClause is the outermost FROM clause of a query (best-effort).
type fromClause struct {
	tables []origin // in order, joins included; zero origin for a subquery
	star   bool     // the select list holds a bare "*"
}

var clauseEnd = map[string]bool{
	"WHERE": true, "GROUP": true, "ORDER": true, "HAVING": true, "LIMIT": true,
	"OFFSET": true, "FETCH": true, "UNION": true, "WINDOW": true, "FOR": true,
}

func parseFrom(query string) fromClause {
	fields := strings.Fields(strings.ReplaceAll(query, ",", " , "))
	var fc fromClause

	start, depth := -1, 0
	for i, f := range fields {
		if depth == 0 {
			if strings.EqualFold(f, "FROM") {
				start = i
				break
			}
			if f == "*" {
				fc.star = true
			}
		}
		depth += strings.Count(f, "(") - strings.Count(f, ")")
	}
	if start < 0 {
		return fromClause{}
	}

	expect, depth := true, 0
	for _, f := range fields[start+1:] {
		if depth == 0 {
			u := strings.ToUpper(f)
			if clauseEnd[u] {
				break
			}
			if u == "," || u == "JOIN" || u == "STRAIGHT_JOIN" {
				expect = true
				continue
			}
			if expect {
				expect = false
				if strings.HasPrefix(f, "(") {
					fc.tables = append(fc.tables, origin{})
				} else {
					fc.tables = append(fc.tables, parseTableName(f))
				}
			}
		}
		depth += strings.Count(f, "(") - strings.Count(f, ")")
		if depth < 0 {
			break
		}
	}
	return fc
}

func (fc fromClause) primary() origin {
	if len(fc.tables) == 0 {
		return origin{}
	}
	return fc.tables[0]
}

// distinct counts the different tables of the clause.
func (fc fromClause) distinct() int {
	set := map[origin]struct{}{}
	for _, t := range fc.tables {
		set[origin{schema: strings.ToLower(t.schema), table: strings.ToLower(t.table)}] = struct{}{}
	}
	return len(set)
}

// extractTableName returns the first table of the FROM clause (best-effort).
func extractTableName(query string) origin {
	return parseFrom(query).primary()
}

func parseTableName(name string) origin {
	parts := strings.Split(strings.TrimRight(name, ";)"), ".")
	for j := range parts {
		parts[j] = unquoteIdentifier(parts[j])
	}
	if len(parts) == 1 {
		return origin{table: parts[0]}
	}
	return origin{schema: parts[len(parts)-2], table: parts[len(parts)-1]}
}

func unquoteIdentifier(s string) string {
	s = strings.Trim(s, "`\"'")
	s = strings.TrimPrefix(s, "[")
	return strings.TrimSuffix(s, "]")
}
