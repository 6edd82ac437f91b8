package patch

import (
	"fmt"
	"strings"
	"text/template"

	"partialdump/internal/dump"
)

// ── Patch ──────────────────────────────────────────────────
// Patches rewrite Records between emission and encoding (anonymisation,
// column renames, ...). They are composable and scoped to a table, optionally
// to a schema. A Chain applies them in declaration order on a private copy.

// Patch modifies one Record in place.
type Patch interface {
	Name() string
	Apply(rec *dump.Record) error
}

// Func adapts a plain function to the Patch interface.
type Func func(rec *dump.Record) error

func (f Func) Name() string                 { return "func" }
func (f Func) Apply(rec *dump.Record) error { return f(rec) }

// ── Built-in patches ───────────────────────────────────────

// Set assigns a value to a column, adding the column when missing.
// String values containing "{{" are text/templates executed against the
// row's data, e.g. "person{{.id}}@example.com".
type Set struct {
	Column string
	Value  any
	tmpl   *template.Template
}

// NewSet builds a Set patch, parsing Value as a template when needed.
func NewSet(column string, value any) (*Set, error) {
	s := &Set{Column: column, Value: value}
	if str, ok := value.(string); ok && strings.Contains(str, "{{") {
		t, err := template.New(column).Option("missingkey=error").Parse(str)
		if err != nil {
			return nil, fmt.Errorf("parse value template for %s: %w", column, err)
		}
		s.tmpl = t
	}
	return s, nil
}

func (s *Set) Name() string { return "set " + s.Column }

func (s *Set) Apply(rec *dump.Record) error {
	value := s.Value
	if s.tmpl != nil {
		var b strings.Builder
		if err := s.tmpl.Execute(&b, rec.Data); err != nil {
			return err
		}
		value = b.String()
	}
	col := resolveColumn(rec, s.Column)
	if _, ok := rec.Data[col]; !ok {
		rec.Columns = append(rec.Columns, col)
	}
	rec.Data[col] = value
	return nil
}

// Null sets columns to NULL. Missing columns are ignored.
type Null struct {
	Columns []string
}

func (n *Null) Name() string { return "null " + strings.Join(n.Columns, ",") }

func (n *Null) Apply(rec *dump.Record) error {
	for _, c := range n.Columns {
		col := resolveColumn(rec, c)
		if _, ok := rec.Data[col]; ok {
			rec.Data[col] = nil
		}
	}
	return nil
}

// Drop removes columns from the Record.
type Drop struct {
	Columns []string
}

func (d *Drop) Name() string { return "drop " + strings.Join(d.Columns, ",") }

func (d *Drop) Apply(rec *dump.Record) error {
	for _, c := range d.Columns {
		col := resolveColumn(rec, c)
		if _, ok := rec.Data[col]; !ok {
			continue
		}
		delete(rec.Data, col)
		rec.Columns = removeString(rec.Columns, col)
	}
	return nil
}

// Rename renames one column, keeping its position.
type Rename struct {
	From string
	To   string
}

func (r *Rename) Name() string { return "rename " + r.From + " -> " + r.To }

func (r *Rename) Apply(rec *dump.Record) error {
	col := resolveColumn(rec, r.From)
	v, ok := rec.Data[col]
	if !ok {
		return nil
	}
	if _, clash := rec.Data[r.To]; clash {
		return fmt.Errorf("rename %s: column %s already exists", col, r.To)
	}
	delete(rec.Data, col)
	rec.Data[r.To] = v
	for i, c := range rec.Columns {
		if c == col {
			rec.Columns[i] = r.To
			break
		}
	}
	return nil
}

// ── Chain ──────────────────────────────────────────────────

// Scoped binds a Patch to a table and, optionally, a schema.
type Scoped struct {
	Schema string
	Table  string
	Patch  Patch
}

// Matches reports whether the patch applies to rec. Names compare
// case-insensitively.
func (s Scoped) Matches(rec dump.Record) bool {
	if !strings.EqualFold(s.Table, rec.Table) {
		return false
	}
	return s.Schema == "" || strings.EqualFold(s.Schema, rec.Schema)
}

// Chain is an ordered list of scoped patches.
type Chain []Scoped

// Apply runs every matching patch on a copy of rec. rec itself is never modified.
func (c Chain) Apply(rec dump.Record) (dump.Record, error) {
	out := rec.Clone()
	for _, s := range c {
		if !s.Matches(out) {
			continue
		}
		if err := applyOne(s.Patch, &out); err != nil {
			return dump.Record{}, &dump.PatchError{
				Schema: rec.Schema,
				Table:  rec.Table,
				Patch:  s.Patch.Name(),
				Err:    err,
			}
		}
	}
	return out, nil
}

// applyOne runs p, turning a panic in user code into an error.
func applyOne(p Patch, rec *dump.Record) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return p.Apply(rec)
}

// resolveColumn returns the existing column matching name case-insensitively,
// or name itself.
func resolveColumn(rec *dump.Record, name string) string {
	if _, ok := rec.Data[name]; ok {
		return name
	}
	for _, c := range rec.Columns {
		if strings.EqualFold(c, name) {
			return c
		}
	}
	return name
}

func removeString(ss []string, s string) []string {
	out := ss[:0]
	for _, x := range ss {
		if x != s {
			out = append(out, x)
		}
	}
	return out
}
