package dump

import (
	"regexp"
	"strings"
)

// ── Relation templates ─────────────────────────────────────
// A relation template is plain SQL with placeholders naming the table whose
// Records trigger it and the column whose values get substituted:
//
//	{{table.column}}            one query per distinct value
//	{{schema.table.column}}
//	{{*table.column}}           one query, comma-joined literal list
//	{{*schema.table.column}}
//
// Templates are parsed once into Template values and never evaluated as code.

var placeholderRe = regexp.MustCompile(`\{\{(\*)?\s*([^{}\s]+?)\s*\}\}`)

// Escaper renders a value as a dialect-correct SQL literal.
type Escaper interface {
	EscapeValue(v any) string
}

// Placeholder is one parsed {{...}} occurrence.
type Placeholder struct {
	Raw    string // full match, e.g. "{{*Pet.ownerId}}"
	Schema string
	Table  string
	Column string
	Multi  bool
}

// Template is a parsed relation template bound to one (schema, table) pair.
type Template struct {
	Raw          string
	Schema       string // empty: matches any schema
	Table        string
	Placeholders []Placeholder
}

// ParseTemplate parses raw and checks that it references exactly one table.
func ParseTemplate(raw string) (Template, error) {
	t := Template{Raw: raw}
	for _, m := range placeholderRe.FindAllStringSubmatch(raw, -1) {
		p := Placeholder{Raw: m[0], Multi: m[1] == "*"}
		parts := strings.Split(m[2], ".")
		switch len(parts) {
		case 2:
			p.Table, p.Column = parts[0], parts[1]
		case 3:
			p.Schema, p.Table, p.Column = parts[0], parts[1], parts[2]
		default:
			return Template{}, &TemplateFormatError{Template: raw, Reason: "placeholder " + m[0] + " must be table.column or schema.table.column"}
		}
		if p.Table == "" || p.Column == "" {
			return Template{}, &TemplateFormatError{Template: raw, Reason: "placeholder " + m[0] + " has an empty table or column"}
		}

		if t.Table == "" {
			t.Table = p.Table
		} else if !strings.EqualFold(t.Table, p.Table) {
			return Template{}, &TemplateFormatError{Template: raw, Reason: "references more than one table (" + t.Table + ", " + p.Table + ")"}
		}
		if p.Schema != "" {
			if t.Schema != "" && !strings.EqualFold(t.Schema, p.Schema) {
				return Template{}, &TemplateFormatError{Template: raw, Reason: "references more than one schema (" + t.Schema + ", " + p.Schema + ")"}
			}
			t.Schema = p.Schema
		}
		t.Placeholders = append(t.Placeholders, p)
	}
	if t.Table == "" {
		return Template{}, &TemplateFormatError{Template: raw, Reason: "no {{table.column}} placeholder"}
	}
	return t, nil
}

// Matches reports whether Records of (schema, table) trigger t.
// Without an explicit schema in the template, any schema matches.
func (t Template) Matches(schema, table string) bool {
	if !strings.EqualFold(t.Table, table) {
		return false
	}
	return t.Schema == "" || strings.EqualFold(t.Schema, schema)
}

// Resolve binds t to a batch of same-table Records and returns the distinct
// concrete queries, in first-produced order. NULL and missing values are
// skipped; a template left without any value yields no query.
func (t Template) Resolve(batch []Record, esc Escaper) []string {
	if len(batch) == 0 {
		return nil
	}

	replacements := make(map[string]string, len(t.Placeholders))
	single := false
	for _, p := range t.Placeholders {
		if !p.Multi {
			single = true
			continue
		}
		if _, done := replacements[p.Raw]; done {
			continue
		}
		list := literalList(batch, p.Column, esc)
		if list == "" {
			return nil
		}
		replacements[p.Raw] = list
	}

	if !single {
		return []string{t.substitute(replacements)}
	}

	var queries []string
	seen := make(map[string]struct{})
	for _, rec := range batch {
		perRecord := make(map[string]string, len(t.Placeholders))
		for k, v := range replacements {
			perRecord[k] = v
		}
		ok := true
		for _, p := range t.Placeholders {
			if p.Multi {
				continue
			}
			v, found := rec.Lookup(p.Column)
			if !found || v == nil {
				ok = false
				break
			}
			perRecord[p.Raw] = esc.EscapeValue(v)
		}
		if !ok {
			continue
		}
		q := t.substitute(perRecord)
		if _, dup := seen[q]; dup {
			continue
		}
		seen[q] = struct{}{}
		queries = append(queries, q)
	}
	return queries
}

func (t Template) substitute(replacements map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(t.Raw, func(m string) string {
		if r, ok := replacements[m]; ok {
			return r
		}
		return m
	})
}

// literalList returns the deduplicated, comma-joined literals of column across batch.
func literalList(batch []Record, column string, esc Escaper) string {
	var parts []string
	seen := make(map[string]struct{}, len(batch))
	for _, rec := range batch {
		v, ok := rec.Lookup(column)
		if !ok || v == nil {
			continue
		}
		lit := esc.EscapeValue(v)
		if _, dup := seen[lit]; dup {
			continue
		}
		seen[lit] = struct{}{}
		parts = append(parts, lit)
	}
	return strings.Join(parts, ", ")
}

// ── Relation set ───────────────────────────────────────────

// Relations holds the parsed pre- and post-requisite templates of one run.
type Relations struct {
	Pre  []Template
	Post []Template
}

// ParseRelations parses every template, failing on the first malformed one.
func ParseRelations(pre, post []string) (*Relations, error) {
	r := &Relations{}
	for _, raw := range pre {
		t, err := ParseTemplate(raw)
		if err != nil {
			return nil, err
		}
		r.Pre = append(r.Pre, t)
	}
	for _, raw := range post {
		t, err := ParseTemplate(raw)
		if err != nil {
			return nil, err
		}
		r.Post = append(r.Post, t)
	}
	return r, nil
}

// PreFor returns the pre-requisite templates triggered by (schema, table).
func (r *Relations) PreFor(schema, table string) []Template {
	if r == nil {
		return nil
	}
	return matching(r.Pre, schema, table)
}

// PostFor returns the post-requisite templates triggered by (schema, table).
func (r *Relations) PostFor(schema, table string) []Template {
	if r == nil {
		return nil
	}
	return matching(r.Post, schema, table)
}

func matching(ts []Template, schema, table string) []Template {
	var out []Template
	for _, t := range ts {
		if t.Matches(schema, table) {
			out = append(out, t)
		}
	}
	return out
}
