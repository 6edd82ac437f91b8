package patch

import "fmt"

// Spec is the declarative form of a patch in the config file:
//
//	patches:
//	  - table: Person
//	    set:
//	      - column: email
//	        value: "person{{.id}}@example.com"
//	    null: [phone]
//	    rename:
//	      - from: lastName
//	        to: last_name
//	    drop: [password_hash]
//
// Column names are kept in list values because map keys are lowercased by the
// config loader.
type Spec struct {
	Schema string       `mapstructure:"schema" json:"schema,omitempty"`
	Table  string       `mapstructure:"table" json:"table"`
	Set    []SetSpec    `mapstructure:"set" json:"set,omitempty"`
	Null   []string     `mapstructure:"null" json:"null,omitempty"`
	Rename []RenameSpec `mapstructure:"rename" json:"rename,omitempty"`
	Drop   []string     `mapstructure:"drop" json:"drop,omitempty"`
}

// SetSpec assigns Value to Column.
type SetSpec struct {
	Column string `mapstructure:"column" json:"column"`
	Value  any    `mapstructure:"value" json:"value"`
}

// RenameSpec renames From to To.
type RenameSpec struct {
	From string `mapstructure:"from" json:"from"`
	To   string `mapstructure:"to" json:"to"`
}

// Build turns specs into a Chain. Within one spec the order is
// set, null, rename, drop.
func Build(specs []Spec) (Chain, error) {
	var chain Chain
	for i, s := range specs {
		if s.Table == "" {
			return nil, fmt.Errorf("patch #%d: table is required", i+1)
		}
		scope := func(p Patch) {
			chain = append(chain, Scoped{Schema: s.Schema, Table: s.Table, Patch: p})
		}
		for _, set := range s.Set {
			if set.Column == "" {
				return nil, fmt.Errorf("patch #%d (%s): set without column", i+1, s.Table)
			}
			p, err := NewSet(set.Column, set.Value)
			if err != nil {
				return nil, fmt.Errorf("patch #%d (%s): %w", i+1, s.Table, err)
			}
			scope(p)
		}
		if len(s.Null) > 0 {
			scope(&Null{Columns: s.Null})
		}
		for _, r := range s.Rename {
			if r.From == "" || r.To == "" {
				return nil, fmt.Errorf("patch #%d (%s): rename needs from and to", i+1, s.Table)
			}
			scope(&Rename{From: r.From, To: r.To})
		}
		if len(s.Drop) > 0 {
			scope(&Drop{Columns: s.Drop})
		}
	}
	return chain, nil
}
