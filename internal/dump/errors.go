package dump

import "fmt"

// TemplateFormatError reports a relation template that references zero or
// more than one table.
type TemplateFormatError struct {
	Template string
	Reason   string
}

func (e *TemplateFormatError) Error() string {
	return fmt.Sprintf("invalid relation template %q: %s", e.Template, e.Reason)
}

// QueryExecutionError wraps a connector failure together with the offending query.
type QueryExecutionError struct {
	Query string
	Err   error
}

func (e *QueryExecutionError) Error() string {
	return fmt.Sprintf("query failed: %v\n  query: %s", e.Err, e.Query)
}

func (e *QueryExecutionError) Unwrap() error {
	return e.Err
}

// PatchError wraps a failing user patch.
type PatchError struct {
	Schema string
	Table  string
	Patch  string
	Err    error
}

func (e *PatchError) Error() string {
	table := e.Table
	if e.Schema != "" {
		table = e.Schema + "." + e.Table
	}
	return fmt.Sprintf("patch %s on %s: %v", e.Patch, table, e.Err)
}

func (e *PatchError) Unwrap() error {
	return e.Err
}
