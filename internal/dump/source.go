package dump

import "context"

// ── Source ─────────────────────────────────────────────────
// A Source executes queries against the database being dumped.
// Implementations live in internal/dbclient.

// RecordIterator is a lazy, finite, non-restartable sequence of Records.
// Usage mirrors database/sql.Rows: call Next until it returns false, then
// check Err. Close may be called at any time and more than once.
type RecordIterator interface {
	Next() bool
	Record() Record
	Err() error
	Close() error
}

// Source executes one query and decodes every result row into one Record per
// origin table present in the row. Tables whose columns are all NULL in a row
// are not emitted.
type Source interface {
	Escaper
	Fetch(ctx context.Context, query string) (RecordIterator, error)
}

// ── Encoder ────────────────────────────────────────────────

// Encoder turns emitted Records into target statements.
// Patch must work on a private copy and never modify its argument.
type Encoder interface {
	Patch(rec Record) (Record, error)
	Encode(rec Record) (string, error)
}

// ── Slice iterator ─────────────────────────────────────────

type sliceIterator struct {
	records []Record
	pos     int
	current Record
}

// NewSliceIterator returns a RecordIterator over an in-memory slice.
func NewSliceIterator(records []Record) RecordIterator {
	return &sliceIterator{records: records}
}

func (it *sliceIterator) Next() bool {
	if it.pos >= len(it.records) {
		it.current = Record{}
		return false
	}
	it.current = it.records[it.pos]
	it.records[it.pos] = Record{}
	it.pos++
	return true
}

func (it *sliceIterator) Record() Record { return it.current }
func (it *sliceIterator) Err() error     { return nil }

func (it *sliceIterator) Close() error {
	it.pos = len(it.records)
	return nil
}

// Drain reads every remaining Record of it and closes it.
func Drain(it RecordIterator) ([]Record, error) {
	defer it.Close()
	var out []Record
	for it.Next() {
		out = append(out, it.Record())
	}
	return out, it.Err()
}
