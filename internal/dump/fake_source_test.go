package dump_test

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"partialdump/internal/dump"
)

// fakeSource serves canned Records per query and records what ran.
type fakeSource struct {
	mu       sync.Mutex
	results  map[string][]dump.Record
	failures map[string]error
	executed []string
	open     int
	maxOpen  int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		results:  make(map[string][]dump.Record),
		failures: make(map[string]error),
	}
}

func (s *fakeSource) on(query string, records ...dump.Record) *fakeSource {
	s.results[query] = append(s.results[query], records...)
	return s
}

func (s *fakeSource) fail(query string, err error) *fakeSource {
	s.failures[query] = err
	return s
}

func (s *fakeSource) EscapeValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case string:
		return "'" + strings.ReplaceAll(val, "'", "''") + "'"
	default:
		return fmt.Sprint(val)
	}
}

func (s *fakeSource) Fetch(_ context.Context, query string) (dump.RecordIterator, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.executed = append(s.executed, query)
	if err, ok := s.failures[query]; ok {
		return nil, err
	}
	s.open++
	if s.open > s.maxOpen {
		s.maxOpen = s.open
	}
	records := append([]dump.Record(nil), s.results[query]...)
	return &countingIterator{RecordIterator: dump.NewSliceIterator(records), src: s}, nil
}

func (s *fakeSource) executedCount(query string) int {
	n := 0
	for _, q := range s.executed {
		if q == query {
			n++
		}
	}
	return n
}

type countingIterator struct {
	dump.RecordIterator
	src    *fakeSource
	closed bool
}

func (it *countingIterator) Close() error {
	if !it.closed {
		it.closed = true
		it.src.mu.Lock()
		it.src.open--
		it.src.mu.Unlock()
	}
	return it.RecordIterator.Close()
}

// rec builds a Record from alternating column/value pairs.
func rec(table string, kv ...any) dump.Record {
	cols := make([]string, 0, len(kv)/2)
	vals := make([]any, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		cols = append(cols, kv[i].(string))
		vals = append(vals, kv[i+1])
	}
	return dump.NewRecord("", table, cols, vals)
}

// collect runs a dump and returns the emitted Records as "table#id" labels.
func collect(t interface{ Helper() }, d *dump.Dumper, req dump.Request) ([]string, *dump.Stats, error) {
	t.Helper()
	var out []string
	stats, err := d.Dump(context.Background(), req, func(r dump.Record) error {
		id, _ := r.Lookup("id")
		out = append(out, fmt.Sprintf("%s#%v", r.Table, id))
		return nil
	})
	return out, stats, err
}
