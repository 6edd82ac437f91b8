package dump

import (
	"context"
	"log/slog"
	"strings"
)

// ── Dumper ─────────────────────────────────────────────────
// The Dumper computes the closure of Records reachable from the seed queries
// through the relation templates and emits each of them exactly once:
//
//	seed query -> Records -> dedup -> per-table batch -> discovery task
//	discovery task = pre-requisites -> emit batch -> post-requisites
//
// Every concrete query runs at most once per run, which makes cyclic relation
// graphs terminate. Discovery is serialised per table: one task drains a
// table's pending Records at a time. A task that is running further up the
// call stack is waiting for the query that returns more of its Records, so
// those Records are discovered as a nested batch before that query returns.
// Requisites therefore always complete before the Records that need them.

const (
	DefaultBatchSize      = 50
	DefaultMaxOpenCursors = 8
)

// Options tunes a Dumper.
type Options struct {
	// BatchSize caps the Records resolved together against the relation
	// templates (IN-clause size). Only affects the number of queries.
	BatchSize int
	// MaxOpenCursors bounds the number of result sets streamed at the same
	// time. Queries nested deeper are read fully into memory before their
	// Records are processed, so recursion cannot exhaust a connection pool.
	MaxOpenCursors int
	Logger         *slog.Logger
}

// Request describes one dump run.
type Request struct {
	Queries        []string
	PreRequisites  []string
	PostRequisites []string
	// Stats is filled during the run when set; a fresh one is used otherwise.
	Stats *Stats
}

// OnRecord receives every emitted Record, in emission order.
// A returned error aborts the run.
type OnRecord func(Record) error

// Dumper runs dumps against one Source. It holds no per-run state, so it can
// be reused; each Dump call owns its own discovery context.
type Dumper struct {
	source Source
	opts   Options
	log    *slog.Logger
}

// NewDumper creates a Dumper reading from source.
func NewDumper(source Source, opts Options) *Dumper {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.MaxOpenCursors <= 0 {
		opts.MaxOpenCursors = DefaultMaxOpenCursors
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Dumper{source: source, opts: opts, log: log}
}

// Dump runs the seed queries in order and emits the resulting closure through
// onRecord. Relation templates are validated before any query executes.
// The first error aborts the run; Records already emitted are not retracted.
func (d *Dumper) Dump(ctx context.Context, req Request, onRecord OnRecord) (*Stats, error) {
	relations, err := ParseRelations(req.PreRequisites, req.PostRequisites)
	if err != nil {
		return nil, err
	}
	stats := req.Stats
	if stats == nil {
		stats = NewStats()
	}

	r := &run{
		Dumper:    d,
		relations: relations,
		onRecord:  onRecord,
		stats:     stats,
		seen:      make(map[Identity]struct{}),
		issued:    make(map[string]struct{}),
		tables:    make(map[tableKey]*tableTask),
	}
	for _, q := range req.Queries {
		if err := r.processQuery(ctx, q); err != nil {
			return stats, err
		}
	}

	snap := stats.Snapshot()
	d.log.Info("dump finished",
		"selects", snap.Queries,
		"fetched", snap.Fetched,
		"dumped", snap.Emitted,
		"duration", snap.Duration)
	return stats, nil
}

// ── Discovery context ──────────────────────────────────────

type tableKey struct {
	schema string
	table  string
}

// tableTask is the pending batch of one table plus whether its discovery task
// is currently running.
type tableTask struct {
	key           tableKey
	schema, table string // as first seen
	pending       []Record
	running       bool
}

// run is the discovery context of one Dump call.
type run struct {
	*Dumper
	relations *Relations
	onRecord  OnRecord
	stats     *Stats

	seen        map[Identity]struct{}
	issued      map[string]struct{}
	tables      map[tableKey]*tableTask
	openCursors int
}

// processQuery executes q unless it already ran, and schedules its Records.
func (r *run) processQuery(ctx context.Context, q string) error {
	if _, done := r.issued[q]; done {
		r.stats.skippedQueries.Add(1)
		r.log.Debug("query already processed", "query", q)
		return nil
	}
	r.issued[q] = struct{}{}
	r.stats.queries.Add(1)
	r.log.Debug("processing query", "query", q, "depth", r.openCursors)

	it, release, err := r.open(ctx, q)
	if err != nil {
		return err
	}
	defer release()

	var touched []*tableTask
	nested := map[*tableTask][]Record{} // Records of tasks already running
	for it.Next() {
		rec := it.Record()
		task := r.accept(rec)
		if task == nil {
			continue
		}
		if !containsTask(touched, task) {
			touched = append(touched, task)
		}
		if task.running {
			nested[task] = append(nested[task], rec)
			if len(nested[task]) >= r.opts.BatchSize {
				batch := nested[task]
				nested[task] = nil
				if err := r.batch(ctx, task, batch); err != nil {
					return err
				}
			}
			continue
		}
		task.pending = append(task.pending, rec)
		if len(task.pending) >= r.opts.BatchSize {
			if err := r.discover(ctx, task); err != nil {
				return err
			}
		}
	}
	if err := it.Err(); err != nil {
		return &QueryExecutionError{Query: q, Err: err}
	}
	release()

	for _, task := range touched {
		if batch := nested[task]; len(batch) > 0 {
			if err := r.batch(ctx, task, batch); err != nil {
				return err
			}
			continue
		}
		if task.running || len(task.pending) == 0 {
			continue
		}
		if err := r.discover(ctx, task); err != nil {
			return err
		}
	}
	return nil
}

// open starts q. Below the cursor limit the result is streamed; at the limit
// it is drained into memory first. release is idempotent.
func (r *run) open(ctx context.Context, q string) (RecordIterator, func(), error) {
	it, err := r.source.Fetch(ctx, q)
	if err != nil {
		return nil, nil, &QueryExecutionError{Query: q, Err: err}
	}
	if r.openCursors+1 >= r.opts.MaxOpenCursors {
		records, err := Drain(it)
		if err != nil {
			return nil, nil, &QueryExecutionError{Query: q, Err: err}
		}
		return NewSliceIterator(records), func() {}, nil
	}

	r.openCursors++
	released := false
	release := func() {
		if released {
			return
		}
		released = true
		r.openCursors--
		_ = it.Close()
	}
	return it, release, nil
}

// accept deduplicates rec and returns the task of its table, or nil when rec
// was already seen.
func (r *run) accept(rec Record) *tableTask {
	r.stats.fetched.Add(1)
	id := IdentityOf(rec)
	if _, dup := r.seen[id]; dup {
		r.stats.duplicates.Add(1)
		return nil
	}
	r.seen[id] = struct{}{}

	key := tableKey{schema: strings.ToLower(rec.Schema), table: strings.ToLower(rec.Table)}
	task, ok := r.tables[key]
	if !ok {
		task = &tableTask{key: key, schema: rec.Schema, table: rec.Table}
		r.tables[key] = task
	}
	return task
}

// discover drains task.pending batch by batch.
func (r *run) discover(ctx context.Context, task *tableTask) error {
	task.running = true
	defer func() { task.running = false }()

	for len(task.pending) > 0 {
		n := min(len(task.pending), r.opts.BatchSize)
		batch := task.pending[:n:n]
		task.pending = task.pending[n:]
		if len(task.pending) == 0 {
			task.pending = nil
		}
		if err := r.batch(ctx, task, batch); err != nil {
			return err
		}
	}
	return nil
}

// batch runs the pre-requisites of records, emits them, then runs the
// post-requisites.
func (r *run) batch(ctx context.Context, task *tableTask, records []Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.log.Debug("discovering batch", "table", task.table, "schema", task.schema, "rows", len(records))

	pre := r.relations.PreFor(task.schema, task.table)
	if err := r.requisites(ctx, pre, records); err != nil {
		return err
	}
	for _, rec := range records {
		if err := r.onRecord(rec); err != nil {
			return err
		}
		r.stats.emitted.Add(1)
	}
	post := r.relations.PostFor(task.schema, task.table)
	return r.requisites(ctx, post, records)
}

// requisites resolves every template against batch and processes the
// resulting queries in order, each to completion.
func (r *run) requisites(ctx context.Context, templates []Template, batch []Record) error {
	for _, t := range templates {
		for _, q := range t.Resolve(batch, r.source) {
			if err := r.processQuery(ctx, q); err != nil {
				return err
			}
		}
	}
	return nil
}

func containsTask(tasks []*tableTask, t *tableTask) bool {
	for _, x := range tasks {
		if x == t {
			return true
		}
	}
	return false
}
