package service

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"partialdump/internal/config"
	"partialdump/internal/dbclient"
	"partialdump/internal/dialect"
	"partialdump/internal/domain"
	"partialdump/internal/dump"
	"partialdump/internal/patch"
)

// ─────────────────────────────────────────────────────────────
// DumpService: connector -> dumper -> encoder -> writer
// ─────────────────────────────────────────────────────────────

// ConnectFunc opens the source connector of a run.
type ConnectFunc func(ctx context.Context, conn *domain.DatabaseConnection, log *slog.Logger) (dbclient.Connector, error)

// ConnectError reports a failure to reach the source database.
type ConnectError struct {
	Err error
}

func (e *ConnectError) Error() string { return "connect to source: " + e.Err.Error() }
func (e *ConnectError) Unwrap() error { return e.Err }

// DumpService runs one configured dump job.
type DumpService struct {
	cfg     *config.Config
	job     string
	runs    domain.DumpRunStore // nil: no history
	emitter EventEmitter
	log     *slog.Logger
	connect ConnectFunc
}

// Option configures a DumpService.
type Option func(*DumpService)

// WithRunStore records every run in store.
func WithRunStore(store domain.DumpRunStore) Option {
	return func(s *DumpService) { s.runs = store }
}

// WithEmitter sends lifecycle and progress events to e.
func WithEmitter(e EventEmitter) Option {
	return func(s *DumpService) { s.emitter = e }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *DumpService) { s.log = l }
}

// WithConnector replaces dbclient.NewConnector.
func WithConnector(fn ConnectFunc) Option {
	return func(s *DumpService) { s.connect = fn }
}

// NewDumpService creates a DumpService for cfg. job names the run in the
// history, typically the config file path.
func NewDumpService(cfg *config.Config, job string, opts ...Option) *DumpService {
	s := &DumpService{
		cfg:     cfg,
		job:     job,
		emitter: NopEmitter{},
		log:     slog.Default(),
		connect: dbclient.NewConnector,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.job == "" {
		s.job = "manual"
	}
	return s
}

// Run dumps the configured closure into w as SQL statements, each terminated
// by ";", followed by the post-dump statements. output is only recorded in the
// run history.
func (s *DumpService) Run(ctx context.Context, w io.Writer, output string) (dump.StatsSnapshot, error) {
	stats := dump.NewStats()
	run := &domain.DumpRun{
		Job:       s.job,
		Driver:    string(s.cfg.Source.Driver),
		Output:    output,
		StartedAt: stats.StartedAt,
	}
	if s.runs != nil {
		if err := s.runs.CreateRun(run); err != nil {
			s.log.Warn("failed to record run", "error", err)
		}
	}

	err := s.run(ctx, w, stats)

	snap := stats.Snapshot()
	if err != nil {
		s.emitter.Emit(ctx, EventDumpFailed, snap)
	} else {
		s.emitter.Emit(ctx, EventDumpFinished, snap)
	}
	s.finishRun(run, snap, err)
	return snap, err
}

func (s *DumpService) run(ctx context.Context, w io.Writer, stats *dump.Stats) error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}
	chain, err := patch.Build(s.cfg.Patches)
	if err != nil {
		return fmt.Errorf("patches: %w", err)
	}
	schemaMap, err := s.cfg.ParsedSchemaMap()
	if err != nil {
		return fmt.Errorf("schema_map: %w", err)
	}

	conn, err := s.cfg.ResolveConnection()
	if err != nil {
		return &ConnectError{Err: err}
	}
	connector, err := s.connect(ctx, &conn, s.log)
	if err != nil {
		return &ConnectError{Err: err}
	}
	defer connector.Close()
	if err := connector.TestConnection(ctx); err != nil {
		return &ConnectError{Err: err}
	}

	pre := s.cfg.AllPreRequisites()
	if s.cfg.FKRelations {
		fks, err := connector.FindForeignKeys(ctx)
		if err != nil {
			return fmt.Errorf("read foreign keys: %w", err)
		}
		s.log.Info("foreign key relations loaded", "count", len(fks))
		pre = append(pre, dbclient.PreRequisites(fks, connector.Dialect())...)
	}

	enc := &dialect.InsertEncoder{
		Dialect:   connector.Dialect(),
		Patches:   chain,
		SchemaMap: schemaMap,
	}
	maxConns := conn.MaxConnections
	if maxConns <= 0 {
		maxConns = dbclient.DefaultMaxConnections
	}
	dumper := dump.NewDumper(connector, dump.Options{
		BatchSize:      s.cfg.BatchSize,
		MaxOpenCursors: maxConns,
		Logger:         s.log,
	})

	s.emitter.Emit(ctx, EventDumpStarted, stats.Snapshot())
	stopProgress := s.reportProgress(ctx, stats)
	defer stopProgress()

	bw := bufio.NewWriter(w)
	_, err = dumper.Dump(ctx, dump.Request{
		Queries:        s.cfg.Queries,
		PreRequisites:  pre,
		PostRequisites: s.cfg.PostRequisites,
		Stats:          stats,
	}, func(rec dump.Record) error {
		patched, err := enc.Patch(rec)
		if err != nil {
			return err
		}
		stmt, err := enc.Encode(patched)
		if err != nil {
			return err
		}
		return writeStatement(bw, stmt)
	})
	if err != nil {
		// Statements already emitted stay in the output.
		if ferr := bw.Flush(); ferr != nil {
			s.log.Warn("flush partial output", "error", ferr)
		}
		return err
	}

	for _, q := range s.cfg.PostDumpQueries {
		if err := writeStatement(bw, q); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// reportProgress emits progress events every 100ms until the returned stop
// function is called.
func (s *DumpService) reportProgress(ctx context.Context, stats *dump.Stats) (stop func()) {
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.emitter.Emit(ctx, EventDumpProgress, stats.Snapshot())
			}
		}
	}()
	return func() {
		close(done)
		<-finished
	}
}

func (s *DumpService) finishRun(run *domain.DumpRun, snap dump.StatsSnapshot, err error) {
	if s.runs == nil || run.ID == "" {
		return
	}
	run.FinishedAt = time.Now()
	run.Queries = snap.Queries
	run.Fetched = snap.Fetched
	run.Emitted = snap.Emitted
	run.Duplicates = snap.Duplicates
	run.Status = domain.RunStatusSuccess
	if err != nil {
		run.Status = domain.RunStatusError
		run.Error = err.Error()
	}
	if ferr := s.runs.FinishRun(run); ferr != nil {
		s.log.Warn("failed to record run outcome", "run", run.ID, "error", ferr)
	}
}

// writeStatement writes stmt terminated by exactly one ";" and a newline.
func writeStatement(w io.Writer, stmt string) error {
	stmt = strings.TrimRight(strings.TrimSpace(stmt), " \t\r\n;")
	if stmt == "" {
		return nil
	}
	_, err := io.WriteString(w, stmt+";\n")
	return err
}

// IsConnectError reports whether err comes from reaching the source.
func IsConnectError(err error) bool {
	var ce *ConnectError
	return errors.As(err, &ce)
}
