package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"partialdump/internal/domain"
)

// RunStore implements domain.DumpRunStore on the history database.
type RunStore struct {
	db *DB
}

// NewRunStore creates a new RunStore.
func NewRunStore(db *DB) *RunStore {
	return &RunStore{db: db}
}

var _ domain.DumpRunStore = (*RunStore)(nil)

// CreateRun assigns an ID to r when it has none and inserts it.
func (s *RunStore) CreateRun(r *domain.DumpRun) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now()
	}
	if r.Status == "" {
		r.Status = domain.RunStatusRunning
	}
	_, err := s.db.conn.Exec(
		`INSERT INTO dump_runs (id, job, driver, output, started_at, status)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		r.ID, r.Job, r.Driver, r.Output, r.StartedAt.UTC(), string(r.Status),
	)
	return err
}

// FinishRun stores the outcome and counters of r.
func (s *RunStore) FinishRun(r *domain.DumpRun) error {
	if r.FinishedAt.IsZero() {
		r.FinishedAt = time.Now()
	}
	res, err := s.db.conn.Exec(
		`UPDATE dump_runs SET finished_at=?, status=?, queries=?, fetched=?, emitted=?,
		 duplicates=?, error=? WHERE id=?`,
		r.FinishedAt.UTC(), string(r.Status), r.Queries, r.Fetched, r.Emitted,
		r.Duplicates, r.Error, r.ID,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("dump run not found: %s", r.ID)
	}
	return nil
}

// ListRuns returns the latest runs, newest first.
func (s *RunStore) ListRuns(limit int) ([]domain.DumpRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.conn.Query(
		`SELECT id, job, driver, output, started_at, finished_at, status,
		 queries, fetched, emitted, duplicates, error
		 FROM dump_runs ORDER BY started_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []domain.DumpRun
	for rows.Next() {
		var r domain.DumpRun
		var status string
		var finished sql.NullTime
		if err := rows.Scan(
			&r.ID, &r.Job, &r.Driver, &r.Output, &r.StartedAt, &finished, &status,
			&r.Queries, &r.Fetched, &r.Emitted, &r.Duplicates, &r.Error,
		); err != nil {
			return nil, err
		}
		r.Status = domain.RunStatus(status)
		if finished.Valid {
			r.FinishedAt = finished.Time
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
