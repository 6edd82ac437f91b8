package domain

import "time"

// RunStatus is the outcome of a dump run.
type RunStatus string

const (
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusError   RunStatus = "error"
)

// DumpRun is a historical record of one dump run.
type DumpRun struct {
	ID         string    `json:"id"`
	Job        string    `json:"job"` // config file path or "manual"
	Driver     string    `json:"driver"`
	Output     string    `json:"output"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt"`
	Status     RunStatus `json:"status"`
	Queries    int64     `json:"queries"`
	Fetched    int64     `json:"fetched"`
	Emitted    int64     `json:"emitted"`
	Duplicates int64     `json:"duplicates"`
	Error      string    `json:"error,omitempty"`
}

// DumpRunStore persists run history.
type DumpRunStore interface {
	CreateRun(r *DumpRun) error
	FinishRun(r *DumpRun) error
	ListRuns(limit int) ([]DumpRun, error)
}
