package dump

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Stats counts the work of one run. Counters are atomic so a progress
// reporter can read them while the run is in flight.
type Stats struct {
	StartedAt time.Time

	queries        atomic.Int64
	skippedQueries atomic.Int64
	fetched        atomic.Int64
	duplicates     atomic.Int64
	emitted        atomic.Int64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Queries        int64         `json:"queries"`
	SkippedQueries int64         `json:"skippedQueries"`
	Fetched        int64         `json:"fetched"`
	Duplicates     int64         `json:"duplicates"`
	Emitted        int64         `json:"emitted"`
	Duration       time.Duration `json:"duration"`
}

// NewStats returns Stats started now.
func NewStats() *Stats {
	return &Stats{StartedAt: time.Now()}
}

// Snapshot copies the current counters.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Queries:        s.queries.Load(),
		SkippedQueries: s.skippedQueries.Load(),
		Fetched:        s.fetched.Load(),
		Duplicates:     s.duplicates.Load(),
		Emitted:        s.emitted.Load(),
		Duration:       time.Since(s.StartedAt),
	}
}

// String renders the progress line printed on stderr.
func (s StatsSnapshot) String() string {
	return fmt.Sprintf("Dumped : %d / Fetched : %d / Selects : %d / Duration : %.2fs",
		s.Emitted, s.Fetched, s.Queries, s.Duration.Seconds())
}
