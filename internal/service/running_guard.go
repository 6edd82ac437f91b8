package service

import (
	"context"
	"sort"
	"sync"
)

// ExportedRunningGuard is an exported alias so _test packages can test the guard.
type ExportedRunningGuard = runningJobsGuard

// ─────────────────────────────────────────────────────────────
// runningJobsGuard: prevents overlapping runs of the same dump job
// ─────────────────────────────────────────────────────────────

// runningJobsGuard ensures only one run of a given job (config file) is in
// flight at a time. A cron tick or file change arriving while the previous
// run is still going is skipped.
type runningJobsGuard struct {
	mu      sync.Mutex
	running map[string]struct{}
	wg      sync.WaitGroup
}

// TryLock attempts to mark job as running. Returns false if it already is.
func (g *runningJobsGuard) TryLock(job string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.running == nil {
		g.running = make(map[string]struct{})
	}
	if _, ok := g.running[job]; ok {
		return false
	}
	g.running[job] = struct{}{}
	g.wg.Add(1)
	return true
}

// Unlock marks the job as no longer running. Must be called after TryLock returns true.
func (g *runningJobsGuard) Unlock(job string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.running, job)
	g.wg.Done()
}

// Running returns the jobs currently in flight, sorted.
func (g *runningJobsGuard) Running() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.running))
	for job := range g.running {
		out = append(out, job)
	}
	sort.Strings(out)
	return out
}

// WaitAll blocks until all running jobs complete or ctx is cancelled.
func (g *runningJobsGuard) WaitAll(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		g.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
	}
}
