package service_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"partialdump/internal/dump"
	"partialdump/internal/service"
)

// ─────────────────────────────────────────────────────────────
// RunningJobsGuard tests
// ─────────────────────────────────────────────────────────────

func TestRunningGuard_TryLock(t *testing.T) {
	var g service.ExportedRunningGuard

	if !g.TryLock("job-1") {
		t.Fatal("expected first TryLock to succeed")
	}
	if g.TryLock("job-1") {
		t.Fatal("expected second TryLock for same job to fail")
	}
	if !g.TryLock("job-2") {
		t.Fatal("expected TryLock for different job to succeed")
	}
	if got := g.Running(); len(got) != 2 || got[0] != "job-1" || got[1] != "job-2" {
		t.Fatalf("expected [job-1 job-2] running, got %v", got)
	}
	g.Unlock("job-1")
	g.Unlock("job-2")

	if !g.TryLock("job-1") {
		t.Fatal("expected TryLock to succeed after unlock")
	}
	g.Unlock("job-1")
}

func TestRunningGuard_WaitAll(t *testing.T) {
	var g service.ExportedRunningGuard

	if !g.TryLock("job-a") {
		t.Fatal("expected lock to succeed")
	}

	done := make(chan struct{})
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		defer cancel()
		g.WaitAll(ctx)
		close(done)
	}()

	go func() {
		time.Sleep(20 * time.Millisecond)
		g.Unlock("job-a")
	}()

	select {
	case <-done:
		// success
	case <-time.After(1 * time.Second):
		t.Fatal("WaitAll timed out")
	}
}

// ─────────────────────────────────────────────────────────────
// Emitter tests
// ─────────────────────────────────────────────────────────────

func TestMockEmitter_RecordsEvents(t *testing.T) {
	m := &service.MockEmitter{}
	ctx := context.Background()

	m.Emit(ctx, service.EventDumpStarted, dump.StatsSnapshot{})
	m.Emit(ctx, service.EventDumpFinished, nil)

	if len(m.Events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(m.Events))
	}
	if m.Events[0].Event != service.EventDumpStarted {
		t.Errorf("expected %q, got %q", service.EventDumpStarted, m.Events[0].Event)
	}
	if names := m.Names(); names[1] != service.EventDumpFinished {
		t.Errorf("expected last event %q, got %q", service.EventDumpFinished, names[1])
	}
}

func TestProgressPrinter(t *testing.T) {
	var buf bytes.Buffer
	p := &service.ProgressPrinter{W: &buf, Interval: time.Hour}
	ctx := context.Background()
	snap := dump.StatsSnapshot{Emitted: 2, Fetched: 3, Queries: 1}

	p.Emit(ctx, service.EventDumpProgress, snap)
	p.Emit(ctx, service.EventDumpProgress, snap) // throttled
	p.Emit(ctx, service.EventDumpProgress, "not a snapshot")
	p.Emit(ctx, service.EventDumpFinished, snap)

	out := buf.String()
	if n := strings.Count(out, "Dumped : 2"); n != 2 {
		t.Fatalf("expected one progress line and one final line, got %d in %q", n, out)
	}
	if !strings.HasSuffix(out, "\n") {
		t.Errorf("expected final line to end with a newline, got %q", out)
	}
}

func TestEmitters_FanOut(t *testing.T) {
	a, b := &service.MockEmitter{}, &service.MockEmitter{}
	e := service.Emitters(a, nil, b)
	e.Emit(context.Background(), service.EventDumpFailed, nil)

	if len(a.Events) != 1 || len(b.Events) != 1 {
		t.Fatalf("expected both emitters to receive the event, got %d and %d", len(a.Events), len(b.Events))
	}
	if single := service.Emitters(a); single != service.EventEmitter(a) {
		t.Error("expected a single emitter to be returned as is")
	}
}
