package service

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"partialdump/internal/dump"
)

// ─────────────────────────────────────────────────────────────
// EventEmitter: decouples dump runs from progress presentation
// ─────────────────────────────────────────────────────────────

// Events emitted during a dump run. Progress data is a dump.StatsSnapshot.
const (
	EventDumpStarted  = "dump:started"
	EventDumpProgress = "dump:progress"
	EventDumpFinished = "dump:finished"
	EventDumpFailed   = "dump:failed"
)

// EventEmitter receives run lifecycle and progress events.
// Implementations must be safe for concurrent use.
type EventEmitter interface {
	Emit(ctx context.Context, event string, data any)
}

// NopEmitter discards every event.
type NopEmitter struct{}

func (NopEmitter) Emit(context.Context, string, any) {}

// MockEmitter is a test-friendly EventEmitter that records all calls.
type MockEmitter struct {
	mu     sync.Mutex
	Events []EmittedEvent
}

// EmittedEvent holds a single recorded emission for test assertions.
type EmittedEvent struct {
	Event string
	Data  any
}

func (m *MockEmitter) Emit(_ context.Context, event string, data any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, EmittedEvent{Event: event, Data: data})
}

// Names returns the recorded event names in order.
func (m *MockEmitter) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.Events))
	for i, e := range m.Events {
		out[i] = e.Event
	}
	return out
}

// ── Progress printer ───────────────────────────────────────

// ProgressPrinter renders progress events as one refreshing status line,
// e.g. on stderr.
type ProgressPrinter struct {
	W io.Writer
	// Interval is the minimum delay between two refreshes (default 100ms).
	Interval time.Duration

	mu   sync.Mutex
	last time.Time
}

func (p *ProgressPrinter) Emit(_ context.Context, event string, data any) {
	snap, ok := data.(dump.StatsSnapshot)
	if !ok {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	interval := p.Interval
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	switch event {
	case EventDumpProgress:
		if time.Since(p.last) < interval {
			return
		}
		p.last = time.Now()
		fmt.Fprintf(p.W, "\r%s", snap)
	case EventDumpFinished, EventDumpFailed:
		fmt.Fprintf(p.W, "\r%s\n", snap)
	}
}

// multiEmitter fans events out to several emitters.
type multiEmitter []EventEmitter

func (m multiEmitter) Emit(ctx context.Context, event string, data any) {
	for _, e := range m {
		e.Emit(ctx, event, data)
	}
}

// Emitters combines emitters, skipping nil ones.
func Emitters(emitters ...EventEmitter) EventEmitter {
	var out multiEmitter
	for _, e := range emitters {
		if e != nil {
			out = append(out, e)
		}
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}
