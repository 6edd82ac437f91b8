package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/robfig/cron/v3"

	"partialdump/internal/config"
	"partialdump/internal/dump"
)

// ─────────────────────────────────────────────────────────────
// Scheduler: periodic and config-watch triggered dump runs
// ─────────────────────────────────────────────────────────────

// ErrJobRunning is returned by RunOnce while the previous run of the same job
// is still in flight.
var ErrJobRunning = errors.New("dump job is already running")

// LoadFunc loads the config of a job before each run.
type LoadFunc func(path string) (*config.Config, error)

// Scheduler runs one dump job on a cron schedule and/or whenever its config
// file changes. The config is reloaded for every run.
type Scheduler struct {
	configPath string
	load       LoadFunc
	opts       []Option
	log        *slog.Logger
	now        func() time.Time

	runningJobs runningJobsGuard

	mu          sync.Mutex
	watchCancel context.CancelFunc
	watcher     *fsnotify.Watcher
	cronSched   *cron.Cron
}

// NewScheduler creates a Scheduler for the job defined by configPath.
// opts are applied to the DumpService of every run.
func NewScheduler(configPath string, load LoadFunc, log *slog.Logger, opts ...Option) *Scheduler {
	if log == nil {
		log = slog.Default()
	}
	return &Scheduler{
		configPath: configPath,
		load:       load,
		opts:       append([]Option{WithLogger(log)}, opts...),
		log:        log.With("component", "scheduler", "job", configPath),
		now:        time.Now,
	}
}

// RunOnce loads the config and runs one dump into its output.
func (s *Scheduler) RunOnce(ctx context.Context) (dump.StatsSnapshot, error) {
	if !s.runningJobs.TryLock(s.configPath) {
		return dump.StatsSnapshot{}, ErrJobRunning
	}
	defer s.runningJobs.Unlock(s.configPath)

	cfg, err := s.load(s.configPath)
	if err != nil {
		return dump.StatsSnapshot{}, fmt.Errorf("load config: %w", err)
	}
	w, path, err := OpenOutput(cfg.Output, s.now())
	if err != nil {
		return dump.StatsSnapshot{}, err
	}
	defer w.Close()

	s.log.Info("dump started", "output", path)
	snap, err := NewDumpService(cfg, s.configPath, s.opts...).Run(ctx, w, path)
	if err != nil {
		return snap, err
	}
	s.log.Info("dump finished", "output", path, "dumped", snap.Emitted, "duration", snap.Duration)
	return snap, nil
}

func (s *Scheduler) trigger(ctx context.Context, reason string) {
	s.log.Info("running job", "trigger", reason)
	if _, err := s.RunOnce(ctx); err != nil {
		if errors.Is(err, ErrJobRunning) {
			s.log.Warn("previous run still in progress, skipping", "trigger", reason)
			return
		}
		s.log.Error("job failed", "trigger", reason, "error", err)
	}
}

// Start schedules the job. expr is a standard cron expression (empty: no
// schedule); watch re-runs the job whenever the config file is written.
// Start replaces any previous schedule.
func (s *Scheduler) Start(ctx context.Context, expr string, watch bool) error {
	s.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()

	if expr == "" && !watch {
		return errors.New("nothing to schedule: set a cron expression or enable watch")
	}

	// ── Cron ──
	if expr != "" {
		c := cron.New()
		if _, err := c.AddFunc(expr, func() { s.trigger(ctx, "cron") }); err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", expr, err)
		}
		c.Start()
		s.cronSched = c
		s.log.Info("cron scheduled", "expr", expr)
	}

	if !watch {
		return nil
	}

	// ── Config file watch ──
	absPath, err := filepath.Abs(s.configPath)
	if err != nil {
		s.stopLocked()
		return fmt.Errorf("bad config path %q: %w", s.configPath, err)
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		s.stopLocked()
		return fmt.Errorf("create watcher: %w", err)
	}
	// Editors replace files on save; watching the directory survives that.
	if err := watcher.Add(filepath.Dir(absPath)); err != nil {
		watcher.Close()
		s.stopLocked()
		return fmt.Errorf("watch %q: %w", filepath.Dir(absPath), err)
	}
	s.watcher = watcher

	watchCtx, cancel := context.WithCancel(ctx)
	s.watchCancel = cancel

	go func() {
		var timer *time.Timer
		defer func() {
			if timer != nil {
				timer.Stop()
			}
		}()
		for {
			select {
			case <-watchCtx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				if p, _ := filepath.Abs(event.Name); p != absPath {
					continue
				}
				if timer != nil {
					timer.Stop()
				}
				timer = time.AfterFunc(500*time.Millisecond, func() {
					s.trigger(watchCtx, "config changed")
				})
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				s.log.Warn("watcher error", "error", err)
			}
		}
	}()

	s.log.Info("watching config file", "path", absPath)
	return nil
}

// WaitRunning blocks until the running job finishes or ctx is cancelled.
// Used for graceful shutdown.
func (s *Scheduler) WaitRunning(ctx context.Context) {
	s.runningJobs.WaitAll(ctx)
}

// Running reports whether a run is in flight.
func (s *Scheduler) Running() bool {
	return len(s.runningJobs.Running()) > 0
}

// Stop tears down the cron schedule and the watcher. Safe to call repeatedly.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Scheduler) stopLocked() {
	if s.watchCancel != nil {
		s.watchCancel()
		s.watchCancel = nil
	}
	if s.watcher != nil {
		s.watcher.Close()
		s.watcher = nil
	}
	if s.cronSched != nil {
		s.cronSched.Stop()
		s.cronSched = nil
	}
}
