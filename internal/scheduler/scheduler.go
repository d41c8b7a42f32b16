// Package scheduler implements the daemon loop: the six-gate admission
// check run every poll_interval, composing the activity monitor, idle
// predictor, budget and quota accountants, model policy, and executor
// around Store's at-most-one-running invariant.
package scheduler

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/4beshinji/wise-magpie/internal/activity"
	"github.com/4beshinji/wise-magpie/internal/budget"
	"github.com/4beshinji/wise-magpie/internal/control"
	"github.com/4beshinji/wise-magpie/internal/events"
	"github.com/4beshinji/wise-magpie/internal/executor"
	"github.com/4beshinji/wise-magpie/internal/quota"
	"github.com/4beshinji/wise-magpie/internal/storage"
	"github.com/4beshinji/wise-magpie/internal/tasks"
	"github.com/4beshinji/wise-magpie/internal/types"
	"github.com/4beshinji/wise-magpie/internal/vcs"
	"github.com/gofrs/flock"
)

// ErrAlreadyRunning is returned when another daemon already holds the
// singleton lock.
type ErrAlreadyRunning struct{ PID int }

func (e *ErrAlreadyRunning) Error() string {
	return fmt.Sprintf("wise-magpie daemon already running (pid %d)", e.PID)
}

// Config configures the daemon loop.
type Config struct {
	RepoRoot               string
	WorkDir                string
	LockPath               string
	ControlSockPath        string
	PollInterval           time.Duration
	IdleThresholdMinutes   int
	ReturnBufferMinutes    int
	AutoSyncInterval       time.Duration
	ScanInterval           time.Duration
	ForcedModel            types.Model
	PatternRefreshInterval time.Duration
	ShutdownGracePeriod    time.Duration
}

// patternCache lazily recomputes the weekly ActivityPattern, caching it
// per process.
type patternCache struct {
	store    storage.Storage
	interval time.Duration
	mu       sync.Mutex
	pattern  *types.ActivityPattern
	computed time.Time
}

func (c *patternCache) get(ctx context.Context, now time.Time) (*types.ActivityPattern, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pattern != nil && now.Sub(c.computed) < c.interval {
		return c.pattern, nil
	}
	pattern, err := activity.LearnPattern(ctx, c.store, now.Add(-14*24*time.Hour))
	if err != nil {
		return nil, err
	}
	c.pattern = pattern
	c.computed = now
	return pattern, nil
}

// Scheduler orchestrates one daemon process.
type Scheduler struct {
	cfg      Config
	store    storage.Storage
	monitor  *activity.Monitor
	quota    *quota.Accountant
	budget   *budget.Accountant
	aggr     *tasks.Aggregator
	exec     *executor.Executor
	git      *vcs.Git
	control  *control.Server
	patCache *patternCache
	upstream quota.UpstreamQuotaSource

	lock *flock.Flock

	mu          sync.Mutex
	paused      bool
	pauseReason string
	running     *types.Task
	lastTickAt  time.Time

	startedAt  time.Time
	lastSyncAt time.Time
	lastScanAt time.Time
}

// Deps bundles the already-constructed collaborators Scheduler composes.
// Upstream is optional; when nil, auto_sync_interval_minutes is a no-op
// and quota corrections come only from `quota correct`.
type Deps struct {
	Store      storage.Storage
	Monitor    *activity.Monitor
	Quota      *quota.Accountant
	Budget     *budget.Accountant
	Aggregator *tasks.Aggregator
	Executor   *executor.Executor
	Git        *vcs.Git
	Upstream   quota.UpstreamQuotaSource
}

// New builds a Scheduler. cfg.PatternRefreshInterval and
// cfg.ShutdownGracePeriod default to 1h and 30m if zero.
func New(cfg Config, deps Deps) *Scheduler {
	if cfg.PatternRefreshInterval == 0 {
		cfg.PatternRefreshInterval = time.Hour
	}
	if cfg.ShutdownGracePeriod == 0 {
		cfg.ShutdownGracePeriod = 30 * time.Minute
	}
	return &Scheduler{
		cfg:      cfg,
		store:    deps.Store,
		monitor:  deps.Monitor,
		quota:    deps.Quota,
		budget:   deps.Budget,
		aggr:     deps.Aggregator,
		exec:     deps.Executor,
		git:      deps.Git,
		upstream: deps.Upstream,
		patCache: &patternCache{store: deps.Store, interval: cfg.PatternRefreshInterval},
	}
}

// Pause toggles the in-memory pause flag the first gate checks in
// addition to activity, for the `pause`/`resume` CLI commands.
func (s *Scheduler) Pause(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = true
	s.pauseReason = reason
}

// Resume clears the pause flag.
func (s *Scheduler) Resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = false
	s.pauseReason = ""
}

func (s *Scheduler) isPaused() (bool, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.paused, s.pauseReason
}

// Snapshot is the tick state the `status` CLI command and ControlServer
// report.
type Snapshot struct {
	Paused      bool        `json:"paused"`
	PauseReason string      `json:"pause_reason,omitempty"`
	RunningTask *types.Task `json:"running_task,omitempty"`
	LastTickAt  time.Time   `json:"last_tick_at"`
}

func (s *Scheduler) snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{Paused: s.paused, PauseReason: s.pauseReason, RunningTask: s.running, LastTickAt: s.lastTickAt}
}

// Start acquires the singleton lock, sweeps orphaned running tasks,
// starts the ControlServer, registers signal handlers, and runs the tick
// loop until ctx is canceled or a termination signal arrives. It blocks
// until shutdown completes.
func (s *Scheduler) Start(ctx context.Context) error {
	s.lock = flock.New(s.cfg.LockPath)
	locked, err := s.lock.TryLock()
	if err != nil {
		return fmt.Errorf("scheduler: acquire lock: %w", err)
	}
	if !locked {
		pid := readStalePID(s.cfg.LockPath)
		return &ErrAlreadyRunning{PID: pid}
	}
	defer func() { _ = s.lock.Unlock() }()

	if err := os.WriteFile(s.cfg.LockPath+".pid", []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		return fmt.Errorf("scheduler: write pid file: %w", err)
	}
	defer os.Remove(s.cfg.LockPath + ".pid")

	swept, err := s.store.SweepOrphanRunning(ctx)
	if err != nil {
		return fmt.Errorf("scheduler: sweep orphan tasks: %w", err)
	}

	// Pattern learning needs 14 days of samples; anything older is dead weight.
	if err := s.store.PruneUsageSamples(ctx, time.Now().Add(-30*24*time.Hour)); err != nil {
		return fmt.Errorf("scheduler: prune usage samples: %w", err)
	}

	s.startedAt = time.Now()
	hostname, _ := os.Hostname()
	if err := s.store.SaveDaemonMeta(ctx, &types.DaemonMeta{
		PID: os.Getpid(), Hostname: hostname, StartedAt: s.startedAt, LastTickAt: s.startedAt,
	}); err != nil {
		return fmt.Errorf("scheduler: save daemon meta: %w", err)
	}

	s.control, err = control.NewServer(s.cfg.ControlSockPath, s.handleControlCommand)
	if err != nil {
		return fmt.Errorf("scheduler: build control server: %w", err)
	}
	if err := s.control.Start(); err != nil {
		return fmt.Errorf("scheduler: start control server: %w", err)
	}
	defer s.control.Stop()

	_ = s.store.StoreEvent(ctx, events.New(events.TypeDaemonStarted, 0, events.SeverityInfo,
		fmt.Sprintf("daemon started (pid %d, swept %d orphan tasks)", os.Getpid(), swept), nil))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.waitForRunningTask()
			return nil
		case <-sigCh:
			s.waitForRunningTask()
			_ = s.store.StoreEvent(context.Background(), events.New(events.TypeDaemonStopped, 0, events.SeverityInfo,
				"daemon stopped by signal", nil))
			return nil
		case <-ticker.C:
			if err := s.tick(ctx); err != nil {
				_ = s.store.StoreEvent(ctx, events.New(events.TypeGateSkipped, 0, events.SeverityError,
					fmt.Sprintf("tick error: %v", err), nil))
			}
		}
	}
}

// waitForRunningTask blocks (up to ShutdownGracePeriod) until the running
// task, if any, finishes — shutdown never interrupts dispatched work.
func (s *Scheduler) waitForRunningTask() {
	deadline := time.Now().Add(s.cfg.ShutdownGracePeriod)
	for {
		s.mu.Lock()
		running := s.running != nil
		s.mu.Unlock()
		if !running || time.Now().After(deadline) {
			return
		}
		time.Sleep(time.Second)
	}
}

func (s *Scheduler) handleControlCommand(cmd control.Command) (map[string]interface{}, error) {
	switch cmd.Type {
	case control.CommandStatus:
		snap := s.snapshot()
		data := map[string]interface{}{"paused": snap.Paused, "last_tick_at": snap.LastTickAt}
		if snap.RunningTask != nil {
			data["running_task_id"] = snap.RunningTask.ID
		}
		return data, nil
	case control.CommandPause:
		s.Pause(cmd.Reason)
		return map[string]interface{}{"paused": true}, nil
	case control.CommandResume:
		s.Resume()
		return map[string]interface{}{"paused": false}, nil
	default:
		return nil, fmt.Errorf("scheduler: unknown command %q", cmd.Type)
	}
}

func readStalePID(lockPath string) int {
	data, err := os.ReadFile(lockPath + ".pid")
	if err != nil {
		return 0
	}
	pid, _ := strconv.Atoi(string(data))
	return pid
}
