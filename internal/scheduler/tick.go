package scheduler

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/4beshinji/wise-magpie/internal/activity"
	"github.com/4beshinji/wise-magpie/internal/events"
	"github.com/4beshinji/wise-magpie/internal/model"
	"github.com/4beshinji/wise-magpie/internal/tasks"
	"github.com/4beshinji/wise-magpie/internal/types"
)

// estimatedCostUSD is the pre-dispatch cost estimate BudgetAccountant checks
// a task against, before the executor reports an actual figure — the same
// per-tier averages the executor falls back to when the CLI omits its own
// usage line.
var estimatedCostUSD = map[types.Model]float64{
	types.ModelHaiku:  0.05,
	types.ModelSonnet: 0.35,
	types.ModelOpus:   1.20,
}

// tick runs one pass of the six-gate admission check. It returns an
// error when the presence probe or a storage call fails, when the
// running-task invariant is violated, or when a claimed task could not be
// dispatched; an ordinary gate skip is not an error.
func (s *Scheduler) tick(ctx context.Context) error {
	now := time.Now()
	defer s.recordTickAt(ctx, now)

	active, err := s.monitor.IsActive(ctx)
	if err != nil {
		return fmt.Errorf("scheduler: probe presence: %w", err)
	}
	if err := s.monitor.RecordSample(ctx, active); err != nil {
		return fmt.Errorf("scheduler: record sample: %w", err)
	}
	if err := s.quota.RollIfDue(ctx, now); err != nil {
		return fmt.Errorf("scheduler: roll quota window: %w", err)
	}
	if err := s.quota.CaptureSnapshotIfDue(ctx, now); err != nil {
		return fmt.Errorf("scheduler: capture quota snapshot: %w", err)
	}

	// Gate 1 — active, or paused via the control plane.
	if active {
		return s.skip(ctx, "user_active")
	}
	if paused, reason := s.isPaused(); paused {
		return s.skip(ctx, "paused: "+reason)
	}

	// Gate 2 — idle duration.
	samples, err := s.store.ListUsageSamples(ctx, now.Add(-14*24*time.Hour))
	if err != nil {
		return fmt.Errorf("scheduler: load usage samples: %w", err)
	}
	idleFor := activity.TimeSinceLastActive(samples, now)
	if idleFor < time.Duration(s.cfg.IdleThresholdMinutes)*time.Minute {
		return s.skip(ctx, "idle_threshold_not_met")
	}

	// Gate 3 — return imminent.
	pattern, err := s.patCache.get(ctx, now)
	if err != nil {
		return fmt.Errorf("scheduler: learn activity pattern: %w", err)
	}
	predictor := &activity.Predictor{Pattern: pattern}
	if minutes, ok := predictor.MinutesUntilLikelyReturn(now); ok && minutes < s.cfg.ReturnBufferMinutes {
		return s.skip(ctx, "return_imminent")
	}

	// Gate 4 — budget exhausted for today.
	if s.budget.Remaining() == 0 {
		return s.skip(ctx, "budget_exhausted")
	}

	s.maybeScan(ctx, now)

	// Gate 5 — any pending task?
	task, err := s.store.ClaimNextPending(ctx)
	if err != nil {
		return fmt.Errorf("scheduler: claim next pending task: %w", err)
	}
	if task == nil {
		return s.skip(ctx, "no_pending_task")
	}

	// Gate 6 — defensive already-running check; ClaimNextPending's own
	// BEGIN IMMEDIATE transaction is what actually enforces this.
	s.mu.Lock()
	if s.running != nil {
		s.mu.Unlock()
		_ = s.store.StoreEvent(ctx, events.New(events.TypeGateSkipped, task.ID, events.SeverityCritical,
			"claimed a task while another was already marked running in memory", nil))
		_ = s.store.ReturnToPending(ctx, task.ID)
		return fmt.Errorf("scheduler: invariant violated: task already running")
	}
	s.running = task
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = nil
		s.mu.Unlock()
	}()

	_ = s.store.StoreEvent(ctx, events.New(events.TypeTaskClaimed, task.ID, events.SeverityInfo,
		fmt.Sprintf("claimed task %s: %s", task.DisplayID(), task.Title), nil))

	return s.dispatch(ctx, task, predictor, now)
}

// dispatch selects a model, checks budget admission, reserves quota, runs the executor,
// and persists the outcome. task is already marked running in Store.
func (s *Scheduler) dispatch(ctx context.Context, task *types.Task, predictor *activity.Predictor, now time.Time) error {
	forced := s.cfg.ForcedModel
	if task.RequestedModel != "" && task.RequestedModel != types.ModelAuto {
		forced = task.RequestedModel
	}
	selected, ok := model.Select(task, forced, s.quota, predictor, now)
	if !ok {
		_ = s.store.StoreEvent(ctx, events.New(events.TypeGateSkipped, task.ID, events.SeverityWarning,
			"no model tier admitted quota, even at haiku", nil))
		return s.store.ReturnToPending(ctx, task.ID)
	}

	s.logTierChange(ctx, task, forced, selected)

	estimate := estimatedCostUSD[selected]
	admitted, err := s.budget.AdmitsTask(ctx, estimate)
	if err != nil {
		_ = s.store.ReturnToPending(ctx, task.ID)
		return fmt.Errorf("scheduler: check budget admission: %w", err)
	}
	if !admitted {
		_ = s.store.StoreEvent(ctx, events.New(events.TypeGateSkipped, task.ID, events.SeverityWarning,
			"task cost estimate exceeds budget cap", nil))
		return s.store.ReturnToPending(ctx, task.ID)
	}

	if err := s.quota.Consume(ctx, selected, 1); err != nil {
		_ = s.store.ReturnToPending(ctx, task.ID)
		return fmt.Errorf("scheduler: reserve quota: %w", err)
	}

	baseBranch, err := s.git.DefaultBranch(ctx)
	if err != nil {
		_ = s.quota.Refund(ctx, selected, 1)
		_ = s.store.ReturnToPending(ctx, task.ID)
		return fmt.Errorf("scheduler: resolve default branch: %w", err)
	}

	_ = s.store.StoreEvent(ctx, events.New(events.TypeTaskDispatched, task.ID, events.SeverityInfo,
		fmt.Sprintf("dispatching task %s at model %s", task.DisplayID(), selected), nil))

	result, runErr := s.exec.Run(ctx, s.cfg.RepoRoot, task, selected, baseBranch)
	if runErr != nil {
		_ = s.quota.Refund(ctx, selected, 1)
		_ = s.store.ReturnToPending(ctx, task.ID)
		return fmt.Errorf("scheduler: run executor: %w", runErr)
	}

	if err := s.store.StartTask(ctx, task.ID, result.Branch, task.WorkDir); err != nil {
		return fmt.Errorf("scheduler: record task branch: %w", err)
	}
	if err := s.store.FinishTask(ctx, task.ID, result.Status, result.ResultSummary, result.CostUSD, result.Tokens, selected); err != nil {
		return fmt.Errorf("scheduler: finish task: %w", err)
	}
	if err := s.budget.Record(ctx, task.ID, result.CostUSD); err != nil {
		return fmt.Errorf("scheduler: record budget spend: %w", err)
	}
	if task.Source == types.SourceAutoTemplate && result.Status != types.StatusFailed {
		if taskType, ok := tasks.TaskTypeFromSourceRef(task.SourceRef); ok {
			if err := tasks.MarkCompleted(ctx, s.store, taskType, now); err != nil {
				return fmt.Errorf("scheduler: mark auto-template run completed: %w", err)
			}
		}
	}

	eventType := events.TypeTaskCompleted
	severity := events.SeverityInfo
	if result.Status == types.StatusFailed {
		eventType = events.TypeTaskFailed
		severity = events.SeverityWarning
		// A failed run didn't produce reviewable work, so the reserved
		// message goes back into the window.
		_ = s.quota.Refund(ctx, selected, 1)
		if err := s.store.IncrementRetryCount(ctx, task.ID); err != nil {
			return fmt.Errorf("scheduler: increment retry count: %w", err)
		}
	}
	_ = s.store.StoreEvent(ctx, events.New(eventType, task.ID, severity,
		fmt.Sprintf("task %s finished: %s ($%.2f, %d tokens)", task.DisplayID(), result.Status, result.CostUSD, result.Tokens), nil))

	s.maybeSyncUpstream(ctx, now)
	return nil
}

// maybeScan runs the TaskSourceAggregator when scan_interval_minutes has
// elapsed since the last scan, so auto_template's interval/commit gates and
// code_comment/queue_file/markdown discovery happen ambiently rather than
// only when an operator runs `wise-magpie tasks scan`. Only reached once the
// idle/return/budget gates have already passed, so a scan never runs while
// the user is plainly active.
func (s *Scheduler) maybeScan(ctx context.Context, now time.Time) {
	if s.aggr == nil || s.cfg.ScanInterval <= 0 {
		return
	}
	s.mu.Lock()
	due := now.Sub(s.lastScanAt) >= s.cfg.ScanInterval
	if due {
		s.lastScanAt = now
	}
	s.mu.Unlock()
	if !due {
		return
	}

	result, err := s.aggr.Scan(ctx)
	if err != nil {
		_ = s.store.StoreEvent(ctx, events.New(events.TypeGateSkipped, 0, events.SeverityWarning,
			fmt.Sprintf("auto scan failed: %v", err), nil))
		return
	}
	_ = s.store.StoreEvent(ctx, events.New(events.TypeAutoScanCompleted, 0, events.SeverityInfo,
		fmt.Sprintf("auto scan discovered %d candidates, queued %d new tasks", result.Discovered, result.Created), nil))
}

func (s *Scheduler) maybeSyncUpstream(ctx context.Context, now time.Time) {
	if s.cfg.AutoSyncInterval <= 0 || s.upstream == nil {
		return
	}
	s.mu.Lock()
	due := now.Sub(s.lastSyncAt) >= s.cfg.AutoSyncInterval
	if due {
		s.lastSyncAt = now
	}
	s.mu.Unlock()
	if !due {
		return
	}
	_ = s.quota.SyncFromUpstream(ctx, s.upstream)
}

// logTierChange compares the tier Select actually picked against the task's
// unforced base tier (or, if an operator forced a model, against that
// forced tier) and records a model_upgraded/model_downgraded event when
// they differ.
func (s *Scheduler) logTierChange(ctx context.Context, task *types.Task, forced, selected types.Model) {
	base := forced
	if base == "" || base == types.ModelAuto {
		base = model.BaseModel(model.ClassifyDifficulty(task))
	}

	baseIdx, selectedIdx := model.TierIndex(base), model.TierIndex(selected)
	if baseIdx < 0 || selectedIdx < 0 || baseIdx == selectedIdx {
		return
	}

	if selectedIdx > baseIdx {
		_ = s.store.StoreEvent(ctx, events.New(events.TypeModelUpgraded, task.ID, events.SeverityInfo,
			fmt.Sprintf("task %s upgraded from %s to %s", task.DisplayID(), base, selected), nil))
		return
	}
	_ = s.store.StoreEvent(ctx, events.New(events.TypeModelDowngraded, task.ID, events.SeverityWarning,
		fmt.Sprintf("task %s downgraded from %s to %s", task.DisplayID(), base, selected), nil))
}

func (s *Scheduler) skip(ctx context.Context, reason string) error {
	_ = s.store.StoreEvent(ctx, events.New(events.TypeGateSkipped, 0, events.SeverityInfo, reason, nil))
	return nil
}

func (s *Scheduler) recordTickAt(ctx context.Context, at time.Time) {
	s.mu.Lock()
	s.lastTickAt = at
	s.mu.Unlock()
	hostname, _ := os.Hostname()
	_ = s.store.SaveDaemonMeta(ctx, &types.DaemonMeta{
		PID: os.Getpid(), Hostname: hostname, StartedAt: s.startedAt, LastTickAt: at,
	})
}
