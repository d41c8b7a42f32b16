// Package budget enforces a daily USD spend cap: a per-day ledger with
// per-task attribution, persisted so a restart mid-day does not reset
// the cap accounting.
package budget

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/4beshinji/wise-magpie/internal/events"
	"github.com/4beshinji/wise-magpie/internal/storage"
	"github.com/4beshinji/wise-magpie/internal/types"
)

// Config configures the per-task cap, daily cap, and warning threshold.
type Config struct {
	MaxTaskUSD     float64
	DailyCapUSD    float64
	WarningPercent float64 // e.g. 0.80
}

// DefaultConfig returns the default budget: $2/task, $10/day.
func DefaultConfig() Config {
	return Config{MaxTaskUSD: 2.0, DailyCapUSD: 10.0, WarningPercent: 0.80}
}

// Accountant is the BudgetAccountant: tracks today's spend against the
// configured cap and emits throttled warning/exceeded events.
type Accountant struct {
	cfg   Config
	store storage.Storage
	log   events.Log

	mu             sync.Mutex
	state          *types.BudgetState
	lastWarningAt  time.Time
	lastExceededAt time.Time
	warnedThisDay  bool
}

func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

// New loads (or initializes) today's budget state from store.
func New(ctx context.Context, cfg Config, store storage.Storage, log events.Log) (*Accountant, error) {
	a := &Accountant{cfg: cfg, store: store, log: log}
	if err := a.loadDay(ctx, time.Now()); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Accountant) loadDay(ctx context.Context, now time.Time) error {
	day := dayKey(now)
	state, err := a.store.GetBudgetState(ctx, day)
	if err != nil {
		return fmt.Errorf("budget: load state: %w", err)
	}
	if state == nil {
		state = &types.BudgetState{Day: day, TaskSpentUSD: map[int64]float64{}, LastUpdated: now}
	}
	if state.TaskSpentUSD == nil {
		state.TaskSpentUSD = map[int64]float64{}
	}
	a.state = state
	a.warnedThisDay = false
	return nil
}

func (a *Accountant) rolloverIfNeeded(ctx context.Context, now time.Time) error {
	if a.state.Day == dayKey(now) {
		return nil
	}
	return a.loadDay(ctx, now)
}

// AdmitsTask reports whether estimated cost estUSD fits under both the
// per-task cap and today's remaining daily cap.
func (a *Accountant) AdmitsTask(ctx context.Context, estUSD float64) (bool, error) {
	if a.cfg.MaxTaskUSD > 0 && estUSD > a.cfg.MaxTaskUSD {
		return false, nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.rolloverIfNeeded(ctx, time.Now()); err != nil {
		return false, err
	}
	if a.cfg.DailyCapUSD <= 0 {
		return true, nil
	}
	return a.state.DailySpentUSD+estUSD <= a.cfg.DailyCapUSD, nil
}

// Record attributes actualUSD spent on taskID to today's ledger,
// persisting the new total and emitting a warning/exceeded event if the
// spend just crossed a threshold.
func (a *Accountant) Record(ctx context.Context, taskID int64, actualUSD float64) error {
	a.mu.Lock()
	now := time.Now()
	if err := a.rolloverIfNeeded(ctx, now); err != nil {
		a.mu.Unlock()
		return err
	}

	a.state.DailySpentUSD += actualUSD
	if taskID != 0 {
		a.state.TaskSpentUSD[taskID] += actualUSD
	}
	a.state.LastUpdated = now
	state := *a.state
	state.TaskSpentUSD = copyTaskSpent(a.state.TaskSpentUSD)
	spent, cap_ := a.state.DailySpentUSD, a.cfg.DailyCapUSD
	a.mu.Unlock()

	if err := a.store.SaveBudgetState(ctx, &state); err != nil {
		return fmt.Errorf("budget: persist state: %w", err)
	}

	return a.maybeAlert(ctx, spent, cap_, now)
}

func copyTaskSpent(m map[int64]float64) map[int64]float64 {
	out := make(map[int64]float64, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (a *Accountant) maybeAlert(ctx context.Context, spent, cap_ float64, now time.Time) error {
	if cap_ <= 0 {
		return nil
	}
	percent := spent / cap_

	a.mu.Lock()
	defer a.mu.Unlock()

	if percent >= 1.0 {
		if now.Sub(a.lastExceededAt) < 5*time.Minute {
			return nil
		}
		a.lastExceededAt = now
		return a.log.StoreEvent(ctx, events.New(events.TypeBudgetAlert, 0, events.SeverityCritical,
			fmt.Sprintf("daily budget exceeded: $%.2f/$%.2f spent", spent, cap_),
			map[string]interface{}{"daily_spent_usd": spent, "daily_cap_usd": cap_, "status": "exceeded"}))
	}

	if percent >= a.cfg.WarningPercent {
		if a.warnedThisDay {
			return nil
		}
		a.warnedThisDay = true
		return a.log.StoreEvent(ctx, events.New(events.TypeBudgetAlert, 0, events.SeverityWarning,
			fmt.Sprintf("daily budget warning: $%.2f/$%.2f spent (%.0f%%)", spent, cap_, percent*100),
			map[string]interface{}{"daily_spent_usd": spent, "daily_cap_usd": cap_, "status": "warning"}))
	}

	return nil
}

// Remaining returns today's unspent USD, never negative when a daily cap is
// set; it returns -1 when DailyCapUSD <= 0 (uncapped).
func (a *Accountant) Remaining() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.cfg.DailyCapUSD <= 0 {
		return -1
	}
	r := a.cfg.DailyCapUSD - a.state.DailySpentUSD
	if r < 0 {
		return 0
	}
	return r
}

// SpentToday returns today's total spend in USD.
func (a *Accountant) SpentToday() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state.DailySpentUSD
}
