// Package quota tracks per-model message consumption within the current
// rolling window and predicts time-to-exhaustion from recent snapshots:
// periodic captures, a rate estimate over a recent sample window, and
// alerting that fires at once when the level escalates and otherwise at
// most once every 5 minutes.
package quota

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/4beshinji/wise-magpie/internal/events"
	"github.com/4beshinji/wise-magpie/internal/storage"
	"github.com/4beshinji/wise-magpie/internal/types"
	"github.com/google/uuid"
)

// UpstreamQuotaSource supplies operator- or API-reported remaining message
// counts per model, treated as authoritative corrections when available.
// No implementation ships in this module: the `quota correct` CLI command
// calls Correct directly, and there is no public usage-reporting endpoint
// to poll automatically.
type UpstreamQuotaSource interface {
	RemainingMessages(ctx context.Context) (map[types.Model]int, error)
}

// Config configures window length, safety margin, and per-model limits.
type Config struct {
	WindowHours      int
	SafetyMargin     float64
	Limits           map[types.Model]int
	SnapshotInterval time.Duration
	AlertYellow      time.Duration
	AlertOrange      time.Duration
	AlertRed         time.Duration
}

// DefaultConfig returns the default quota configuration.
func DefaultConfig() Config {
	return Config{
		WindowHours:      5,
		SafetyMargin:     0.15,
		Limits:           map[types.Model]int{types.ModelOpus: 50, types.ModelSonnet: 200, types.ModelHaiku: 500},
		SnapshotInterval: 5 * time.Minute,
		AlertYellow:      30 * time.Minute,
		AlertOrange:      15 * time.Minute,
		AlertRed:         5 * time.Minute,
	}
}

// Accountant is the QuotaAccountant: it owns the current window in memory,
// backed by Store, and maintains a rolling set of snapshots for burn-rate
// estimation.
type Accountant struct {
	cfg   Config
	store storage.Storage
	log   events.Log

	mu             sync.Mutex
	window         *types.QuotaWindow
	snapshots      []types.QuotaSnapshot
	lastSnapshotAt time.Time
	lastAlertLevel types.AlertLevel
	lastAlertAt    time.Time
}

// New loads (or initializes) the quota window from store.
func New(ctx context.Context, cfg Config, store storage.Storage, log events.Log) (*Accountant, error) {
	window, err := store.GetQuotaWindow(ctx)
	if err != nil {
		return nil, fmt.Errorf("quota: load window: %w", err)
	}
	if window == nil {
		window = &types.QuotaWindow{WindowStartedAt: time.Now(), Consumed: map[types.Model]int{}}
		if err := store.SaveQuotaWindow(ctx, window); err != nil {
			return nil, fmt.Errorf("quota: initialize window: %w", err)
		}
	}
	if window.Consumed == nil {
		window.Consumed = map[types.Model]int{}
	}

	snapshots, err := store.ListRecentQuotaSnapshots(ctx, 20)
	if err != nil {
		return nil, fmt.Errorf("quota: load snapshots: %w", err)
	}
	// The store returns newest first; the in-memory window is oldest first.
	for i, j := 0, len(snapshots)-1; i < j; i, j = i+1, j-1 {
		snapshots[i], snapshots[j] = snapshots[j], snapshots[i]
	}

	return &Accountant{
		cfg:       cfg,
		store:     store,
		log:       log,
		window:    window,
		snapshots: snapshots,
	}, nil
}

func (a *Accountant) limit(m types.Model) int {
	return a.cfg.Limits[m]
}

// Remaining returns the number of messages still safely consumable for m
// in the current window.
func (a *Accountant) Remaining(m types.Model) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.remainingLocked(m)
}

func (a *Accountant) remainingLocked(m types.Model) int {
	allowed := float64(a.limit(m)) * (1 - a.cfg.SafetyMargin)
	remaining := int(allowed) - a.window.Consumed[m]
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RemainingFraction returns Remaining as a fraction of m's raw limit, used
// by ModelPolicy's upgrade decision.
func (a *Accountant) RemainingFraction(m types.Model) float64 {
	limit := a.limit(m)
	if limit == 0 {
		return 0
	}
	return float64(a.Remaining(m)) / float64(limit)
}

// WindowRemaining returns the time left until the current window rolls.
func (a *Accountant) WindowRemaining(now time.Time) time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()
	end := a.window.WindowStartedAt.Add(time.Duration(a.cfg.WindowHours) * time.Hour)
	if end.Before(now) {
		return 0
	}
	return end.Sub(now)
}

// Admits reports whether at least one more message fits within m's safety
// margin.
func (a *Accountant) Admits(m types.Model) bool {
	return a.Remaining(m) >= 1
}

// Consume records n messages spent against m, persisting the window.
func (a *Accountant) Consume(ctx context.Context, m types.Model, n int) error {
	a.mu.Lock()
	a.window.Consumed[m] += n
	window := *a.window
	a.mu.Unlock()
	if err := a.store.SaveQuotaWindow(ctx, &window); err != nil {
		return fmt.Errorf("quota: persist consumption: %w", err)
	}
	return nil
}

// Refund reverses a reservation, used when a dispatch never started or its
// run ended in failure.
func (a *Accountant) Refund(ctx context.Context, m types.Model, n int) error {
	a.mu.Lock()
	a.window.Consumed[m] -= n
	if a.window.Consumed[m] < 0 {
		a.window.Consumed[m] = 0
	}
	window := *a.window
	a.mu.Unlock()
	if err := a.store.SaveQuotaWindow(ctx, &window); err != nil {
		return fmt.Errorf("quota: persist refund: %w", err)
	}
	return nil
}

// Correct sets consumed(m) so that Remaining(m) equals remainingMessages,
// as reported by the operator or an upstream source, and stamps
// last_correction_at.
func (a *Accountant) Correct(ctx context.Context, m types.Model, remainingMessages int) error {
	a.mu.Lock()
	allowed := float64(a.limit(m)) * (1 - a.cfg.SafetyMargin)
	consumed := int(allowed) - remainingMessages
	if consumed < 0 {
		consumed = 0
	}
	a.window.Consumed[m] = consumed
	now := time.Now()
	a.window.LastCorrectionAt = &now
	window := *a.window
	a.mu.Unlock()

	if err := a.store.SaveQuotaWindow(ctx, &window); err != nil {
		return fmt.Errorf("quota: persist correction: %w", err)
	}
	return a.log.StoreEvent(ctx, events.New(events.TypeQuotaCorrected, 0, events.SeverityInfo,
		fmt.Sprintf("quota corrected for %s: %d messages remaining", m, remainingMessages),
		map[string]interface{}{"model": string(m), "remaining": remainingMessages}))
}

// RollIfDue resets the window and advances window_started_at by whole
// windows if the configured window length has elapsed.
func (a *Accountant) RollIfDue(ctx context.Context, now time.Time) error {
	a.mu.Lock()
	windowLen := time.Duration(a.cfg.WindowHours) * time.Hour
	if now.Sub(a.window.WindowStartedAt) < windowLen {
		a.mu.Unlock()
		return nil
	}
	for now.Sub(a.window.WindowStartedAt) >= windowLen {
		a.window.WindowStartedAt = a.window.WindowStartedAt.Add(windowLen)
	}
	a.window.Consumed = map[types.Model]int{}
	window := *a.window
	a.mu.Unlock()

	if err := a.store.SaveQuotaWindow(ctx, &window); err != nil {
		return fmt.Errorf("quota: persist roll: %w", err)
	}
	return a.log.StoreEvent(ctx, events.New(events.TypeQuotaWindowRolled, 0, events.SeverityInfo,
		"quota window rolled", nil))
}

// SyncFromUpstream applies src's reported values as corrections for every
// model it reports. Failures are logged but never fatal — the next
// scheduled sync retries.
func (a *Accountant) SyncFromUpstream(ctx context.Context, src UpstreamQuotaSource) error {
	remaining, err := src.RemainingMessages(ctx)
	if err != nil {
		_ = a.log.StoreEvent(ctx, events.New(events.TypeUpstreamSyncFailed, 0, events.SeverityWarning,
			fmt.Sprintf("quota upstream sync failed: %v", err), nil))
		return fmt.Errorf("quota: sync from upstream: %w", err)
	}
	for m, n := range remaining {
		if err := a.Correct(ctx, m, n); err != nil {
			return err
		}
	}
	return nil
}

// CaptureSnapshotIfDue records a point-in-time usage snapshot if enough
// time has elapsed since the last one, and evaluates the burn rate for a
// possible alert.
func (a *Accountant) CaptureSnapshotIfDue(ctx context.Context, now time.Time) error {
	a.mu.Lock()
	if now.Sub(a.lastSnapshotAt) < a.cfg.SnapshotInterval {
		a.mu.Unlock()
		return nil
	}

	consumed := make(map[types.Model]int, len(a.window.Consumed))
	for m, n := range a.window.Consumed {
		consumed[m] = n
	}
	snapshot := types.QuotaSnapshot{
		ID:              uuid.NewString(),
		Timestamp:       now,
		WindowStartedAt: a.window.WindowStartedAt,
		Consumed:        consumed,
	}
	a.snapshots = append(a.snapshots, snapshot)
	if len(a.snapshots) > 20 {
		a.snapshots = a.snapshots[len(a.snapshots)-20:]
	}
	a.lastSnapshotAt = now
	burnRate, confidence, alertLevel := a.calculateBurnRateLocked(now)
	a.mu.Unlock()

	if err := a.store.RecordQuotaSnapshot(ctx, snapshot); err != nil {
		return fmt.Errorf("quota: record snapshot: %w", err)
	}

	if confidence > 0.5 {
		return a.maybeAlert(ctx, burnRate, alertLevel)
	}
	return nil
}

// calculateBurnRateLocked estimates messages/minute across all models from
// the recent snapshot window and classifies the alert level by the
// shortest projected time to exhaustion. Must be called with mu held.
func (a *Accountant) calculateBurnRateLocked(now time.Time) (messagesPerMinute float64, confidence float64, level types.AlertLevel) {
	if len(a.snapshots) < 3 {
		return 0, 0, types.AlertGreen
	}

	cutoff := now.Add(-15 * time.Minute)
	var recent []types.QuotaSnapshot
	for _, s := range a.snapshots {
		if s.Timestamp.After(cutoff) {
			recent = append(recent, s)
		}
	}
	if len(recent) < 2 {
		return 0, 0, types.AlertGreen
	}

	oldest, newest := recent[0], recent[len(recent)-1]
	minutes := newest.Timestamp.Sub(oldest.Timestamp).Minutes()
	if minutes <= 0 {
		return 0, 0, types.AlertGreen
	}

	var totalDelta int
	for m := range newest.Consumed {
		totalDelta += newest.Consumed[m] - oldest.Consumed[m]
	}
	rate := float64(totalDelta) / minutes
	confidence = float64(len(recent)) / 5.0
	if confidence > 1 {
		confidence = 1
	}

	timeToLimit := 24 * time.Hour
	if rate > 0 {
		var minutesLeft float64
		first := true
		for m := range a.cfg.Limits {
			remaining := a.remainingLocked(m)
			t := 0.0
			if remaining > 0 {
				t = float64(remaining) / rate
			}
			if first || t < minutesLeft {
				minutesLeft = t
				first = false
			}
		}
		if !first {
			timeToLimit = time.Duration(minutesLeft * float64(time.Minute))
		}
	}

	switch {
	case timeToLimit < a.cfg.AlertRed:
		level = types.AlertRed
	case timeToLimit < a.cfg.AlertOrange:
		level = types.AlertOrange
	case timeToLimit < a.cfg.AlertYellow:
		level = types.AlertYellow
	default:
		level = types.AlertGreen
	}
	return rate, confidence, level
}

func (a *Accountant) maybeAlert(ctx context.Context, rate float64, level types.AlertLevel) error {
	a.mu.Lock()
	escalating := alertRank(level) > alertRank(a.lastAlertLevel)
	throttled := time.Since(a.lastAlertAt) < 5*time.Minute
	if level == types.AlertGreen || (!escalating && throttled) {
		a.mu.Unlock()
		return nil
	}
	a.lastAlertLevel = level
	a.lastAlertAt = time.Now()
	a.mu.Unlock()

	severity := events.SeverityWarning
	switch level {
	case types.AlertOrange:
		severity = events.SeverityError
	case types.AlertRed:
		severity = events.SeverityCritical
	}

	return a.log.StoreEvent(ctx, events.New(events.TypeQuotaAlert, 0, severity,
		fmt.Sprintf("quota burn rate alert: %s (%.2f messages/min)", level, rate),
		map[string]interface{}{"level": string(level), "messages_per_minute": rate}))
}

func alertRank(l types.AlertLevel) int {
	switch l {
	case types.AlertYellow:
		return 1
	case types.AlertOrange:
		return 2
	case types.AlertRed:
		return 3
	default:
		return 0
	}
}
