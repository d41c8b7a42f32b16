package types

import "time"

// QuotaWindow is the open rolling window of per-model message consumption.
type QuotaWindow struct {
	WindowStartedAt  time.Time     `json:"window_started_at"`
	Consumed         map[Model]int `json:"consumed"`
	LastCorrectionAt *time.Time    `json:"last_correction_at,omitempty"`
}

// QuotaSnapshot is a point-in-time record of quota usage, kept for burn-rate
// estimation.
type QuotaSnapshot struct {
	ID              string        `json:"id"`
	Timestamp       time.Time     `json:"timestamp"`
	WindowStartedAt time.Time     `json:"window_started_at"`
	Consumed        map[Model]int `json:"consumed"`
}

// AlertLevel is the urgency of a predictive quota or budget alert.
type AlertLevel string

const (
	AlertGreen  AlertLevel = "green"
	AlertYellow AlertLevel = "yellow"
	AlertOrange AlertLevel = "orange"
	AlertRed    AlertLevel = "red"
)

// BudgetState is the persisted daily/per-task USD spend accounting.
type BudgetState struct {
	Day           string            `json:"day"` // YYYY-MM-DD, UTC
	DailySpentUSD float64           `json:"daily_spent_usd"`
	TaskSpentUSD  map[int64]float64 `json:"task_spent_usd"`
	LastUpdated   time.Time         `json:"last_updated"`
}

// AutoTemplateRun records the last completion timestamp for a built-in
// auto-template task type, used for interval gating.
type AutoTemplateRun struct {
	TaskType        string    `json:"task_type"`
	LastCompletedAt time.Time `json:"last_completed_at"`
}
