package types

import "time"

// UsageSample is a single activity observation.
type UsageSample struct {
	Timestamp time.Time `json:"timestamp"`
	Active    bool      `json:"active"`
}

// ActivityPattern is the learned weekly heatmap of operator activity.
// Probability[weekday][hour] is in [0,1].
type ActivityPattern struct {
	Probability [7][24]float64 `json:"probability"`
	ComputedAt  time.Time      `json:"computed_at"`
	SampleCount int            `json:"sample_count"`
}

// DaemonMeta is the singleton row describing the running daemon process.
type DaemonMeta struct {
	PID        int       `json:"pid"`
	Hostname   string    `json:"hostname"`
	StartedAt  time.Time `json:"started_at"`
	LastTickAt time.Time `json:"last_tick_at"`
}
