// Package activity determines whether the operator is actively using the
// Assistant CLI interactively, records samples of that state, and learns
// a weekly pattern used to forecast idle windows. The default presence
// probe shells out to ps and looks for the assistant on the process list.
package activity

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/4beshinji/wise-magpie/internal/storage"
	"github.com/4beshinji/wise-magpie/internal/types"
)

// PresenceProbe reports whether the operator is currently interacting
// with the assistant outside of wise-magpie.
type PresenceProbe interface {
	IsPresent(ctx context.Context) (bool, error)
}

// ProcessPresenceProbe is the default PresenceProbe: it checks for any
// running process whose command line contains identifier, on the theory
// that the operator is "present" exactly when they are driving the
// assistant interactively themselves.
type ProcessPresenceProbe struct {
	Identifier string
}

// NewProcessPresenceProbe returns a probe that looks for identifier
// (default "claude") anywhere in the process list with a case-insensitive
// substring match. No process is excluded, wise-magpie's own included.
func NewProcessPresenceProbe(identifier string) *ProcessPresenceProbe {
	if identifier == "" {
		identifier = "claude"
	}
	return &ProcessPresenceProbe{Identifier: identifier}
}

func (p *ProcessPresenceProbe) IsPresent(ctx context.Context) (bool, error) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "linux", "darwin":
		cmd = exec.CommandContext(ctx, "ps", "-eo", "pid,comm,args")
	default:
		return false, fmt.Errorf("activity: unsupported OS for presence probe: %s", runtime.GOOS)
	}

	out, err := cmd.Output()
	if err != nil {
		return false, fmt.Errorf("activity: list processes: %w", err)
	}

	needle := strings.ToLower(p.Identifier)
	for _, line := range strings.Split(string(out), "\n") {
		if strings.Contains(strings.ToLower(line), needle) {
			return true, nil
		}
	}
	return false, nil
}

// Monitor samples and records operator presence.
type Monitor struct {
	Store storage.Storage
	Probe PresenceProbe

	lastResult bool
	lastCheck  time.Time
}

// NewMonitor builds a Monitor using the default process-scanning probe.
func NewMonitor(store storage.Storage, probe PresenceProbe) *Monitor {
	if probe == nil {
		probe = NewProcessPresenceProbe("")
	}
	return &Monitor{Store: store, Probe: probe}
}

// IsActive probes for presence on every call and records the result in
// lastResult/lastCheck; it never returns a cached value. The scheduler
// calls it once per tick.
func (m *Monitor) IsActive(ctx context.Context) (bool, error) {
	active, err := m.Probe.IsPresent(ctx)
	if err != nil {
		return false, fmt.Errorf("activity: probe presence: %w", err)
	}
	m.lastResult = active
	m.lastCheck = time.Now()
	return active, nil
}

// RecordSample persists the given presence observation.
func (m *Monitor) RecordSample(ctx context.Context, active bool) error {
	if err := m.Store.RecordUsageSample(ctx, types.UsageSample{Timestamp: time.Now(), Active: active}); err != nil {
		return fmt.Errorf("activity: record sample: %w", err)
	}
	return nil
}

// TimeSinceLastActive returns the duration since the most recent sample
// with Active == true, or a very large duration if none exists within
// since.
func TimeSinceLastActive(samples []types.UsageSample, now time.Time) time.Duration {
	var lastActive time.Time
	for _, s := range samples {
		if s.Active && s.Timestamp.After(lastActive) {
			lastActive = s.Timestamp
		}
	}
	if lastActive.IsZero() {
		return 365 * 24 * time.Hour
	}
	return now.Sub(lastActive)
}
