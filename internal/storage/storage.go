// Package storage defines the persistence interface shared by every
// wise-magpie component, and dispatches to a concrete backend.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/4beshinji/wise-magpie/internal/events"
	"github.com/4beshinji/wise-magpie/internal/storage/sqlite"
	"github.com/4beshinji/wise-magpie/internal/types"
)

// Storage is the full persistence surface. A single SQLite database backs
// all of it; wise-magpie runs on one machine against one quota account,
// so there is no multi-backend story here.
type Storage interface {
	events.Log

	// Tasks
	CreateTask(ctx context.Context, task *types.Task) error
	CreateTaskIfNotExists(ctx context.Context, task *types.Task) (created bool, err error)
	GetTask(ctx context.Context, id int64) (*types.Task, error)
	ListTasks(ctx context.Context, filter types.TaskFilter) ([]*types.Task, error)
	ClaimNextPending(ctx context.Context) (*types.Task, error)
	StartTask(ctx context.Context, id int64, branchName, workDir string) error
	FinishTask(ctx context.Context, id int64, status types.Status, resultSummary string, costUSD float64, tokens int64, modelUsed types.Model) error
	IncrementRetryCount(ctx context.Context, id int64) error
	ReturnToPending(ctx context.Context, id int64) error
	SweepOrphanRunning(ctx context.Context) (int, error)

	// Activity
	RecordUsageSample(ctx context.Context, sample types.UsageSample) error
	ListUsageSamples(ctx context.Context, since time.Time) ([]types.UsageSample, error)
	PruneUsageSamples(ctx context.Context, olderThan time.Time) error

	// Quota
	GetQuotaWindow(ctx context.Context) (*types.QuotaWindow, error)
	SaveQuotaWindow(ctx context.Context, window *types.QuotaWindow) error
	RecordQuotaSnapshot(ctx context.Context, snapshot types.QuotaSnapshot) error
	ListRecentQuotaSnapshots(ctx context.Context, limit int) ([]types.QuotaSnapshot, error)

	// Budget
	GetBudgetState(ctx context.Context, day string) (*types.BudgetState, error)
	SaveBudgetState(ctx context.Context, state *types.BudgetState) error

	// Auto-templates
	GetAutoTemplateRun(ctx context.Context, taskType string) (*types.AutoTemplateRun, error)
	SetAutoTemplateRun(ctx context.Context, taskType string, at time.Time) error

	// Daemon metadata
	GetDaemonMeta(ctx context.Context) (*types.DaemonMeta, error)
	SaveDaemonMeta(ctx context.Context, meta *types.DaemonMeta) error

	Close() error
}

// Config holds database configuration. wise-magpie only ever runs a single
// SQLite file, so this is much narrower than a pluggable-backend config.
type Config struct {
	Path string
}

// DefaultConfig returns a config naming wise-magpie.db, relative to the
// current working directory.
func DefaultConfig() *Config {
	return &Config{
		Path: "wise-magpie.db",
	}
}

// NewStorage opens the SQLite-backed store at cfg.Path, creating the file
// and schema if they don't already exist.
func NewStorage(cfg *Config) (Storage, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("storage: Path is required")
	}
	return sqlite.New(cfg.Path)
}
