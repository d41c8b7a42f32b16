package tasks

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/4beshinji/wise-magpie/internal/storage"
	"github.com/4beshinji/wise-magpie/internal/types"
	"github.com/4beshinji/wise-magpie/internal/vcs"
)

// TemplateOverride overrides one built-in template's gating parameters.
type TemplateOverride struct {
	Enabled       *bool
	IntervalHours *int
	MinCommits    *int
}

// AutoTaskConfig configures the auto-template source.
type AutoTaskConfig struct {
	Enabled   bool
	Overrides map[string]TemplateOverride
}

// AutoTemplateSource evaluates the built-in template table's six-check
// gate against repository and run-history state.
type AutoTemplateSource struct {
	Store  storage.Storage
	Git    *vcs.Git
	Config AutoTaskConfig
	Now    func() time.Time
}

func (s *AutoTemplateSource) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *AutoTemplateSource) Discover(ctx context.Context) ([]*types.Task, error) {
	if !s.Config.Enabled {
		return nil, nil
	}

	baseBranch, err := s.Git.DefaultBranch(ctx)
	if err != nil {
		return nil, fmt.Errorf("tasks: auto_template source: %w", err)
	}
	currentBranch, err := s.Git.CurrentBranch(ctx)
	if err != nil {
		return nil, fmt.Errorf("tasks: auto_template source: %w", err)
	}

	now := s.now()
	var found []*types.Task

	for _, tmpl := range BuiltinTemplates() {
		tmpl = s.applyOverride(tmpl)
		if !tmpl.Enabled {
			continue
		}

		run, err := s.Store.GetAutoTemplateRun(ctx, tmpl.TaskType)
		if err != nil {
			return nil, fmt.Errorf("tasks: load auto-template run for %s: %w", tmpl.TaskType, err)
		}

		since := now.Add(-time.Duration(tmpl.IntervalHours) * time.Hour)
		if run != nil {
			if tmpl.IntervalHours > 0 && now.Sub(run.LastCompletedAt) < time.Duration(tmpl.IntervalHours)*time.Hour {
				continue // (ii) interval not yet elapsed
			}
			since = run.LastCompletedAt
		}

		if tmpl.MinCommits > 0 {
			commits, err := s.Git.CommitsSince(ctx, currentBranch, baseBranch)
			if err != nil {
				return nil, fmt.Errorf("tasks: count commits for %s: %w", tmpl.TaskType, err)
			}
			if commits < tmpl.MinCommits {
				continue // (iii)
			}
		}

		if tmpl.NeedsNewCommits {
			hasCommits, err := s.Git.HasCommitsSince(ctx, since)
			if err != nil {
				return nil, fmt.Errorf("tasks: check commits since for %s: %w", tmpl.TaskType, err)
			}
			if !hasCommits {
				continue // (iv)
			}
		}

		if tmpl.NeedsCodeChanges {
			hasChanges, err := s.Git.HasFileChangesSince(ctx, since)
			if err != nil {
				return nil, fmt.Errorf("tasks: check file changes for %s: %w", tmpl.TaskType, err)
			}
			if !hasChanges {
				continue // (v)
			}
		}

		found = append(found, &types.Task{
			Title:       tmpl.Title,
			Description: tmpl.Description,
			Source:      types.SourceAutoTemplate,
			SourceRef:   fmt.Sprintf("%s:%s", tmpl.TaskType, now.Format("2006-01-02")),
			Status:      types.StatusPending,
		})
	}

	return found, nil
}

func (s *AutoTemplateSource) applyOverride(tmpl Template) Template {
	o, ok := s.Config.Overrides[tmpl.TaskType]
	if !ok {
		return tmpl
	}
	if o.Enabled != nil {
		tmpl.Enabled = *o.Enabled
	}
	if o.IntervalHours != nil {
		tmpl.IntervalHours = *o.IntervalHours
	}
	if o.MinCommits != nil {
		tmpl.MinCommits = *o.MinCommits
	}
	return tmpl
}

// MarkCompleted records today's completion for taskType, gating (ii) on
// future scans until the interval elapses again.
func MarkCompleted(ctx context.Context, store storage.Storage, taskType string, at time.Time) error {
	return store.SetAutoTemplateRun(ctx, taskType, at)
}

// TaskTypeFromSourceRef recovers the template's task_type from an
// auto_template task's "<task_type>:<YYYY-MM-DD>" source_ref, reporting
// whether ref had the expected shape.
func TaskTypeFromSourceRef(ref string) (string, bool) {
	taskType, _, ok := strings.Cut(ref, ":")
	if !ok || taskType == "" {
		return "", false
	}
	return taskType, true
}
