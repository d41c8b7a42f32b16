package tasks

import (
	"context"
	"fmt"

	"github.com/4beshinji/wise-magpie/internal/priorities"
	"github.com/4beshinji/wise-magpie/internal/storage"
	"github.com/4beshinji/wise-magpie/internal/types"
	"github.com/4beshinji/wise-magpie/internal/vcs"
	"golang.org/x/sync/errgroup"
)

// Aggregator runs every configured Source and inserts its candidates into
// Store, deduplicated by (source, source_ref). Scan is idempotent:
// running it repeatedly against unchanged repository state inserts
// nothing new.
type Aggregator struct {
	Store   storage.Storage
	Sources []Source
}

// NewAggregator builds the standard source set: code comments, the
// dedicated queue file, markdown checklists, and auto-templates.
func NewAggregator(store storage.Storage, git *vcs.Git, autoCfg AutoTaskConfig) *Aggregator {
	return &Aggregator{
		Store: store,
		Sources: []Source{
			&CodeCommentSource{Git: git},
			&QueueFileSource{WorkDir: git.RepoRoot},
			&MarkdownSource{Git: git},
			&AutoTemplateSource{Store: store, Git: git, Config: autoCfg},
		},
	}
}

// ScanResult summarizes one Scan invocation.
type ScanResult struct {
	Discovered int
	Created    int
}

// Scan runs every source concurrently (each does its own git subprocess
// calls or filesystem walk, so there's no shared mutable state to race
// on) and then inserts newly-discovered tasks serially, skipping ones
// that already exist by (source, source_ref). Each task's priority is
// computed before insertion.
func (a *Aggregator) Scan(ctx context.Context) (ScanResult, error) {
	var result ScanResult

	perSource := make([][]*types.Task, len(a.Sources))
	g, gctx := errgroup.WithContext(ctx)
	for i, src := range a.Sources {
		i, src := i, src
		g.Go(func() error {
			candidates, err := src.Discover(gctx)
			if err != nil {
				return fmt.Errorf("tasks: scan: %w", err)
			}
			perSource[i] = candidates
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, err
	}

	for _, candidates := range perSource {
		for _, task := range candidates {
			result.Discovered++
			if task.Status == "" {
				task.Status = types.StatusPending
			}
			task.Priority = priorities.Score(task)

			created, err := a.Store.CreateTaskIfNotExists(ctx, task)
			if err != nil {
				return result, fmt.Errorf("tasks: create task from %s: %w", task.Source, err)
			}
			if created {
				result.Created++
			}
		}
	}

	return result, nil
}
