// Package tasks discovers candidate work from the repository and feeds it
// into Store, deduplicated by (source, source_ref). Every source is plain
// pattern matching over files and git history; discovery never calls an
// LLM.
package tasks

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/4beshinji/wise-magpie/internal/types"
	"github.com/4beshinji/wise-magpie/internal/vcs"
	"gopkg.in/yaml.v3"
)

// Source discovers candidate tasks from one origin.
type Source interface {
	Discover(ctx context.Context) ([]*types.Task, error)
}

var commentMarkers = []string{"TODO", "FIXME", "HACK", "XXX"}

// CodeCommentSource greps git-tracked files for the fixed technical-debt
// marker set.
type CodeCommentSource struct {
	Git *vcs.Git
}

func (s *CodeCommentSource) Discover(ctx context.Context) ([]*types.Task, error) {
	files, err := s.Git.ListTrackedFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("tasks: code_comment source: %w", err)
	}

	pattern := regexp.MustCompile(`(?://|#)\s*(` + strings.Join(commentMarkers, "|") + `):?\s*(.*)`)

	var found []*types.Task
	for _, rel := range files {
		path := filepath.Join(s.Git.RepoRoot, rel)
		info, err := os.Stat(path)
		if err != nil || info.IsDir() || info.Size() > 1<<20 {
			continue
		}
		f, err := os.Open(path)
		if err != nil {
			continue
		}
		lineNo := 0
		scanner := bufio.NewScanner(f)
		for scanner.Scan() {
			lineNo++
			line := scanner.Text()
			m := pattern.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			text := strings.TrimSpace(m[2])
			if text == "" {
				text = m[1]
			}
			title := truncate(fmt.Sprintf("%s: %s", m[1], text), 120)
			found = append(found, &types.Task{
				Title:       title,
				Description: fmt.Sprintf("%s comment at %s:%d\n\n%s", m[1], rel, lineNo, strings.TrimSpace(line)),
				Source:      types.SourceCodeComment,
				SourceRef:   fmt.Sprintf("%s:%d", rel, lineNo),
				Status:      types.StatusPending,
			})
		}
		f.Close()
	}
	return found, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

var checklistItem = regexp.MustCompile(`^\s*-\s*\[( |x|X)\]\s*(.+)$`)

func parseChecklist(path string) ([]*types.Task, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	defer f.Close()

	var found []*types.Task
	lineNo := 0
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lineNo++
		m := checklistItem.FindStringSubmatch(scanner.Text())
		if m == nil {
			continue
		}
		if strings.EqualFold(m[1], "x") {
			continue // already done
		}
		found = append(found, &types.Task{
			Title:     truncate(strings.TrimSpace(m[2]), 500),
			SourceRef: fmt.Sprintf("%s:%d", path, lineNo),
			Status:    types.StatusPending,
		})
	}
	return found, scanner.Err()
}

// QueueFileSource reads the dedicated queue file at the repository root:
// a plain markdown checklist and, for operators who want to set a model
// per entry, a structured YAML file.
type QueueFileSource struct {
	WorkDir string
}

var queueFileNames = []string{".wise-magpie-tasks", "wise-magpie-tasks.md"}

// queueYAMLFileName is the structured alternative to the checklist
// formats, for operators who want to set a model per entry.
const queueYAMLFileName = ".wise-magpie-tasks.yaml"

// yamlQueueEntry is one task as written by hand in .wise-magpie-tasks.yaml.
type yamlQueueEntry struct {
	Title       string `yaml:"title"`
	Description string `yaml:"description"`
	Model       string `yaml:"model"`
}

func (s *QueueFileSource) Discover(ctx context.Context) ([]*types.Task, error) {
	yamlItems, err := parseYAMLQueueFile(filepath.Join(s.WorkDir, queueYAMLFileName))
	if err != nil {
		return nil, fmt.Errorf("tasks: queue_file source: %w", err)
	}

	for _, name := range queueFileNames {
		items, err := parseChecklist(filepath.Join(s.WorkDir, name))
		if err != nil {
			return nil, fmt.Errorf("tasks: queue_file source: %w", err)
		}
		if items == nil {
			continue
		}
		for _, item := range items {
			item.Source = types.SourceQueueFile
		}
		return append(yamlItems, items...), nil
	}
	return yamlItems, nil
}

func parseYAMLQueueFile(path string) ([]*types.Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var entries []yamlQueueEntry
	if err := yaml.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	found := make([]*types.Task, 0, len(entries))
	for i, e := range entries {
		if e.Title == "" {
			continue
		}
		found = append(found, &types.Task{
			Title:          truncate(e.Title, 500),
			Description:    e.Description,
			Source:         types.SourceQueueFile,
			SourceRef:      fmt.Sprintf("%s:%d", path, i),
			RequestedModel: types.Model(e.Model),
			Status:         types.StatusPending,
		})
	}
	return found, nil
}

// MarkdownSource scans arbitrary tracked *.md checklists outside the
// dedicated queue file, an ambient supplement to exercise the Markdown
// source/weight the PriorityScorer already accounts for.
type MarkdownSource struct {
	Git *vcs.Git
}

func (s *MarkdownSource) Discover(ctx context.Context) ([]*types.Task, error) {
	files, err := s.Git.ListTrackedFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("tasks: markdown source: %w", err)
	}

	var found []*types.Task
	for _, rel := range files {
		if !strings.HasSuffix(rel, ".md") || isQueueFileName(filepath.Base(rel)) {
			continue
		}
		items, err := parseChecklist(filepath.Join(s.Git.RepoRoot, rel))
		if err != nil {
			continue
		}
		for _, item := range items {
			item.Source = types.SourceMarkdown
		}
		found = append(found, items...)
	}
	return found, nil
}

func isQueueFileName(base string) bool {
	for _, name := range queueFileNames {
		if base == name {
			return true
		}
	}
	return false
}
