// Package types defines the persistent data model shared across wise-magpie's
// components: tasks, quota windows, activity samples, and daemon metadata.
package types

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Status represents the current state of a task.
type Status string

const (
	StatusPending        Status = "pending"
	StatusRunning        Status = "running"
	StatusCompleted      Status = "completed"
	StatusFailed         Status = "failed"
	StatusAwaitingReview Status = "awaiting_review"
	StatusMerged         Status = "merged"
	StatusRejected       Status = "rejected"
)

// IsValid reports whether s is one of the known statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed,
		StatusAwaitingReview, StatusMerged, StatusRejected:
		return true
	}
	return false
}

// Source identifies where a task came from.
type Source string

const (
	SourceManual       Source = "manual"
	SourceCodeComment  Source = "code_comment"
	SourceQueueFile    Source = "queue_file"
	SourceAutoTemplate Source = "auto_template"
	SourceIssue        Source = "issue"
	SourceMarkdown     Source = "markdown"
)

// IsValid reports whether src is one of the known sources.
func (src Source) IsValid() bool {
	switch src {
	case SourceManual, SourceCodeComment, SourceQueueFile, SourceAutoTemplate, SourceIssue, SourceMarkdown:
		return true
	}
	return false
}

// BaseWeight is the priority base score this source contributes.
func (src Source) BaseWeight() int {
	switch src {
	case SourceManual:
		return 40
	case SourceQueueFile:
		return 35
	case SourceIssue:
		return 30
	case SourceAutoTemplate:
		return 25
	case SourceCodeComment:
		return 20
	case SourceMarkdown:
		return 15
	default:
		return 0
	}
}

// Model identifies an Assistant CLI model tier.
type Model string

const (
	ModelOpus   Model = "opus"
	ModelSonnet Model = "sonnet"
	ModelHaiku  Model = "haiku"
	ModelAuto   Model = "auto"
)

// IsValid reports whether m is one of the known model tiers.
func (m Model) IsValid() bool {
	switch m {
	case ModelOpus, ModelSonnet, ModelHaiku, ModelAuto:
		return true
	}
	return false
}

// Difficulty classifies a task's expected complexity.
type Difficulty string

const (
	DifficultySimple  Difficulty = "simple"
	DifficultyMedium  Difficulty = "medium"
	DifficultyComplex Difficulty = "complex"
)

// Task is a unit of autonomous work.
type Task struct {
	ID             int64      `json:"id"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	Source         Source     `json:"source"`
	SourceRef      string     `json:"source_ref,omitempty"`
	RequestedModel Model      `json:"requested_model"`
	Priority       int        `json:"priority"`
	Status         Status     `json:"status"`
	WorkDir        string     `json:"work_dir"`
	BranchName     string     `json:"branch_name,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	StartedAt      *time.Time `json:"started_at,omitempty"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	ActualCostUSD  float64    `json:"actual_cost_usd"`
	ActualTokens   int64      `json:"actual_tokens"`
	ResultSummary  string     `json:"result_summary,omitempty"`
	RetryCount     int        `json:"retry_count"`
	ModelUsed      Model      `json:"model_used,omitempty"`
}

// DisplayID renders the task id the way the CLI shows it, e.g. "wm-42".
func (t *Task) DisplayID() string {
	return fmt.Sprintf("wm-%d", t.ID)
}

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases title and collapses non-alphanumerics to single
// hyphens, trimmed, for use in a branch name.
func Slugify(title string) string {
	s := slugPattern.ReplaceAllString(strings.ToLower(title), "-")
	s = strings.Trim(s, "-")
	if len(s) > 50 {
		s = strings.TrimRight(s[:50], "-")
	}
	if s == "" {
		s = "task"
	}
	return s
}

// BranchNameFor is the canonical work-branch name for a task. The claim
// reserves it, the sandbox checks it out, and the review workflow merges
// or deletes it — all three must agree on the format, so it lives here.
func BranchNameFor(title string, id int64) string {
	return fmt.Sprintf("assistant/%s-%d", Slugify(title), id)
}

// Validate checks structural invariants that must hold for any Task, independent
// of storage. It does not check cross-row invariants (uniqueness, at-most-one
// running) — those are enforced transactionally by Store.
func (t *Task) Validate() error {
	if t.Title == "" {
		return fmt.Errorf("title is required")
	}
	if len(t.Title) > 500 {
		return fmt.Errorf("title must be 500 characters or less (got %d)", len(t.Title))
	}
	if t.Priority < 0 || t.Priority > 100 {
		return fmt.Errorf("priority must be between 0 and 100 (got %d)", t.Priority)
	}
	if !t.Status.IsValid() {
		return fmt.Errorf("invalid status: %s", t.Status)
	}
	if !t.Source.IsValid() {
		return fmt.Errorf("invalid source: %s", t.Source)
	}
	if t.RequestedModel != "" && !t.RequestedModel.IsValid() {
		return fmt.Errorf("invalid requested_model: %s", t.RequestedModel)
	}
	if t.Source != SourceManual && t.SourceRef == "" {
		return fmt.Errorf("source_ref is required for source %q", t.Source)
	}
	branchRequired := t.Status == StatusRunning || t.Status == StatusCompleted || t.Status == StatusAwaitingReview
	if branchRequired && t.BranchName == "" {
		return fmt.Errorf("branch_name is required when status is %q", t.Status)
	}
	if !branchRequired && t.BranchName != "" {
		return fmt.Errorf("branch_name must be unset when status is %q", t.Status)
	}
	return nil
}

// TaskFilter narrows ListTasks results. Zero values mean "no filter on this field".
type TaskFilter struct {
	Status Status
	Source Source
	Limit  int
}
