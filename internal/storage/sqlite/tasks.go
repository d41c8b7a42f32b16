package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/4beshinji/wise-magpie/internal/types"
)

// CreateTask inserts a new task and assigns its ID.
func (s *Store) CreateTask(ctx context.Context, task *types.Task) error {
	if err := task.Validate(); err != nil {
		return fmt.Errorf("sqlite: validate task: %w", err)
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (
			title, description, source, source_ref, requested_model, priority,
			status, work_dir, branch_name, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, task.Title, task.Description, task.Source, nullableString(task.SourceRef),
		task.RequestedModel, task.Priority, task.Status, task.WorkDir,
		nullableString(task.BranchName), task.CreatedAt)
	if err != nil {
		return fmt.Errorf("sqlite: insert task: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("sqlite: get inserted task id: %w", err)
	}
	task.ID = id
	return nil
}

// CreateTaskIfNotExists inserts task unless a row with the same (source,
// source_ref) already exists, relying on the partial unique index. It
// reports whether the row was actually created so task sources can scan
// idempotently without a separate existence check racing the insert.
func (s *Store) CreateTaskIfNotExists(ctx context.Context, task *types.Task) (bool, error) {
	if err := task.Validate(); err != nil {
		return false, fmt.Errorf("sqlite: validate task: %w", err)
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO tasks (
			title, description, source, source_ref, requested_model, priority,
			status, work_dir, branch_name, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, task.Title, task.Description, task.Source, nullableString(task.SourceRef),
		task.RequestedModel, task.Priority, task.Status, task.WorkDir,
		nullableString(task.BranchName), task.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("sqlite: insert task: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if affected == 0 {
		return false, nil
	}

	id, err := res.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("sqlite: get inserted task id: %w", err)
	}
	task.ID = id
	return true, nil
}

const taskColumns = `
	id, title, description, source, source_ref, requested_model, priority,
	status, work_dir, branch_name, created_at, started_at, finished_at,
	actual_cost_usd, actual_tokens, result_summary, retry_count, model_used
`

func scanTask(row interface{ Scan(...interface{}) error }) (*types.Task, error) {
	var t types.Task
	var description, sourceRef, workDir, branchName, resultSummary, modelUsed sql.NullString
	var requestedModel sql.NullString
	var startedAt, finishedAt sql.NullTime

	err := row.Scan(
		&t.ID, &t.Title, &description, &t.Source, &sourceRef, &requestedModel,
		&t.Priority, &t.Status, &workDir, &branchName, &t.CreatedAt, &startedAt,
		&finishedAt, &t.ActualCostUSD, &t.ActualTokens, &resultSummary,
		&t.RetryCount, &modelUsed,
	)
	if err != nil {
		return nil, err
	}

	t.Description = description.String
	t.SourceRef = sourceRef.String
	t.WorkDir = workDir.String
	t.BranchName = branchName.String
	t.ResultSummary = resultSummary.String
	t.RequestedModel = types.Model(requestedModel.String)
	t.ModelUsed = types.Model(modelUsed.String)
	if startedAt.Valid {
		t.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		t.FinishedAt = &finishedAt.Time
	}
	return &t, nil
}

// GetTask retrieves a task by id. It returns (nil, nil) if no such task exists.
func (s *Store) GetTask(ctx context.Context, id int64) (*types.Task, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+taskColumns+" FROM tasks WHERE id = ?", id)
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: get task: %w", err)
	}
	return task, nil
}

// ListTasks returns tasks matching filter, newest first.
func (s *Store) ListTasks(ctx context.Context, filter types.TaskFilter) ([]*types.Task, error) {
	var where []string
	var args []interface{}

	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Source != "" {
		where = append(where, "source = ?")
		args = append(args, filter.Source)
	}

	whereSQL := ""
	if len(where) > 0 {
		whereSQL = "WHERE " + strings.Join(where, " AND ")
	}
	limitSQL := ""
	if filter.Limit > 0 {
		limitSQL = fmt.Sprintf(" LIMIT %d", filter.Limit)
	}

	query := fmt.Sprintf("SELECT %s FROM tasks %s ORDER BY created_at DESC%s", taskColumns, whereSQL, limitSQL)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*types.Task
	for rows.Next() {
		task, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}

// ClaimNextPending atomically selects the highest-priority pending task
// (oldest first on ties) and marks it running, enforcing the at-most-one
// running task invariant. It returns (nil, nil) if the queue is empty.
// The work branch name is reserved in the same transaction: a running
// task is never observable with an empty branch_name, even while the
// executor is still setting up its worktree.
//
// Uses a dedicated connection with BEGIN IMMEDIATE so the claim is
// serialized against any other writer.
func (s *Store) ClaimNextPending(ctx context.Context) (*types.Task, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlite: acquire connection: %w", err)
	}
	defer conn.Close()

	if _, err := conn.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		return nil, fmt.Errorf("sqlite: begin immediate: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_, _ = conn.ExecContext(context.Background(), "ROLLBACK")
		}
	}()

	var running int
	if err := conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM tasks WHERE status = ?", types.StatusRunning).Scan(&running); err != nil {
		return nil, fmt.Errorf("sqlite: count running tasks: %w", err)
	}
	if running > 0 {
		return nil, nil
	}

	row := conn.QueryRowContext(ctx, `
		SELECT `+taskColumns+` FROM tasks
		WHERE status = ?
		ORDER BY priority DESC, created_at ASC
		LIMIT 1
	`, types.StatusPending)
	task, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlite: select next pending task: %w", err)
	}

	now := time.Now()
	branch := types.BranchNameFor(task.Title, task.ID)
	if _, err := conn.ExecContext(ctx, `
		UPDATE tasks SET status = ?, started_at = ?, branch_name = ? WHERE id = ?
	`, types.StatusRunning, now, branch, task.ID); err != nil {
		return nil, fmt.Errorf("sqlite: mark task running: %w", err)
	}

	if _, err := conn.ExecContext(ctx, "COMMIT"); err != nil {
		return nil, fmt.Errorf("sqlite: commit claim: %w", err)
	}
	committed = true

	task.Status = types.StatusRunning
	task.StartedAt = &now
	task.BranchName = branch
	return task, nil
}

// StartTask records the worktree and branch assigned to a running task.
func (s *Store) StartTask(ctx context.Context, id int64, branchName, workDir string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET branch_name = ?, work_dir = ? WHERE id = ?
	`, branchName, workDir, id)
	if err != nil {
		return fmt.Errorf("sqlite: start task: %w", err)
	}
	return nil
}

// FinishTask records the terminal outcome of a task. branch_name is kept
// only for statuses that still have a reviewable branch (completed,
// awaiting_review); failed, merged, and rejected tasks have it cleared.
func (s *Store) FinishTask(ctx context.Context, id int64, status types.Status, resultSummary string, costUSD float64, tokens int64, modelUsed types.Model) error {
	keepBranch := status == types.StatusCompleted || status == types.StatusAwaitingReview
	_, err := s.db.ExecContext(ctx, `
		UPDATE tasks
		SET status = ?, finished_at = ?, result_summary = ?, actual_cost_usd = actual_cost_usd + ?,
		    actual_tokens = actual_tokens + ?, model_used = ?,
		    branch_name = CASE WHEN ? THEN branch_name ELSE NULL END
		WHERE id = ?
	`, status, time.Now(), resultSummary, costUSD, tokens, modelUsed, keepBranch, id)
	if err != nil {
		return fmt.Errorf("sqlite: finish task: %w", err)
	}
	return nil
}

// IncrementRetryCount bumps a task's retry counter, used when a task's run
// ends in failure.
func (s *Store) IncrementRetryCount(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `UPDATE tasks SET retry_count = retry_count + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: increment retry count: %w", err)
	}
	return nil
}

// ReturnToPending reverts a just-claimed task back to pending without
// touching retry_count, used when a claimed task cannot be dispatched this
// tick (no model tier admitted, budget rejected, quota reservation or
// default-branch lookup failed, or the executor failed to start) — the
// task was claimed before any of that was known, so it must be given back
// rather than left running.
func (s *Store) ReturnToPending(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET status = ?, started_at = NULL, branch_name = NULL WHERE id = ? AND status = ?
	`, types.StatusPending, id, types.StatusRunning)
	if err != nil {
		return fmt.Errorf("sqlite: return task to pending: %w", err)
	}
	return nil
}

// SweepOrphanRunning moves any task left in "running" back to "pending",
// called once at daemon startup to recover from a crash mid-execution.
func (s *Store) SweepOrphanRunning(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET status = ?, started_at = NULL, branch_name = NULL WHERE status = ?
	`, types.StatusPending, types.StatusRunning)
	if err != nil {
		return 0, fmt.Errorf("sqlite: sweep orphan running tasks: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: rows affected: %w", err)
	}
	return int(n), nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
