package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/infrastructure/persistence/sqlite"
)

const taskColumns = `id, instance_id, step_id, step_order, assigned_to, status, action,
	created_date, due_date, completed_date, comments, version`

// TaskRepository implements port.TaskRepository
type TaskRepository struct {
	db     *sqlite.DB
	logger *zap.Logger
}

// NewTaskRepository creates a new task repository
func NewTaskRepository(db *sqlite.DB, logger *zap.Logger) port.TaskRepository {
	return &TaskRepository{
		db:     db,
		logger: logger,
	}
}

// CreateBatch inserts tasks at version 1
func (r *TaskRepository) CreateBatch(ctx context.Context, tasks []*entity.ApprovalTask) error {
	exec := r.db.Executor(ctx)

	for _, task := range tasks {
		task.Version = 1
		_, err := exec.ExecContext(ctx, `
			INSERT INTO workflow_tasks (`+taskColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			task.ID,
			task.InstanceID,
			task.StepID,
			task.StepOrder,
			task.AssignedTo,
			task.Status,
			task.Action,
			utc(task.CreatedDate),
			utc(task.DueDate),
			utcPtr(task.CompletedDate),
			task.Comments,
			task.Version,
		)
		if err != nil {
			r.logger.Error("Failed to create task",
				zap.String("task_id", task.ID),
				zap.String("instance_id", task.InstanceID),
				zap.Error(err))
			return fmt.Errorf("failed to create task: %w", err)
		}
	}
	return nil
}

// GetByID retrieves a task by ID
func (r *TaskRepository) GetByID(ctx context.Context, id string) (*entity.ApprovalTask, error) {
	var task entity.ApprovalTask
	err := sqlx.GetContext(ctx, r.db.Executor(ctx), &task,
		`SELECT `+taskColumns+` FROM workflow_tasks WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get task by ID", zap.String("task_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return &task, nil
}

// Update writes the mutable fields if the stored version still matches
func (r *TaskRepository) Update(ctx context.Context, task *entity.ApprovalTask) error {
	result, err := r.db.Executor(ctx).ExecContext(ctx, `
		UPDATE workflow_tasks
		SET assigned_to = ?, status = ?, action = ?, due_date = ?,
			completed_date = ?, comments = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		task.AssignedTo,
		task.Status,
		task.Action,
		utc(task.DueDate),
		utcPtr(task.CompletedDate),
		task.Comments,
		task.ID,
		task.Version,
	)
	if err != nil {
		r.logger.Error("Failed to update task", zap.String("task_id", task.ID), zap.Error(err))
		return fmt.Errorf("failed to update task: %w", err)
	}

	if err := checkVersionedUpdate(result, "task", task.ID, task.Version); err != nil {
		return err
	}
	task.Version++
	return nil
}

// ListByInstance returns an instance's tasks in creation order
func (r *TaskRepository) ListByInstance(ctx context.Context, instanceID string) ([]*entity.ApprovalTask, error) {
	return r.selectTasks(ctx, `SELECT `+taskColumns+` FROM workflow_tasks
		WHERE instance_id = ? ORDER BY step_order, created_date, rowid`, instanceID)
}

// ListByInstanceStep returns the tasks generated for one step of an instance
func (r *TaskRepository) ListByInstanceStep(ctx context.Context, instanceID, stepID string) ([]*entity.ApprovalTask, error) {
	return r.selectTasks(ctx, `SELECT `+taskColumns+` FROM workflow_tasks
		WHERE instance_id = ? AND step_id = ? ORDER BY rowid`, instanceID, stepID)
}

// ListByAssignee returns a user's tasks, soonest due first
func (r *TaskRepository) ListByAssignee(ctx context.Context, assignee, status string) ([]*entity.ApprovalTask, error) {
	if status == "" {
		return r.selectTasks(ctx, `SELECT `+taskColumns+` FROM workflow_tasks
			WHERE assigned_to = ? ORDER BY due_date, id`, assignee)
	}
	return r.selectTasks(ctx, `SELECT `+taskColumns+` FROM workflow_tasks
		WHERE assigned_to = ? AND status = ? ORDER BY due_date, id`, assignee, status)
}

// ListDueBefore returns one keyset page of tasks in status due before the given time
func (r *TaskRepository) ListDueBefore(ctx context.Context, status string, before time.Time, after *port.TaskCursor, limit int) ([]*entity.ApprovalTask, error) {
	if after == nil {
		return r.selectTasks(ctx, `SELECT `+taskColumns+` FROM workflow_tasks
			WHERE status = ? AND due_date < ?
			ORDER BY due_date, id LIMIT ?`, status, utc(before), limit)
	}

	cursorDue := utc(after.DueDate)
	return r.selectTasks(ctx, `SELECT `+taskColumns+` FROM workflow_tasks
		WHERE status = ? AND due_date < ? AND (due_date > ? OR (due_date = ? AND id > ?))
		ORDER BY due_date, id LIMIT ?`, status, utc(before), cursorDue, cursorDue, after.ID, limit)
}

// CountOpen returns PENDING plus OVERDUE task counts for each user that has any
func (r *TaskRepository) CountOpen(ctx context.Context, users []string) (map[string]int, error) {
	counts := make(map[string]int, len(users))
	if len(users) == 0 {
		return counts, nil
	}

	query, args, err := sqlx.In(`SELECT assigned_to, COUNT(*) AS open_tasks FROM workflow_tasks
		WHERE status IN (?, ?) AND assigned_to IN (?) GROUP BY assigned_to`,
		entity.TaskStatusPending, entity.TaskStatusOverdue, users)
	if err != nil {
		return nil, fmt.Errorf("failed to build open task count query: %w", err)
	}

	exec := r.db.Executor(ctx)
	var rows []struct {
		AssignedTo string `db:"assigned_to"`
		OpenTasks  int    `db:"open_tasks"`
	}
	if err := sqlx.SelectContext(ctx, exec, &rows, exec.Rebind(query), args...); err != nil {
		r.logger.Error("Failed to count open tasks", zap.Error(err))
		return nil, fmt.Errorf("failed to count open tasks: %w", err)
	}

	for _, row := range rows {
		counts[row.AssignedTo] = row.OpenTasks
	}
	return counts, nil
}

func (r *TaskRepository) selectTasks(ctx context.Context, query string, args ...interface{}) ([]*entity.ApprovalTask, error) {
	var tasks []*entity.ApprovalTask
	if err := sqlx.SelectContext(ctx, r.db.Executor(ctx), &tasks, query, args...); err != nil {
		r.logger.Error("Failed to list tasks", zap.Error(err))
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}
	return tasks, nil
}

// Verify interface compliance
var _ port.TaskRepository = (*TaskRepository)(nil)
