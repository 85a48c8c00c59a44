package port

import (
	"context"
	"time"

	"github.com/garyjia/approval-engine/internal/domain/entity"
)

// Repositories return (nil, nil) when a single record is not found.
// Update methods perform an optimistic version check and return
// workflow.ErrConflict when the stored version no longer matches.

// TemplateRepository defines persistence operations for WorkflowTemplate
type TemplateRepository interface {
	// GetByID returns the template with all steps, approvers and roles resolved, steps ordered by StepOrder
	GetByID(ctx context.Context, id string) (*entity.WorkflowTemplate, error)
	GetStep(ctx context.Context, templateID string, order int) (*entity.WorkflowStep, error)
	List(ctx context.Context) ([]*entity.WorkflowTemplate, error)
	// Create inserts the template and its steps; it never overwrites an existing template
	Create(ctx context.Context, template *entity.WorkflowTemplate) error
}

// InstanceFilter narrows instance listings
type InstanceFilter struct {
	Status string
	Limit  int
	Offset int
}

// InstanceRepository defines persistence operations for WorkflowInstance
type InstanceRepository interface {
	Create(ctx context.Context, instance *entity.WorkflowInstance) error
	GetByID(ctx context.Context, id string) (*entity.WorkflowInstance, error)
	// Update writes mutable fields and bumps Version on success
	Update(ctx context.Context, instance *entity.WorkflowInstance) error
	List(ctx context.Context, filter InstanceFilter) ([]*entity.WorkflowInstance, error)
}

// TaskCursor is a keyset position in a (due_date, id) ordered scan
type TaskCursor struct {
	DueDate time.Time
	ID      string
}

// TaskRepository defines persistence operations for ApprovalTask
type TaskRepository interface {
	CreateBatch(ctx context.Context, tasks []*entity.ApprovalTask) error
	GetByID(ctx context.Context, id string) (*entity.ApprovalTask, error)
	// Update writes mutable fields and bumps Version on success
	Update(ctx context.Context, task *entity.ApprovalTask) error
	ListByInstance(ctx context.Context, instanceID string) ([]*entity.ApprovalTask, error)
	ListByInstanceStep(ctx context.Context, instanceID, stepID string) ([]*entity.ApprovalTask, error)
	// ListByAssignee returns the user's tasks; an empty status matches every status
	ListByAssignee(ctx context.Context, assignee, status string) ([]*entity.ApprovalTask, error)
	// ListDueBefore returns up to limit tasks in status with due_date < before, ordered by (due_date, id), strictly after the cursor when given
	ListDueBefore(ctx context.Context, status string, before time.Time, after *TaskCursor, limit int) ([]*entity.ApprovalTask, error)
	// CountOpen returns the number of PENDING or OVERDUE tasks per user
	CountOpen(ctx context.Context, users []string) (map[string]int, error)
}

// HistoryRepository is the append-only audit log
type HistoryRepository interface {
	Append(ctx context.Context, entry *entity.HistoryEntry) error
	ListByInstance(ctx context.Context, instanceID string) ([]*entity.HistoryEntry, error)
}

// RoleRepository stores role memberships and serves as the default RoleDirectory
type RoleRepository interface {
	RoleDirectory
	AddMember(ctx context.Context, roleName, userID string) error
	ListMembers(ctx context.Context) ([]*entity.RoleMember, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	// WithTransaction runs fn within a transaction; repositories called with the
	// derived context join it. Nested calls reuse the outer transaction.
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
