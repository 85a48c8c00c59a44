package workflow

import (
	"context"
	"time"

	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/policy"
)

// WorkflowEngine drives instances from creation to a terminal verdict.
// Every mutating call runs in one transaction; notifications are dispatched
// only after it commits.
type WorkflowEngine interface {
	// CreateInstance starts an instance at the template's first step and assigns its tasks
	CreateInstance(ctx context.Context, req CreateInstanceRequest) (*entity.WorkflowInstance, error)

	// SubmitTaskAction records an approver's decision and evaluates the step policy
	SubmitTaskAction(ctx context.Context, req TaskActionRequest) (*TaskActionResult, error)

	// CancelInstance closes an in-progress instance and cancels its open tasks
	CancelInstance(ctx context.Context, instanceID, actor, reason string) (*entity.WorkflowInstance, error)

	// GetInstance returns the instance with its tasks and history
	GetInstance(ctx context.Context, instanceID string) (*entity.WorkflowInstance, error)

	// ListInstances returns instances newest first
	ListInstances(ctx context.Context, status string, limit, offset int) ([]*entity.WorkflowInstance, error)

	// GetHistory returns the instance's audit trail in append order
	GetHistory(ctx context.Context, instanceID string) ([]*entity.HistoryEntry, error)

	// GetTemplate returns a fully materialized template
	GetTemplate(ctx context.Context, templateID string) (*entity.WorkflowTemplate, error)

	// ListTasksForAssignee returns the user's tasks, optionally filtered by status
	ListTasksForAssignee(ctx context.Context, user, status string) ([]*entity.ApprovalTask, error)
}

// CreateInstanceRequest carries the inputs of CreateInstance
type CreateInstanceRequest struct {
	TemplateID  string     `json:"template_id"`
	DocumentRef string     `json:"document_ref"`
	Initiator   string     `json:"initiator"`
	Priority    string     `json:"priority,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	Comments    string     `json:"comments,omitempty"`
}

// TaskActionRequest carries an approver's decision
type TaskActionRequest struct {
	TaskID   string `json:"task_id"`
	Actor    string `json:"actor"`
	Action   string `json:"action"`
	Comments string `json:"comments,omitempty"`
}

// TaskActionResult reports the completed task and the state of its instance
type TaskActionResult struct {
	Task     *entity.ApprovalTask     `json:"task"`
	Instance *entity.WorkflowInstance `json:"instance"`
	// Verdict is the step verdict computed after the action
	Verdict policy.Verdict `json:"verdict"`
	// Assigned holds the tasks created when the instance advanced
	Assigned []*entity.ApprovalTask `json:"assigned,omitempty"`
}
