package entity

import (
	"time"

	"github.com/garyjia/approval-engine/internal/domain/policy"
)

// ApprovalTask is one approver's unit of work for a step within an instance.
// Action is NONE until the task is COMPLETED; unresolved tasks are CANCELLED,
// never deleted, when their step reaches a verdict.
type ApprovalTask struct {
	ID            string     `json:"id" db:"id"`
	InstanceID    string     `json:"instance_id" db:"instance_id"`
	StepID        string     `json:"step_id" db:"step_id"`
	StepOrder     int        `json:"step_order" db:"step_order"`
	AssignedTo    string     `json:"assigned_to" db:"assigned_to"`
	Status        string     `json:"status" db:"status"`
	Action        string     `json:"action" db:"action"`
	CreatedDate   time.Time  `json:"created_date" db:"created_date"`
	DueDate       time.Time  `json:"due_date" db:"due_date"`
	CompletedDate *time.Time `json:"completed_date,omitempty" db:"completed_date"`
	Comments      string     `json:"comments,omitempty" db:"comments"`
	Version       int64      `json:"version" db:"version"`
}

// IsOpen returns true while the task still awaits a decision
func (t *ApprovalTask) IsOpen() bool {
	return t.Status == TaskStatusPending || t.Status == TaskStatusOverdue
}

// Outcome converts the task into the evaluator's view of it
func (t *ApprovalTask) Outcome() policy.Outcome {
	if t.Status != TaskStatusCompleted {
		return policy.OutcomeUnresolved
	}
	switch t.Action {
	case ActionApprove:
		return policy.OutcomeApprove
	case ActionReject:
		return policy.OutcomeReject
	}
	return policy.OutcomeUnresolved
}

// Outcomes maps tasks to evaluator outcomes preserving order
func Outcomes(tasks []*ApprovalTask) []policy.Outcome {
	result := make([]policy.Outcome, 0, len(tasks))
	for _, t := range tasks {
		result = append(result, t.Outcome())
	}
	return result
}
