package entity

// Instance status constants
const (
	InstanceStatusInProgress = "IN_PROGRESS"
	InstanceStatusApproved   = "APPROVED"
	InstanceStatusRejected   = "REJECTED"
	InstanceStatusCancelled  = "CANCELLED"
)

// Task status constants
const (
	TaskStatusPending   = "PENDING"
	TaskStatusCompleted = "COMPLETED"
	TaskStatusOverdue   = "OVERDUE"
	TaskStatusCancelled = "CANCELLED"
)

// Task action constants
const (
	ActionNone    = "NONE"
	ActionApprove = "APPROVE"
	ActionReject  = "REJECT"
)

// Step type constants. Both behave identically in the engine.
const (
	StepTypeReview   = "REVIEW"
	StepTypeApproval = "APPROVAL"
)

// Priority constants for instances
const (
	PriorityLow    = "LOW"
	PriorityNormal = "NORMAL"
	PriorityHigh   = "HIGH"
	PriorityUrgent = "URGENT"
)

// History action codes
const (
	HistoryWorkflowStarted   = "WORKFLOW_STARTED"
	HistoryTaskCompleted     = "TASK_COMPLETED"
	HistoryStepApproved      = "STEP_APPROVED"
	HistoryStepRejected      = "STEP_REJECTED"
	HistoryStepAdvanced      = "STEP_ADVANCED"
	HistoryWorkflowCompleted = "WORKFLOW_COMPLETED"
	HistoryWorkflowCancelled = "WORKFLOW_CANCELLED"
	HistoryTaskOverdue       = "TASK_OVERDUE"
	HistoryTaskEscalated     = "TASK_ESCALATED"
)

// IsValidPriority returns true for a known priority
func IsValidPriority(p string) bool {
	switch p {
	case PriorityLow, PriorityNormal, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

// IsValidTaskStatus returns true for a known task status
func IsValidTaskStatus(s string) bool {
	switch s {
	case TaskStatusPending, TaskStatusCompleted, TaskStatusOverdue, TaskStatusCancelled:
		return true
	}
	return false
}
