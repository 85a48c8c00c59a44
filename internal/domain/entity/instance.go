package entity

import "time"

// WorkflowInstance is one running execution of a template against a document.
// Version is incremented on every write and guards concurrent updates.
type WorkflowInstance struct {
	ID               string     `json:"id" db:"id"`
	TemplateID       string     `json:"template_id" db:"template_id"`
	DocumentRef      string     `json:"document_ref" db:"document_ref"`
	Initiator        string     `json:"initiator" db:"initiator"`
	Status           string     `json:"status" db:"status"`
	CurrentStepOrder int        `json:"current_step_order" db:"current_step_order"`
	StartDate        time.Time  `json:"start_date" db:"start_date"`
	DueDate          *time.Time `json:"due_date,omitempty" db:"due_date"`
	EndDate          *time.Time `json:"end_date,omitempty" db:"end_date"`
	Priority         string     `json:"priority" db:"priority"`
	Comments         string     `json:"comments,omitempty" db:"comments"`
	Version          int64      `json:"version" db:"version"`

	// Populated by read paths that load the full aggregate
	Tasks   []*ApprovalTask `json:"tasks,omitempty" db:"-"`
	History []*HistoryEntry `json:"history,omitempty" db:"-"`
}

// IsTerminal returns true once the instance can no longer change
func (i *WorkflowInstance) IsTerminal() bool {
	switch i.Status {
	case InstanceStatusApproved, InstanceStatusRejected, InstanceStatusCancelled:
		return true
	}
	return false
}
