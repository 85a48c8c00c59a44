package entity

import "time"

// HistoryEntry is an append-only audit record of a state change.
// PerformedBy is nil for entries written by the scheduler.
type HistoryEntry struct {
	ID          string    `json:"id" db:"id"`
	Seq         int64     `json:"-" db:"seq"`
	InstanceID  string    `json:"instance_id" db:"instance_id"`
	TaskID      *string   `json:"task_id,omitempty" db:"task_id"`
	ActionCode  string    `json:"action_code" db:"action_code"`
	Details     string    `json:"details" db:"details"`
	PerformedBy *string   `json:"performed_by,omitempty" db:"performed_by"`
	ActionDate  time.Time `json:"action_date" db:"action_date"`
}

// IsSystem returns true for entries without a human performer
func (h *HistoryEntry) IsSystem() bool {
	return h.PerformedBy == nil
}
