package workflow

// Trigger represents an event that can cause a state transition
type Trigger string

// Instance triggers
const (
	TriggerAdvance Trigger = "ADVANCE"
	TriggerApprove Trigger = "APPROVE"
	TriggerReject  Trigger = "REJECT"
	TriggerCancel  Trigger = "CANCEL"
)

// Task triggers. TriggerCancel also applies to tasks.
const (
	TriggerComplete    Trigger = "COMPLETE"
	TriggerMarkOverdue Trigger = "MARK_OVERDUE"
	TriggerEscalate    Trigger = "ESCALATE"
)

// String returns the string representation of the trigger
func (t Trigger) String() string {
	return string(t)
}
