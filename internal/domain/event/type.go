package event

// Type identifies the type of domain event
type Type string

const (
	TypeTaskAssigned      Type = "task.assigned"
	TypeTaskOverdue       Type = "task.overdue"
	TypeTaskEscalated     Type = "task.escalated"
	TypeInstanceStarted   Type = "instance.started"
	TypeInstanceCompleted Type = "instance.completed"
	TypeInstanceCancelled Type = "instance.cancelled"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeTaskAssigned,
		TypeTaskOverdue,
		TypeTaskEscalated,
		TypeInstanceStarted,
		TypeInstanceCompleted,
		TypeInstanceCancelled:
		return true
	default:
		return false
	}
}
