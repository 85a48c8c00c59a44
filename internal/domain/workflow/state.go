package workflow

// State represents a lifecycle state of an instance or a task
type State string

// Instance states
const (
	StateInProgress State = "IN_PROGRESS"
	StateApproved   State = "APPROVED"
	StateRejected   State = "REJECTED"
	StateCancelled  State = "CANCELLED"
)

// Task states. CANCELLED is shared with instances.
const (
	StatePending   State = "PENDING"
	StateOverdue   State = "OVERDUE"
	StateCompleted State = "COMPLETED"
)

// StateSet is the closed set of states a machine may use
type StateSet map[State]bool

// InstanceStates are the states of a workflow instance
var InstanceStates = StateSet{
	StateInProgress: true,
	StateApproved:   true,
	StateRejected:   true,
	StateCancelled:  true,
}

// TaskStates are the states of an approval task
var TaskStates = StateSet{
	StatePending:   true,
	StateOverdue:   true,
	StateCompleted: true,
	StateCancelled: true,
}

var terminalStates = map[State]bool{
	StateApproved:  true,
	StateRejected:  true,
	StateCancelled: true,
	StateCompleted: true,
}

// Contains returns true if s belongs to the set
func (set StateSet) Contains(s State) bool {
	return set[s]
}

// IsTerminal returns true if no further transitions are allowed from the state
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state belongs to the instance or task lifecycle
func (s State) IsValid() bool {
	return InstanceStates[s] || TaskStates[s]
}
