package workflow

import "context"

var instanceLifecycle = func() StateMachineBuilder {
	b := NewBuilder(InstanceStates)
	b.Configure(StateInProgress).
		Permit(TriggerAdvance, StateInProgress).
		Permit(TriggerApprove, StateApproved).
		Permit(TriggerReject, StateRejected).
		Permit(TriggerCancel, StateCancelled)
	return b
}()

// NewInstanceMachine returns a machine positioned at the instance's current state.
// Terminal states have no configured transitions.
func NewInstanceMachine(current State) StateMachine {
	return instanceLifecycle.Build(current)
}

// NewTaskMachine returns a machine positioned at the task's current state.
// Completing an OVERDUE task is permitted only when allowOverdueCompletion is set.
func NewTaskMachine(current State, allowOverdueCompletion bool) StateMachine {
	b := NewBuilder(TaskStates)
	b.Configure(StatePending).
		Permit(TriggerComplete, StateCompleted).
		Permit(TriggerMarkOverdue, StateOverdue).
		Permit(TriggerCancel, StateCancelled)
	b.Configure(StateOverdue).
		PermitIf(TriggerComplete, StateCompleted, func(context.Context) bool {
			return allowOverdueCompletion
		}).
		Permit(TriggerEscalate, StateOverdue).
		Permit(TriggerCancel, StateCancelled)
	return b.Build(current)
}
