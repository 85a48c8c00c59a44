package workflow

import "context"

// StateMachine holds one entity's lifecycle position. Fire moves it along a
// configured edge or fails with ErrInvalidTransition or ErrGuardFailed.
type StateMachine interface {
	State() State
	Fire(ctx context.Context, trigger Trigger) error
}
