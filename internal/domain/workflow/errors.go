package workflow

import "errors"

var (
	// ErrInvalidTransition is returned when a state transition is not allowed
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrGuardFailed is returned when a guard condition fails
	ErrGuardFailed = errors.New("guard condition failed")
)

// Engine error taxonomy. Callers classify with errors.Is.
var (
	// ErrNotFound is returned when a template, step, instance or task does not exist
	ErrNotFound = errors.New("not found")

	// ErrConfiguration is returned for malformed templates or steps
	ErrConfiguration = errors.New("configuration error")

	// ErrInvalidState is returned for an action on a closed task or a terminal instance
	ErrInvalidState = errors.New("invalid state")

	// ErrAuthorization is returned when the actor may not act on the task
	ErrAuthorization = errors.New("not authorized")

	// ErrConflict is returned when a concurrent change won the optimistic version check
	ErrConflict = errors.New("concurrent modification")

	// ErrInvalidArgument is returned for malformed requests
	ErrInvalidArgument = errors.New("invalid argument")
)
