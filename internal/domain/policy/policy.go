// Package policy maps the outcomes of a step's approval tasks to a step verdict.
//
// Evaluation is a pure function: it never touches storage and can be called after
// every single task resolution with a partial outcome set.
package policy

import "errors"

// Policy identifies how task outcomes combine into a step verdict
type Policy string

const (
	Unanimous Policy = "UNANIMOUS"
	All       Policy = "ALL"
	Majority  Policy = "MAJORITY"
	AnyOne    Policy = "ANY_ONE"
	Quorum    Policy = "QUORUM"
)

// IsValid returns true if the policy has a registered strategy
func (p Policy) IsValid() bool {
	_, ok := strategies[p]
	return ok
}

// UsesRequiredApprovals reports whether requiredApprovals is meaningful for the policy
func (p Policy) UsesRequiredApprovals() bool {
	return p == Quorum
}

func (p Policy) String() string {
	return string(p)
}

// Outcome is the resolution of a single task as seen by the evaluator
type Outcome string

const (
	OutcomeApprove    Outcome = "APPROVE"
	OutcomeReject     Outcome = "REJECT"
	OutcomeUnresolved Outcome = ""
)

// Verdict is the evaluator's decision for a step
type Verdict string

const (
	VerdictPending  Verdict = "PENDING"
	VerdictApproved Verdict = "APPROVED"
	VerdictRejected Verdict = "REJECTED"
)

// IsFinal returns true if the verdict closes the step
func (v Verdict) IsFinal() bool {
	return v == VerdictApproved || v == VerdictRejected
}

// ErrUnknownPolicy is returned when no strategy is registered for a policy tag
var ErrUnknownPolicy = errors.New("unknown approval policy")
