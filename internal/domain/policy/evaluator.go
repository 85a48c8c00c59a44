package policy

import "fmt"

// Tally counts outcomes for a step. Total is the number of effective approvers.
type Tally struct {
	Total      int
	Approved   int
	Rejected   int
	Unresolved int
}

// Count builds a Tally. Anything other than APPROVE or REJECT is unresolved.
func Count(outcomes []Outcome) Tally {
	t := Tally{Total: len(outcomes)}
	for _, o := range outcomes {
		switch o {
		case OutcomeApprove:
			t.Approved++
		case OutcomeReject:
			t.Rejected++
		default:
			t.Unresolved++
		}
	}
	return t
}

type strategy func(t Tally, required int) Verdict

var strategies = map[Policy]strategy{
	Unanimous: unanimous,
	All:       unanimous,
	Majority:  majority,
	AnyOne:    anyOne,
	Quorum:    quorum,
}

// Evaluate returns the verdict of a step given its policy and the current task outcomes
func Evaluate(p Policy, requiredApprovals int, outcomes []Outcome) (Verdict, error) {
	fn, ok := strategies[p]
	if !ok {
		return VerdictPending, fmt.Errorf("%w: %q", ErrUnknownPolicy, p)
	}
	return fn(Count(outcomes), requiredApprovals), nil
}

func unanimous(t Tally, _ int) Verdict {
	if t.Rejected > 0 {
		return VerdictRejected
	}
	if t.Unresolved == 0 && t.Approved == t.Total {
		return VerdictApproved
	}
	return VerdictPending
}

func majority(t Tally, _ int) Verdict {
	switch {
	case 2*t.Approved > t.Total:
		return VerdictApproved
	case 2*t.Rejected > t.Total:
		return VerdictRejected
	case 2*t.Approved == t.Total && 2*t.Rejected == t.Total:
		// Even split with nothing left to resolve: not a majority either way.
		return VerdictPending
	case 2*(t.Approved+t.Unresolved) <= t.Total:
		return VerdictRejected
	}
	return VerdictPending
}

func anyOne(t Tally, _ int) Verdict {
	if t.Approved >= 1 {
		return VerdictApproved
	}
	if t.Rejected == t.Total {
		return VerdictRejected
	}
	return VerdictPending
}

func quorum(t Tally, required int) Verdict {
	if t.Approved >= required {
		return VerdictApproved
	}
	if t.Rejected > t.Total-required {
		return VerdictRejected
	}
	return VerdictPending
}
