package entity

import (
	"time"

	"github.com/garyjia/approval-engine/internal/domain/policy"
)

// WorkflowTemplate is an approval workflow definition.
// It is loaded fully materialized with its steps sorted by StepOrder and is
// never modified once an instance references it.
type WorkflowTemplate struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`

	Steps []*WorkflowStep `json:"steps" db:"-"`
}

// WorkflowStep is one stage of a template's approval sequence
type WorkflowStep struct {
	ID                string        `json:"id" db:"id"`
	TemplateID        string        `json:"template_id" db:"template_id"`
	StepOrder         int           `json:"step_order" db:"step_order"`
	Name              string        `json:"name" db:"name"`
	StepType          string        `json:"step_type" db:"step_type"`
	ApprovalPolicy    policy.Policy `json:"approval_policy" db:"approval_policy"`
	RequiredApprovals int           `json:"required_approvals" db:"required_approvals"`
	SLAHours          int           `json:"sla_hours" db:"sla_hours"`

	// Explicit approvers (user ids) and required roles; effective approvers are the union.
	Approvers []string `json:"approvers,omitempty" db:"-"`
	Roles     []string `json:"roles,omitempty" db:"-"`
}

// SLA returns the time allowed for a task of this step
func (s *WorkflowStep) SLA() time.Duration {
	return time.Duration(s.SLAHours) * time.Hour
}

// Step returns the step with the given order, or nil
func (t *WorkflowTemplate) Step(order int) *WorkflowStep {
	for _, s := range t.Steps {
		if s.StepOrder == order {
			return s
		}
	}
	return nil
}

// FirstStep returns the lowest-ordered step, or nil for an empty template
func (t *WorkflowTemplate) FirstStep() *WorkflowStep {
	if len(t.Steps) == 0 {
		return nil
	}
	return t.Steps[0]
}

// NextStep returns the step following order, or nil if order is the last step
func (t *WorkflowTemplate) NextStep(order int) *WorkflowStep {
	for i, s := range t.Steps {
		if s.StepOrder == order && i+1 < len(t.Steps) {
			return t.Steps[i+1]
		}
	}
	return nil
}

// IsLastStep reports whether order is the final step of the template
func (t *WorkflowTemplate) IsLastStep(order int) bool {
	return len(t.Steps) > 0 && t.Steps[len(t.Steps)-1].StepOrder == order
}
