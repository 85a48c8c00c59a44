package workflow

import (
	"fmt"

	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/policy"
	domainwf "github.com/garyjia/approval-engine/internal/domain/workflow"
)

// validateTemplate checks that a template can start an instance
func validateTemplate(tpl *entity.WorkflowTemplate) error {
	if !tpl.IsActive {
		return fmt.Errorf("%w: template %s is inactive", domainwf.ErrConfiguration, tpl.ID)
	}
	if len(tpl.Steps) == 0 {
		return fmt.Errorf("%w: template %s has no steps", domainwf.ErrConfiguration, tpl.ID)
	}

	for i, step := range tpl.Steps {
		if step.StepOrder < 1 || (i > 0 && step.StepOrder != tpl.Steps[i-1].StepOrder+1) {
			return fmt.Errorf("%w: template %s step orders are not contiguous at %d",
				domainwf.ErrConfiguration, tpl.ID, step.StepOrder)
		}
		if err := validateStep(step); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(step *entity.WorkflowStep) error {
	switch {
	case !step.ApprovalPolicy.IsValid():
		return fmt.Errorf("%w: step %d: %v %q", domainwf.ErrConfiguration, step.StepOrder, policy.ErrUnknownPolicy, step.ApprovalPolicy)
	case step.StepType != entity.StepTypeReview && step.StepType != entity.StepTypeApproval:
		return fmt.Errorf("%w: step %d: unknown step type %q", domainwf.ErrConfiguration, step.StepOrder, step.StepType)
	case step.SLAHours <= 0:
		return fmt.Errorf("%w: step %d: sla hours must be positive", domainwf.ErrConfiguration, step.StepOrder)
	case step.ApprovalPolicy.UsesRequiredApprovals() && step.RequiredApprovals < 1:
		return fmt.Errorf("%w: step %d: quorum requires at least one approval", domainwf.ErrConfiguration, step.StepOrder)
	case len(step.Roles) > 0:
		// role holders are resolved when the step is reached
		return nil
	}

	explicit := distinctApprovers(step.Approvers)
	if explicit == 0 {
		return fmt.Errorf("%w: step %d has neither approvers nor roles", domainwf.ErrConfiguration, step.StepOrder)
	}
	if step.ApprovalPolicy.UsesRequiredApprovals() && step.RequiredApprovals > explicit {
		return fmt.Errorf("%w: step %d requires %d approvals but has %d approvers",
			domainwf.ErrConfiguration, step.StepOrder, step.RequiredApprovals, explicit)
	}
	return nil
}

func distinctApprovers(users []string) int {
	seen := make(map[string]bool, len(users))
	for _, u := range users {
		if u != "" {
			seen[u] = true
		}
	}
	return len(seen)
}
