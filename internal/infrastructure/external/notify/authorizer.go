package notify

import (
	"context"
	"fmt"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/entity"
)

// RoleAuthorizer re-checks eligibility at decision time. An assignee may act
// while they are an explicit approver of the step or still hold one of its
// roles or the escalation role. Steps without roles accept any assignee.
type RoleAuthorizer struct {
	instances      port.InstanceRepository
	templates      port.TemplateRepository
	roles          port.RoleDirectory
	escalationRole string
}

// NewRoleAuthorizer creates a role membership authorizer
func NewRoleAuthorizer(instances port.InstanceRepository, templates port.TemplateRepository, roles port.RoleDirectory, escalationRole string) *RoleAuthorizer {
	return &RoleAuthorizer{
		instances:      instances,
		templates:      templates,
		roles:          roles,
		escalationRole: escalationRole,
	}
}

// CanActOnTask reports whether actor is still entitled to decide the task
func (a *RoleAuthorizer) CanActOnTask(ctx context.Context, actor string, task *entity.ApprovalTask) (bool, error) {
	instance, err := a.instances.GetByID(ctx, task.InstanceID)
	if err != nil {
		return false, err
	}
	if instance == nil {
		return false, fmt.Errorf("instance %s not found", task.InstanceID)
	}
	step, err := a.templates.GetStep(ctx, instance.TemplateID, task.StepOrder)
	if err != nil {
		return false, err
	}
	if step == nil {
		return false, fmt.Errorf("step %d of template %s not found", task.StepOrder, instance.TemplateID)
	}

	if len(step.Roles) == 0 {
		return true, nil
	}
	for _, user := range step.Approvers {
		if user == actor {
			return true, nil
		}
	}

	roles := step.Roles
	if a.escalationRole != "" {
		roles = append(append([]string(nil), roles...), a.escalationRole)
	}
	for _, role := range roles {
		holders, err := a.roles.CurrentRoleHolders(ctx, role)
		if err != nil {
			return false, fmt.Errorf("resolve role %s: %w", role, err)
		}
		for _, user := range holders {
			if user == actor {
				return true, nil
			}
		}
	}
	return false, nil
}

var _ port.Authorizer = (*RoleAuthorizer)(nil)
