package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/approval-engine/internal/domain/entity"
	domainwf "github.com/garyjia/approval-engine/internal/domain/workflow"
)

// effectiveApprovers returns explicit approvers followed by the holders of each
// role in role order, without duplicates
func (e *engineImpl) effectiveApprovers(ctx context.Context, step *entity.WorkflowStep) ([]string, error) {
	seen := make(map[string]bool)
	var approvers []string
	add := func(user string) {
		if user != "" && !seen[user] {
			seen[user] = true
			approvers = append(approvers, user)
		}
	}

	for _, user := range step.Approvers {
		add(user)
	}
	for _, role := range step.Roles {
		holders, err := e.roles.CurrentRoleHolders(ctx, role)
		if err != nil {
			return nil, fmt.Errorf("resolve role %s: %w", role, err)
		}
		for _, user := range holders {
			add(user)
		}
	}
	return approvers, nil
}

// generateTasks creates one PENDING task per effective approver of the step
func (e *engineImpl) generateTasks(ctx context.Context, instance *entity.WorkflowInstance, step *entity.WorkflowStep, now time.Time) ([]*entity.ApprovalTask, error) {
	approvers, err := e.effectiveApprovers(ctx, step)
	if err != nil {
		return nil, err
	}
	if len(approvers) == 0 {
		return nil, fmt.Errorf("%w: step %d of template %s has no eligible approvers",
			domainwf.ErrConfiguration, step.StepOrder, instance.TemplateID)
	}
	if step.ApprovalPolicy.UsesRequiredApprovals() && step.RequiredApprovals > len(approvers) {
		return nil, fmt.Errorf("%w: step %d requires %d approvals but has %d approvers",
			domainwf.ErrConfiguration, step.StepOrder, step.RequiredApprovals, len(approvers))
	}

	tasks := make([]*entity.ApprovalTask, 0, len(approvers))
	for _, user := range approvers {
		tasks = append(tasks, &entity.ApprovalTask{
			ID:          uuid.NewString(),
			InstanceID:  instance.ID,
			StepID:      step.ID,
			StepOrder:   step.StepOrder,
			AssignedTo:  user,
			Status:      entity.TaskStatusPending,
			Action:      entity.ActionNone,
			CreatedDate: now,
			DueDate:     now.Add(step.SLA()),
		})
	}

	if err := e.tasks.CreateBatch(ctx, tasks); err != nil {
		return nil, fmt.Errorf("create tasks for step %d: %w", step.StepOrder, err)
	}
	return tasks, nil
}

// cancelOpenTasks moves every PENDING or OVERDUE task to CANCELLED
func (e *engineImpl) cancelOpenTasks(ctx context.Context, tasks []*entity.ApprovalTask) (int, error) {
	cancelled := 0
	for _, task := range tasks {
		if !task.IsOpen() {
			continue
		}
		machine := domainwf.NewTaskMachine(domainwf.State(task.Status), e.allowOverdueActions)
		if err := machine.Fire(ctx, domainwf.TriggerCancel); err != nil {
			return cancelled, fmt.Errorf("%w: task %s: %v", domainwf.ErrInvalidState, task.ID, err)
		}
		task.Status = machine.State().String()
		if err := e.tasks.Update(ctx, task); err != nil {
			return cancelled, err
		}
		cancelled++
	}
	return cancelled, nil
}
