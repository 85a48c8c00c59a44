package port

import (
	"context"

	"github.com/garyjia/approval-engine/internal/domain/entity"
)

// Authorizer is the external capability check consulted before a task action
type Authorizer interface {
	CanActOnTask(ctx context.Context, actor string, task *entity.ApprovalTask) (bool, error)
}

// RoleDirectory resolves role names to the users currently holding them
type RoleDirectory interface {
	CurrentRoleHolders(ctx context.Context, roleName string) ([]string, error)
}

// Notifier delivers best-effort notifications. Failures are logged, never propagated
// into the state transition that triggered them.
type Notifier interface {
	NotifyTaskAssigned(ctx context.Context, user string, task *entity.ApprovalTask) error
	NotifyTaskOverdue(ctx context.Context, user string, task *entity.ApprovalTask) error
	// NotifyTaskEscalated informs the previous assignee that the task was reassigned
	NotifyTaskEscalated(ctx context.Context, user string, task *entity.ApprovalTask) error
}
