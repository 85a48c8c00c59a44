package lark

import (
	"context"
	"fmt"
	"time"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/entity"
)

// Notifier delivers task notifications as Lark text messages
type Notifier struct {
	messenger *Messenger
}

// NewNotifier creates a Lark-backed notifier
func NewNotifier(messenger *Messenger) *Notifier {
	return &Notifier{messenger: messenger}
}

func (n *Notifier) NotifyTaskAssigned(ctx context.Context, user string, task *entity.ApprovalTask) error {
	return n.messenger.SendText(ctx, user, fmt.Sprintf(
		"New approval task %s on step %d of instance %s.\nDue: %s",
		task.ID, task.StepOrder, task.InstanceID, task.DueDate.Format(time.RFC1123)))
}

func (n *Notifier) NotifyTaskOverdue(ctx context.Context, user string, task *entity.ApprovalTask) error {
	return n.messenger.SendText(ctx, user, fmt.Sprintf(
		"Approval task %s on instance %s is overdue since %s. It will be escalated if left unresolved.",
		task.ID, task.InstanceID, task.DueDate.Format(time.RFC1123)))
}

func (n *Notifier) NotifyTaskEscalated(ctx context.Context, user string, task *entity.ApprovalTask) error {
	return n.messenger.SendText(ctx, user, fmt.Sprintf(
		"Approval task %s on instance %s was reassigned to %s after its deadline passed.",
		task.ID, task.InstanceID, task.AssignedTo))
}

var _ port.Notifier = (*Notifier)(nil)
