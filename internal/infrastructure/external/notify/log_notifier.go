// Package notify holds the built-in notification and authorization adapters
// used when no external collaborator is configured.
package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/entity"
)

// LogNotifier writes notifications to the structured log
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a notifier that only logs
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.Named("notify")}
}

func (n *LogNotifier) NotifyTaskAssigned(ctx context.Context, user string, task *entity.ApprovalTask) error {
	n.log("task assigned", user, task)
	return nil
}

func (n *LogNotifier) NotifyTaskOverdue(ctx context.Context, user string, task *entity.ApprovalTask) error {
	n.log("task overdue", user, task)
	return nil
}

func (n *LogNotifier) NotifyTaskEscalated(ctx context.Context, user string, task *entity.ApprovalTask) error {
	n.log("task escalated", user, task)
	return nil
}

func (n *LogNotifier) log(msg, user string, task *entity.ApprovalTask) {
	n.logger.Info(msg,
		zap.String("user", user),
		zap.String("task_id", task.ID),
		zap.String("instance_id", task.InstanceID),
		zap.Int("step_order", task.StepOrder),
		zap.Time("due_date", task.DueDate))
}

var _ port.Notifier = (*LogNotifier)(nil)
