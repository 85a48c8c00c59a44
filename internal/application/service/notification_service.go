package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/approval-engine/internal/application/dispatcher"
	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/event"
)

// Notification kinds reported to metrics
const (
	KindTaskAssigned  = "task_assigned"
	KindTaskOverdue   = "task_overdue"
	KindTaskEscalated = "task_escalated"
)

// NotificationService turns committed task events into notifier calls.
// It runs on the dispatcher's async path, so a failed delivery is logged and
// never affects the state change that produced the event.
type NotificationService interface {
	// Register subscribes the service to the task events it handles
	Register(d dispatcher.Dispatcher)

	HandleTaskAssigned(ctx context.Context, evt *event.Event) error
	HandleTaskOverdue(ctx context.Context, evt *event.Event) error
	HandleTaskEscalated(ctx context.Context, evt *event.Event) error
}

type notificationServiceImpl struct {
	notifier port.Notifier
	metrics  port.Metrics
	logger   *zap.Logger
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(notifier port.Notifier, metrics port.Metrics, logger *zap.Logger) NotificationService {
	if metrics == nil {
		metrics = port.NopMetrics{}
	}
	return &notificationServiceImpl{
		notifier: notifier,
		metrics:  metrics,
		logger:   logger,
	}
}

// Register subscribes to task events
func (s *notificationServiceImpl) Register(d dispatcher.Dispatcher) {
	d.SubscribeNamed(event.TypeTaskAssigned, "notify-task-assigned", s.HandleTaskAssigned)
	d.SubscribeNamed(event.TypeTaskOverdue, "notify-task-overdue", s.HandleTaskOverdue)
	d.SubscribeNamed(event.TypeTaskEscalated, "notify-task-escalated", s.HandleTaskEscalated)
}

// HandleTaskAssigned notifies the task's new assignee
func (s *notificationServiceImpl) HandleTaskAssigned(ctx context.Context, evt *event.Event) error {
	task, err := taskFromEvent(evt)
	if err != nil {
		return err
	}
	return s.deliver(ctx, KindTaskAssigned, task.AssignedTo, task, s.notifier.NotifyTaskAssigned)
}

// HandleTaskOverdue notifies the current assignee that the task is overdue
func (s *notificationServiceImpl) HandleTaskOverdue(ctx context.Context, evt *event.Event) error {
	task, err := taskFromEvent(evt)
	if err != nil {
		return err
	}
	return s.deliver(ctx, KindTaskOverdue, task.AssignedTo, task, s.notifier.NotifyTaskOverdue)
}

// HandleTaskEscalated tells the previous assignee the task was taken over
func (s *notificationServiceImpl) HandleTaskEscalated(ctx context.Context, evt *event.Event) error {
	task, err := taskFromEvent(evt)
	if err != nil {
		return err
	}
	previous := evt.GetPayloadString(event.KeyPreviousAssignee)
	if previous == "" {
		s.logger.Debug("Escalation event without previous assignee", zap.String("task_id", task.ID))
		return nil
	}
	return s.deliver(ctx, KindTaskEscalated, previous, task, s.notifier.NotifyTaskEscalated)
}

func (s *notificationServiceImpl) deliver(
	ctx context.Context,
	kind, user string,
	task *entity.ApprovalTask,
	send func(context.Context, string, *entity.ApprovalTask) error,
) error {
	err := send(ctx, user, task)
	s.metrics.NotificationSent(kind, err)
	if err != nil {
		s.logger.Warn("Notification failed",
			zap.String("kind", kind),
			zap.String("user", user),
			zap.String("task_id", task.ID),
			zap.Error(err))
		return fmt.Errorf("notify %s: %w", kind, err)
	}

	s.logger.Debug("Notification sent",
		zap.String("kind", kind),
		zap.String("user", user),
		zap.String("task_id", task.ID))
	return nil
}

func taskFromEvent(evt *event.Event) (*entity.ApprovalTask, error) {
	task, ok := evt.Task()
	if !ok {
		return nil, fmt.Errorf("event %s (%s) carries no task", evt.ID, evt.Type)
	}
	return task, nil
}
