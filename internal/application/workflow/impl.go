package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/garyjia/approval-engine/internal/application/dispatcher"
	"github.com/garyjia/approval-engine/internal/application/history"
	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/event"
	"github.com/garyjia/approval-engine/internal/domain/policy"
	domainwf "github.com/garyjia/approval-engine/internal/domain/workflow"
)

// engineImpl is the concrete implementation of WorkflowEngine
type engineImpl struct {
	templates port.TemplateRepository
	instances port.InstanceRepository
	tasks     port.TaskRepository
	history   *history.Log
	roles     port.RoleDirectory
	txManager port.TransactionManager
	logger    *zap.Logger

	dispatcher          dispatcher.Dispatcher
	authorizer          port.Authorizer
	clock               port.Clock
	metrics             port.Metrics
	allowOverdueActions bool
}

// EngineOption configures the workflow engine
type EngineOption func(*engineImpl)

// WithDispatcher sets the event dispatcher for emitting events
func WithDispatcher(d dispatcher.Dispatcher) EngineOption {
	return func(e *engineImpl) {
		e.dispatcher = d
	}
}

// WithAuthorizer adds an external capability check after the assignee check
func WithAuthorizer(a port.Authorizer) EngineOption {
	return func(e *engineImpl) {
		e.authorizer = a
	}
}

// WithClock overrides the wall clock
func WithClock(c port.Clock) EngineOption {
	return func(e *engineImpl) {
		e.clock = c
	}
}

// WithMetrics sets the metrics sink
func WithMetrics(m port.Metrics) EngineOption {
	return func(e *engineImpl) {
		e.metrics = m
	}
}

// WithAllowOverdueActions lets assignees still act on OVERDUE tasks
func WithAllowOverdueActions(allow bool) EngineOption {
	return func(e *engineImpl) {
		e.allowOverdueActions = allow
	}
}

// NewEngine creates a new workflow engine
func NewEngine(
	templates port.TemplateRepository,
	instances port.InstanceRepository,
	tasks port.TaskRepository,
	historyLog *history.Log,
	roles port.RoleDirectory,
	txManager port.TransactionManager,
	logger *zap.Logger,
	opts ...EngineOption,
) WorkflowEngine {
	e := &engineImpl{
		templates: templates,
		instances: instances,
		tasks:     tasks,
		history:   historyLog,
		roles:     roles,
		txManager: txManager,
		logger:    logger,
		clock:     port.SystemClock{},
		metrics:   port.NopMetrics{},
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// CreateInstance starts a new instance at the first step of the template
func (e *engineImpl) CreateInstance(ctx context.Context, req CreateInstanceRequest) (*entity.WorkflowInstance, error) {
	if req.TemplateID == "" || req.DocumentRef == "" || req.Initiator == "" {
		return nil, fmt.Errorf("%w: template id, document ref and initiator are required", domainwf.ErrInvalidArgument)
	}
	priority := req.Priority
	if priority == "" {
		priority = entity.PriorityNormal
	}
	if !entity.IsValidPriority(priority) {
		return nil, fmt.Errorf("%w: unknown priority %q", domainwf.ErrInvalidArgument, req.Priority)
	}

	now := e.clock.Now()
	correlationID := uuid.NewString()

	var instance *entity.WorkflowInstance
	var assigned []*entity.ApprovalTask
	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		tpl, err := e.loadTemplate(txCtx, req.TemplateID)
		if err != nil {
			return err
		}
		if err := validateTemplate(tpl); err != nil {
			return err
		}
		first := tpl.FirstStep()

		instance = &entity.WorkflowInstance{
			ID:               uuid.NewString(),
			TemplateID:       tpl.ID,
			DocumentRef:      req.DocumentRef,
			Initiator:        req.Initiator,
			Status:           entity.InstanceStatusInProgress,
			CurrentStepOrder: first.StepOrder,
			StartDate:        now,
			DueDate:          req.DueDate,
			Priority:         priority,
			Comments:         req.Comments,
		}
		if err := e.instances.Create(txCtx, instance); err != nil {
			return err
		}

		if _, err := e.history.Record(txCtx, history.Record{
			InstanceID: instance.ID,
			ActionCode: entity.HistoryWorkflowStarted,
			Details:    fmt.Sprintf("started from template %s for document %s", tpl.ID, req.DocumentRef),
			Performer:  req.Initiator,
			At:         now,
		}); err != nil {
			return err
		}

		assigned, err = e.generateTasks(txCtx, instance, first, now)
		return err
	})
	if err != nil {
		e.logger.Warn("Failed to create instance",
			zap.String("template_id", req.TemplateID),
			zap.String("document_ref", req.DocumentRef),
			zap.Error(err))
		return nil, err
	}

	e.logger.Info("Workflow instance started",
		zap.String("instance_id", instance.ID),
		zap.String("template_id", instance.TemplateID),
		zap.Int("tasks", len(assigned)))
	e.metrics.InstanceStarted(instance.TemplateID)

	e.emit(ctx, event.NewEventWithCorrelation(event.TypeInstanceStarted, instance.ID, "", now,
		map[string]interface{}{event.KeyActor: req.Initiator}, correlationID))
	e.emitAssigned(ctx, assigned, now, correlationID)

	instance.Tasks = assigned
	return instance, nil
}

// SubmitTaskAction completes a task and applies the step verdict
func (e *engineImpl) SubmitTaskAction(ctx context.Context, req TaskActionRequest) (*TaskActionResult, error) {
	if req.Action != entity.ActionApprove && req.Action != entity.ActionReject {
		return nil, fmt.Errorf("%w: action must be %s or %s", domainwf.ErrInvalidArgument, entity.ActionApprove, entity.ActionReject)
	}
	if req.TaskID == "" || req.Actor == "" {
		return nil, fmt.Errorf("%w: task id and actor are required", domainwf.ErrInvalidArgument)
	}

	now := e.clock.Now()
	correlationID := uuid.NewString()
	result := &TaskActionResult{}

	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		task, err := e.tasks.GetByID(txCtx, req.TaskID)
		if err != nil {
			return err
		}
		if task == nil {
			return fmt.Errorf("%w: task %s", domainwf.ErrNotFound, req.TaskID)
		}
		if err := e.authorize(txCtx, req.Actor, task); err != nil {
			return err
		}

		instance, err := e.instances.GetByID(txCtx, task.InstanceID)
		if err != nil {
			return err
		}
		if instance == nil {
			return fmt.Errorf("%w: instance %s", domainwf.ErrNotFound, task.InstanceID)
		}
		if instance.IsTerminal() {
			return fmt.Errorf("%w: instance %s is %s", domainwf.ErrInvalidState, instance.ID, instance.Status)
		}

		machine := domainwf.NewTaskMachine(domainwf.State(task.Status), e.allowOverdueActions)
		if err := machine.Fire(txCtx, domainwf.TriggerComplete); err != nil {
			return fmt.Errorf("%w: task %s is %s", domainwf.ErrInvalidState, task.ID, task.Status)
		}
		task.Status = machine.State().String()
		task.Action = req.Action
		task.CompletedDate = &now
		task.Comments = req.Comments
		if err := e.tasks.Update(txCtx, task); err != nil {
			return err
		}

		if _, err := e.history.Record(txCtx, history.Record{
			InstanceID: instance.ID,
			TaskID:     task.ID,
			ActionCode: entity.HistoryTaskCompleted,
			Details:    fmt.Sprintf("%s on step %d", req.Action, task.StepOrder),
			Performer:  req.Actor,
			At:         now,
		}); err != nil {
			return err
		}

		verdict, assigned, err := e.evaluateStep(txCtx, instance, task, req.Actor, now)
		if err != nil {
			return err
		}

		// Written on every action so concurrent evaluations of one instance conflict
		if err := e.instances.Update(txCtx, instance); err != nil {
			return err
		}

		result.Task = task
		result.Instance = instance
		result.Verdict = verdict
		result.Assigned = assigned
		return nil
	})
	if err != nil {
		e.logger.Warn("Task action rejected",
			zap.String("task_id", req.TaskID),
			zap.String("actor", req.Actor),
			zap.String("action", req.Action),
			zap.Error(err))
		return nil, err
	}

	e.logger.Info("Task action recorded",
		zap.String("task_id", result.Task.ID),
		zap.String("instance_id", result.Instance.ID),
		zap.String("action", req.Action),
		zap.String("verdict", string(result.Verdict)),
		zap.String("instance_status", result.Instance.Status))
	e.metrics.TaskCompleted(req.Action)

	e.emitAssigned(ctx, result.Assigned, now, correlationID)
	if result.Instance.IsTerminal() {
		e.metrics.InstanceClosed(result.Instance.Status)
		e.emit(ctx, event.NewEventWithCorrelation(event.TypeInstanceCompleted, result.Instance.ID, "", now,
			map[string]interface{}{event.KeyStatus: result.Instance.Status, event.KeyActor: req.Actor}, correlationID))
	}

	return result, nil
}

// evaluateStep re-evaluates the task's step and applies the verdict to the instance
func (e *engineImpl) evaluateStep(ctx context.Context, instance *entity.WorkflowInstance, task *entity.ApprovalTask, actor string, now time.Time) (policy.Verdict, []*entity.ApprovalTask, error) {
	tpl, err := e.loadTemplate(ctx, instance.TemplateID)
	if err != nil {
		return "", nil, err
	}
	step := tpl.Step(task.StepOrder)
	if step == nil {
		return "", nil, fmt.Errorf("%w: template %s has no step %d", domainwf.ErrConfiguration, tpl.ID, task.StepOrder)
	}

	stepTasks, err := e.tasks.ListByInstanceStep(ctx, instance.ID, step.ID)
	if err != nil {
		return "", nil, err
	}
	verdict, err := policy.Evaluate(step.ApprovalPolicy, step.RequiredApprovals, entity.Outcomes(stepTasks))
	if err != nil {
		return "", nil, fmt.Errorf("%w: step %d: %v", domainwf.ErrConfiguration, step.StepOrder, err)
	}
	if !verdict.IsFinal() {
		return verdict, nil, nil
	}

	cancelled, err := e.cancelOpenTasks(ctx, stepTasks)
	if err != nil {
		return "", nil, err
	}

	if verdict == policy.VerdictRejected {
		if err := e.record(ctx, instance.ID, entity.HistoryStepRejected,
			fmt.Sprintf("step %d rejected, %d open tasks cancelled", step.StepOrder, cancelled), actor, now); err != nil {
			return "", nil, err
		}
		return verdict, nil, e.close(ctx, instance, domainwf.TriggerReject, entity.HistoryWorkflowCompleted, "workflow rejected", actor, now)
	}

	if err := e.record(ctx, instance.ID, entity.HistoryStepApproved,
		fmt.Sprintf("step %d approved, %d open tasks cancelled", step.StepOrder, cancelled), actor, now); err != nil {
		return "", nil, err
	}
	if tpl.IsLastStep(step.StepOrder) {
		return verdict, nil, e.close(ctx, instance, domainwf.TriggerApprove, entity.HistoryWorkflowCompleted, "workflow approved", actor, now)
	}

	next := tpl.NextStep(step.StepOrder)
	machine := domainwf.NewInstanceMachine(domainwf.State(instance.Status))
	if err := machine.Fire(ctx, domainwf.TriggerAdvance); err != nil {
		return "", nil, fmt.Errorf("%w: instance %s: %v", domainwf.ErrInvalidState, instance.ID, err)
	}
	instance.CurrentStepOrder = next.StepOrder

	assigned, err := e.generateTasks(ctx, instance, next, now)
	if err != nil {
		return "", nil, err
	}
	if err := e.record(ctx, instance.ID, entity.HistoryStepAdvanced,
		fmt.Sprintf("advanced from step %d to step %d", step.StepOrder, next.StepOrder), actor, now); err != nil {
		return "", nil, err
	}
	return verdict, assigned, nil
}

// CancelInstance cancels an in-progress instance
func (e *engineImpl) CancelInstance(ctx context.Context, instanceID, actor, reason string) (*entity.WorkflowInstance, error) {
	if instanceID == "" || actor == "" {
		return nil, fmt.Errorf("%w: instance id and actor are required", domainwf.ErrInvalidArgument)
	}

	now := e.clock.Now()
	var instance *entity.WorkflowInstance
	err := e.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		instance, err = e.instances.GetByID(txCtx, instanceID)
		if err != nil {
			return err
		}
		if instance == nil {
			return fmt.Errorf("%w: instance %s", domainwf.ErrNotFound, instanceID)
		}
		if instance.IsTerminal() {
			return fmt.Errorf("%w: instance %s is %s", domainwf.ErrInvalidState, instance.ID, instance.Status)
		}

		tasks, err := e.tasks.ListByInstance(txCtx, instance.ID)
		if err != nil {
			return err
		}
		cancelled, err := e.cancelOpenTasks(txCtx, tasks)
		if err != nil {
			return err
		}

		details := fmt.Sprintf("cancelled by %s, %d open tasks cancelled", actor, cancelled)
		if reason != "" {
			details += ": " + reason
		}
		if err := e.close(txCtx, instance, domainwf.TriggerCancel, entity.HistoryWorkflowCancelled, details, actor, now); err != nil {
			return err
		}
		return e.instances.Update(txCtx, instance)
	})
	if err != nil {
		e.logger.Warn("Failed to cancel instance", zap.String("instance_id", instanceID), zap.Error(err))
		return nil, err
	}

	e.logger.Info("Workflow instance cancelled", zap.String("instance_id", instance.ID), zap.String("actor", actor))
	e.metrics.InstanceClosed(instance.Status)
	e.emit(ctx, event.NewEvent(event.TypeInstanceCancelled, instance.ID, "", now,
		map[string]interface{}{event.KeyStatus: instance.Status, event.KeyActor: actor}))

	return instance, nil
}

// GetInstance returns the instance with tasks and history loaded
func (e *engineImpl) GetInstance(ctx context.Context, instanceID string) (*entity.WorkflowInstance, error) {
	instance, err := e.instances.GetByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if instance == nil {
		return nil, fmt.Errorf("%w: instance %s", domainwf.ErrNotFound, instanceID)
	}

	if instance.Tasks, err = e.tasks.ListByInstance(ctx, instanceID); err != nil {
		return nil, err
	}
	if instance.History, err = e.history.List(ctx, instanceID); err != nil {
		return nil, err
	}
	return instance, nil
}

// ListInstances returns instances newest first
func (e *engineImpl) ListInstances(ctx context.Context, status string, limit, offset int) ([]*entity.WorkflowInstance, error) {
	return e.instances.List(ctx, port.InstanceFilter{Status: status, Limit: limit, Offset: offset})
}

// GetHistory returns the audit trail of an existing instance
func (e *engineImpl) GetHistory(ctx context.Context, instanceID string) ([]*entity.HistoryEntry, error) {
	instance, err := e.instances.GetByID(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if instance == nil {
		return nil, fmt.Errorf("%w: instance %s", domainwf.ErrNotFound, instanceID)
	}
	return e.history.List(ctx, instanceID)
}

// GetTemplate returns a usable template; one without steps is reported as not found
func (e *engineImpl) GetTemplate(ctx context.Context, templateID string) (*entity.WorkflowTemplate, error) {
	tpl, err := e.loadTemplate(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if len(tpl.Steps) == 0 {
		return nil, fmt.Errorf("%w: template %s has no steps", domainwf.ErrNotFound, templateID)
	}
	return tpl, nil
}

// ListTasksForAssignee returns the user's tasks, all statuses when status is empty
func (e *engineImpl) ListTasksForAssignee(ctx context.Context, user, status string) ([]*entity.ApprovalTask, error) {
	if user == "" {
		return nil, fmt.Errorf("%w: assignee is required", domainwf.ErrInvalidArgument)
	}
	if status != "" && !entity.IsValidTaskStatus(status) {
		return nil, fmt.Errorf("%w: unknown task status %q", domainwf.ErrInvalidArgument, status)
	}
	return e.tasks.ListByAssignee(ctx, user, status)
}

func (e *engineImpl) loadTemplate(ctx context.Context, templateID string) (*entity.WorkflowTemplate, error) {
	tpl, err := e.templates.GetByID(ctx, templateID)
	if err != nil {
		return nil, err
	}
	if tpl == nil {
		return nil, fmt.Errorf("%w: template %s", domainwf.ErrNotFound, templateID)
	}
	return tpl, nil
}

// authorize requires the actor to be the assignee, then consults the external authorizer
func (e *engineImpl) authorize(ctx context.Context, actor string, task *entity.ApprovalTask) error {
	if actor != task.AssignedTo {
		return fmt.Errorf("%w: %s is not the assignee of task %s", domainwf.ErrAuthorization, actor, task.ID)
	}
	if e.authorizer == nil {
		return nil
	}
	ok, err := e.authorizer.CanActOnTask(ctx, actor, task)
	if err != nil {
		return fmt.Errorf("authorize %s on task %s: %w", actor, task.ID, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s may not act on task %s", domainwf.ErrAuthorization, actor, task.ID)
	}
	return nil
}

// close moves the instance to a terminal state and records it
func (e *engineImpl) close(ctx context.Context, instance *entity.WorkflowInstance, trigger domainwf.Trigger, code, details, actor string, now time.Time) error {
	machine := domainwf.NewInstanceMachine(domainwf.State(instance.Status))
	if err := machine.Fire(ctx, trigger); err != nil {
		return fmt.Errorf("%w: instance %s: %v", domainwf.ErrInvalidState, instance.ID, err)
	}
	instance.Status = machine.State().String()
	instance.EndDate = &now
	return e.record(ctx, instance.ID, code, details, actor, now)
}

func (e *engineImpl) record(ctx context.Context, instanceID, code, details, actor string, now time.Time) error {
	_, err := e.history.Record(ctx, history.Record{
		InstanceID: instanceID,
		ActionCode: code,
		Details:    details,
		Performer:  actor,
		At:         now,
	})
	return err
}

func (e *engineImpl) emitAssigned(ctx context.Context, tasks []*entity.ApprovalTask, now time.Time, correlationID string) {
	for _, task := range tasks {
		e.emit(ctx, event.NewTaskEvent(event.TypeTaskAssigned, task, now, correlationID))
	}
}

// emit dispatches asynchronously; the state change has already committed
func (e *engineImpl) emit(ctx context.Context, evt *event.Event) {
	if e.dispatcher != nil {
		e.dispatcher.DispatchAsync(ctx, evt)
	}
}
