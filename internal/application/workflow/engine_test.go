package workflow_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/approval-engine/internal/application/dispatcher"
	"github.com/garyjia/approval-engine/internal/application/history"
	"github.com/garyjia/approval-engine/internal/application/port"
	"github.com/garyjia/approval-engine/internal/application/workflow"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/event"
	"github.com/garyjia/approval-engine/internal/domain/policy"
	domainwf "github.com/garyjia/approval-engine/internal/domain/workflow"
	"github.com/garyjia/approval-engine/internal/infrastructure/persistence/repository"
	"github.com/garyjia/approval-engine/internal/testutil"
)

var epoch = time.Date(2025, 2, 3, 8, 0, 0, 0, time.UTC)

// recorder collects dispatched events
type recorder struct {
	mu     sync.Mutex
	events []*event.Event
}

func (r *recorder) handle(ctx context.Context, evt *event.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

func (r *recorder) ofType(t event.Type) []*event.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*event.Event
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type denyAll struct{}

func (denyAll) CanActOnTask(ctx context.Context, actor string, task *entity.ApprovalTask) (bool, error) {
	return false, nil
}

type harness struct {
	engine     workflow.WorkflowEngine
	templates  port.TemplateRepository
	instances  port.InstanceRepository
	tasks      port.TaskRepository
	roles      port.RoleRepository
	clock      *testutil.FixedClock
	dispatcher dispatcher.Dispatcher
	events     *recorder
}

func newHarness(t *testing.T, opts ...workflow.EngineOption) *harness {
	return newHarnessWithTasks(t, nil, opts...)
}

func newHarnessWithTasks(t *testing.T, wrap func(port.TaskRepository) port.TaskRepository, opts ...workflow.EngineOption) *harness {
	t.Helper()
	db := testutil.NewDB(t)
	logger := zap.NewNop()

	h := &harness{
		templates: repository.NewTemplateRepository(db, logger),
		instances: repository.NewInstanceRepository(db, logger),
		tasks:     repository.NewTaskRepository(db, logger),
		roles:     repository.NewRoleRepository(db, logger),
		clock:     &testutil.FixedClock{T: epoch},
		events:    &recorder{},
	}

	h.dispatcher = dispatcher.NewDispatcher()
	for _, typ := range []event.Type{event.TypeTaskAssigned, event.TypeInstanceStarted, event.TypeInstanceCompleted, event.TypeInstanceCancelled} {
		h.dispatcher.Subscribe(typ, h.events.handle)
	}
	t.Cleanup(func() { _ = h.dispatcher.Close() })

	tasks := h.tasks
	if wrap != nil {
		tasks = wrap(h.tasks)
	}

	opts = append([]workflow.EngineOption{
		workflow.WithClock(h.clock),
		workflow.WithDispatcher(h.dispatcher),
	}, opts...)
	h.engine = workflow.NewEngine(
		h.templates, h.instances, tasks,
		history.NewLog(repository.NewHistoryRepository(db, logger)),
		h.roles, db, logger, opts...,
	)
	return h
}

func (h *harness) addTemplate(t *testing.T, tpl *entity.WorkflowTemplate) {
	t.Helper()
	tpl.CreatedAt = epoch
	require.NoError(t, h.templates.Create(context.Background(), tpl))
}

func (h *harness) start(t *testing.T, templateID string) *entity.WorkflowInstance {
	t.Helper()
	inst, err := h.engine.CreateInstance(context.Background(), workflow.CreateInstanceRequest{
		TemplateID:  templateID,
		DocumentRef: "doc-42",
		Initiator:   "ivy",
	})
	require.NoError(t, err)
	return inst
}

// openTask returns the single open task of the user on the instance
func (h *harness) openTask(t *testing.T, instanceID, user string) *entity.ApprovalTask {
	t.Helper()
	tasks, err := h.tasks.ListByInstance(context.Background(), instanceID)
	require.NoError(t, err)
	for _, task := range tasks {
		if task.AssignedTo == user && task.IsOpen() {
			return task
		}
	}
	t.Fatalf("no open task for %s on %s", user, instanceID)
	return nil
}

func (h *harness) act(t *testing.T, taskID, actor, action string) *workflow.TaskActionResult {
	t.Helper()
	result, err := h.engine.SubmitTaskAction(context.Background(), workflow.TaskActionRequest{
		TaskID: taskID, Actor: actor, Action: action,
	})
	require.NoError(t, err)
	return result
}

func historyCodes(entries []*entity.HistoryEntry) []string {
	codes := make([]string, 0, len(entries))
	for _, e := range entries {
		codes = append(codes, e.ActionCode)
	}
	return codes
}

func step(id string, order int, p policy.Policy, required int, approvers ...string) *entity.WorkflowStep {
	return &entity.WorkflowStep{
		ID: id, StepOrder: order, Name: id, StepType: entity.StepTypeApproval,
		ApprovalPolicy: p, RequiredApprovals: required, SLAHours: 8,
		Approvers: approvers,
	}
}

func twoStepTemplate() *entity.WorkflowTemplate {
	return &entity.WorkflowTemplate{
		ID: "purchase", Name: "Purchase", IsActive: true,
		Steps: []*entity.WorkflowStep{
			step("purchase-manager", 1, policy.Quorum, 1, "A"),
			step("purchase-board", 2, policy.All, 1, "B", "C"),
		},
	}
}

func TestEngine_QuorumThenAllRejectClosesInstance(t *testing.T) {
	h := newHarness(t)
	h.addTemplate(t, twoStepTemplate())
	ctx := context.Background()

	inst := h.start(t, "purchase")
	assert.Equal(t, entity.InstanceStatusInProgress, inst.Status)
	assert.Equal(t, 1, inst.CurrentStepOrder)
	require.Len(t, inst.Tasks, 1)
	assert.Equal(t, "A", inst.Tasks[0].AssignedTo)
	assert.Equal(t, epoch.Add(8*time.Hour), inst.Tasks[0].DueDate)

	h.clock.Advance(time.Hour)
	result := h.act(t, inst.Tasks[0].ID, "A", entity.ActionApprove)
	assert.Equal(t, policy.VerdictApproved, result.Verdict)
	assert.Equal(t, 2, result.Instance.CurrentStepOrder)
	require.Len(t, result.Assigned, 2)
	assert.Equal(t, "B", result.Assigned[0].AssignedTo)
	assert.Equal(t, "C", result.Assigned[1].AssignedTo)

	taskB := h.openTask(t, inst.ID, "B")
	result = h.act(t, taskB.ID, "B", entity.ActionApprove)
	assert.Equal(t, policy.VerdictPending, result.Verdict)
	assert.Equal(t, entity.InstanceStatusInProgress, result.Instance.Status)

	taskC := h.openTask(t, inst.ID, "C")
	h.clock.Advance(time.Hour)
	result = h.act(t, taskC.ID, "C", entity.ActionReject)
	assert.Equal(t, policy.VerdictRejected, result.Verdict)

	got, err := h.engine.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.InstanceStatusRejected, got.Status)
	require.NotNil(t, got.EndDate)
	assert.Equal(t, epoch.Add(2*time.Hour), *got.EndDate)

	storedB, err := h.tasks.GetByID(ctx, taskB.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.TaskStatusCompleted, storedB.Status)
	assert.Equal(t, entity.ActionApprove, storedB.Action)

	for _, task := range got.Tasks {
		assert.False(t, task.IsOpen(), "task %s for %s left open", task.ID, task.AssignedTo)
	}

	assert.Equal(t, []string{
		entity.HistoryWorkflowStarted,
		entity.HistoryTaskCompleted,
		entity.HistoryStepApproved,
		entity.HistoryStepAdvanced,
		entity.HistoryTaskCompleted,
		entity.HistoryTaskCompleted,
		entity.HistoryStepRejected,
		entity.HistoryWorkflowCompleted,
	}, historyCodes(got.History))
}

func TestEngine_RejectionCancelsOpenTasks(t *testing.T) {
	h := newHarness(t)
	h.addTemplate(t, &entity.WorkflowTemplate{
		ID: "board", Name: "Board", IsActive: true,
		Steps: []*entity.WorkflowStep{step("board-vote", 1, policy.Unanimous, 1, "B", "C", "D")},
	})

	inst := h.start(t, "board")
	h.act(t, h.openTask(t, inst.ID, "B").ID, "B", entity.ActionApprove)
	result := h.act(t, h.openTask(t, inst.ID, "C").ID, "C", entity.ActionReject)

	assert.Equal(t, entity.InstanceStatusRejected, result.Instance.Status)

	tasks, err := h.tasks.ListByInstance(context.Background(), inst.ID)
	require.NoError(t, err)
	statuses := map[string]string{}
	for _, task := range tasks {
		statuses[task.AssignedTo] = task.Status
	}
	assert.Equal(t, map[string]string{
		"B": entity.TaskStatusCompleted,
		"C": entity.TaskStatusCompleted,
		"D": entity.TaskStatusCancelled,
	}, statuses)
}

func TestEngine_AnyOneApprovesLastStep(t *testing.T) {
	h := newHarness(t)
	h.addTemplate(t, &entity.WorkflowTemplate{
		ID: "expense", Name: "Expense", IsActive: true,
		Steps: []*entity.WorkflowStep{step("expense-lead", 1, policy.AnyOne, 1, "x", "y", "z")},
	})

	inst := h.start(t, "expense")
	result := h.act(t, h.openTask(t, inst.ID, "y").ID, "y", entity.ActionApprove)

	assert.Equal(t, policy.VerdictApproved, result.Verdict)
	assert.Equal(t, entity.InstanceStatusApproved, result.Instance.Status)
	require.NotNil(t, result.Instance.EndDate)
	assert.Empty(t, result.Assigned)

	tasks, err := h.tasks.ListByInstance(context.Background(), inst.ID)
	require.NoError(t, err)
	cancelled := 0
	for _, task := range tasks {
		if task.Status == entity.TaskStatusCancelled {
			cancelled++
			assert.Equal(t, entity.ActionNone, task.Action)
			assert.Nil(t, task.CompletedDate)
		}
	}
	assert.Equal(t, 2, cancelled)

	require.NoError(t, h.dispatcher.Close())
	assert.Len(t, h.events.ofType(event.TypeTaskAssigned), 3)
	assert.Len(t, h.events.ofType(event.TypeInstanceStarted), 1)
	completed := h.events.ofType(event.TypeInstanceCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, entity.InstanceStatusApproved, completed[0].GetPayloadString(event.KeyStatus))
}

func TestEngine_RoleApprovers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	require.NoError(t, h.roles.AddMember(ctx, "FINANCE", "mia"))
	require.NoError(t, h.roles.AddMember(ctx, "FINANCE", "bob"))
	require.NoError(t, h.roles.AddMember(ctx, "AUDIT", "bob"))

	finance := step("finance-check", 1, policy.Majority, 1, "bob")
	finance.Roles = []string{"FINANCE", "AUDIT"}
	h.addTemplate(t, &entity.WorkflowTemplate{
		ID: "finance", Name: "Finance", IsActive: true,
		Steps: []*entity.WorkflowStep{finance},
	})

	inst := h.start(t, "finance")
	var assignees []string
	for _, task := range inst.Tasks {
		assignees = append(assignees, task.AssignedTo)
	}
	assert.Equal(t, []string{"bob", "mia"}, assignees)
}

func TestEngine_CreateInstanceErrors(t *testing.T) {
	h := newHarness(t)
	h.addTemplate(t, &entity.WorkflowTemplate{
		ID: "inactive", Name: "Inactive", IsActive: false,
		Steps: []*entity.WorkflowStep{step("inactive-1", 1, policy.AnyOne, 1, "a")},
	})
	h.addTemplate(t, &entity.WorkflowTemplate{ID: "empty", Name: "Empty", IsActive: true})
	vacant := step("vacant-1", 1, policy.AnyOne, 1)
	vacant.Roles = []string{"NOBODY"}
	h.addTemplate(t, &entity.WorkflowTemplate{
		ID: "vacant", Name: "Vacant", IsActive: true,
		Steps: []*entity.WorkflowStep{vacant},
	})
	h.addTemplate(t, &entity.WorkflowTemplate{
		ID: "quorum", Name: "Quorum", IsActive: true,
		Steps: []*entity.WorkflowStep{step("quorum-1", 1, policy.Quorum, 3, "a", "b")},
	})
	h.addTemplate(t, &entity.WorkflowTemplate{
		ID: "late-quorum", Name: "Late quorum", IsActive: true,
		Steps: []*entity.WorkflowStep{
			step("late-quorum-1", 1, policy.AnyOne, 1, "a"),
			step("late-quorum-2", 2, policy.Quorum, 3, "b", "c"),
		},
	})
	h.addTemplate(t, &entity.WorkflowTemplate{
		ID: "late-empty", Name: "Late empty", IsActive: true,
		Steps: []*entity.WorkflowStep{
			step("late-empty-1", 1, policy.AnyOne, 1, "a"),
			step("late-empty-2", 2, policy.All, 1),
		},
	})

	tests := []struct {
		name    string
		req     workflow.CreateInstanceRequest
		wantErr error
	}{
		{"unknown template", workflow.CreateInstanceRequest{TemplateID: "nope", DocumentRef: "d", Initiator: "i"}, domainwf.ErrNotFound},
		{"inactive template", workflow.CreateInstanceRequest{TemplateID: "inactive", DocumentRef: "d", Initiator: "i"}, domainwf.ErrConfiguration},
		{"zero steps", workflow.CreateInstanceRequest{TemplateID: "empty", DocumentRef: "d", Initiator: "i"}, domainwf.ErrConfiguration},
		{"no eligible approvers", workflow.CreateInstanceRequest{TemplateID: "vacant", DocumentRef: "d", Initiator: "i"}, domainwf.ErrConfiguration},
		{"quorum above approver count", workflow.CreateInstanceRequest{TemplateID: "quorum", DocumentRef: "d", Initiator: "i"}, domainwf.ErrConfiguration},
		{"later step quorum above approver count", workflow.CreateInstanceRequest{TemplateID: "late-quorum", DocumentRef: "d", Initiator: "i"}, domainwf.ErrConfiguration},
		{"later step without approvers or roles", workflow.CreateInstanceRequest{TemplateID: "late-empty", DocumentRef: "d", Initiator: "i"}, domainwf.ErrConfiguration},
		{"missing initiator", workflow.CreateInstanceRequest{TemplateID: "quorum", DocumentRef: "d"}, domainwf.ErrInvalidArgument},
		{"bad priority", workflow.CreateInstanceRequest{TemplateID: "quorum", DocumentRef: "d", Initiator: "i", Priority: "ASAP"}, domainwf.ErrInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst, err := h.engine.CreateInstance(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, inst)
		})
	}

	// failed creations leave nothing behind
	instances, err := h.engine.ListInstances(context.Background(), "", 10, 0)
	require.NoError(t, err)
	assert.Empty(t, instances)
}

func TestEngine_AdvanceToUnstaffedStepRollsBack(t *testing.T) {
	h := newHarness(t)
	later := step("later-2", 2, policy.AnyOne, 1)
	later.Roles = []string{"VACANT"}
	h.addTemplate(t, &entity.WorkflowTemplate{
		ID: "later", Name: "Later", IsActive: true,
		Steps: []*entity.WorkflowStep{step("later-1", 1, policy.AnyOne, 1, "a"), later},
	})
	inst := h.start(t, "later")

	_, err := h.engine.SubmitTaskAction(context.Background(), workflow.TaskActionRequest{
		TaskID: inst.Tasks[0].ID, Actor: "a", Action: entity.ActionApprove,
	})
	require.ErrorIs(t, err, domainwf.ErrConfiguration)

	task, err := h.tasks.GetByID(context.Background(), inst.Tasks[0].ID)
	require.NoError(t, err)
	assert.Equal(t, entity.TaskStatusPending, task.Status)

	entries, err := h.engine.GetHistory(context.Background(), inst.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{entity.HistoryWorkflowStarted}, historyCodes(entries))
}

func TestEngine_SubmitTaskActionErrors(t *testing.T) {
	h := newHarness(t)
	h.addTemplate(t, twoStepTemplate())
	inst := h.start(t, "purchase")
	taskID := inst.Tasks[0].ID

	tests := []struct {
		name    string
		req     workflow.TaskActionRequest
		wantErr error
	}{
		{"wrong actor", workflow.TaskActionRequest{TaskID: taskID, Actor: "mallory", Action: entity.ActionApprove}, domainwf.ErrAuthorization},
		{"unknown task", workflow.TaskActionRequest{TaskID: "missing", Actor: "A", Action: entity.ActionApprove}, domainwf.ErrNotFound},
		{"unknown action", workflow.TaskActionRequest{TaskID: taskID, Actor: "A", Action: "MAYBE"}, domainwf.ErrInvalidArgument},
		{"action none", workflow.TaskActionRequest{TaskID: taskID, Actor: "A", Action: entity.ActionNone}, domainwf.ErrInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.engine.SubmitTaskAction(context.Background(), tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("completed task", func(t *testing.T) {
		h.act(t, taskID, "A", entity.ActionApprove)
		_, err := h.engine.SubmitTaskAction(context.Background(), workflow.TaskActionRequest{
			TaskID: taskID, Actor: "A", Action: entity.ActionReject,
		})
		assert.ErrorIs(t, err, domainwf.ErrInvalidState)
	})
}

func TestEngine_AuthorizerDenies(t *testing.T) {
	h := newHarness(t, workflow.WithAuthorizer(denyAll{}))
	h.addTemplate(t, twoStepTemplate())
	inst := h.start(t, "purchase")

	_, err := h.engine.SubmitTaskAction(context.Background(), workflow.TaskActionRequest{
		TaskID: inst.Tasks[0].ID, Actor: "A", Action: entity.ActionApprove,
	})
	assert.ErrorIs(t, err, domainwf.ErrAuthorization)
}

func TestEngine_OverdueTaskActions(t *testing.T) {
	tests := []struct {
		name    string
		allow   bool
		wantErr error
	}{
		{"strict", false, domainwf.ErrInvalidState},
		{"allowed", true, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, workflow.WithAllowOverdueActions(tt.allow))
			h.addTemplate(t, twoStepTemplate())
			inst := h.start(t, "purchase")
			ctx := context.Background()

			task, err := h.tasks.GetByID(ctx, inst.Tasks[0].ID)
			require.NoError(t, err)
			task.Status = entity.TaskStatusOverdue
			require.NoError(t, h.tasks.Update(ctx, task))

			_, err = h.engine.SubmitTaskAction(ctx, workflow.TaskActionRequest{
				TaskID: task.ID, Actor: "A", Action: entity.ActionApprove,
			})
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

// racingTasks simulates a concurrent writer updating the task between read and write
type racingTasks struct {
	port.TaskRepository
}

func (r *racingTasks) GetByID(ctx context.Context, id string) (*entity.ApprovalTask, error) {
	task, err := r.TaskRepository.GetByID(ctx, id)
	if err != nil || task == nil {
		return task, err
	}
	stale := *task
	task.Comments = "touched concurrently"
	if err := r.TaskRepository.Update(ctx, task); err != nil {
		return nil, err
	}
	return &stale, nil
}

func TestEngine_ConcurrentUpdateConflicts(t *testing.T) {
	h := newHarnessWithTasks(t, func(tasks port.TaskRepository) port.TaskRepository {
		return &racingTasks{TaskRepository: tasks}
	})
	h.addTemplate(t, twoStepTemplate())
	inst := h.start(t, "purchase")

	_, err := h.engine.SubmitTaskAction(context.Background(), workflow.TaskActionRequest{
		TaskID: inst.Tasks[0].ID, Actor: "A", Action: entity.ActionApprove,
	})
	require.ErrorIs(t, err, domainwf.ErrConflict)

	task, err := h.tasks.GetByID(context.Background(), inst.Tasks[0].ID)
	require.NoError(t, err)
	assert.Equal(t, entity.TaskStatusPending, task.Status)
	assert.Empty(t, task.Comments, "the whole transaction should roll back")
}

func TestEngine_CancelInstance(t *testing.T) {
	h := newHarness(t)
	h.addTemplate(t, twoStepTemplate())
	ctx := context.Background()
	inst := h.start(t, "purchase")

	h.clock.Advance(30 * time.Minute)
	cancelled, err := h.engine.CancelInstance(ctx, inst.ID, "ivy", "duplicate request")
	require.NoError(t, err)
	assert.Equal(t, entity.InstanceStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.EndDate)
	assert.Equal(t, epoch.Add(30*time.Minute), *cancelled.EndDate)

	got, err := h.engine.GetInstance(ctx, inst.ID)
	require.NoError(t, err)
	require.Len(t, got.Tasks, 1)
	assert.Equal(t, entity.TaskStatusCancelled, got.Tasks[0].Status)
	last := got.History[len(got.History)-1]
	assert.Equal(t, entity.HistoryWorkflowCancelled, last.ActionCode)
	assert.Contains(t, last.Details, "duplicate request")
	require.NotNil(t, last.PerformedBy)
	assert.Equal(t, "ivy", *last.PerformedBy)

	_, err = h.engine.CancelInstance(ctx, inst.ID, "ivy", "")
	assert.ErrorIs(t, err, domainwf.ErrInvalidState)

	_, err = h.engine.SubmitTaskAction(ctx, workflow.TaskActionRequest{
		TaskID: inst.Tasks[0].ID, Actor: "A", Action: entity.ActionApprove,
	})
	assert.ErrorIs(t, err, domainwf.ErrInvalidState)

	_, err = h.engine.CancelInstance(ctx, "missing", "ivy", "")
	assert.ErrorIs(t, err, domainwf.ErrNotFound)
}

func TestEngine_Queries(t *testing.T) {
	h := newHarness(t)
	h.addTemplate(t, twoStepTemplate())
	h.addTemplate(t, &entity.WorkflowTemplate{ID: "empty", Name: "Empty", IsActive: true})
	ctx := context.Background()

	first := h.start(t, "purchase")
	second := h.start(t, "purchase")
	h.act(t, first.Tasks[0].ID, "A", entity.ActionApprove)

	all, err := h.engine.ListTasksForAssignee(ctx, "A", "")
	require.NoError(t, err)
	assert.Len(t, all, 2)

	pending, err := h.engine.ListTasksForAssignee(ctx, "A", entity.TaskStatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].InstanceID)

	_, err = h.engine.ListTasksForAssignee(ctx, "A", "DONE")
	assert.ErrorIs(t, err, domainwf.ErrInvalidArgument)

	tpl, err := h.engine.GetTemplate(ctx, "purchase")
	require.NoError(t, err)
	assert.Len(t, tpl.Steps, 2)

	_, err = h.engine.GetTemplate(ctx, "empty")
	assert.ErrorIs(t, err, domainwf.ErrNotFound)

	_, err = h.engine.GetInstance(ctx, "missing")
	assert.ErrorIs(t, err, domainwf.ErrNotFound)

	_, err = h.engine.GetHistory(ctx, "missing")
	assert.True(t, errors.Is(err, domainwf.ErrNotFound))
}
