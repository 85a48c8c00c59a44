package container

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/garyjia/approval-engine/internal/application/workflow"
	"github.com/garyjia/approval-engine/internal/config"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/policy"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg, err := config.Load("")
	require.NoError(t, err)
	cfg.Database.Path = filepath.Join(t.TempDir(), "approval.db")
	return cfg
}

func TestContainer_WiresEngineEndToEnd(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	c, err := NewContainer(testConfig(t), zap.New(core), WithoutWorkers())
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, c.Start(ctx))
	assert.True(t, c.Ready())
	assert.Error(t, c.Start(ctx))

	require.NoError(t, c.Repositories().Template.Create(ctx, &entity.WorkflowTemplate{
		ID:        "expense",
		Name:      "Expense",
		IsActive:  true,
		CreatedAt: time.Now(),
		Steps: []*entity.WorkflowStep{{
			ID:             "expense-1",
			TemplateID:     "expense",
			StepOrder:      1,
			Name:           "Manager",
			StepType:       entity.StepTypeApproval,
			ApprovalPolicy: policy.AnyOne,
			SLAHours:       24,
			Approvers:      []string{"mia"},
		}},
	}))

	inst, err := c.WorkflowEngine().CreateInstance(ctx, workflow.CreateInstanceRequest{
		TemplateID:  "expense",
		DocumentRef: "doc-1",
		Initiator:   "ivy",
	})
	require.NoError(t, err)

	tasks, err := c.WorkflowEngine().ListTasksForAssignee(ctx, "mia", entity.TaskStatusPending)
	require.NoError(t, err)
	require.Len(t, tasks, 1)

	result, err := c.WorkflowEngine().SubmitTaskAction(ctx, workflow.TaskActionRequest{
		TaskID: tasks[0].ID,
		Actor:  "mia",
		Action: entity.ActionApprove,
	})
	require.NoError(t, err)
	assert.Equal(t, inst.ID, result.Instance.ID)
	assert.Equal(t, entity.InstanceStatusApproved, result.Instance.Status)

	require.Eventually(t, func() bool {
		return logs.FilterMessage("task assigned").Len() == 1
	}, 2*time.Second, 10*time.Millisecond)

	tick := c.Scheduler().Tick(ctx)
	assert.Zero(t, tick.Failed)

	health := c.Health()
	assert.True(t, health.Overall)
	assert.True(t, health.Components["database"].Healthy)
	assert.False(t, c.Workers().IsRunning())

	require.NotNil(t, c.MetricsHandler())
	w := httptest.NewRecorder()
	c.MetricsHandler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, w.Body.String(), "approval_instances_started_total")

	require.NoError(t, c.Close())
	assert.False(t, c.Ready())
	assert.Error(t, c.Close())
	assert.Error(t, c.Start(ctx))
}

func TestContainer_StartsSLAWorker(t *testing.T) {
	cfg := testConfig(t)
	cfg.SLA.InitialDelay = time.Hour
	cfg.Metrics.Enabled = false

	c, err := NewContainer(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))

	assert.Equal(t, 1, c.Workers().GetWorkerCount())
	assert.True(t, c.Workers().IsRunning())
	assert.Nil(t, c.MetricsHandler())

	require.NoError(t, c.Close())
	assert.False(t, c.Workers().IsRunning())
}

func TestContainer_SLADisabledRegistersNoWorker(t *testing.T) {
	cfg := testConfig(t)
	cfg.SLA.Enabled = false

	c, err := NewContainer(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	defer c.Close()

	assert.Equal(t, 0, c.Workers().GetWorkerCount())
	assert.True(t, c.Health().Components["workers"].Healthy)
}

func TestNewContainer_Validation(t *testing.T) {
	_, err := NewContainer(nil, zap.NewNop())
	assert.Error(t, err)

	_, err = NewContainer(testConfig(t), nil)
	assert.Error(t, err)

	cfg := testConfig(t)
	cfg.Workflow.Authorizer = "magic"
	_, err = NewContainer(cfg, zap.NewNop())
	assert.Error(t, err)
}

func TestSchedulerConfig(t *testing.T) {
	cfg := testConfig(t)
	sc := SchedulerConfig(cfg.SLA)

	assert.Equal(t, 24*time.Hour, sc.EscalationGrace)
	assert.Equal(t, 24*time.Hour, sc.EscalationExtension)
	assert.Equal(t, "ESCALATION_MANAGER", sc.EscalationRole)
	assert.Equal(t, 100, sc.BatchSize)
	assert.NoError(t, sc.Validate())
}
