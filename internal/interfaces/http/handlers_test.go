package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/approval-engine/internal/application/scheduler"
	"github.com/garyjia/approval-engine/internal/application/workflow"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	"github.com/garyjia/approval-engine/internal/domain/policy"
	domainwf "github.com/garyjia/approval-engine/internal/domain/workflow"
)

type nopLogger struct{}

func (nopLogger) Info(msg string, keysAndValues ...interface{})  {}
func (nopLogger) Error(msg string, keysAndValues ...interface{}) {}

// fakeEngine stubs workflow.WorkflowEngine with function fields
type fakeEngine struct {
	createFn  func(ctx context.Context, req workflow.CreateInstanceRequest) (*entity.WorkflowInstance, error)
	submitFn  func(ctx context.Context, req workflow.TaskActionRequest) (*workflow.TaskActionResult, error)
	cancelFn  func(ctx context.Context, id, actor, reason string) (*entity.WorkflowInstance, error)
	getFn     func(ctx context.Context, id string) (*entity.WorkflowInstance, error)
	listFn    func(ctx context.Context, status string, limit, offset int) ([]*entity.WorkflowInstance, error)
	historyFn func(ctx context.Context, id string) ([]*entity.HistoryEntry, error)
	tmplFn    func(ctx context.Context, id string) (*entity.WorkflowTemplate, error)
	tasksFn   func(ctx context.Context, user, status string) ([]*entity.ApprovalTask, error)
}

func (f *fakeEngine) CreateInstance(ctx context.Context, req workflow.CreateInstanceRequest) (*entity.WorkflowInstance, error) {
	return f.createFn(ctx, req)
}

func (f *fakeEngine) SubmitTaskAction(ctx context.Context, req workflow.TaskActionRequest) (*workflow.TaskActionResult, error) {
	return f.submitFn(ctx, req)
}

func (f *fakeEngine) CancelInstance(ctx context.Context, id, actor, reason string) (*entity.WorkflowInstance, error) {
	return f.cancelFn(ctx, id, actor, reason)
}

func (f *fakeEngine) GetInstance(ctx context.Context, id string) (*entity.WorkflowInstance, error) {
	return f.getFn(ctx, id)
}

func (f *fakeEngine) ListInstances(ctx context.Context, status string, limit, offset int) ([]*entity.WorkflowInstance, error) {
	return f.listFn(ctx, status, limit, offset)
}

func (f *fakeEngine) GetHistory(ctx context.Context, id string) ([]*entity.HistoryEntry, error) {
	return f.historyFn(ctx, id)
}

func (f *fakeEngine) GetTemplate(ctx context.Context, id string) (*entity.WorkflowTemplate, error) {
	return f.tmplFn(ctx, id)
}

func (f *fakeEngine) ListTasksForAssignee(ctx context.Context, user, status string) ([]*entity.ApprovalTask, error) {
	return f.tasksFn(ctx, user, status)
}

type fakeTicker struct {
	result scheduler.TickResult
	calls  int
}

func (f *fakeTicker) Tick(ctx context.Context) scheduler.TickResult {
	f.calls++
	return f.result
}

func newTestServer(engine *fakeEngine, ticker TickRunner, opts ...ServerOption) *Server {
	cfg := DefaultServerConfig()
	cfg.Mode = gin.TestMode
	cfg.Version = "test"
	return NewServer(cfg, engine, ticker, nopLogger{}, opts...)
}

func do(t *testing.T, s *Server, method, path, user, body string) (*httptest.ResponseRecorder, Response) {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if user != "" {
		req.Header.Set(HeaderUserID, user)
	}

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, req)

	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return w, resp
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(&fakeEngine{}, nil)

	w, resp := do(t, s, http.MethodGet, "/health", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
	assert.Equal(t, "test", resp.Data.(map[string]interface{})["version"])
}

func TestCreateInstance(t *testing.T) {
	var got workflow.CreateInstanceRequest
	engine := &fakeEngine{
		createFn: func(ctx context.Context, req workflow.CreateInstanceRequest) (*entity.WorkflowInstance, error) {
			got = req
			return &entity.WorkflowInstance{ID: "inst-1", TemplateID: req.TemplateID, Status: entity.InstanceStatusInProgress}, nil
		},
	}
	s := newTestServer(engine, nil)

	w, resp := do(t, s, http.MethodPost, "/api/v1/instances", "alice",
		`{"template_id":"tmpl-1","document_ref":"doc-9","priority":"HIGH","due_date":"2026-01-02T15:04:05Z"}`)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.True(t, resp.Success)
	assert.Equal(t, "alice", got.Initiator)
	assert.Equal(t, "tmpl-1", got.TemplateID)
	assert.Equal(t, "doc-9", got.DocumentRef)
	assert.Equal(t, "HIGH", got.Priority)
	require.NotNil(t, got.DueDate)
	assert.Equal(t, time.Date(2026, 1, 2, 15, 4, 5, 0, time.UTC), got.DueDate.UTC())
}

func TestCreateInstance_BadRequests(t *testing.T) {
	s := newTestServer(&fakeEngine{}, nil)

	w, resp := do(t, s, http.MethodPost, "/api/v1/instances", "", `{"template_id":"t","document_ref":"d"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, resp.Error, HeaderUserID)

	w, _ = do(t, s, http.MethodPost, "/api/v1/instances", "alice", `{"template_id":"t"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", fmt.Errorf("%w: instance x", domainwf.ErrNotFound), http.StatusNotFound},
		{"configuration", fmt.Errorf("%w: no steps", domainwf.ErrConfiguration), http.StatusUnprocessableEntity},
		{"invalid state", fmt.Errorf("%w: task closed", domainwf.ErrInvalidState), http.StatusConflict},
		{"conflict", fmt.Errorf("%w: task t", domainwf.ErrConflict), http.StatusConflict},
		{"authorization", fmt.Errorf("%w: bob", domainwf.ErrAuthorization), http.StatusForbidden},
		{"invalid argument", fmt.Errorf("%w: action", domainwf.ErrInvalidArgument), http.StatusBadRequest},
		{"unknown", fmt.Errorf("disk on fire"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := &fakeEngine{
				submitFn: func(ctx context.Context, req workflow.TaskActionRequest) (*workflow.TaskActionResult, error) {
					return nil, tt.err
				},
			}
			s := newTestServer(engine, nil)

			w, resp := do(t, s, http.MethodPost, "/api/v1/tasks/task-1/actions", "bob", `{"action":"APPROVE"}`)
			assert.Equal(t, tt.want, w.Code)
			assert.False(t, resp.Success)
			if tt.want == http.StatusInternalServerError {
				assert.Equal(t, "internal error", resp.Error)
			}
		})
	}
}

func TestSubmitTaskAction(t *testing.T) {
	var got workflow.TaskActionRequest
	engine := &fakeEngine{
		submitFn: func(ctx context.Context, req workflow.TaskActionRequest) (*workflow.TaskActionResult, error) {
			got = req
			return &workflow.TaskActionResult{
				Task:     &entity.ApprovalTask{ID: req.TaskID, Status: entity.TaskStatusCompleted},
				Instance: &entity.WorkflowInstance{ID: "inst-1", Status: entity.InstanceStatusApproved},
				Verdict:  policy.VerdictApproved,
			}, nil
		},
	}
	s := newTestServer(engine, nil)

	w, resp := do(t, s, http.MethodPost, "/api/v1/tasks/task-7/actions", "bob", `{"action":"APPROVE","comments":"ok"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, resp.Success)
	assert.Equal(t, workflow.TaskActionRequest{TaskID: "task-7", Actor: "bob", Action: "APPROVE", Comments: "ok"}, got)

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, string(policy.VerdictApproved), data["verdict"])
}

func TestCancelInstance(t *testing.T) {
	var gotActor, gotReason string
	engine := &fakeEngine{
		cancelFn: func(ctx context.Context, id, actor, reason string) (*entity.WorkflowInstance, error) {
			gotActor, gotReason = actor, reason
			return &entity.WorkflowInstance{ID: id, Status: entity.InstanceStatusCancelled}, nil
		},
	}
	s := newTestServer(engine, nil)

	w, _ := do(t, s, http.MethodPost, "/api/v1/instances/inst-1/cancel", "alice", `{"reason":"withdrawn"}`)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", gotActor)
	assert.Equal(t, "withdrawn", gotReason)

	w, _ = do(t, s, http.MethodPost, "/api/v1/instances/inst-1/cancel", "alice", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "", gotReason)
}

func TestQueries(t *testing.T) {
	var listStatus string
	var listLimit int
	var taskUser, taskStatus string
	engine := &fakeEngine{
		getFn: func(ctx context.Context, id string) (*entity.WorkflowInstance, error) {
			if id != "inst-1" {
				return nil, fmt.Errorf("%w: instance %s", domainwf.ErrNotFound, id)
			}
			return &entity.WorkflowInstance{ID: id}, nil
		},
		listFn: func(ctx context.Context, status string, limit, offset int) ([]*entity.WorkflowInstance, error) {
			listStatus, listLimit = status, limit
			return nil, nil
		},
		historyFn: func(ctx context.Context, id string) ([]*entity.HistoryEntry, error) {
			return []*entity.HistoryEntry{{ID: "h1", InstanceID: id, ActionCode: entity.HistoryWorkflowStarted}}, nil
		},
		tmplFn: func(ctx context.Context, id string) (*entity.WorkflowTemplate, error) {
			return &entity.WorkflowTemplate{ID: id, Name: "Expense"}, nil
		},
		tasksFn: func(ctx context.Context, user, status string) ([]*entity.ApprovalTask, error) {
			taskUser, taskStatus = user, status
			return nil, nil
		},
	}
	s := newTestServer(engine, nil)

	w, _ := do(t, s, http.MethodGet, "/api/v1/instances/inst-1", "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, s, http.MethodGet, "/api/v1/instances/missing", "", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, resp := do(t, s, http.MethodGet, "/api/v1/instances?status=APPROVED&limit=500", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "APPROVED", listStatus)
	assert.Equal(t, 20, listLimit)
	assert.Equal(t, []interface{}{}, resp.Data)

	w, resp = do(t, s, http.MethodGet, "/api/v1/instances/inst-1/history", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, resp.Data, 1)

	w, _ = do(t, s, http.MethodGet, "/api/v1/templates/tmpl-1", "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	w, _ = do(t, s, http.MethodGet, "/api/v1/tasks?assignee=carol&status=PENDING", "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "carol", taskUser)
	assert.Equal(t, "PENDING", taskStatus)

	w, _ = do(t, s, http.MethodGet, "/api/v1/tasks", "dave", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "dave", taskUser)

	w, _ = do(t, s, http.MethodGet, "/api/v1/tasks", "", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTriggerTick(t *testing.T) {
	s := newTestServer(&fakeEngine{}, nil)
	w, _ := do(t, s, http.MethodPost, "/api/v1/scheduler/tick", "", "")
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	ticker := &fakeTicker{result: scheduler.TickResult{Overdue: 2, Escalated: 1, Duration: 1500 * time.Millisecond}}
	s = newTestServer(&fakeEngine{}, ticker)

	w, resp := do(t, s, http.MethodPost, "/api/v1/scheduler/tick", "", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, ticker.calls)

	data := resp.Data.(map[string]interface{})
	assert.Equal(t, float64(2), data["overdue"])
	assert.Equal(t, float64(1), data["escalated"])
	assert.Equal(t, float64(1500), data["duration_ms"])
}

func TestMetricsRoute(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("approval_tasks_total 1\n"))
	})
	s := newTestServer(&fakeEngine{}, nil, WithMetricsHandler(metrics))

	w := httptest.NewRecorder()
	s.Router().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "approval_tasks_total")
}
