package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheus_Counters(t *testing.T) {
	p := NewPrometheus()

	p.InstanceStarted("purchase")
	p.InstanceStarted("purchase")
	p.InstanceClosed("APPROVED")
	p.TaskCompleted("REJECT")
	p.TaskMarkedOverdue()
	p.TaskEscalated()
	p.EscalationSkipped("no eligible escalation candidate")
	p.SchedulerTick(40*time.Millisecond, 2)
	p.NotificationSent("task_overdue", nil)
	p.NotificationSent("task_overdue", errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(p.instancesStarted.WithLabelValues("purchase")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.instancesClosed.WithLabelValues("APPROVED")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.tasksCompleted.WithLabelValues("REJECT")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.tasksOverdue))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.tasksEscalated))
	assert.Equal(t, 2.0, testutil.ToFloat64(p.tickFailures))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.notifications.WithLabelValues("task_overdue", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.notifications.WithLabelValues("task_overdue", "error")))
}

func TestPrometheus_Handler(t *testing.T) {
	p := NewPrometheus()
	p.TaskEscalated()

	rec := httptest.NewRecorder()
	p.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "approval_tasks_escalated_total 1"))
	assert.Contains(t, body, "go_goroutines")
}
