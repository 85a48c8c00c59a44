package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/approval-engine/internal/application/workflow"
	"github.com/garyjia/approval-engine/internal/domain/entity"
	domainwf "github.com/garyjia/approval-engine/internal/domain/workflow"
)

// HeaderUserID carries the acting user's id
const HeaderUserID = "X-User-ID"

// Handlers contains all HTTP request handlers
type Handlers struct {
	engine  workflow.WorkflowEngine
	ticker  TickRunner
	version string
	logger  Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(engine workflow.WorkflowEngine, ticker TickRunner, version string, logger Logger) *Handlers {
	return &Handlers{
		engine:  engine,
		ticker:  ticker,
		version: version,
		logger:  logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// CreateInstanceBody is the payload of POST /api/v1/instances
type CreateInstanceBody struct {
	TemplateID  string     `json:"template_id" binding:"required"`
	DocumentRef string     `json:"document_ref" binding:"required"`
	Priority    string     `json:"priority"`
	DueDate     *time.Time `json:"due_date"`
	Comments    string     `json:"comments"`
}

// TaskActionBody is the payload of POST /api/v1/tasks/:id/actions
type TaskActionBody struct {
	Action   string `json:"action" binding:"required"`
	Comments string `json:"comments"`
}

// CancelBody is the payload of POST /api/v1/instances/:id/cancel
type CancelBody struct {
	Reason string `json:"reason"`
}

// ListInstancesQuery represents query parameters for listing instances
type ListInstancesQuery struct {
	Status string `form:"status"`
	Limit  int    `form:"limit"`
	Offset int    `form:"offset"`
}

// TickResponse reports a manual scheduler pass
type TickResponse struct {
	Overdue    int   `json:"overdue"`
	Escalated  int   `json:"escalated"`
	Skipped    int   `json:"skipped"`
	Failed     int   `json:"failed"`
	DurationMS int64 `json:"duration_ms"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   h.version,
		},
	})
}

// GetTemplate handles GET /api/v1/templates/:id
func (h *Handlers) GetTemplate(c *gin.Context) {
	tmpl, err := h.engine.GetTemplate(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "Failed to get template", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: tmpl})
}

// CreateInstance handles POST /api/v1/instances
func (h *Handlers) CreateInstance(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var body CreateInstanceBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	instance, err := h.engine.CreateInstance(c.Request.Context(), workflow.CreateInstanceRequest{
		TemplateID:  body.TemplateID,
		DocumentRef: body.DocumentRef,
		Initiator:   actor,
		Priority:    body.Priority,
		DueDate:     body.DueDate,
		Comments:    body.Comments,
	})
	if err != nil {
		h.fail(c, "Failed to create instance", err)
		return
	}

	h.logger.Info("Instance created", "instance_id", instance.ID, "template_id", instance.TemplateID)
	c.JSON(http.StatusCreated, Response{Success: true, Data: instance})
}

// ListInstances handles GET /api/v1/instances
func (h *Handlers) ListInstances(c *gin.Context) {
	var q ListInstancesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		h.badRequest(c, "invalid query parameters", err)
		return
	}

	if q.Limit <= 0 || q.Limit > 100 {
		q.Limit = 20
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	instances, err := h.engine.ListInstances(c.Request.Context(), q.Status, q.Limit, q.Offset)
	if err != nil {
		h.fail(c, "Failed to list instances", err)
		return
	}
	if instances == nil {
		instances = []*entity.WorkflowInstance{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: instances})
}

// GetInstance handles GET /api/v1/instances/:id
func (h *Handlers) GetInstance(c *gin.Context) {
	instance, err := h.engine.GetInstance(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "Failed to get instance", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: instance})
}

// GetHistory handles GET /api/v1/instances/:id/history
func (h *Handlers) GetHistory(c *gin.Context) {
	entries, err := h.engine.GetHistory(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.fail(c, "Failed to get history", err)
		return
	}
	if entries == nil {
		entries = []*entity.HistoryEntry{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: entries})
}

// CancelInstance handles POST /api/v1/instances/:id/cancel
func (h *Handlers) CancelInstance(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var body CancelBody
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&body); err != nil {
			h.badRequest(c, "invalid request body", err)
			return
		}
	}

	instance, err := h.engine.CancelInstance(c.Request.Context(), c.Param("id"), actor, body.Reason)
	if err != nil {
		h.fail(c, "Failed to cancel instance", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: instance})
}

// ListTasks handles GET /api/v1/tasks?assignee=&status=
func (h *Handlers) ListTasks(c *gin.Context) {
	assignee := c.Query("assignee")
	if assignee == "" {
		assignee = c.GetHeader(HeaderUserID)
	}
	if assignee == "" {
		h.badRequest(c, "assignee is required", nil)
		return
	}

	tasks, err := h.engine.ListTasksForAssignee(c.Request.Context(), assignee, c.Query("status"))
	if err != nil {
		h.fail(c, "Failed to list tasks", err)
		return
	}
	if tasks == nil {
		tasks = []*entity.ApprovalTask{}
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: tasks})
}

// SubmitTaskAction handles POST /api/v1/tasks/:id/actions
func (h *Handlers) SubmitTaskAction(c *gin.Context) {
	actor, ok := h.actor(c)
	if !ok {
		return
	}

	var body TaskActionBody
	if err := c.ShouldBindJSON(&body); err != nil {
		h.badRequest(c, "invalid request body", err)
		return
	}

	result, err := h.engine.SubmitTaskAction(c.Request.Context(), workflow.TaskActionRequest{
		TaskID:   c.Param("id"),
		Actor:    actor,
		Action:   body.Action,
		Comments: body.Comments,
	})
	if err != nil {
		h.fail(c, "Failed to submit task action", err)
		return
	}
	c.JSON(http.StatusOK, Response{Success: true, Data: result})
}

// TriggerTick handles POST /api/v1/scheduler/tick
func (h *Handlers) TriggerTick(c *gin.Context) {
	if h.ticker == nil {
		c.JSON(http.StatusServiceUnavailable, Response{Success: false, Error: "scheduler is not configured"})
		return
	}

	result := h.ticker.Tick(c.Request.Context())
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: TickResponse{
			Overdue:    result.Overdue,
			Escalated:  result.Escalated,
			Skipped:    result.Skipped,
			Failed:     result.Failed,
			DurationMS: result.Duration.Milliseconds(),
		},
	})
}

func (h *Handlers) actor(c *gin.Context) (string, bool) {
	actor := c.GetHeader(HeaderUserID)
	if actor == "" {
		h.badRequest(c, "missing "+HeaderUserID+" header", nil)
		return "", false
	}
	return actor, true
}

func (h *Handlers) badRequest(c *gin.Context, msg string, err error) {
	if err != nil {
		h.logger.Error("Bad request", "path", c.Request.URL.Path, "error", err)
	}
	c.JSON(http.StatusBadRequest, Response{Success: false, Error: msg})
}

func (h *Handlers) fail(c *gin.Context, msg string, err error) {
	status := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error(msg, "path", c.Request.URL.Path, "error", err)
		c.JSON(status, Response{Success: false, Error: "internal error"})
		return
	}
	c.JSON(status, Response{Success: false, Error: err.Error()})
}

// StatusFor maps engine errors to HTTP status codes
func StatusFor(err error) int {
	switch {
	case errors.Is(err, domainwf.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domainwf.ErrConfiguration):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domainwf.ErrInvalidState),
		errors.Is(err, domainwf.ErrConflict),
		errors.Is(err, domainwf.ErrInvalidTransition),
		errors.Is(err, domainwf.ErrGuardFailed):
		return http.StatusConflict
	case errors.Is(err, domainwf.ErrAuthorization):
		return http.StatusForbidden
	case errors.Is(err, domainwf.ErrInvalidArgument):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
