package event

import (
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/approval-engine/internal/domain/entity"
)

// Payload keys
const (
	KeyTask             = "task"
	KeyAssignee         = "assignee"
	KeyPreviousAssignee = "previous_assignee"
	KeyStatus           = "status"
	KeyActor            = "actor"
)

// Event represents a domain event emitted after a state change has committed
type Event struct {
	ID            string                 `json:"id"`
	Type          Type                   `json:"type"`
	InstanceID    string                 `json:"instance_id"`
	TaskID        string                 `json:"task_id,omitempty"`
	Payload       map[string]interface{} `json:"payload"`
	Timestamp     time.Time              `json:"timestamp"`
	CorrelationID string                 `json:"correlation_id"`
}

// NewEvent creates a domain event stamped at the given time
func NewEvent(eventType Type, instanceID, taskID string, at time.Time, payload map[string]interface{}) *Event {
	return NewEventWithCorrelation(eventType, instanceID, taskID, at, payload, uuid.NewString())
}

// NewEventWithCorrelation creates an event linked to a correlation chain
func NewEventWithCorrelation(eventType Type, instanceID, taskID string, at time.Time, payload map[string]interface{}, correlationID string) *Event {
	if payload == nil {
		payload = make(map[string]interface{})
	}
	return &Event{
		ID:            uuid.NewString(),
		Type:          eventType,
		InstanceID:    instanceID,
		TaskID:        taskID,
		Payload:       payload,
		Timestamp:     at,
		CorrelationID: correlationID,
	}
}

// NewTaskEvent creates an event carrying a snapshot of the task
func NewTaskEvent(eventType Type, task *entity.ApprovalTask, at time.Time, correlationID string) *Event {
	snapshot := *task
	return NewEventWithCorrelation(eventType, task.InstanceID, task.ID, at, map[string]interface{}{
		KeyTask:     snapshot,
		KeyAssignee: task.AssignedTo,
	}, correlationID)
}

// WithPayload returns a new Event with an added payload key-value pair
func (e *Event) WithPayload(key string, value interface{}) *Event {
	newPayload := make(map[string]interface{}, len(e.Payload)+1)
	for k, v := range e.Payload {
		newPayload[k] = v
	}
	newPayload[key] = value

	copied := *e
	copied.Payload = newPayload
	return &copied
}

// Task returns the task snapshot carried by the event
func (e *Event) Task() (*entity.ApprovalTask, bool) {
	if task, ok := e.Payload[KeyTask].(entity.ApprovalTask); ok {
		return &task, true
	}
	return nil, false
}

// GetPayloadString retrieves a string value from the payload
func (e *Event) GetPayloadString(key string) string {
	if val, ok := e.Payload[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}
