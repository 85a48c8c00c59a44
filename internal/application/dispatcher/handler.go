package dispatcher

import (
	"context"

	"github.com/garyjia/approval-engine/internal/domain/event"
)

// Handler reacts to a committed domain event. Errors are logged by the dispatcher.
type Handler func(ctx context.Context, evt *event.Event) error

// HandlerInfo contains handler metadata for debugging
type HandlerInfo struct {
	Name        string
	EventType   event.Type
	Handler     Handler
	Description string
}
