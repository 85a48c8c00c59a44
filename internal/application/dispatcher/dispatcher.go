// Package dispatcher delivers committed domain events to in-process handlers.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/garyjia/approval-engine/internal/domain/event"
)

// ErrClosed is returned by Dispatch and Close once the dispatcher is closed
var ErrClosed = errors.New("dispatcher is closed")

// Dispatcher routes events to registered handlers
type Dispatcher interface {
	// Subscribe registers a handler under a generated name
	Subscribe(eventType event.Type, handler Handler)

	// SubscribeNamed registers a handler under the given name
	SubscribeNamed(eventType event.Type, name string, handler Handler)

	// Unsubscribe removes every handler registered under name
	Unsubscribe(eventType event.Type, name string)

	// Dispatch runs the handlers in registration order and stops at the first error
	Dispatch(ctx context.Context, evt *event.Event) error

	// DispatchAsync runs each handler on its own goroutine. Handlers outlive the
	// caller's cancellation; use WithHandlerTimeout to bound them.
	DispatchAsync(ctx context.Context, evt *event.Event)

	// ListHandlers describes the handlers of an event type
	ListHandlers(eventType event.Type) []HandlerInfo

	// Close rejects further events and waits for in-flight async handlers
	Close() error
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type nopLogger struct{}

func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

type eventDispatcher struct {
	// mu guards handlers and closed; DispatchAsync registers goroutines with
	// wg while holding it so Close cannot start waiting in between
	mu       sync.RWMutex
	handlers map[event.Type][]HandlerInfo
	closed   bool
	wg       sync.WaitGroup

	logger         Logger
	handlerTimeout time.Duration
}

// Option configures the dispatcher
type Option func(*eventDispatcher)

// WithLogger sets a logger for the dispatcher
func WithLogger(logger Logger) Option {
	return func(d *eventDispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

// WithHandlerTimeout bounds each asynchronous handler invocation
func WithHandlerTimeout(timeout time.Duration) Option {
	return func(d *eventDispatcher) {
		d.handlerTimeout = timeout
	}
}

// NewDispatcher creates a new event dispatcher
func NewDispatcher(opts ...Option) Dispatcher {
	d := &eventDispatcher{
		handlers: make(map[event.Type][]HandlerInfo),
		logger:   nopLogger{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *eventDispatcher) Subscribe(eventType event.Type, handler Handler) {
	d.mu.Lock()
	name := fmt.Sprintf("handler-%d", len(d.handlers[eventType]))
	d.subscribeLocked(eventType, name, handler)
	d.mu.Unlock()
}

func (d *eventDispatcher) SubscribeNamed(eventType event.Type, name string, handler Handler) {
	d.mu.Lock()
	d.subscribeLocked(eventType, name, handler)
	d.mu.Unlock()
}

func (d *eventDispatcher) subscribeLocked(eventType event.Type, name string, handler Handler) {
	d.handlers[eventType] = append(d.handlers[eventType], HandlerInfo{
		Name:      name,
		EventType: eventType,
		Handler:   handler,
	})
	d.logger.Info("Handler registered", "event_type", eventType, "handler_name", name)
}

func (d *eventDispatcher) Unsubscribe(eventType event.Type, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	current := d.handlers[eventType]
	kept := make([]HandlerInfo, 0, len(current))
	for _, h := range current {
		if h.Name != name {
			kept = append(kept, h)
		}
	}
	d.handlers[eventType] = kept

	d.logger.Info("Handler unregistered", "event_type", eventType, "handler_name", name)
}

func (d *eventDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		return ErrClosed
	}
	handlers := d.handlers[evt.Type]
	d.mu.RUnlock()

	for _, h := range handlers {
		if err := d.invoke(ctx, evt, h); err != nil {
			d.logFailure("Handler error", evt, h, err)
			return fmt.Errorf("handler %s failed: %w", h.Name, err)
		}
	}
	return nil
}

func (d *eventDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	d.mu.RLock()
	if d.closed {
		d.mu.RUnlock()
		d.logger.Error("Dropping event, dispatcher is closed", "event_type", evt.Type, "event_id", evt.ID)
		return
	}
	handlers := d.handlers[evt.Type]
	d.wg.Add(len(handlers))
	d.mu.RUnlock()

	// The triggering request may finish before delivery does.
	detached := context.WithoutCancel(ctx)

	for _, h := range handlers {
		go func(h HandlerInfo) {
			defer d.wg.Done()

			hctx := detached
			if d.handlerTimeout > 0 {
				var cancel context.CancelFunc
				hctx, cancel = context.WithTimeout(detached, d.handlerTimeout)
				defer cancel()
			}

			if err := d.invoke(hctx, evt, h); err != nil {
				d.logFailure("Async handler error", evt, h, err)
			}
		}(h)
	}
}

func (d *eventDispatcher) ListHandlers(eventType event.Type) []HandlerInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()

	handlers := d.handlers[eventType]
	result := make([]HandlerInfo, len(handlers))
	for i, h := range handlers {
		// the function itself is not exposed
		result[i] = HandlerInfo{
			Name:        h.Name,
			EventType:   h.EventType,
			Description: h.Description,
		}
	}
	return result
}

func (d *eventDispatcher) Close() error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return ErrClosed
	}
	d.closed = true
	d.mu.Unlock()

	d.logger.Info("Closing dispatcher, waiting for async handlers")
	d.wg.Wait()
	d.logger.Info("Dispatcher closed")
	return nil
}

// invoke runs a handler and converts a panic into an error
func (d *eventDispatcher) invoke(ctx context.Context, evt *event.Event, h HandlerInfo) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Handler(ctx, evt)
}

func (d *eventDispatcher) logFailure(msg string, evt *event.Event, h HandlerInfo, err error) {
	d.logger.Error(msg,
		"event_type", evt.Type,
		"event_id", evt.ID,
		"instance_id", evt.InstanceID,
		"handler_name", h.Name,
		"error", err,
	)
}
