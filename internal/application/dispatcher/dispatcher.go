package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/garyjia/vendor-lifecycle/internal/domain/event"
)

// ErrClosed is returned when dispatching on a closed dispatcher
var ErrClosed = errors.New("dispatcher is closed")

// Dispatcher routes committed domain events to subscribers
type Dispatcher interface {
	// Subscribe registers a handler for an event type
	Subscribe(eventType event.Type, handler Handler)

	// SubscribeNamed registers a handler under a name, replacing any handler with the same name
	SubscribeNamed(eventType event.Type, name, description string, handler Handler)

	// Unsubscribe removes a handler by name
	Unsubscribe(eventType event.Type, name string)

	// Dispatch runs handlers in subscription order and stops at the first error
	Dispatch(ctx context.Context, evt *event.Event) error

	// DispatchAsync runs every handler in its own goroutine without waiting
	DispatchAsync(ctx context.Context, evt *event.Event)

	// ListHandlers returns handler metadata for an event type
	ListHandlers(eventType event.Type) []HandlerInfo

	// Close waits for async handlers and refuses further events
	Close() error
}

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type eventDispatcher struct {
	mu       sync.RWMutex
	handlers map[event.Type][]HandlerInfo
	logger   Logger
	timeout  time.Duration

	wg     sync.WaitGroup
	closed atomic.Bool
}

// Option configures the dispatcher
type Option func(*eventDispatcher)

// WithLogger sets a logger for the dispatcher
func WithLogger(logger Logger) Option {
	return func(d *eventDispatcher) {
		d.logger = logger
	}
}

// WithHandlerTimeout bounds each async handler run
func WithHandlerTimeout(timeout time.Duration) Option {
	return func(d *eventDispatcher) {
		d.timeout = timeout
	}
}

// NewDispatcher creates a new event dispatcher
func NewDispatcher(opts ...Option) Dispatcher {
	d := &eventDispatcher{
		handlers: make(map[event.Type][]HandlerInfo),
		timeout:  30 * time.Second,
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

// Subscribe registers a handler under a generated name
func (d *eventDispatcher) Subscribe(eventType event.Type, handler Handler) {
	d.mu.RLock()
	name := fmt.Sprintf("%s#%d", eventType, len(d.handlers[eventType]))
	d.mu.RUnlock()

	d.SubscribeNamed(eventType, name, "", handler)
}

// SubscribeNamed registers a handler under a name
func (d *eventDispatcher) SubscribeNamed(eventType event.Type, name, description string, handler Handler) {
	d.mu.Lock()
	defer d.mu.Unlock()

	info := HandlerInfo{
		Name:        name,
		EventType:   eventType,
		Handler:     handler,
		Description: description,
	}

	handlers := d.handlers[eventType]
	for i := range handlers {
		if handlers[i].Name == name {
			handlers[i] = info
			d.log("Handler replaced", "event_type", eventType, "handler_name", name)
			return
		}
	}
	d.handlers[eventType] = append(handlers, info)

	d.log("Handler registered", "event_type", eventType, "handler_name", name)
}

// Unsubscribe removes a handler by name
func (d *eventDispatcher) Unsubscribe(eventType event.Type, name string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	handlers := d.handlers[eventType]
	filtered := make([]HandlerInfo, 0, len(handlers))
	for _, h := range handlers {
		if h.Name != name {
			filtered = append(filtered, h)
		}
	}
	d.handlers[eventType] = filtered

	d.log("Handler unregistered", "event_type", eventType, "handler_name", name)
}

func (d *eventDispatcher) snapshot(eventType event.Type) []HandlerInfo {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]HandlerInfo(nil), d.handlers[eventType]...)
}

// Dispatch runs handlers synchronously
func (d *eventDispatcher) Dispatch(ctx context.Context, evt *event.Event) error {
	if d.closed.Load() {
		return ErrClosed
	}
	if !evt.Type.IsValid() {
		return fmt.Errorf("unknown event type %q", evt.Type)
	}

	for _, info := range d.snapshot(evt.Type) {
		if err := d.safeExecute(ctx, evt, info); err != nil {
			d.logError("Handler error", evt, info, err)
			return fmt.Errorf("handler %s failed: %w", info.Name, err)
		}
	}

	return nil
}

// DispatchAsync runs handlers in the background
func (d *eventDispatcher) DispatchAsync(ctx context.Context, evt *event.Event) {
	if d.closed.Load() {
		if d.logger != nil {
			d.logger.Error("Cannot dispatch async event, dispatcher is closed",
				"event_type", evt.Type,
				"event_id", evt.ID,
			)
		}
		return
	}

	for _, info := range d.snapshot(evt.Type) {
		d.wg.Add(1)
		go func(h HandlerInfo) {
			defer d.wg.Done()

			runCtx := ctx
			if d.timeout > 0 {
				var cancel context.CancelFunc
				runCtx, cancel = context.WithTimeout(ctx, d.timeout)
				defer cancel()
			}

			if err := d.safeExecute(runCtx, evt, h); err != nil {
				d.logError("Async handler error", evt, h, err)
			}
		}(info)
	}
}

// ListHandlers returns handler metadata without the handler functions
func (d *eventDispatcher) ListHandlers(eventType event.Type) []HandlerInfo {
	handlers := d.snapshot(eventType)
	for i := range handlers {
		handlers[i].Handler = nil
	}
	return handlers
}

// Close waits for async handlers to complete
func (d *eventDispatcher) Close() error {
	if !d.closed.CompareAndSwap(false, true) {
		return fmt.Errorf("dispatcher already closed")
	}

	d.log("Closing dispatcher, waiting for async handlers")
	d.wg.Wait()
	d.log("Dispatcher closed")

	return nil
}

// safeExecute runs a handler with panic recovery
func (d *eventDispatcher) safeExecute(ctx context.Context, evt *event.Event, info HandlerInfo) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()

	return info.Handler(ctx, evt)
}

func (d *eventDispatcher) log(msg string, keysAndValues ...interface{}) {
	if d.logger != nil {
		d.logger.Info(msg, keysAndValues...)
	}
}

func (d *eventDispatcher) logError(msg string, evt *event.Event, info HandlerInfo, err error) {
	if d.logger != nil {
		d.logger.Error(msg,
			"event_type", evt.Type,
			"event_id", evt.ID,
			"subject_key", evt.SubjectKey,
			"handler_name", info.Name,
			"error", err,
		)
	}
}
