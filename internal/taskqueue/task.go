package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"
)

// ErrQueueClosed is returned by Submit after the queue has shut down.
var ErrQueueClosed = errors.New("task queue closed")

// ErrUnknownTask is returned by Submit for a task name with no handler.
var ErrUnknownTask = errors.New("unknown task")

// Task is a unit of deferred work.
type Task struct {
	Name  string          `json:"name"`
	Args  json.RawMessage `json:"args"`
	Delay time.Duration   `json:"delay,omitempty"`
}

// NewTask marshals args into a Task.
func NewTask(name string, args any, delay time.Duration) (Task, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return Task{}, fmt.Errorf("marshal args for task %s: %w", name, err)
	}
	return Task{Name: name, Args: raw, Delay: delay}, nil
}

// Handler executes a task's arguments.
type Handler func(ctx context.Context, args json.RawMessage) error

// Queue accepts tasks for asynchronous execution.
type Queue interface {
	// Submit schedules t and returns without waiting for it to run.
	Submit(ctx context.Context, t Task) error
}

// Registrar is a Queue that handlers can be registered on.
// Pool and Inline both satisfy it.
type Registrar interface {
	Queue
	Register(name string, h Handler)
}

// Observer is notified about task lifecycle events. Used for metrics.
type Observer interface {
	TaskSubmitted(name string)
	TaskFinished(name string, elapsed time.Duration, err error)
}

type nopObserver struct{}

func (nopObserver) TaskSubmitted(string)                       {}
func (nopObserver) TaskFinished(string, time.Duration, error) {}

// registry maps task names to handlers.
type registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func newRegistry() *registry {
	return &registry{handlers: make(map[string]Handler)}
}

// Register binds a handler to a task name. A later registration for the
// same name replaces the earlier one.
func (r *registry) Register(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[name] = h
}

func (r *registry) lookup(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[name]
	return h, ok
}

// execute runs one task, converting a handler panic into an error.
// Errors are logged here; callers only use the return value for metrics.
func execute(ctx context.Context, logger *slog.Logger, obs Observer, h Handler, t Task) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", t.Name, r)
			logger.Error("task panicked",
				"task", t.Name,
				"panic", r,
				"stack", string(debug.Stack()),
			)
		} else if err != nil {
			logger.Error("task failed",
				"task", t.Name,
				"error", err,
			)
		}
		obs.TaskFinished(t.Name, time.Since(start), err)
	}()

	logger.Debug("running task", "task", t.Name)
	return h(ctx, t.Args)
}
