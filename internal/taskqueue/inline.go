package taskqueue

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// Sleep is the real-time Sleeper.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Inline runs each task synchronously inside Submit.
//
// Tasks submitted by a running handler run before the outer Submit returns,
// so a whole chain of follow-up tasks completes in one call.
type Inline struct {
	*registry

	logger   *slog.Logger
	observer Observer
	sleep    Sleeper
}

// InlineOption configures an Inline queue.
type InlineOption func(*Inline)

// WithSleeper replaces the real-time sleeper used for delayed tasks.
func WithSleeper(s Sleeper) InlineOption {
	return func(q *Inline) {
		q.sleep = s
	}
}

// WithInlineLogger sets the logger. Default: slog.Default().
func WithInlineLogger(l *slog.Logger) InlineOption {
	return func(q *Inline) {
		q.logger = l
	}
}

// WithInlineObserver sets the lifecycle observer.
func WithInlineObserver(o Observer) InlineOption {
	return func(q *Inline) {
		q.observer = o
	}
}

// NewInline creates a synchronous queue.
func NewInline(opts ...InlineOption) *Inline {
	q := &Inline{
		registry: newRegistry(),
		logger:   slog.Default(),
		observer: nopObserver{},
		sleep:    Sleep,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Submit runs the task before returning. Handler failures are logged, not
// returned, matching the fire-and-forget contract of Pool.
func (q *Inline) Submit(ctx context.Context, t Task) error {
	h, ok := q.lookup(t.Name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, t.Name)
	}
	q.observer.TaskSubmitted(t.Name)

	if t.Delay > 0 {
		if err := q.sleep(ctx, t.Delay); err != nil {
			return fmt.Errorf("delay task %s: %w", t.Name, err)
		}
	}

	_ = execute(ctx, q.logger, q.observer, h, t)
	return nil
}
