package taskqueue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultWorkers is the pool size used when none is configured.
const DefaultWorkers = 4

// DefaultDrainTimeout bounds how long Run keeps working after its context
// is cancelled.
const DefaultDrainTimeout = 10 * time.Second

// Pool executes tasks on a fixed number of worker goroutines.
//
// Submit never blocks: due tasks go to an unbounded FIFO, delayed tasks are
// held by a timer until due. Run starts the workers and blocks until its
// context is cancelled. Handlers never see that cancellation: once started,
// a task runs to completion. After cancellation the pool keeps running
// tasks, including ones submitted by handlers, until it is idle or the
// drain timeout expires. Tasks still queued or waiting on a timer at that
// point are dropped and logged, and Submit returns ErrQueueClosed.
type Pool struct {
	*registry

	workers      int
	drainTimeout time.Duration
	logger       *slog.Logger
	observer     Observer
	queue        *fifo

	mu      sync.Mutex
	timers  map[*time.Timer]Task
	pending int // submitted but not finished, including delayed
	idle    []chan struct{}
	closed  bool
}

// PoolOption configures a Pool.
type PoolOption func(*Pool)

// WithLogger sets the pool logger. Default: slog.Default().
func WithLogger(l *slog.Logger) PoolOption {
	return func(p *Pool) {
		p.logger = l
	}
}

// WithObserver sets the lifecycle observer, typically metrics.
func WithObserver(o Observer) PoolOption {
	return func(p *Pool) {
		p.observer = o
	}
}

// WithDrainTimeout sets how long Run waits for pending tasks after its
// context is cancelled. Zero drops pending tasks immediately; tasks
// already running still finish. Default: DefaultDrainTimeout.
func WithDrainTimeout(d time.Duration) PoolOption {
	return func(p *Pool) {
		p.drainTimeout = d
	}
}

// NewPool creates a pool with the given number of workers.
// workers <= 0 uses DefaultWorkers.
func NewPool(workers int, opts ...PoolOption) *Pool {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	p := &Pool{
		registry: newRegistry(),
		workers:      workers,
		drainTimeout: DefaultDrainTimeout,
		logger:       slog.Default(),
		observer:     nopObserver{},
		queue:        newFIFO(),
		timers:       make(map[*time.Timer]Task),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Submit schedules a task. Thread-safe: may be called from any goroutine,
// including from inside a running handler.
func (p *Pool) Submit(ctx context.Context, t Task) error {
	if _, ok := p.lookup(t.Name); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTask, t.Name)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrQueueClosed
	}

	p.pending++
	p.observer.TaskSubmitted(t.Name)

	if t.Delay <= 0 {
		p.queue.push(t)
		return nil
	}

	var timer *time.Timer
	timer = time.AfterFunc(t.Delay, func() {
		p.mu.Lock()
		_, live := p.timers[timer]
		delete(p.timers, timer)
		p.mu.Unlock()
		if live && !p.queue.push(t) {
			p.done()
		}
	})
	p.timers[timer] = t
	return nil
}

// Run starts the workers and blocks until ctx is cancelled and the pool
// has drained. Must be called at most once.
func (p *Pool) Run(ctx context.Context) error {
	p.logger.Info("task pool starting", "workers", p.workers)

	// Handlers run to completion regardless of ctx.
	taskCtx := context.WithoutCancel(ctx)
	stop := make(chan struct{})

	var wg sync.WaitGroup
	for i := range p.workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.work(taskCtx, stop, i)
		}()
	}

	<-ctx.Done()
	p.drain()
	p.shutdown()
	close(stop)
	wg.Wait()

	p.logger.Info("task pool stopped")
	return ctx.Err()
}

func (p *Pool) work(ctx context.Context, stop <-chan struct{}, id int) {
	for {
		t, ok := p.queue.tryPop()
		if ok {
			h, _ := p.lookup(t.Name)
			_ = execute(ctx, p.logger.With("worker", id), p.observer, h, t)
			p.done()
			continue
		}

		select {
		case <-stop:
			return
		case <-p.queue.wait():
		}
	}
}

// drain waits for pending tasks, bounded by the drain timeout.
func (p *Pool) drain() {
	if p.drainTimeout <= 0 {
		return
	}
	p.logger.Info("task pool draining", "pending", p.Pending(), "timeout", p.drainTimeout)

	ctx, cancel := context.WithTimeout(context.Background(), p.drainTimeout)
	defer cancel()
	if err := p.Wait(ctx); err != nil {
		p.logger.Warn("task pool drain timed out", "pending", p.Pending())
	}
}

// shutdown stops timers and drops tasks that never started.
func (p *Pool) shutdown() {
	p.mu.Lock()
	p.closed = true
	dropped := 0
	// A timer still in the map has not claimed its task yet.
	for timer, t := range p.timers {
		timer.Stop()
		delete(p.timers, timer)
		dropped++
		p.logger.Warn("dropping delayed task on shutdown", "task", t.Name)
	}
	p.mu.Unlock()

	for _, t := range p.queue.close() {
		dropped++
		p.logger.Warn("dropping queued task on shutdown", "task", t.Name)
	}

	if dropped > 0 {
		p.mu.Lock()
		p.pending -= dropped
		p.releaseIdle()
		p.mu.Unlock()
	}
}

func (p *Pool) done() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending--
	p.releaseIdle()
}

// releaseIdle must be called with mu held.
func (p *Pool) releaseIdle() {
	if p.pending > 0 {
		return
	}
	for _, ch := range p.idle {
		close(ch)
	}
	p.idle = nil
}

// Wait blocks until no task is queued, delayed or running, or ctx is done.
// Tasks submitted by running handlers are included, so Wait covers whole
// task chains.
func (p *Pool) Wait(ctx context.Context) error {
	p.mu.Lock()
	if p.pending == 0 {
		p.mu.Unlock()
		return nil
	}
	ch := make(chan struct{})
	p.idle = append(p.idle, ch)
	p.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of tasks submitted but not finished.
func (p *Pool) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending
}

// Len returns the number of due tasks waiting for a worker.
func (p *Pool) Len() int {
	return p.queue.len()
}
