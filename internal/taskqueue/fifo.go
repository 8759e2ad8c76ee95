package taskqueue

import "sync"

// fifo is a thread-safe unbounded FIFO of tasks.
//
// Unbounded so that handlers can submit follow-up tasks without blocking a
// worker. Waiters select on the signal channel for context-aware waiting.
type fifo struct {
	mu     sync.Mutex
	tasks  []Task
	closed bool
	signal chan struct{} // buffered, size 1
}

func newFIFO() *fifo {
	return &fifo{
		tasks:  make([]Task, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// push appends a task. Returns false if the FIFO is closed.
func (q *fifo) push(t Task) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.tasks = append(q.tasks, t)
	q.notify()
	return true
}

// tryPop removes the front task without blocking.
func (q *fifo) tryPop() (Task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.tasks) == 0 {
		return Task{}, false
	}

	t := q.tasks[0]
	// Release the args buffer held by the backing array.
	q.tasks[0] = Task{}

	if len(q.tasks) == 1 {
		q.tasks = q.tasks[:0]
	} else {
		q.tasks = q.tasks[1:]
		// More work left: wake another worker, the signal coalesces.
		q.notify()
	}

	return t, true
}

// notify must be called with mu held.
func (q *fifo) notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// wait returns a channel that signals when tasks may be available.
func (q *fifo) wait() <-chan struct{} {
	return q.signal
}

func (q *fifo) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// close rejects further pushes and returns the tasks that were never popped.
func (q *fifo) close() []Task {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	q.closed = true
	dropped := q.tasks
	q.tasks = nil
	return dropped
}
