// Package taskqueue runs named tasks outside the caller's goroutine.
//
// A Task carries a registered handler name, JSON arguments and an optional
// delay. Arguments are JSON so that a distributed broker could replace the
// in-process implementations without changing callers.
//
// Two implementations are provided:
//
//   - Pool: N workers over an unbounded FIFO. Delayed tasks are held by
//     timers and enqueued when due, so no worker ever sleeps on a delay.
//   - Inline: runs each task synchronously in Submit. Used by tests and
//     one-shot CLI commands; delays go through an injectable sleeper.
//
// Handler errors and panics are logged and never stop a worker.
package taskqueue
