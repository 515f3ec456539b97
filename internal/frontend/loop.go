package frontend

import (
	"context"

	"github.com/coalmine/sluice/internal/queue"
)

// Loop serializes every access to a single Queue onto one goroutine, since
// the queue engine is built around a single cooperative caller and is not
// safe for concurrent use. Handlers never touch q directly; they call Do.
type Loop struct {
	q    *queue.Queue
	cmds chan func()
}

// NewLoop wraps q. Call Run in its own goroutine before serving requests.
func NewLoop(q *queue.Queue) *Loop {
	return &Loop{q: q, cmds: make(chan func(), 64)}
}

// Run processes submitted commands until ctx is cancelled. Everything it
// dequeues runs to completion before the next command starts.
func (l *Loop) Run(ctx context.Context) {
	for {
		select {
		case fn := <-l.cmds:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// Do runs fn on the loop goroutine with exclusive access to the Queue and
// blocks until it completes or ctx is cancelled first. fn must not block.
func (l *Loop) Do(ctx context.Context, fn func(q *queue.Queue)) error {
	done := make(chan struct{})
	select {
	case l.cmds <- func() { fn(l.q); close(done) }:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
