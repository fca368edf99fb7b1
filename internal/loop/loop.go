// Package loop provides the single-threaded executor that owns all session
// state. Socket readers, timers and HTTP workers never touch state directly;
// they post closures which the loop runs one at a time, in order.
package loop

import (
	"context"
	"sync"
)

// Executor runs posted tasks sequentially.
type Executor interface {
	// Post queues task for execution. It returns false if the executor has
	// stopped and the task will never run.
	Post(task func()) bool
}

// Loop is an Executor backed by one goroutine.
type Loop struct {
	tasks    chan func()
	quit     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a Loop whose queue holds up to size tasks before Post blocks.
func New(size int) *Loop {
	if size < 1 {
		size = 1
	}
	return &Loop{
		tasks: make(chan func(), size),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
}

// Run executes tasks until ctx is cancelled or Stop is called.
func (l *Loop) Run(ctx context.Context) {
	defer close(l.done)
	for {
		select {
		case <-ctx.Done():
			l.Stop()
			return
		case <-l.quit:
			return
		case task := <-l.tasks:
			task()
		}
	}
}

// Post queues a task. It blocks while the queue is full, which applies
// backpressure to socket readers.
func (l *Loop) Post(task func()) bool {
	select {
	case <-l.quit:
		return false
	default:
	}
	select {
	case l.tasks <- task:
		return true
	case <-l.quit:
		return false
	}
}

// Stop ends Run. Queued tasks are discarded.
func (l *Loop) Stop() {
	l.stopOnce.Do(func() { close(l.quit) })
}

// Done is closed once Run has returned.
func (l *Loop) Done() <-chan struct{} {
	return l.done
}
