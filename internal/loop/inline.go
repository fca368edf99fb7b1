package loop

import "sync"

// Inline is an Executor that runs tasks on the posting goroutine.
// Tasks posted while another task is running are queued and run after it,
// so handlers never re-enter each other. Intended for tests.
type Inline struct {
	mu      sync.Mutex
	queue   []func()
	running bool
}

// Post runs task, or queues it if a task is already running.
func (e *Inline) Post(task func()) bool {
	e.mu.Lock()
	e.queue = append(e.queue, task)
	if e.running {
		e.mu.Unlock()
		return true
	}
	e.running = true
	for len(e.queue) > 0 {
		next := e.queue[0]
		e.queue = e.queue[1:]
		e.mu.Unlock()
		next()
		e.mu.Lock()
	}
	e.running = false
	e.mu.Unlock()
	return true
}
