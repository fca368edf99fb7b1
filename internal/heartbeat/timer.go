// Package heartbeat provides the restartable one-shot deadline used for the
// log socket's ping, pong-timeout and reconnect delays.
package heartbeat

import (
	"time"

	"github.com/sweeney/gatewayctl/internal/clock"
	"github.com/sweeney/gatewayctl/internal/loop"
)

// Timer is a restartable one-shot delay. At most one deadline is outstanding:
// Start cancels the previous one before scheduling a new one.
//
// Start, Stop and Active must be called from the executor's goroutine. The
// fire callback also runs there.
type Timer struct {
	clock   clock.Clock
	exec    loop.Executor
	delay   time.Duration
	fire    func()
	pending clock.Timer
	gen     uint64
}

// New creates a stopped Timer that calls fire on exec after delay.
func New(c clock.Clock, exec loop.Executor, delay time.Duration, fire func()) *Timer {
	return &Timer{clock: c, exec: exec, delay: delay, fire: fire}
}

// Start (re)arms the deadline.
func (t *Timer) Start() {
	t.Stop()
	gen := t.gen
	t.pending = t.clock.AfterFunc(t.delay, func() {
		t.exec.Post(func() { t.expire(gen) })
	})
}

// Stop disarms the deadline. A firing that was already queued on the
// executor is discarded.
func (t *Timer) Stop() {
	if t.pending != nil {
		t.pending.Stop()
		t.pending = nil
	}
	t.gen++
}

// Active reports whether a deadline is outstanding.
func (t *Timer) Active() bool {
	return t.pending != nil
}

// Delay returns the configured delay.
func (t *Timer) Delay() time.Duration {
	return t.delay
}

func (t *Timer) expire(gen uint64) {
	if gen != t.gen || t.pending == nil {
		return
	}
	t.pending = nil
	t.gen++
	t.fire()
}
