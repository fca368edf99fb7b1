package mqtt

import "github.com/hashicorp/go-hclog"

// message is a serialized publish held for replay after a reconnect.
type message struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer keeps the newest messages published while the broker is
// unreachable. Not safe for concurrent use.
type ringBuffer struct {
	buf     []message
	head    int
	count   int
	dropped int
	log     hclog.Logger
}

func newRingBuffer(capacity int, logger hclog.Logger) *ringBuffer {
	if capacity < 1 {
		capacity = 1
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &ringBuffer{buf: make([]message, capacity), log: logger}
}

// push appends msg, overwriting the oldest entry when full.
func (r *ringBuffer) push(msg message) {
	if r.count == len(r.buf) {
		if r.dropped == 0 {
			r.log.Warn("offline buffer full, dropping oldest", "capacity", len(r.buf))
		}
		r.dropped++
		r.buf[r.head] = msg
		r.head = (r.head + 1) % len(r.buf)
		return
	}
	r.buf[r.head] = msg
	r.head = (r.head + 1) % len(r.buf)
	r.count++
}

// drain returns the buffered messages oldest first and empties the buffer,
// along with the number dropped since the last drain.
func (r *ringBuffer) drain() ([]message, int) {
	if r.count == 0 {
		return nil, 0
	}
	out := make([]message, r.count)
	start := (r.head - r.count + len(r.buf)) % len(r.buf)
	for i := range out {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}
	dropped := r.dropped
	r.count, r.head, r.dropped = 0, 0, 0
	return out, dropped
}

func (r *ringBuffer) len() int {
	return r.count
}
