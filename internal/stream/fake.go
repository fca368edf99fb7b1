package stream

import (
	"errors"

	"github.com/sweeney/gatewayctl/internal/loop"
)

// FakeTransport records opened sockets so tests can drive their events.
type FakeTransport struct {
	// Sockets contains every socket opened, in order.
	Sockets []*FakeSocket
}

// NewFakeTransport creates an empty FakeTransport.
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{}
}

// Open records a new FakeSocket. No event fires until the test triggers one.
func (f *FakeTransport) Open(url string, exec loop.Executor, h Handler) Socket {
	s := &FakeSocket{URL: url, exec: exec, h: h}
	f.Sockets = append(f.Sockets, s)
	return s
}

// Last returns the most recently opened socket, or nil.
func (f *FakeTransport) Last() *FakeSocket {
	if len(f.Sockets) == 0 {
		return nil
	}
	return f.Sockets[len(f.Sockets)-1]
}

// FakeSocket is a scripted Socket.
type FakeSocket struct {
	URL string

	// Sent contains every frame passed to Send.
	Sent []string

	// SendError, if set, is returned by Send.
	SendError error

	// CloseCount counts Close calls.
	CloseCount int

	exec   loop.Executor
	h      Handler
	closed bool
}

// Send records the frame.
func (s *FakeSocket) Send(text string) error {
	if s.SendError != nil {
		return s.SendError
	}
	if s.closed {
		return ErrNotOpen
	}
	s.Sent = append(s.Sent, text)
	return nil
}

// Close marks the socket closed; later events are suppressed.
func (s *FakeSocket) Close() {
	s.CloseCount++
	s.closed = true
}

// Closed reports whether Close was called.
func (s *FakeSocket) Closed() bool {
	return s.closed
}

// Open simulates a completed handshake.
func (s *FakeSocket) Open() {
	s.deliver(func() { s.h.Opened() })
}

// Receive simulates an inbound text frame.
func (s *FakeSocket) Receive(text string) {
	s.deliver(func() { s.h.Message(text) })
}

// Fail simulates a transport error.
func (s *FakeSocket) Fail(err error) {
	if err == nil {
		err = errors.New("fake socket error")
	}
	s.deliver(func() { s.h.Errored(err) })
}

// Drop simulates the peer closing the connection.
func (s *FakeSocket) Drop() {
	s.deliver(func() { s.h.Closed(errors.New("fake socket closed by peer")) })
}

func (s *FakeSocket) deliver(fn func()) {
	s.exec.Post(func() {
		if s.closed {
			return
		}
		fn()
	})
}
