package channel

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/sweeney/gatewayctl/internal/clock"
	"github.com/sweeney/gatewayctl/internal/loop"
	"github.com/sweeney/gatewayctl/internal/stream"
)

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

type harness struct {
	ch        *Channel
	clk       *clock.Fake
	tr        *stream.FakeTransport
	statuses  []Status
	messages  []string
	connected int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clk: clock.NewFake(epoch),
		tr:  stream.NewFakeTransport(),
	}
	h.ch = New(Config{URL: "ws://gw1.local:81/"}, h.tr, h.clk, &loop.Inline{}, Callbacks{
		OnMessage: func(text string) { h.messages = append(h.messages, text) },
		OnStatus:  func(s Status) { h.statuses = append(h.statuses, s) },
		OnConnect: func() { h.connected++ },
	}, nil)
	return h
}

// open starts the channel and completes the first handshake.
func (h *harness) open(t *testing.T) *stream.FakeSocket {
	t.Helper()
	h.ch.Start()
	sock := h.tr.Last()
	if sock == nil {
		t.Fatal("Start did not open a socket")
	}
	sock.Open()
	return sock
}

func (h *harness) labels() []string {
	out := make([]string, len(h.statuses))
	for i, s := range h.statuses {
		out[i] = s.Label
	}
	return out
}

func (h *harness) count(state State) int {
	n := 0
	for _, s := range h.statuses {
		if s.State == state {
			n++
		}
	}
	return n
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestStartConnects(t *testing.T) {
	h := newHarness(t)
	h.open(t)

	want := []string{LabelConnecting, LabelConnected}
	if got := h.labels(); !equalStrings(got, want) {
		t.Errorf("labels: got %v, want %v", got, want)
	}
	if h.ch.State() != StateConnected {
		t.Errorf("state: got %v, want %v", h.ch.State(), StateConnected)
	}
	if h.connected != 1 {
		t.Errorf("OnConnect calls: got %d, want 1", h.connected)
	}
	if h.tr.Last().URL != "ws://gw1.local:81/" {
		t.Errorf("url: got %q", h.tr.Last().URL)
	}
}

func TestPingSentAfterInterval(t *testing.T) {
	h := newHarness(t)
	sock := h.open(t)

	h.clk.Advance(DefaultPingInterval - time.Millisecond)
	if len(sock.Sent) != 0 {
		t.Fatalf("ping sent early: %v", sock.Sent)
	}

	h.clk.Advance(time.Millisecond)
	if len(sock.Sent) != 1 || sock.Sent[0] != PingToken {
		t.Fatalf("sent: got %v, want [%s]", sock.Sent, PingToken)
	}
	if h.ch.State() != StateAwaitingPong {
		t.Errorf("state: got %v, want %v", h.ch.State(), StateAwaitingPong)
	}
}

func TestPongWithinWindowNeverBreaks(t *testing.T) {
	h := newHarness(t)
	sock := h.open(t)

	for i := 0; i < 20; i++ {
		h.clk.Advance(DefaultPingInterval)
		h.clk.Advance(DefaultPongTimeout - time.Millisecond)
		sock.Receive(PongToken)
	}

	if n := h.count(StateBroken); n != 0 {
		t.Errorf("broken transitions: got %d, want 0", n)
	}
	if len(h.tr.Sockets) != 1 {
		t.Errorf("sockets opened: got %d, want 1", len(h.tr.Sockets))
	}
	if len(sock.Sent) != 20 {
		t.Errorf("pings sent: got %d, want 20", len(sock.Sent))
	}
	if len(h.messages) != 0 {
		t.Errorf("pong leaked to message sink: %v", h.messages)
	}
	if h.ch.State() != StateConnected {
		t.Errorf("state: got %v, want %v", h.ch.State(), StateConnected)
	}
}

func TestMissedPongBreaksAndReconnects(t *testing.T) {
	h := newHarness(t)
	first := h.open(t)
	h.statuses = nil

	h.clk.Advance(DefaultPingInterval)
	h.clk.Advance(DefaultPongTimeout)

	want := []string{LabelAwaitingPong, LabelBroken, LabelConnecting}
	if got := h.labels(); !equalStrings(got, want) {
		t.Errorf("labels: got %v, want %v", got, want)
	}
	if first.CloseCount != 1 {
		t.Errorf("first socket closed: got %d times, want 1", first.CloseCount)
	}
	if len(h.tr.Sockets) != 2 {
		t.Fatalf("sockets opened: got %d, want 2", len(h.tr.Sockets))
	}

	// Late pong on the abandoned socket is suppressed.
	first.Receive(PongToken)
	if h.ch.State() != StateConnecting {
		t.Errorf("state after stale pong: got %v, want %v", h.ch.State(), StateConnecting)
	}

	h.tr.Last().Open()
	if h.connected != 2 {
		t.Errorf("OnConnect calls: got %d, want 2", h.connected)
	}
	if h.clk.Pending() != 1 {
		t.Errorf("pending timers: got %d, want 1 (ping)", h.clk.Pending())
	}
}

func TestMissedPongOncePerHeartbeat(t *testing.T) {
	h := newHarness(t)
	h.open(t)

	for i := 0; i < 3; i++ {
		h.clk.Advance(DefaultPingInterval + DefaultPongTimeout)
		h.tr.Last().Open()
	}

	if n := h.count(StateBroken); n != 3 {
		t.Errorf("broken transitions: got %d, want 3", n)
	}
	for i, s := range h.tr.Sockets[:3] {
		if s.CloseCount != 1 {
			t.Errorf("socket %d closed %d times, want 1", i, s.CloseCount)
		}
	}
}

func TestFailureBeforeOpenBacksOff(t *testing.T) {
	h := newHarness(t)
	h.ch.Start()
	first := h.tr.Last()
	first.Fail(errors.New("connection refused"))

	if got := h.statuses[len(h.statuses)-1].Label; got != LabelError {
		t.Errorf("label: got %q, want %q", got, LabelError)
	}
	if first.CloseCount != 1 {
		t.Errorf("CloseCount: got %d, want 1", first.CloseCount)
	}

	h.clk.Advance(DefaultRetryDelay - time.Millisecond)
	if len(h.tr.Sockets) != 1 {
		t.Fatalf("reconnected before backoff elapsed")
	}
	h.clk.Advance(time.Millisecond)
	if len(h.tr.Sockets) != 2 {
		t.Fatalf("sockets opened: got %d, want 2", len(h.tr.Sockets))
	}
	if h.ch.State() != StateConnecting {
		t.Errorf("state: got %v, want %v", h.ch.State(), StateConnecting)
	}
}

func TestDropWhileConnectedBacksOff(t *testing.T) {
	h := newHarness(t)
	sock := h.open(t)
	sock.Drop()

	if got := h.statuses[len(h.statuses)-1].Label; got != LabelDisconnected {
		t.Errorf("label: got %q, want %q", got, LabelDisconnected)
	}
	if h.clk.Pending() != 1 {
		t.Errorf("pending timers: got %d, want 1 (retry)", h.clk.Pending())
	}

	h.clk.Advance(DefaultRetryDelay)
	h.tr.Last().Open()
	if h.ch.State() != StateConnected {
		t.Errorf("state: got %v, want %v", h.ch.State(), StateConnected)
	}
}

func TestSendFailureBreaks(t *testing.T) {
	h := newHarness(t)
	sock := h.open(t)
	sock.SendError = errors.New("broken pipe")

	h.clk.Advance(DefaultPingInterval)

	if n := h.count(StateBroken); n != 1 {
		t.Errorf("broken transitions: got %d, want 1", n)
	}
	if len(h.tr.Sockets) != 2 {
		t.Errorf("sockets opened: got %d, want 2", len(h.tr.Sockets))
	}
}

func TestCloseInEveryState(t *testing.T) {
	setups := map[string]func(t *testing.T, h *harness){
		"connecting": func(t *testing.T, h *harness) { h.ch.Start() },
		"connected":  func(t *testing.T, h *harness) { h.open(t) },
		"awaiting_pong": func(t *testing.T, h *harness) {
			h.open(t)
			h.clk.Advance(DefaultPingInterval)
		},
		"backoff": func(t *testing.T, h *harness) {
			h.ch.Start()
			h.tr.Last().Fail(nil)
		},
		"never_started": func(t *testing.T, h *harness) {},
	}

	for name, setup := range setups {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			setup(t, h)

			h.ch.Close()
			h.ch.Close()

			if h.clk.Pending() != 0 {
				t.Errorf("pending timers: got %d, want 0", h.clk.Pending())
			}
			if n := h.count(StateClosed); n != 1 {
				t.Errorf("Closed statuses: got %d, want 1", n)
			}
			if h.ch.State() != StateClosed {
				t.Errorf("state: got %v, want %v", h.ch.State(), StateClosed)
			}
			for i, s := range h.tr.Sockets {
				if !s.Closed() {
					t.Errorf("socket %d left open", i)
				}
			}

			before := len(h.statuses)
			h.clk.Advance(time.Minute)
			if len(h.tr.Sockets) > 0 {
				h.tr.Last().Receive("late line")
				h.tr.Last().Drop()
			}
			if len(h.statuses) != before || len(h.messages) != 0 {
				t.Errorf("callbacks after Close: statuses %v, messages %v", h.statuses[before:], h.messages)
			}
		})
	}
}

func TestRapidLinesInOrder(t *testing.T) {
	h := newHarness(t)
	sock := h.open(t)

	var want []string
	for i := 0; i < 500; i++ {
		line := fmt.Sprintf("line %03d\n", i)
		want = append(want, line)
		sock.Receive(line)
		if i%100 == 50 {
			sock.Receive(PongToken)
		}
	}

	if !equalStrings(h.messages, want) {
		t.Fatalf("got %d messages, want %d in order", len(h.messages), len(want))
	}
}

func TestBareNewlineForwarded(t *testing.T) {
	h := newHarness(t)
	sock := h.open(t)
	sock.Receive("\n")
	if len(h.messages) != 1 || h.messages[0] != "\n" {
		t.Errorf("messages: got %q, want [\"\\n\"]", h.messages)
	}
}

func TestRetarget(t *testing.T) {
	h := newHarness(t)
	first := h.open(t)

	h.ch.Retarget("ws://gw2.local:81/")

	if first.CloseCount != 1 {
		t.Errorf("old socket CloseCount: got %d, want 1", first.CloseCount)
	}
	if got := h.tr.Last().URL; got != "ws://gw2.local:81/" {
		t.Errorf("url: got %q", got)
	}
	if h.ch.URL() != "ws://gw2.local:81/" {
		t.Errorf("URL(): got %q", h.ch.URL())
	}
	h.tr.Last().Open()
	if h.ch.State() != StateConnected {
		t.Errorf("state: got %v, want %v", h.ch.State(), StateConnected)
	}
}

func TestCloseOnRealLoop(t *testing.T) {
	l := loop.New(16)
	go l.Run(t.Context())
	defer l.Stop()

	tr := stream.NewFakeTransport()
	closed := 0
	ch := New(Config{URL: "ws://x"}, tr, clock.NewFake(epoch), l, Callbacks{
		OnStatus: func(s Status) {
			if s.State == StateClosed {
				closed++
			}
		},
	}, nil)
	ch.Start()
	ch.Close()
	<-ch.Done()

	if closed != 1 {
		t.Errorf("Closed statuses: got %d, want 1", closed)
	}
}

func TestCloseFromCallback(t *testing.T) {
	l := loop.New(16)
	go l.Run(t.Context())
	defer l.Stop()

	var ch *Channel
	var labels []string
	returned := make(chan struct{})
	ch = New(Config{URL: "ws://x"}, stream.NewFakeTransport(), clock.NewFake(epoch), l, Callbacks{
		OnStatus: func(s Status) {
			labels = append(labels, s.Label)
			if s.State == StateConnecting {
				ch.Close()
				close(returned)
			}
		},
	}, nil)
	ch.Start()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("Close blocked inside a callback")
	}
	select {
	case <-ch.Done():
	case <-time.After(time.Second):
		t.Fatal("Closed was never emitted")
	}
	want := []string{LabelConnecting, LabelClosed}
	if len(labels) != len(want) || labels[0] != want[0] || labels[1] != want[1] {
		t.Errorf("labels: got %v, want %v", labels, want)
	}
}

func TestCloseAfterLoopStopped(t *testing.T) {
	l := loop.New(1)
	l.Stop()
	ch := New(Config{URL: "ws://x"}, stream.NewFakeTransport(), clock.NewFake(epoch), l, Callbacks{}, nil)

	done := make(chan struct{})
	go func() {
		ch.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Close blocked on a stopped loop")
	}
}
