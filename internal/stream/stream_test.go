package stream

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/sweeney/gatewayctl/internal/loop"
)

// echoServer greets, then replies "__PONG__" to every text frame.
func echoServer(t *testing.T, lines ...string) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for _, l := range lines {
			ws.WriteMessage(websocket.TextMessage, []byte(l))
		}
		for {
			kind, _, err := ws.ReadMessage()
			if err != nil {
				return
			}
			if kind == websocket.TextMessage {
				ws.WriteMessage(websocket.TextMessage, []byte("__PONG__"))
			}
		}
	}))
	t.Cleanup(ts.Close)
	return ts
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

type recorder struct {
	opened   chan struct{}
	messages chan string
	errs     chan error
}

func newRecorder() *recorder {
	return &recorder{
		opened:   make(chan struct{}, 1),
		messages: make(chan string, 100),
		errs:     make(chan error, 2),
	}
}

func (r *recorder) handler() Handler {
	return Handler{
		Opened:  func() { r.opened <- struct{}{} },
		Message: func(text string) { r.messages <- text },
		Closed:  func(err error) { r.errs <- err },
		Errored: func(err error) { r.errs <- err },
	}
}

func TestDialerDeliversMessagesInOrder(t *testing.T) {
	ts := echoServer(t, "one\n", "two\n", "\n", "three")
	rec := newRecorder()

	sock := NewDialer(nil).Open(wsURL(ts), &loop.Inline{}, rec.handler())
	defer sock.Close()

	select {
	case <-rec.opened:
	case <-time.After(2 * time.Second):
		t.Fatal("socket did not open")
	}

	want := []string{"one\n", "two\n", "\n", "three"}
	for i, w := range want {
		select {
		case got := <-rec.messages:
			if got != w {
				t.Errorf("message %d: got %q, want %q", i, got, w)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for message %d", i)
		}
	}
}

func TestDialerSend(t *testing.T) {
	ts := echoServer(t)
	rec := newRecorder()

	sock := NewDialer(nil).Open(wsURL(ts), &loop.Inline{}, rec.handler())
	defer sock.Close()
	<-rec.opened

	if err := sock.Send("__PING__"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	select {
	case got := <-rec.messages:
		if got != "__PONG__" {
			t.Errorf("reply: got %q, want __PONG__", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no reply")
	}
}

func TestDialerErrorOnRefusedConnection(t *testing.T) {
	ts := echoServer(t)
	url := wsURL(ts)
	ts.Close()

	rec := newRecorder()
	sock := NewDialer(nil).Open(url, &loop.Inline{}, rec.handler())
	defer sock.Close()

	select {
	case err := <-rec.errs:
		if err == nil {
			t.Error("expected non-nil error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no error event for refused connection")
	}
}

func TestSendBeforeOpen(t *testing.T) {
	c := &Conn{}
	if err := c.Send("x"); err != ErrNotOpen {
		t.Errorf("Send before open: got %v, want ErrNotOpen", err)
	}
}

func TestCloseSuppressesEvents(t *testing.T) {
	ts := echoServer(t)
	rec := newRecorder()

	sock := NewDialer(nil).Open(wsURL(ts), &loop.Inline{}, rec.handler())
	<-rec.opened
	sock.Close()
	sock.Close()

	select {
	case err := <-rec.errs:
		t.Errorf("event delivered after Close: %v", err)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestFakeSocketSuppressesAfterClose(t *testing.T) {
	tr := NewFakeTransport()
	var got []string
	s := tr.Open("ws://x", &loop.Inline{}, Handler{
		Message: func(text string) { got = append(got, text) },
	}).(*FakeSocket)

	s.Receive("a")
	s.Close()
	s.Receive("b")

	if len(got) != 1 || got[0] != "a" {
		t.Errorf("got %v, want [a]", got)
	}
	if s.CloseCount != 1 {
		t.Errorf("CloseCount: got %d, want 1", s.CloseCount)
	}
}
