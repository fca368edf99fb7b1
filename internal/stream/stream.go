// Package stream owns a single log socket to the gateway and translates its
// lifecycle into four events: opened, message, closed and errored.
// It never retries; reconnect policy lives in package channel.
package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"

	"github.com/sweeney/gatewayctl/internal/loop"
)

// ErrNotOpen is returned by Send before the socket has opened or after it closed.
var ErrNotOpen = errors.New("stream: socket not open")

const (
	handshakeTimeout = 5 * time.Second
	writeWait        = 2 * time.Second
)

// Handler receives socket events. Every callback is delivered through the
// executor passed to Open, and none is delivered after Close.
type Handler struct {
	Opened  func()
	Message func(text string)
	Closed  func(err error)
	Errored func(err error)
}

// Socket is one live connection attempt.
type Socket interface {
	// Send writes a text frame.
	Send(text string) error

	// Close tears the socket down and suppresses any further events.
	Close()
}

// Transport opens sockets.
type Transport interface {
	Open(url string, exec loop.Executor, h Handler) Socket
}

// Dialer is the websocket Transport.
type Dialer struct {
	ws     *websocket.Dialer
	header http.Header
	log    hclog.Logger
}

// NewDialer creates a Dialer. A nil logger discards output.
func NewDialer(logger hclog.Logger) *Dialer {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Dialer{
		ws: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: handshakeTimeout,
		},
		log: logger,
	}
}

// WithHeader sets headers sent with every handshake.
func (d *Dialer) WithHeader(h http.Header) *Dialer {
	d.header = h
	return d
}

// Open starts dialing url in the background and returns immediately.
func (d *Dialer) Open(url string, exec loop.Executor, h Handler) Socket {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		url:    url,
		exec:   exec,
		h:      h,
		cancel: cancel,
		log:    d.log,
	}
	go c.run(ctx, d)
	return c
}

// Conn is a websocket-backed Socket.
type Conn struct {
	url    string
	exec   loop.Executor
	h      Handler
	cancel context.CancelFunc
	log    hclog.Logger

	mu     sync.Mutex
	ws     *websocket.Conn
	closed atomic.Bool
}

func (c *Conn) run(ctx context.Context, d *Dialer) {
	ws, _, err := d.ws.DialContext(ctx, c.url, d.header)
	if err != nil {
		c.post(func() { c.h.Errored(fmt.Errorf("dial %s: %w", c.url, err)) })
		return
	}

	c.mu.Lock()
	if c.closed.Load() {
		c.mu.Unlock()
		ws.Close()
		return
	}
	c.ws = ws
	c.mu.Unlock()

	c.post(c.h.Opened)

	for {
		kind, data, err := ws.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) {
				c.post(func() { c.h.Closed(err) })
			} else {
				c.post(func() { c.h.Errored(err) })
			}
			return
		}
		if kind != websocket.TextMessage {
			c.log.Debug("ignoring non-text frame", "type", kind)
			continue
		}
		text := string(data)
		c.post(func() { c.h.Message(text) })
	}
}

// post delivers fn on the executor unless the socket was closed first.
func (c *Conn) post(fn func()) {
	c.exec.Post(func() {
		if c.closed.Load() {
			return
		}
		fn()
	})
}

// Send writes a text frame.
func (c *Conn) Send(text string) error {
	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil || c.closed.Load() {
		return ErrNotOpen
	}
	if err := ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return fmt.Errorf("set write deadline: %w", err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, []byte(text)); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// Close is idempotent.
func (c *Conn) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.cancel()

	c.mu.Lock()
	ws := c.ws
	c.mu.Unlock()
	if ws == nil {
		return
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	if err := ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		c.log.Debug("close frame not sent", "url", c.url, "error", err)
	}
	ws.Close()
}
