package devicemock

import (
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
)

const (
	// Greeting is sent to every new log client.
	Greeting = "*** Connection established ***\n"
	// Pong answers any text frame.
	Pong = "__PONG__"

	writeTimeout = 5 * time.Second
)

type logClient struct {
	ws *websocket.Conn
	mu sync.Mutex
}

func (c *logClient) send(text string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.ws.WriteMessage(websocket.TextMessage, []byte(text))
}

// logHub is the log socket server: it greets, answers every text frame with
// Pong and broadcasts log lines.
type logHub struct {
	upgrader websocket.Upgrader
	silent   atomic.Bool
	log      hclog.Logger

	mu      sync.Mutex
	clients map[*logClient]struct{}
}

func newLogHub(logger hclog.Logger) *logHub {
	return &logHub{
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		log:      logger,
		clients:  make(map[*logClient]struct{}),
	}
}

func (h *logHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", "error", err)
		return
	}
	c := &logClient{ws: ws}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
	h.log.Debug("client connected", "remote", r.RemoteAddr)

	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
		ws.Close()
		h.log.Debug("client disconnected", "remote", r.RemoteAddr)
	}()

	if err := c.send(Greeting); err != nil {
		return
	}
	for {
		kind, _, err := ws.ReadMessage()
		if err != nil {
			return
		}
		if kind != websocket.TextMessage || h.silent.Load() {
			continue
		}
		if err := c.send(Pong); err != nil {
			return
		}
	}
}

func (h *logHub) broadcast(text string) {
	for _, c := range h.snapshot() {
		if err := c.send(text); err != nil {
			h.log.Debug("broadcast failed", "error", err)
		}
	}
}

func (h *logHub) setSilent(silent bool) {
	h.silent.Store(silent)
}

// dropAll closes every socket without a close handshake. The read loops
// then exit and unregister their clients.
func (h *logHub) dropAll() {
	for _, c := range h.snapshot() {
		c.ws.Close()
	}
}

func (h *logHub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *logHub) snapshot() []*logClient {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*logClient, 0, len(h.clients))
	for c := range h.clients {
		out = append(out, c)
	}
	return out
}
