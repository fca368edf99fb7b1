// Package channel keeps one logical log stream to the gateway alive across
// individual socket lifetimes. It detects half-open sockets with an
// application-level ping/pong and reconnects after a fixed delay.
package channel

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/go-hclog"

	"github.com/sweeney/gatewayctl/internal/clock"
	"github.com/sweeney/gatewayctl/internal/heartbeat"
	"github.com/sweeney/gatewayctl/internal/loop"
	"github.com/sweeney/gatewayctl/internal/stream"
)

// Sentinel frames. Anything else on the socket is a log line.
const (
	PingToken = "__PING__"
	PongToken = "__PONG__"
)

// Default timings.
const (
	DefaultPingInterval = 5 * time.Second
	DefaultPongTimeout  = 2 * time.Second
	DefaultRetryDelay   = 2 * time.Second
)

// Config holds the socket address and heartbeat timings. Zero durations
// fall back to the defaults.
type Config struct {
	URL          string
	PingInterval time.Duration
	PongTimeout  time.Duration
	RetryDelay   time.Duration
}

func (c Config) withDefaults() Config {
	if c.PingInterval <= 0 {
		c.PingInterval = DefaultPingInterval
	}
	if c.PongTimeout <= 0 {
		c.PongTimeout = DefaultPongTimeout
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	return c
}

// Callbacks are invoked on the executor goroutine. Close called from a
// callback does not wait; the Closed status follows once the callback
// returns.
type Callbacks struct {
	// OnMessage receives every non-sentinel frame, verbatim and in order.
	OnMessage func(text string)

	// OnStatus receives every state transition.
	OnStatus func(Status)

	// OnConnect runs after every successful (re)connect.
	OnConnect func()
}

// Channel is the reconnecting log stream. All state is confined to the
// executor; the exported methods are safe to call from any goroutine.
type Channel struct {
	cfg       Config
	transport stream.Transport
	exec      loop.Executor
	cb        Callbacks
	log       hclog.Logger

	state State
	sock  stream.Socket

	ping  *heartbeat.Timer
	pong  *heartbeat.Timer
	retry *heartbeat.Timer

	// dispatching counts callbacks in progress. closing suppresses every
	// callback but the final Closed status.
	dispatching atomic.Int32
	closing     atomic.Bool

	closeOnce sync.Once
	done      chan struct{}
}

// New creates a Channel. Nothing happens until Start.
func New(cfg Config, transport stream.Transport, clk clock.Clock, exec loop.Executor, cb Callbacks, logger hclog.Logger) *Channel {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	cfg = cfg.withDefaults()
	c := &Channel{
		cfg:       cfg,
		transport: transport,
		exec:      exec,
		cb:        cb,
		log:       logger,
		state:     StateConnecting,
		done:      make(chan struct{}),
	}
	c.ping = heartbeat.New(clk, exec, cfg.PingInterval, c.onPingDue)
	c.pong = heartbeat.New(clk, exec, cfg.PongTimeout, c.onPongTimeout)
	c.retry = heartbeat.New(clk, exec, cfg.RetryDelay, c.connect)
	return c
}

// Start opens the first socket.
func (c *Channel) Start() {
	c.exec.Post(c.connect)
}

// Close tears the channel down. It is idempotent and safe in every state.
// No callback other than the single Closed status fires once Close was
// called. Close returns after that status was emitted, unless a callback is
// running at the time: then it only schedules the teardown, as the caller
// may be that callback. Wait on Done to be sure.
func (c *Channel) Close() {
	c.closing.Store(true)
	c.closeOnce.Do(func() {
		posted := c.exec.Post(func() {
			c.shutdown()
			close(c.done)
		})
		if !posted {
			close(c.done)
		}
	})
	if c.dispatching.Load() > 0 {
		return
	}
	<-c.done
}

// Done is closed once the Closed status has been emitted.
func (c *Channel) Done() <-chan struct{} {
	return c.done
}

// Retarget moves the channel to a new socket address.
func (c *Channel) Retarget(url string) {
	c.exec.Post(func() {
		if c.state == StateClosed {
			return
		}
		c.log.Info("retargeting log socket", "url", url)
		c.cfg.URL = url
		c.teardown()
		c.transition(StateBroken, LabelMoved)
		c.connect()
	})
}

// State returns the current state. It must be called on the executor.
func (c *Channel) State() State {
	return c.state
}

// URL returns the current socket address. It must be called on the executor.
func (c *Channel) URL() string {
	return c.cfg.URL
}

func (c *Channel) connect() {
	if c.state == StateClosed {
		return
	}
	c.transition(StateConnecting, LabelConnecting)

	var sock stream.Socket
	sock = c.transport.Open(c.cfg.URL, c.exec, stream.Handler{
		Opened:  func() { c.onOpened(sock) },
		Message: func(text string) { c.onMessage(sock, text) },
		Closed:  func(err error) { c.onDropped(sock, err) },
		Errored: func(err error) { c.onDropped(sock, err) },
	})
	c.sock = sock
}

func (c *Channel) onOpened(sock stream.Socket) {
	if sock != c.sock || c.state != StateConnecting {
		return
	}
	c.log.Debug("log socket open", "url", c.cfg.URL)
	c.transition(StateConnected, LabelConnected)
	c.ping.Start()
	if c.cb.OnConnect != nil && !c.closing.Load() {
		c.dispatch(c.cb.OnConnect)
	}
}

func (c *Channel) onMessage(sock stream.Socket, text string) {
	if sock != c.sock || c.state == StateClosed {
		return
	}
	if text == PongToken {
		c.pong.Stop()
		if c.state == StateAwaitingPong {
			c.transition(StateConnected, LabelConnected)
		}
		c.ping.Start()
		return
	}
	if c.cb.OnMessage != nil && !c.closing.Load() {
		c.dispatch(func() { c.cb.OnMessage(text) })
	}
}

func (c *Channel) onPingDue() {
	if c.state != StateConnected {
		return
	}
	if err := c.sock.Send(PingToken); err != nil {
		c.log.Warn("ping failed", "error", err)
		c.breakAndReconnect()
		return
	}
	c.pong.Start()
	c.transition(StateAwaitingPong, LabelAwaitingPong)
}

func (c *Channel) onPongTimeout() {
	if c.state != StateAwaitingPong {
		return
	}
	c.log.Warn("no pong within timeout", "timeout", c.cfg.PongTimeout)
	c.breakAndReconnect()
}

// breakAndReconnect handles a dead peer: the socket is abandoned and a new
// one is opened immediately.
func (c *Channel) breakAndReconnect() {
	c.teardown()
	c.transition(StateBroken, LabelBroken)
	c.connect()
}

// onDropped handles socket-level failures: reconnect after the retry delay.
func (c *Channel) onDropped(sock stream.Socket, err error) {
	if sock != c.sock || c.state == StateClosed {
		return
	}
	label := LabelDisconnected
	if c.state == StateConnecting {
		label = LabelError
	}
	c.log.Warn("log socket failed", "url", c.cfg.URL, "error", err, "retry_in", c.cfg.RetryDelay)
	c.teardown()
	c.transition(StateBroken, label)
	c.retry.Start()
}

func (c *Channel) shutdown() {
	if c.state == StateClosed {
		return
	}
	c.teardown()
	c.transition(StateClosed, LabelClosed)
}

// teardown cancels every deadline and closes the socket with its
// callbacks suppressed.
func (c *Channel) teardown() {
	c.ping.Stop()
	c.pong.Stop()
	c.retry.Stop()
	if c.sock != nil {
		c.sock.Close()
		c.sock = nil
	}
}

func (c *Channel) transition(s State, label string) {
	c.state = s
	if c.cb.OnStatus == nil || (c.closing.Load() && s != StateClosed) {
		return
	}
	c.dispatch(func() { c.cb.OnStatus(Status{State: s, Label: label}) })
}

func (c *Channel) dispatch(f func()) {
	c.dispatching.Add(1)
	defer c.dispatching.Add(-1)
	f()
}
