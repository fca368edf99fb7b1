// Package indicator drives a status LED from the log channel's connection
// state. The real implementation uses the Linux GPIO character device; the
// fake allows testing without hardware.
package indicator

import (
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/sweeney/gatewayctl/internal/channel"
	"github.com/sweeney/gatewayctl/internal/clock"
	"github.com/sweeney/gatewayctl/internal/heartbeat"
	"github.com/sweeney/gatewayctl/internal/loop"
)

// LED is a single on/off output.
type LED interface {
	// Set drives the output. on is the logical state; polarity is handled
	// by the implementation.
	Set(on bool) error

	// Close releases the output.
	Close() error
}

// Pattern is what the LED shows.
type Pattern int

const (
	PatternOff Pattern = iota
	PatternOn
	PatternBlink
)

// DefaultBlinkPeriod is the half-period of PatternBlink.
const DefaultBlinkPeriod = 500 * time.Millisecond

func (p Pattern) String() string {
	switch p {
	case PatternOff:
		return "off"
	case PatternOn:
		return "on"
	case PatternBlink:
		return "blink"
	default:
		return "unknown"
	}
}

// PatternFor maps a connection state to an LED pattern: solid while the
// stream is up, blinking while (re)connecting, dark once closed.
func PatternFor(s channel.State) Pattern {
	switch s {
	case channel.StateConnected, channel.StateAwaitingPong:
		return PatternOn
	case channel.StateConnecting, channel.StateBroken:
		return PatternBlink
	default:
		return PatternOff
	}
}

// Indicator shows connection state on an LED.
//
// Show and Stop must be called from the executor's goroutine.
type Indicator struct {
	led     LED
	blink   *heartbeat.Timer
	pattern Pattern
	lit     bool
	log     hclog.Logger
}

// New creates an Indicator that starts dark.
func New(led LED, clk clock.Clock, exec loop.Executor, period time.Duration, logger hclog.Logger) *Indicator {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	if period <= 0 {
		period = DefaultBlinkPeriod
	}
	i := &Indicator{led: led, log: logger}
	i.blink = heartbeat.New(clk, exec, period, i.toggle)
	return i
}

// Show switches to the pattern for state s.
func (i *Indicator) Show(s channel.State) {
	p := PatternFor(s)
	if p == i.pattern {
		return
	}
	i.pattern = p
	i.blink.Stop()

	switch p {
	case PatternOn:
		i.drive(true)
	case PatternBlink:
		i.drive(true)
		i.blink.Start()
	default:
		i.drive(false)
	}
}

// Pattern returns the current pattern.
func (i *Indicator) Pattern() Pattern {
	return i.pattern
}

// Stop turns the LED off and cancels blinking. The LED is not closed.
func (i *Indicator) Stop() {
	i.blink.Stop()
	i.pattern = PatternOff
	i.drive(false)
}

func (i *Indicator) toggle() {
	if i.pattern != PatternBlink {
		return
	}
	i.drive(!i.lit)
	i.blink.Start()
}

func (i *Indicator) drive(on bool) {
	i.lit = on
	if err := i.led.Set(on); err != nil {
		i.log.Warn("set led failed", "error", err)
	}
}
