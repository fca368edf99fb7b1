// Package status provides a thread-safe view of the session for the CLI,
// the MQTT mirror and the status LED.
package status

import (
	"sync"
	"time"
)

// Config contains session configuration for display.
type Config struct {
	PingMs  int64
	PongMs  int64
	RetryMs int64
	Broker  string
}

// Firmware is the gateway's reported version.
type Firmware struct {
	Version string
	ChipID  string
}

// Snapshot is a point-in-time view of the session.
// It is a value type and safe to use after the lock is released.
type Snapshot struct {
	Host          string
	State         string
	Label         string
	Connected     bool
	Reconnects    int
	Lines         int
	LastLine      time.Time
	Firmware      *Firmware
	Pending       []string
	Message       string
	MQTTConnected bool
	StartTime     time.Time
	Now           time.Time
	Config        Config
}

// Uptime returns the duration since the session started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable session state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, host string, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Host:      host,
			StartTime: startTime,
			Config:    cfg,
		},
	}
}

// SetConnection records a channel transition. A reconnecting transition
// increments the reconnect count.
func (t *Tracker) SetConnection(state, label string, connected, reconnecting bool) {
	t.mu.Lock()
	t.snap.State = state
	t.snap.Label = label
	t.snap.Connected = connected
	if reconnecting {
		t.snap.Reconnects++
	}
	t.mu.Unlock()
}

// RecordLine counts one delivered log line.
func (t *Tracker) RecordLine(at time.Time) {
	t.mu.Lock()
	t.snap.Lines++
	t.snap.LastLine = at
	t.mu.Unlock()
}

// SetHost records the address the session targets.
func (t *Tracker) SetHost(host string) {
	t.mu.Lock()
	t.snap.Host = host
	t.mu.Unlock()
}

// SetFirmware records the gateway's version.
func (t *Tracker) SetFirmware(fw Firmware) {
	t.mu.Lock()
	t.snap.Firmware = &fw
	t.mu.Unlock()
}

// SetPending records the keys with unconfirmed edits.
func (t *Tracker) SetPending(keys []string) {
	t.mu.Lock()
	t.snap.Pending = append([]string(nil), keys...)
	t.mu.Unlock()
}

// SetMessage records the latest settings status message.
func (t *Tracker) SetMessage(msg string) {
	t.mu.Lock()
	t.snap.Message = msg
	t.mu.Unlock()
}

// SetMQTTConnected sets the MQTT connection status.
func (t *Tracker) SetMQTTConnected(connected bool) {
	t.mu.Lock()
	t.snap.MQTTConnected = connected
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the session state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Pending = append([]string(nil), t.snap.Pending...)
	if t.snap.Firmware != nil {
		fw := *t.snap.Firmware
		s.Firmware = &fw
	}
	t.mu.RUnlock()
	s.Now = time.Now()
	return s
}
