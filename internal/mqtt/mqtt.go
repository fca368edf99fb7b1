// Package mqtt mirrors the gateway's log stream and the session status to an
// MQTT broker.
package mqtt

import (
	"encoding/json"
	"time"
)

// DefaultPrefix is the topic prefix when none is configured.
const DefaultPrefix = "gatewayctl"

// LogTopic returns the topic log lines are published on.
func LogTopic(prefix string) string { return prefix + "/log" }

// StatusTopic returns the topic session status events are published on.
func StatusTopic(prefix string) string { return prefix + "/status" }

// Publisher publishes to MQTT.
type Publisher interface {
	// PublishLine sends one gateway log line.
	// Returns error if publishing fails (should not crash the process).
	PublishLine(line LogLine) error

	// PublishStatus sends a session status event.
	PublishStatus(event StatusEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// LogLine is one line received from the gateway.
type LogLine struct {
	Timestamp time.Time
	Host      string
	Text      string
}

// StatusEvent is a session lifecycle event (STARTUP, CONNECTION, SHUTDOWN).
type StatusEvent struct {
	Timestamp  time.Time
	Event      string
	Reason     string
	RawPayload []byte // pre-formatted JSON; returned as-is by FormatStatusPayload
	Retained   bool
}

// Payload is the JSON body of a log line message.
type Payload struct {
	Log LogPayload `json:"log"`
}

// LogPayload contains the log line details.
type LogPayload struct {
	Timestamp string `json:"timestamp"`
	Host      string `json:"host"`
	Line      string `json:"line"`
}

// FormatPayload creates the JSON payload for a log line.
func FormatPayload(line LogLine) ([]byte, error) {
	return json.Marshal(Payload{
		Log: LogPayload{
			Timestamp: line.Timestamp.UTC().Format(time.RFC3339Nano),
			Host:      line.Host,
			Line:      line.Text,
		},
	})
}

// SystemPayload is the JSON body of a status event without a snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
}

// FormatStatusPayload creates the JSON payload for a status event.
func FormatStatusPayload(event StatusEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}
	return json.Marshal(SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
		},
	})
}
