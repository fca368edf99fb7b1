package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string        `json:"event,omitempty"`
	Reason        string        `json:"reason,omitempty"`
	Host          string        `json:"host"`
	State         string        `json:"state"`
	Label         string        `json:"label"`
	Connected     bool          `json:"connected"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	StartTime     string        `json:"start_time"`
	Timestamp     string        `json:"timestamp"`
	Counts        CountsJSON    `json:"counts"`
	Firmware      *FirmwareJSON `json:"firmware,omitempty"`
	Pending       []string      `json:"pending"`
	Message       string        `json:"message,omitempty"`
	MQTT          MQTTStatus    `json:"mqtt"`
	Config        ConfigJSON    `json:"config"`
}

// CountsJSON is the JSON representation of session counters.
type CountsJSON struct {
	Lines      int    `json:"lines"`
	Reconnects int    `json:"reconnects"`
	LastLine   string `json:"last_line,omitempty"`
}

// FirmwareJSON is the JSON representation of the gateway version.
type FirmwareJSON struct {
	Version string `json:"version"`
	ChipID  string `json:"chip_id"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// ConfigJSON is the JSON representation of session timings.
type ConfigJSON struct {
	PingMs  int64 `json:"ping_ms"`
	PongMs  int64 `json:"pong_ms"`
	RetryMs int64 `json:"retry_ms"`
}

func buildInner(snap Snapshot) StatusInner {
	state := snap.State
	if state == "" {
		state = "unknown"
	}
	pending := snap.Pending
	if pending == nil {
		pending = []string{}
	}

	inner := StatusInner{
		Host:          snap.Host,
		State:         state,
		Label:         snap.Label,
		Connected:     snap.Connected,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Counts: CountsJSON{
			Lines:      snap.Lines,
			Reconnects: snap.Reconnects,
		},
		Pending: pending,
		Message: snap.Message,
		MQTT:    MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Config: ConfigJSON{
			PingMs:  snap.Config.PingMs,
			PongMs:  snap.Config.PongMs,
			RetryMs: snap.Config.RetryMs,
		},
	}
	if !snap.LastLine.IsZero() {
		inner.Counts.LastLine = snap.LastLine.UTC().Format(time.RFC3339)
	}
	if snap.Firmware != nil {
		inner.Firmware = &FirmwareJSON{Version: snap.Firmware.Version, ChipID: snap.Firmware.ChipID}
	}
	return inner
}

// FormatJSON returns the indented JSON status for `gatewayctl status`.
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the compact JSON status for an MQTT event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason
	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
