// Package profile loads the gatewayctl TOML profile: which gateway to talk
// to, how to authenticate, heartbeat timings and the optional log sinks.
package profile

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	toml "github.com/pelletier/go-toml/v2"
	"github.com/spf13/afero"
)

// FileName is the profile file name inside the config directory.
const FileName = "profile.toml"

// Heartbeat holds the log socket timings in milliseconds.
type Heartbeat struct {
	PingMs  int `toml:"ping_ms,omitempty"`
	PongMs  int `toml:"pong_ms,omitempty"`
	RetryMs int `toml:"retry_ms,omitempty"`
}

// MQTT configures the log mirror. An empty broker disables it.
type MQTT struct {
	Broker   string `toml:"broker,omitempty"`
	Prefix   string `toml:"prefix,omitempty"`
	Username string `toml:"username,omitempty"`
	Password string `toml:"password,omitempty"`
}

// Archive configures the sqlite log archive. An empty path disables it.
type Archive struct {
	Path string `toml:"path,omitempty"`
	Keep int    `toml:"keep,omitempty"`
}

// LED configures the status LED. An empty chip disables it.
type LED struct {
	Chip      string `toml:"chip,omitempty"`
	Line      int    `toml:"line,omitempty"`
	ActiveLow bool   `toml:"active_low,omitempty"`
}

// Profile is the on-disk CLI configuration.
type Profile struct {
	Host      string    `toml:"host"`
	Password  string    `toml:"password,omitempty"`
	LogPort   int       `toml:"log_port,omitempty"`
	LogLevel  string    `toml:"log_level,omitempty"`
	Heartbeat Heartbeat `toml:"heartbeat,omitempty"`
	MQTT      MQTT      `toml:"mqtt,omitempty"`
	Archive   Archive   `toml:"archive,omitempty"`
	LED       LED       `toml:"led,omitempty"`
}

// Default returns a profile pointing at the gateway's factory mDNS name.
func Default() Profile {
	return Profile{
		Host:     "mqtt433gateway.local",
		LogPort:  81,
		LogLevel: "info",
		Heartbeat: Heartbeat{
			PingMs:  5000,
			PongMs:  2000,
			RetryMs: 2000,
		},
		MQTT:    MQTT{Prefix: "gatewayctl"},
		Archive: Archive{Keep: 100000},
	}
}

// DefaultPath returns ~/.config/gatewayctl/profile.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("locate home directory: %w", err)
	}
	return filepath.Join(home, ".config", "gatewayctl", FileName), nil
}

// Load reads the profile at path. A missing file yields Default.
// Fields absent from the file keep their default values.
func Load(fsys afero.Fs, path string) (Profile, error) {
	p := Default()
	data, err := afero.ReadFile(fsys, path)
	if errors.Is(err, fs.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return Profile{}, fmt.Errorf("read profile: %w", err)
	}

	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		var strict *toml.StrictMissingError
		if errors.As(err, &strict) {
			return Profile{}, fmt.Errorf("parse profile %s: %s", path, strict.String())
		}
		return Profile{}, fmt.Errorf("parse profile %s: %w", path, err)
	}
	if err := p.Validate(); err != nil {
		return Profile{}, fmt.Errorf("profile %s: %w", path, err)
	}
	return p, nil
}

// Save writes p to path, creating the directory if needed. The file may
// hold passwords, so it is written owner-only.
func Save(fsys afero.Fs, path string, p Profile) error {
	data, err := toml.Marshal(p)
	if err != nil {
		return fmt.Errorf("encode profile: %w", err)
	}
	if err := fsys.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create profile directory: %w", err)
	}
	if err := afero.WriteFile(fsys, path, data, 0o600); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	return nil
}

// Validate checks value ranges.
func (p Profile) Validate() error {
	if strings.TrimSpace(p.Host) == "" {
		return errors.New("host is required")
	}
	if p.LogPort < 1 || p.LogPort > 65535 {
		return fmt.Errorf("log_port %d out of range", p.LogPort)
	}
	for name, ms := range map[string]int{
		"ping_ms":  p.Heartbeat.PingMs,
		"pong_ms":  p.Heartbeat.PongMs,
		"retry_ms": p.Heartbeat.RetryMs,
	} {
		if ms < 0 {
			return fmt.Errorf("heartbeat.%s must not be negative", name)
		}
	}
	if p.Archive.Keep < 0 {
		return errors.New("archive.keep must not be negative")
	}
	if p.LED.Chip != "" && p.LED.Line < 0 {
		return fmt.Errorf("led.line %d out of range", p.LED.Line)
	}
	switch strings.ToLower(p.LogLevel) {
	case "", "trace", "debug", "info", "warn", "error", "off":
	default:
		return fmt.Errorf("unknown log_level %q", p.LogLevel)
	}
	return nil
}

// PingInterval returns the heartbeat ping delay.
func (p Profile) PingInterval() time.Duration {
	return time.Duration(p.Heartbeat.PingMs) * time.Millisecond
}

// PongTimeout returns the heartbeat pong wait.
func (p Profile) PongTimeout() time.Duration {
	return time.Duration(p.Heartbeat.PongMs) * time.Millisecond
}

// RetryDelay returns the reconnect backoff.
func (p Profile) RetryDelay() time.Duration {
	return time.Duration(p.Heartbeat.RetryMs) * time.Millisecond
}
