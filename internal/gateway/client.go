// Package gateway is the HTTP client for the gateway's REST endpoints.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
)

// User is the basic-auth user name the gateway expects.
const User = "admin"

// DefaultLogPort is the port of the gateway's log socket.
const DefaultLogPort = 81

// ErrDecode wraps response bodies that are not the expected JSON.
var ErrDecode = errors.New("gateway: malformed response")

// StatusError is returned for any non-2xx response. The body is not parsed.
type StatusError struct {
	Code   int
	Status string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("response: (%d) %s", e.Code, e.Status)
}

// Firmware is the gateway's version metadata.
type Firmware struct {
	Version   string            `json:"version"`
	ChipID    string            `json:"chipId"`
	BuildWith map[string]string `json:"build_with"`
}

// Command is a system command accepted by /system.
type Command string

const (
	CommandRestart     Command = "restart"
	CommandResetWiFi   Command = "reset_wifi"
	CommandResetConfig Command = "reset_config"
)

// Commands lists every known system command.
var Commands = []Command{CommandRestart, CommandResetWiFi, CommandResetConfig}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithPassword sets the basic-auth password.
func WithPassword(password string) Option {
	return func(c *Client) { c.password = password }
}

// WithLogPort overrides the log socket port.
func WithLogPort(port int) Option {
	return func(c *Client) { c.logPort = port }
}

// WithLogger sets the logger.
func WithLogger(l hclog.Logger) Option {
	return func(c *Client) { c.log = l }
}

// Client talks to one gateway. The address and password may change at
// runtime (device rename, password rotation); all methods are safe for
// concurrent use.
type Client struct {
	http    *http.Client
	log     hclog.Logger
	logPort int

	mu       sync.RWMutex
	host     string
	password string
}

// NewClient creates a Client for host, which may carry a port.
func NewClient(host string, opts ...Option) *Client {
	c := &Client{
		http:    &http.Client{Timeout: 30 * time.Second},
		log:     hclog.NewNullLogger(),
		logPort: DefaultLogPort,
		host:    host,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Host returns the address the client currently targets.
func (c *Client) Host() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.host
}

// Hostname returns Host without any port.
func (c *Client) Hostname() string {
	host := c.Host()
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

// SetHost retargets the client, keeping any explicit port.
func (c *Client) SetHost(host string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.host = host
}

// SetPassword changes the basic-auth password.
func (c *Client) SetPassword(password string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.password = password
}

// LogURL returns the log socket address for the current host.
func (c *Client) LogURL() string {
	return "ws://" + net.JoinHostPort(c.Hostname(), strconv.Itoa(c.logPort)) + "/"
}

// FetchConfig returns the full configuration.
func (c *Client) FetchConfig(ctx context.Context) (map[string]any, error) {
	var cfg map[string]any
	if err := c.do(ctx, http.MethodGet, "/config", nil, &cfg); err != nil {
		return nil, fmt.Errorf("fetch config: %w", err)
	}
	return cfg, nil
}

// PushConfig sends changed keys and returns the resulting full configuration.
func (c *Client) PushConfig(ctx context.Context, changes map[string]any) (map[string]any, error) {
	var cfg map[string]any
	if err := c.do(ctx, http.MethodPut, "/config", changes, &cfg); err != nil {
		return nil, fmt.Errorf("push config: %w", err)
	}
	return cfg, nil
}

// FetchDebug returns the debug flags.
func (c *Client) FetchDebug(ctx context.Context) (map[string]bool, error) {
	var flags map[string]bool
	if err := c.do(ctx, http.MethodGet, "/debug", nil, &flags); err != nil {
		return nil, fmt.Errorf("fetch debug: %w", err)
	}
	return flags, nil
}

// PushDebug sends changed debug flags and returns all flags.
func (c *Client) PushDebug(ctx context.Context, changes map[string]bool) (map[string]bool, error) {
	var flags map[string]bool
	if err := c.do(ctx, http.MethodPut, "/debug", changes, &flags); err != nil {
		return nil, fmt.Errorf("push debug: %w", err)
	}
	return flags, nil
}

// FetchFirmware returns version metadata.
func (c *Client) FetchFirmware(ctx context.Context) (Firmware, error) {
	var fw Firmware
	if err := c.do(ctx, http.MethodGet, "/firmware", nil, &fw); err != nil {
		return Firmware{}, fmt.Errorf("fetch firmware: %w", err)
	}
	return fw, nil
}

// FetchProtocols returns the RF protocols the firmware supports.
func (c *Client) FetchProtocols(ctx context.Context) ([]string, error) {
	var protocols []string
	if err := c.do(ctx, http.MethodGet, "/protocols", nil, &protocols); err != nil {
		return nil, fmt.Errorf("fetch protocols: %w", err)
	}
	return protocols, nil
}

// SendCommand posts a system command. Only the status code matters.
func (c *Client) SendCommand(ctx context.Context, cmd Command) error {
	body := map[string]string{"command": string(cmd)}
	if err := c.do(ctx, http.MethodPost, "/system", body, nil); err != nil {
		return fmt.Errorf("command %s: %w", cmd, err)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.log.Debug("request", "method", method, "url", req.URL.String())
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, resp.Body)
		return &StatusError{Code: resp.StatusCode, Status: http.StatusText(resp.StatusCode)}
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	c.mu.RLock()
	host, password := c.host, c.password
	c.mu.RUnlock()

	req, err := http.NewRequestWithContext(ctx, method, "http://"+host+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if password != "" {
		req.SetBasicAuth(User, password)
	}
	return req, nil
}
