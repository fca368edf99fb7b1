// Package devicemock emulates an MQTT433gateway: the REST API on one
// listener and the log socket on another. It backs `gatewayctl mock` and the
// integration tests.
package devicemock

import (
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/hashicorp/go-hclog"

	"github.com/sweeney/gatewayctl/internal/gateway"
)

// Option configures a Device.
type Option func(*Device)

// WithPassword requires HTTP basic auth on the REST API.
func WithPassword(password string) Option {
	return func(d *Device) { d.password = password }
}

// WithLogger sets the logger.
func WithLogger(l hclog.Logger) Option {
	return func(d *Device) { d.log = l }
}

// WithTickInterval sets how often the freeHeap and systemLoad debug flags
// write their lines.
func WithTickInterval(interval time.Duration) Option {
	return func(d *Device) { d.tick = interval }
}

// Device is the emulated gateway state. Safe for concurrent use.
type Device struct {
	log  hclog.Logger
	tick time.Duration

	mu        sync.Mutex
	password  string
	config    map[string]any
	debug     map[string]bool
	firmware  gateway.Firmware
	protocols []string
	commands  []gateway.Command
	patches   []map[string]any
	failures  map[string]int
	ticker    *time.Ticker
	stopTick  chan struct{}
	loads     int

	logs *logHub
}

// New creates a Device loaded with the factory mock data.
func New(opts ...Option) *Device {
	d := &Device{
		tick:      time.Second,
		config:    defaultConfig(),
		debug:     map[string]bool{"freeHeap": false, "systemLoad": false, "protocolRaw": false},
		firmware:  defaultFirmware(),
		protocols: slices.Clone(defaultProtocols),
		failures:  make(map[string]int),
	}
	for _, o := range opts {
		o(d)
	}
	if d.log == nil {
		d.log = hclog.NewNullLogger()
	}
	d.logs = newLogHub(d.log.Named("log"))
	return d
}

// Handler returns the REST API router.
func (d *Device) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(d.authenticate)
	r.HandleFunc("/", d.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/index.html", d.handleIndex).Methods(http.MethodGet)
	r.HandleFunc("/config", d.handleGetConfig).Methods(http.MethodGet)
	r.HandleFunc("/config", d.handlePutConfig).Methods(http.MethodPut)
	r.HandleFunc("/debug", d.handleGetDebug).Methods(http.MethodGet)
	r.HandleFunc("/debug", d.handlePutDebug).Methods(http.MethodPut)
	r.HandleFunc("/firmware", d.handleGetFirmware).Methods(http.MethodGet)
	r.HandleFunc("/firmware", d.handleUpload).Methods(http.MethodPost)
	r.HandleFunc("/protocols", d.handleProtocols).Methods(http.MethodGet)
	r.HandleFunc("/system", d.handleSystem).Methods(http.MethodPost)
	return r
}

// LogHandler returns the log socket handler.
func (d *Device) LogHandler() http.Handler {
	return d.logs
}

// WriteLog broadcasts msg plus a newline to every log client.
func (d *Device) WriteLog(msg string) {
	d.logs.broadcast(msg + "\n")
}

// SetSilentPong stops (or resumes) answering pings, so clients see their
// heartbeat time out.
func (d *Device) SetSilentPong(silent bool) {
	d.logs.setSilent(silent)
}

// DropLogClients closes every log socket.
func (d *Device) DropLogClients() {
	d.logs.dropAll()
}

// LogClients returns the number of connected log sockets.
func (d *Device) LogClients() int {
	return d.logs.count()
}

// FailNext makes the next request to method+path answer with code.
func (d *Device) FailNext(method, path string, code int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[method+" "+path] = code
}

// SetConfig replaces one config value as if changed on the device itself.
func (d *Device) SetConfig(key string, value any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.config[key] = value
}

// Config returns a copy of the current configuration.
func (d *Device) Config() map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()
	return maps.Clone(d.config)
}

// Patches returns every config patch received, in order.
func (d *Device) Patches() []map[string]any {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.patches)
}

// Commands returns every system command received, in order.
func (d *Device) Commands() []gateway.Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.commands)
}

// Loads returns the number of GET /config requests served.
func (d *Device) Loads() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.loads
}

// Password returns the current API password.
func (d *Device) Password() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.password
}

// Close stops the debug ticker and drops all log clients.
func (d *Device) Close() {
	d.mu.Lock()
	d.stopTickerLocked()
	d.mu.Unlock()
	d.logs.dropAll()
}

func (d *Device) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		d.mu.Lock()
		password := d.password
		code, fail := d.failures[r.Method+" "+r.URL.Path]
		delete(d.failures, r.Method+" "+r.URL.Path)
		d.mu.Unlock()

		if password != "" {
			user, pass, ok := r.BasicAuth()
			if !ok || user != gateway.User || pass != password {
				w.Header().Set("WWW-Authenticate", `Basic realm="MQTT433gateway"`)
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
		}
		if fail {
			http.Error(w, http.StatusText(code), code)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (d *Device) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	d.loads++
	cfg := maps.Clone(d.config)
	d.mu.Unlock()
	writeJSON(w, cfg)
}

func (d *Device) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	var patch map[string]any
	if !readJSON(w, r, &patch) {
		return
	}

	d.mu.Lock()
	d.patches = append(d.patches, patch)
	for k, v := range patch {
		if k == "configPassword" {
			if s, ok := v.(string); ok {
				d.password = s
			}
			continue
		}
		d.config[k] = v
	}
	cfg := maps.Clone(d.config)
	d.mu.Unlock()

	d.WriteLog("Got new config patch: " + marshal(patch))
	d.WriteLog("Config: " + marshal(cfg))
	writeJSON(w, cfg)
}

func (d *Device) handleGetDebug(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	flags := maps.Clone(d.debug)
	d.mu.Unlock()
	writeJSON(w, flags)
}

func (d *Device) handlePutDebug(w http.ResponseWriter, r *http.Request) {
	var patch map[string]bool
	if !readJSON(w, r, &patch) {
		return
	}
	d.WriteLog("Got new debug data: " + marshal(patch))

	d.mu.Lock()
	maps.Copy(d.debug, patch)
	flags := maps.Clone(d.debug)
	if flags["freeHeap"] || flags["systemLoad"] {
		d.startTickerLocked()
	} else {
		d.stopTickerLocked()
	}
	d.mu.Unlock()
	writeJSON(w, flags)
}

func (d *Device) handleGetFirmware(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	fw := d.firmware
	d.mu.Unlock()
	writeJSON(w, fw)
}

// handleUpload accepts any non-empty image and reports success; an empty
// image fails like a bad flash.
func (d *Device) handleUpload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "missing file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	d.WriteLog("Firmware update started.")
	n, err := io.Copy(io.Discard, file)
	if err != nil {
		http.Error(w, "read file", http.StatusBadRequest)
		return
	}
	d.log.Info("firmware received", "file", header.Filename, "bytes", n)
	if n == 0 {
		d.WriteLog("Firmware update failed.")
		writeJSON(w, map[string]bool{"success": false})
		return
	}
	d.WriteLog("Firmware update finish. Rebooting!")
	writeJSON(w, map[string]bool{"success": true})
}

func (d *Device) handleProtocols(w http.ResponseWriter, r *http.Request) {
	d.mu.Lock()
	protocols := slices.Clone(d.protocols)
	d.mu.Unlock()
	writeJSON(w, protocols)
}

func (d *Device) handleSystem(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Command gateway.Command `json:"command"`
	}
	if !readJSON(w, r, &body) {
		return
	}
	if !slices.Contains(gateway.Commands, body.Command) {
		http.Error(w, fmt.Sprintf("unknown command %q", body.Command), http.StatusBadRequest)
		return
	}

	d.mu.Lock()
	d.commands = append(d.commands, body.Command)
	if body.Command == gateway.CommandResetConfig {
		d.config = defaultConfig()
	}
	d.mu.Unlock()

	d.WriteLog("Execute command: " + marshal(body))
	w.WriteHeader(http.StatusOK)

	if body.Command == gateway.CommandRestart {
		d.logs.dropAll()
	}
}

// startTickerLocked writes the enabled debug lines every tick. d.mu must be held.
func (d *Device) startTickerLocked() {
	if d.ticker != nil {
		return
	}
	d.ticker = time.NewTicker(d.tick)
	d.stopTick = make(chan struct{})
	go d.runTicker(d.ticker.C, d.stopTick)
}

func (d *Device) stopTickerLocked() {
	if d.ticker == nil {
		return
	}
	d.ticker.Stop()
	close(d.stopTick)
	d.ticker = nil
}

func (d *Device) runTicker(c <-chan time.Time, stop <-chan struct{}) {
	var iterations int
	for {
		select {
		case <-stop:
			return
		case <-c:
		}
		d.mu.Lock()
		heap, load := d.debug["freeHeap"], d.debug["systemLoad"]
		d.mu.Unlock()
		if heap {
			d.WriteLog("Free heap: 0815")
		}
		if load {
			iterations = (iterations*7919 + 104729) % 50000
			d.WriteLog(fmt.Sprintf("Loop iterations since last interval: %d", iterations))
		}
	}
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid JSON: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func marshal(v any) string {
	b, _ := json.Marshal(v)
	return string(b)
}
