// Package session wires one gateway connection together: the reconnecting
// log channel, the settings controller and form, the status tracker and the
// output sinks. Everything stateful runs on a single event loop; the
// blocking methods here post to it and wait.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/hashicorp/go-hclog"

	"github.com/sweeney/gatewayctl/internal/channel"
	"github.com/sweeney/gatewayctl/internal/clock"
	"github.com/sweeney/gatewayctl/internal/form"
	"github.com/sweeney/gatewayctl/internal/gateway"
	"github.com/sweeney/gatewayctl/internal/loop"
	"github.com/sweeney/gatewayctl/internal/settings"
	"github.com/sweeney/gatewayctl/internal/status"
	"github.com/sweeney/gatewayctl/internal/stream"
)

// ErrStopped is returned when the event loop no longer accepts work.
var ErrStopped = errors.New("session: event loop stopped")

// Notices shown after a system command was accepted.
var commandNotices = map[gateway.Command]string{
	gateway.CommandRestart:     "Device will reboot, reconnecting",
	gateway.CommandResetWiFi:   "Device WiFi settings were cleared; reconfigure it",
	gateway.CommandResetConfig: "Device config was reset; reboot the device",
}

// Options configures a Session. Client and Exec are required.
type Options struct {
	Client *gateway.Client
	Exec   loop.Executor

	// Clock defaults to the wall clock.
	Clock clock.Clock

	// Transport defaults to a websocket Dialer.
	Transport stream.Transport

	// Channel holds heartbeat timings. An empty URL uses the client's
	// log socket address.
	Channel channel.Config

	// Tracker defaults to a new tracker for the client's host.
	Tracker *status.Tracker

	Sinks []Sink

	// Confirmer is asked before following a renamed device. Nil declines.
	Confirmer settings.Confirmer

	// PasswordPrompt, if set, asks for the new admin password after it
	// was changed.
	PasswordPrompt func(ctx context.Context) (string, error)

	// Notify receives settings progress messages.
	Notify func(msg string)

	// Context bounds every background request.
	Context context.Context

	Logger hclog.Logger
}

// Session is one client's view of one gateway.
type Session struct {
	client  *gateway.Client
	exec    loop.Executor
	clock   clock.Clock
	tracker *status.Tracker
	sinks   []Sink
	notify  func(string)
	ctx     context.Context
	log     hclog.Logger

	ch   *channel.Channel
	ctrl *settings.Controller
	form *form.Form
}

// New creates a Session. The log channel is not opened until StartLog.
func New(o Options) *Session {
	if o.Logger == nil {
		o.Logger = hclog.NewNullLogger()
	}
	if o.Clock == nil {
		o.Clock = clock.Real{}
	}
	if o.Transport == nil {
		o.Transport = stream.NewDialer(o.Logger.Named("stream"))
	}
	if o.Context == nil {
		o.Context = context.Background()
	}
	if o.Confirmer == nil {
		o.Confirmer = settings.ConfirmFunc(func(context.Context, string) (bool, error) { return false, nil })
	}
	if o.Notify == nil {
		o.Notify = func(string) {}
	}
	if o.Tracker == nil {
		o.Tracker = status.NewTracker(o.Clock.Now(), o.Client.Host(), status.Config{})
	}
	if o.Channel.URL == "" {
		o.Channel.URL = o.Client.LogURL()
	}

	s := &Session{
		client:  o.Client,
		exec:    o.Exec,
		clock:   o.Clock,
		tracker: o.Tracker,
		sinks:   o.Sinks,
		notify:  o.Notify,
		ctx:     o.Context,
		log:     o.Logger,
	}

	s.ch = channel.New(o.Channel, o.Transport, o.Clock, o.Exec, channel.Callbacks{
		OnMessage: s.onLine,
		OnStatus:  s.onStatus,
		OnConnect: s.onConnect,
	}, o.Logger.Named("channel"))

	s.ctrl = settings.NewController(settings.Options{
		API:   o.Client,
		Exec:  o.Exec,
		Apply: func(key string, value any) { s.form.Apply(key, value) },
		Status: func(msg string) {
			s.tracker.SetMessage(msg)
			s.log.Debug("settings", "status", msg)
			s.notify(msg)
		},
		Hooks: []settings.Hook{
			&settings.CredentialHook{
				SetPassword: o.Client.SetPassword,
				Prompt:      o.PasswordPrompt,
				Logger:      o.Logger,
			},
			&settings.IdentityHook{
				Host:      o.Client.Hostname,
				Confirmer: o.Confirmer,
				Navigate:  s.navigate,
				Logger:    o.Logger,
			},
		},
		Context: o.Context,
		Logger:  o.Logger.Named("settings"),
	})
	s.form = form.New(s.ctrl, form.GatewayGroups()...)
	return s
}

// Tracker returns the session's status tracker.
func (s *Session) Tracker() *status.Tracker {
	return s.tracker
}

// Client returns the REST client.
func (s *Session) Client() *gateway.Client {
	return s.client
}

// StartLog opens the log channel.
func (s *Session) StartLog() {
	s.log.Info("opening log socket", "url", s.client.LogURL())
	s.ch.Start()
}

// Close closes the log channel. It returns once the Closed transition has
// reached every sink, so it must not be called from a Sink.
func (s *Session) Close() {
	s.ch.Close()
	<-s.ch.Done()
}

// LoadSettings fetches the protocol list and the configuration.
func (s *Session) LoadSettings(ctx context.Context) error {
	protocols, err := s.client.FetchProtocols(ctx)
	if err != nil {
		s.log.Warn("fetch protocols failed", "error", err)
	} else if err := s.do(ctx, func() { s.form.Protocols().SetAvailable(protocols) }); err != nil {
		return err
	}
	return s.await(ctx, s.ctrl.Load)
}

// Set feeds user input into the named field.
func (s *Session) Set(ctx context.Context, name, input string) error {
	var err error
	if perr := s.do(ctx, func() {
		err = s.form.Set(name, input)
		s.tracker.SetPending(s.ctrl.Pending().Keys())
	}); perr != nil {
		return perr
	}
	return err
}

// Save pushes the pending changes.
func (s *Session) Save(ctx context.Context) error {
	return s.await(ctx, s.ctrl.Push)
}

// ResetSettings discards pending changes and reloads.
func (s *Session) ResetSettings(ctx context.Context) error {
	return s.await(ctx, s.ctrl.Reset)
}

// RenderSettings writes the form.
func (s *Session) RenderSettings(ctx context.Context, w io.Writer) error {
	var err error
	if perr := s.do(ctx, func() { err = s.form.Render(w) }); perr != nil {
		return perr
	}
	return err
}

// Value returns the named field's current local value.
func (s *Session) Value(ctx context.Context, name string) (string, error) {
	var out string
	var found bool
	if err := s.do(ctx, func() {
		if fld, ok := s.form.Field(name); ok {
			out, found = fld.Render(), true
		}
	}); err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("unknown setting %q", name)
	}
	return out, nil
}

// NeedsConfirm reports whether the named field takes a second, confirming
// input under name+form.ConfirmSuffix.
func (s *Session) NeedsConfirm(ctx context.Context, name string) (bool, error) {
	var needs bool
	err := s.do(ctx, func() {
		fld, _ := s.form.Field(name)
		if pw, ok := fld.(*form.PasswordField); ok {
			needs = pw.NeedsConfirm()
		}
	})
	return needs, err
}

// Pending returns the unconfirmed edits.
func (s *Session) Pending(ctx context.Context) (settings.Config, error) {
	var p settings.Config
	err := s.do(ctx, func() { p = s.ctrl.Pending() })
	return p, err
}

// Command sends a system command and returns the notice to show the user.
func (s *Session) Command(ctx context.Context, cmd gateway.Command) (string, error) {
	if err := s.client.SendCommand(ctx, cmd); err != nil {
		return "", fmt.Errorf("%s: %w", cmd, err)
	}
	notice := commandNotices[cmd]
	s.tracker.SetMessage(notice)
	return notice, nil
}

// do runs f on the event loop and waits for it.
func (s *Session) do(ctx context.Context, f func()) error {
	done := make(chan struct{})
	if !s.exec.Post(func() { f(); close(done) }) {
		return ErrStopped
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// await starts an asynchronous controller operation on the event loop and
// waits for its completion callback.
func (s *Session) await(ctx context.Context, start func(done func(error))) error {
	result := make(chan error, 1)
	posted := s.exec.Post(func() {
		start(func(err error) {
			s.tracker.SetPending(s.ctrl.Pending().Keys())
			result <- err
		})
	})
	if !posted {
		return ErrStopped
	}
	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Session) onLine(text string) {
	now := s.clock.Now()
	s.tracker.RecordLine(now)
	for _, sink := range s.sinks {
		sink.Line(now, text)
	}
}

func (s *Session) onStatus(st channel.Status) {
	now := s.clock.Now()
	connected := st.State == channel.StateConnected || st.State == channel.StateAwaitingPong
	s.tracker.SetConnection(st.State.String(), st.Label, connected, st.Reconnecting())
	s.log.Debug("log socket", "state", st.State, "label", st.Label)
	for _, sink := range s.sinks {
		sink.Status(now, st)
	}
}

// onConnect refreshes the firmware details after every (re)connect; the
// gateway may have been flashed or rebooted meanwhile.
func (s *Session) onConnect() {
	go func() {
		ctx, cancel := context.WithTimeout(s.ctx, settings.DefaultTimeout)
		defer cancel()
		fw, err := s.client.FetchFirmware(ctx)
		if err != nil {
			s.log.Warn("fetch firmware failed", "error", err)
			return
		}
		s.tracker.SetFirmware(status.Firmware{Version: fw.Version, ChipID: fw.ChipID})
		s.log.Info("gateway firmware", "version", fw.Version, "chip", fw.ChipID)
	}()
}

// navigate follows a renamed device to its new host, keeping any explicit
// port.
func (s *Session) navigate(host string) {
	if _, port, err := net.SplitHostPort(s.client.Host()); err == nil {
		host = net.JoinHostPort(host, port)
	}
	s.log.Info("following renamed device", "host", host)
	s.client.SetHost(host)
	s.tracker.SetHost(host)
	s.ch.Retarget(s.client.LogURL())
}

