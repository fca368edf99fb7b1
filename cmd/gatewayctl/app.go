package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sweeney/gatewayctl/internal/channel"
	"github.com/sweeney/gatewayctl/internal/gateway"
	"github.com/sweeney/gatewayctl/internal/loop"
	"github.com/sweeney/gatewayctl/internal/profile"
	"github.com/sweeney/gatewayctl/internal/prompt"
	"github.com/sweeney/gatewayctl/internal/session"
	"github.com/sweeney/gatewayctl/internal/settings"
	"github.com/sweeney/gatewayctl/internal/status"
	"github.com/sweeney/gatewayctl/internal/stream"
)

// envDebug forces debug logging when set to any value.
const envDebug = "GATEWAYCTL_DEBUG"

const loopQueue = 1024

// app carries the global flags and the resolved profile shared by every
// command.
type app struct {
	fs     afero.Fs
	stdin  *os.File
	stdout io.Writer
	stderr io.Writer

	profilePath string
	host        string
	password    string
	logLevel    string
	yes         bool
	no          bool

	prof profile.Profile
	log  hclog.Logger

	// transport replaces the websocket dialer in tests.
	transport stream.Transport

	// signals replaces signal.Notify in tests.
	signals func() (<-chan os.Signal, func())
}

func newRootCmd(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "gatewayctl",
		Short: "Control an RF 433 MHz MQTT gateway",
		Long: `gatewayctl talks to an ESP8266 RF 433 MHz MQTT gateway over its REST API and
log socket.

It follows the device log with heartbeat supervision and automatic
reconnects, mirrors it to MQTT, a SQLite archive and a status LED, and edits
the device settings with optimistic synchronization.`,
		Version:           Version,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return a.setup() },
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)

	f := root.PersistentFlags()
	f.StringVar(&a.profilePath, "profile", "", "profile file (default ~/.config/gatewayctl/profile.toml)")
	f.StringVarP(&a.host, "host", "H", "", "gateway host, optionally with :port")
	f.StringVar(&a.password, "password", "", "gateway admin password")
	f.StringVar(&a.logLevel, "log-level", "", "log level: trace, debug, info, warn, error or off")
	f.BoolVarP(&a.yes, "yes", "y", false, "answer yes to every question")
	f.BoolVar(&a.no, "no", false, "answer no to every question")
	root.MarkFlagsMutuallyExclusive("yes", "no")

	root.AddCommand(
		newLogCmd(a),
		newConfigCmd(a),
		newDebugCmd(a),
		newFirmwareCmd(a),
		newSystemCmd(a),
		newStatusCmd(a),
		newArchiveCmd(a),
		newProfileCmd(a),
		newMockCmd(a),
	)
	return root
}

// setup loads the profile, applies flag overrides and creates the root
// logger.
func (a *app) setup() error {
	if a.profilePath == "" {
		path, err := profile.DefaultPath()
		if err != nil {
			return err
		}
		a.profilePath = path
	}
	prof, err := profile.Load(a.fs, a.profilePath)
	if err != nil {
		return err
	}
	if a.host != "" {
		prof.Host = a.host
	}
	if a.password != "" {
		prof.Password = a.password
	}
	if a.logLevel != "" {
		prof.LogLevel = a.logLevel
	}
	if os.Getenv(envDebug) != "" {
		prof.LogLevel = "debug"
	}
	if err := prof.Validate(); err != nil {
		return err
	}
	a.prof = prof

	a.log = hclog.New(&hclog.LoggerOptions{
		Name:   "gatewayctl",
		Level:  hclog.LevelFromString(prof.LogLevel),
		Output: a.stderr,
	})
	return nil
}

func (a *app) client() *gateway.Client {
	return gateway.NewClient(a.prof.Host,
		gateway.WithPassword(a.prof.Password),
		gateway.WithLogPort(a.prof.LogPort),
		gateway.WithLogger(a.log.Named("gateway")),
	)
}

func (a *app) channelConfig() channel.Config {
	return channel.Config{
		PingInterval: a.prof.PingInterval(),
		PongTimeout:  a.prof.PongTimeout(),
		RetryDelay:   a.prof.RetryDelay(),
	}
}

func (a *app) statusConfig() status.Config {
	cfg := a.channelConfig()
	return status.Config{
		PingMs:  cfg.PingInterval.Milliseconds(),
		PongMs:  cfg.PongTimeout.Milliseconds(),
		RetryMs: cfg.RetryDelay.Milliseconds(),
		Broker:  a.prof.MQTT.Broker,
	}
}

func (a *app) interactive() bool {
	return a.stdin != nil && term.IsTerminal(int(a.stdin.Fd()))
}

func (a *app) confirmer() settings.Confirmer {
	switch {
	case a.yes:
		return prompt.Fixed(true)
	case a.no:
		return prompt.Fixed(false)
	case a.interactive():
		return prompt.Confirm{Accessible: os.Getenv("ACCESSIBLE") != ""}
	}
	return prompt.Fixed(false)
}

func (a *app) notifySignals() (<-chan os.Signal, func()) {
	if a.signals != nil {
		return a.signals()
	}
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	return sig, func() { signal.Stop(sig) }
}

// startLoop runs an event loop until the returned stop function is called.
func startLoop() (*loop.Loop, func()) {
	lp := loop.New(loopQueue)
	go lp.Run(context.Background())
	return lp, func() {
		lp.Stop()
		<-lp.Done()
	}
}

// sessionOptions are the options every command shares.
func (a *app) sessionOptions(ctx context.Context, exec loop.Executor, tracker *status.Tracker) session.Options {
	return session.Options{
		Client:    a.client(),
		Exec:      exec,
		Transport: a.transport,
		Channel:   a.channelConfig(),
		Tracker:   tracker,
		Confirmer: a.confirmer(),
		Notify:    func(msg string) { fmt.Fprintln(a.stderr, msg) },
		Context:   ctx,
		Logger:    a.log,
	}
}

// withSession runs f against a session whose log socket stays closed.
func (a *app) withSession(ctx context.Context, f func(s *session.Session) error) error {
	lp, stop := startLoop()
	defer stop()
	s := session.New(a.sessionOptions(ctx, lp, nil))
	return f(s)
}
