package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"

	"github.com/sweeney/gatewayctl/internal/clock"
	"github.com/sweeney/gatewayctl/internal/indicator"
	"github.com/sweeney/gatewayctl/internal/logstore"
	"github.com/sweeney/gatewayctl/internal/mqtt"
	"github.com/sweeney/gatewayctl/internal/session"
	"github.com/sweeney/gatewayctl/internal/status"
	"github.com/sweeney/gatewayctl/internal/web"
)

// sinkQueue bounds each asynchronous sink.
const sinkQueue = 4096

type logFlags struct {
	httpAddr string
	broker   string
	archive  string
	noLED    bool
}

func newLogCmd(a *app) *cobra.Command {
	var lf logFlags
	cmd := &cobra.Command{
		Use:   "log",
		Short: "Follow the gateway log",
		Long: `Follow the gateway's log socket until interrupted.

Lines are written to stdout verbatim; connection changes appear as
"--- 15:04:05 Connected ---" markers. When the profile configures them, lines
and connection events are also mirrored to MQTT, archived in SQLite and shown
on a status LED.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if lf.broker != "" {
				a.prof.MQTT.Broker = lf.broker
			}
			if lf.archive != "" {
				a.prof.Archive.Path = lf.archive
			}
			if lf.noLED {
				a.prof.LED.Chip = ""
			}
			return a.runLog(lf.httpAddr)
		},
	}
	cmd.Flags().StringVar(&lf.httpAddr, "http", "", "serve a status page on this address, e.g. :8080")
	cmd.Flags().StringVar(&lf.broker, "broker", "", "MQTT broker URL, overrides the profile")
	cmd.Flags().StringVar(&lf.archive, "archive", "", "SQLite archive path, overrides the profile")
	cmd.Flags().BoolVar(&lf.noLED, "no-led", false, "do not drive the status LED")
	return cmd
}

// logSession is the part of a session the run loop drives.
type logSession interface {
	StartLog()
	Close()
}

func (a *app) runLog(httpAddr string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	lp, stopLoop := startLoop()
	defer stopLoop()

	tracker := status.NewTracker(time.Now(), a.prof.Host, a.statusConfig())
	sinks := []session.Sink{session.NewWriterSink(a.stdout)}

	// Initialize MQTT
	var publisher mqtt.Publisher
	var mqttStatus mqtt.ConnectionStatus
	if a.prof.MQTT.Broker != "" {
		pub, err := mqtt.NewRealPublisher(mqtt.Options{
			Broker:   a.prof.MQTT.Broker,
			Prefix:   a.prof.MQTT.Prefix,
			Username: a.prof.MQTT.Username,
			Password: a.prof.MQTT.Password,
			Logger:   a.log.Named("mqtt"),
		})
		if err != nil {
			return fmt.Errorf("init mqtt: %w", err)
		}
		defer pub.Close()
		publisher, mqttStatus = pub, pub
		tracker.SetMQTTConnected(pub.IsConnected())

		mirror := session.NewAsync(session.NewMQTTSink(pub, tracker, a.log.Named("mqtt")), sinkQueue, a.log)
		defer mirror.Close()
		sinks = append(sinks, mirror)
	}

	// Initialize archive
	var archive web.Archive
	if a.prof.Archive.Path != "" {
		store, err := logstore.Open(a.prof.Archive.Path, a.log.Named("archive"))
		if err != nil {
			return fmt.Errorf("init archive: %w", err)
		}
		defer store.Close()
		defer pruneArchive(store, a.prof.Archive.Keep, a.log)
		pruneArchive(store, a.prof.Archive.Keep, a.log)
		archive = store

		writer := session.NewAsync(session.NewArchiveSink(store, tracker, a.log.Named("archive")), sinkQueue, a.log)
		defer writer.Close()
		sinks = append(sinks, writer)
	}

	// Initialize status LED
	if a.prof.LED.Chip != "" {
		led, err := indicator.NewRealLED(a.prof.LED.Chip, a.prof.LED.Line, a.prof.LED.ActiveLow)
		if err != nil {
			return fmt.Errorf("init led: %w", err)
		}
		defer led.Close()
		ind := indicator.New(led, clock.Real{}, lp, indicator.DefaultBlinkPeriod, a.log.Named("led"))
		sinks = append(sinks, session.NewLEDSink(ind))
	}

	opts := a.sessionOptions(ctx, lp, tracker)
	opts.Sinks = sinks
	sess := session.New(opts)

	// Start HTTP status server
	if httpAddr != "" {
		srv := web.New(httpAddr, tracker, archive)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				a.log.Error("http server error", "error", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		a.log.Info("http status server listening", "addr", httpAddr)
	}

	sig, stopSignals := a.notifySignals()
	defer stopSignals()

	a.log.Info("started", "host", a.prof.Host, "broker", a.prof.MQTT.Broker, "archive", a.prof.Archive.Path)
	return runLoop(sess, publisher, mqttStatus, tracker, time.Now, sig, a.log)
}

// runLoop opens the log socket and follows it until a signal arrives. A
// retained STARTUP and SHUTDOWN status event bracket the session when a
// publisher is configured.
func runLoop(sess logSession, publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, now func() time.Time, sig <-chan os.Signal, logger hclog.Logger) error {
	publishEvent(publisher, mqttStatus, tracker, now, "STARTUP", "", logger)
	sess.StartLog()

	s := <-sig
	signalName := "UNKNOWN"
	if s == syscall.SIGINT {
		signalName = "SIGINT"
	} else if s == syscall.SIGTERM {
		signalName = "SIGTERM"
	}
	logger.Info("shutting down", "signal", signalName)

	// Close returns once Closed reached every sink, so the SHUTDOWN
	// snapshot shows the final state.
	sess.Close()
	publishEvent(publisher, mqttStatus, tracker, now, "SHUTDOWN", signalName, logger)
	return nil
}

func publishEvent(publisher mqtt.Publisher, mqttStatus mqtt.ConnectionStatus, tracker *status.Tracker, now func() time.Time, event, reason string, logger hclog.Logger) {
	if publisher == nil {
		return
	}
	ev := mqtt.StatusEvent{
		Timestamp: now(),
		Event:     event,
		Reason:    reason,
		Retained:  true,
	}
	if tracker != nil {
		if mqttStatus != nil {
			tracker.SetMQTTConnected(mqttStatus.IsConnected())
		}
		ev.RawPayload = status.FormatStatusEvent(tracker.Snapshot(), event, reason)
	}
	if err := publisher.PublishStatus(ev); err != nil {
		logger.Warn("failed to publish status event", "event", event, "error", err)
		return
	}
	logger.Debug("published status event", "event", event)
}

func pruneArchive(store *logstore.Store, keep int, logger hclog.Logger) {
	if keep <= 0 {
		return
	}
	n, err := store.Prune(context.Background(), keep)
	if err != nil {
		logger.Warn("prune archive failed", "error", err)
		return
	}
	if n > 0 {
		logger.Info("pruned archive", "removed", n, "keep", keep)
	}
}
