package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/sweeney/gatewayctl/internal/session"
	"github.com/sweeney/gatewayctl/internal/status"
)

func newStatusCmd(a *app) *cobra.Command {
	var wait time.Duration
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Connect briefly and print the session status as JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runStatus(cmd.Context(), wait)
		},
	}
	cmd.Flags().DurationVar(&wait, "wait", 5*time.Second, "how long to wait for the log socket")
	return cmd
}

// runStatus opens the log socket, waits until it is connected and the
// firmware is known, then prints the snapshot. It fails when the socket did
// not connect in time.
func (a *app) runStatus(ctx context.Context, wait time.Duration) error {
	lp, stop := startLoop()
	defer stop()

	tracker := status.NewTracker(time.Now(), a.prof.Host, a.statusConfig())
	opts := a.sessionOptions(ctx, lp, tracker)
	opts.Sinks = []session.Sink{session.NewWriterSink(io.Discard)}
	opts.Notify = nil
	sess := session.New(opts)

	if err := sess.LoadSettings(ctx); err != nil {
		a.log.Warn("load settings failed", "error", err)
	}
	sess.StartLog()

	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		snap := tracker.Snapshot()
		if snap.Connected && snap.Firmware != nil {
			break
		}
		time.Sleep(50 * time.Millisecond)
	}
	connected := tracker.Snapshot().Connected
	sess.Close()

	snap := tracker.Snapshot()
	fmt.Fprintln(a.stdout, string(status.FormatJSON(snap)))
	if !connected {
		return fmt.Errorf("log socket not connected after %v", wait)
	}
	return nil
}
