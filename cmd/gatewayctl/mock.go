package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/sweeney/gatewayctl/internal/devicemock"
)

func newMockCmd(a *app) *cobra.Command {
	var apiAddr, logAddr, password string
	var tick time.Duration
	cmd := &cobra.Command{
		Use:   "mock",
		Short: "Run a simulated gateway for development",
		Long: `Run a simulated gateway: the REST API on --listen and the log socket on
--log-listen. It answers pings with __PONG__ and writes debug output while
the debug flags are on.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := []devicemock.Option{
				devicemock.WithLogger(a.log.Named("mock")),
				devicemock.WithTickInterval(tick),
			}
			if password != "" {
				opts = append(opts, devicemock.WithPassword(password))
			}
			srv := devicemock.NewServer(devicemock.New(opts...), apiAddr, logAddr)

			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()
			a.log.Info("mock gateway listening", "api", apiAddr, "log", logAddr)

			sig, stopSignals := a.notifySignals()
			defer stopSignals()
			select {
			case err := <-errCh:
				return err
			case s := <-sig:
				a.log.Info("shutting down", "signal", s)
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				return err
			}
			return <-errCh
		},
	}
	cmd.Flags().StringVar(&apiAddr, "listen", "127.0.0.1:8080", "REST API address")
	cmd.Flags().StringVar(&logAddr, "log-listen", "127.0.0.1:8081", "log socket address")
	cmd.Flags().StringVar(&password, "mock-password", "", "admin password the mock requires (empty disables auth)")
	cmd.Flags().DurationVar(&tick, "tick", time.Second, "interval of the debug output")
	return cmd
}
