package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sweeney/gatewayctl/internal/gateway"
	"github.com/sweeney/gatewayctl/internal/session"
)

func newSystemCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:       "system <restart|reset_wifi|reset_config>",
		Short:     "Send a system command to the gateway",
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		ValidArgs: commandNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			command := gateway.Command(args[0])
			ctx := cmd.Context()
			if command != gateway.CommandRestart {
				ok, err := a.confirmer().Confirm(ctx, fmt.Sprintf("Send %s to %s?", command, a.prof.Host))
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("%s cancelled", command)
				}
			}
			return a.withSession(ctx, func(s *session.Session) error {
				notice, err := s.Command(ctx, command)
				if err != nil {
					return err
				}
				fmt.Fprintln(a.stdout, notice)
				return nil
			})
		},
	}
}

func commandNames() []string {
	names := make([]string, 0, len(gateway.Commands))
	for _, c := range gateway.Commands {
		names = append(names, string(c))
	}
	return names
}
