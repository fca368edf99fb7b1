package main

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/sweeney/gatewayctl/internal/profile"
)

const masked = "********"

func newProfileCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage the gatewayctl profile",
	}

	var force bool
	initCmd := &cobra.Command{
		Use:   "init",
		Short: "Write a profile with the defaults and the given global flags",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := a.fs.Stat(a.profilePath)
			switch {
			case err == nil && !force:
				return fmt.Errorf("%s already exists; use --force to overwrite", a.profilePath)
			case err != nil && !errors.Is(err, fs.ErrNotExist):
				return err
			}
			if err := profile.Save(a.fs, a.profilePath, a.prof); err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "Wrote %s\n", a.profilePath)
			return nil
		},
	}
	initCmd.Flags().BoolVar(&force, "force", false, "overwrite an existing profile")

	show := &cobra.Command{
		Use:   "show",
		Short: "Print the effective profile with passwords masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p := a.prof
			if p.Password != "" {
				p.Password = masked
			}
			if p.MQTT.Password != "" {
				p.MQTT.Password = masked
			}
			fmt.Fprintf(a.stdout, "# %s\n", a.profilePath)
			return toml.NewEncoder(a.stdout).Encode(p)
		},
	}

	cmd.AddCommand(initCmd, show)
	return cmd
}
