package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sweeney/gatewayctl/internal/logstore"
)

func newArchiveCmd(a *app) *cobra.Command {
	var limit int
	var kind string
	var path string
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Print entries from the log archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				path = a.prof.Archive.Path
			}
			if path == "" {
				return fmt.Errorf("no archive configured; set archive.path in the profile or pass --path")
			}
			k := logstore.Kind(kind)
			if k != "" && k != logstore.KindLine && k != logstore.KindStatus {
				return fmt.Errorf("kind must be %q or %q", logstore.KindLine, logstore.KindStatus)
			}

			store, err := logstore.Open(path, a.log.Named("archive"))
			if err != nil {
				return err
			}
			defer store.Close()

			entries, err := store.Recent(cmd.Context(), k, limit)
			if err != nil {
				return err
			}
			for _, e := range entries {
				ts := e.Time.Local().Format("2006-01-02 15:04:05.000")
				if e.Kind == logstore.KindStatus {
					fmt.Fprintf(a.stdout, "%s %s --- %s ---\n", ts, e.Host, e.Text)
					continue
				}
				fmt.Fprintf(a.stdout, "%s %s %s\n", ts, e.Host, strings.TrimSuffix(e.Text, "\n"))
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "number of entries")
	cmd.Flags().StringVar(&kind, "kind", "", `only "line" or "status" entries`)
	cmd.Flags().StringVar(&path, "path", "", "archive path, overrides the profile")
	return cmd
}
