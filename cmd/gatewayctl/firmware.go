package main

import (
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/spf13/cobra"
)

func newFirmwareCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "firmware",
		Short: "Show the firmware version or flash a new image",
	}

	info := &cobra.Command{
		Use:   "info",
		Short: "Print the firmware version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fw, err := a.client().FetchFirmware(cmd.Context())
			if err != nil {
				return fmt.Errorf("fetch firmware: %w", err)
			}
			fmt.Fprintf(a.stdout, "version: %s\n", fw.Version)
			fmt.Fprintf(a.stdout, "chip:    %s\n", fw.ChipID)
			libs := make([]string, 0, len(fw.BuildWith))
			for lib := range fw.BuildWith {
				libs = append(libs, lib)
			}
			sort.Strings(libs)
			for _, lib := range libs {
				fmt.Fprintf(a.stdout, "  %s %s\n", lib, fw.BuildWith[lib])
			}
			return nil
		},
	}

	upload := &cobra.Command{
		Use:   "upload <image.bin>",
		Short: "Flash a firmware image; the gateway reboots afterwards",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			f, err := a.fs.Open(path)
			if err != nil {
				return fmt.Errorf("open image: %w", err)
			}
			defer f.Close()
			st, err := f.Stat()
			if err != nil {
				return fmt.Errorf("stat image: %w", err)
			}

			ok, err := a.confirmer().Confirm(cmd.Context(),
				fmt.Sprintf("Flash %s (%d bytes) to %s?", filepath.Base(path), st.Size(), a.prof.Host))
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("upload cancelled")
			}

			var mu sync.Mutex
			last := -1
			progress := func(p float64) {
				mu.Lock()
				defer mu.Unlock()
				pct := int(p * 100)
				if pct != last {
					last = pct
					fmt.Fprintf(a.stderr, "\rUploading: %3d%%", pct)
				}
			}
			err = a.client().UploadFirmware(cmd.Context(), filepath.Base(path), f, st.Size(), progress)
			fmt.Fprintln(a.stderr)
			if err != nil {
				return fmt.Errorf("upload firmware: %w", err)
			}
			fmt.Fprintln(a.stdout, "Firmware update finished, the gateway is rebooting")
			return nil
		},
	}

	cmd.AddCommand(info, upload)
	return cmd
}
