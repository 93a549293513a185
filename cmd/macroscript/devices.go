package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/codefionn/macroscript/internal/hid"
	"github.com/codefionn/macroscript/internal/logger"
)

func newDevicesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List the input devices scripts can see",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			log := logger.NewWriter(cfg.Level(), cmd.ErrOrStderr(), "devices")

			dev, err := hid.NewEvdevDevice(log)
			if err != nil {
				return fmt.Errorf("failed to open input devices: %w", err)
			}
			defer dev.Close()
			if err := dev.Enumerate(); err != nil {
				return fmt.Errorf("failed to enumerate input devices: %w", err)
			}

			infos := dev.Devices()
			if len(infos) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no readable input devices (is the user in the input group?)")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "KIND\tPATH\tNAME")
			for _, info := range infos {
				fmt.Fprintf(w, "%s\t%s\t%s\n", info.Kind, info.Path, info.Name)
			}
			return w.Flush()
		},
	}
}
