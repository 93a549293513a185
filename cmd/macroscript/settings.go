package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codefionn/macroscript/internal/settings"
)

func openSettingsStore() (*settings.SQLiteStore, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	if cfg.SettingsPath == "" {
		return nil, fmt.Errorf("no settings_path configured")
	}
	return settings.OpenSQLite(cfg.SettingsPath)
}

func newSettingsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change persisted settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openSettingsStore()
			if err != nil {
				return err
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "# %s\n", store.Path())
			fmt.Fprintf(out, "%s = %d\n", settings.KeyNetworkBufferSize, settings.NetworkBufferSize(store))
			fmt.Fprintf(out, "%s = %d\n", settings.KeyRecvQueueSize, settings.RecvQueueSize(store))
			fmt.Fprintf(out, "%s = %t\n", settings.KeyYieldTimeSlice, settings.YieldTimeSlice(store))
			return nil
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get <key>",
		Short: "Print a stored value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openSettingsStore()
			if err != nil {
				return err
			}
			defer store.Close()

			v, ok, err := store.Get(args[0])
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("%s is not set", args[0])
			}
			fmt.Fprintln(cmd.OutOrStdout(), v)
			return nil
		},
	}, &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Store a value",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openSettingsStore()
			if err != nil {
				return err
			}
			defer store.Close()
			return store.Set(args[0], args[1])
		},
	})
	return cmd
}
