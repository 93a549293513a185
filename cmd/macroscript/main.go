package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/codefionn/macroscript/internal/config"
	"github.com/codefionn/macroscript/internal/pprof"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	configFile string
	logLevel   string
	profiling  pprof.Config
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "macroscript",
	Short: "Event-driven automation scripts for sockets and input devices",
	Long: `macroscript runs a Go script that reacts to events from network sockets,
keyboards, mice, gamepads and the console.

A script imports "macro" and defines

	func Event(name string, args ...any) error

plus optional Init and Terminate functions.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Configuration file (JSON or YAML, default "+config.GetConfigPath()+")")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error, none")
	rootCmd.PersistentFlags().StringVar(&profiling.HTTPAddr, "pprof", "", "Serve pprof and stats on this address (e.g. localhost:6060)")
	rootCmd.PersistentFlags().StringVar(&profiling.CPUProfile, "cpu-profile", "", "Write a CPU profile to this file")
	rootCmd.PersistentFlags().StringVar(&profiling.HeapProfile, "heap-profile", "", "Write a heap profile to this file on exit")

	rootCmd.AddCommand(newRunCmd(), newEchoCmd(), newDevicesCmd(), newSettingsCmd(), newConfigCmd(), newVersionCmd())
}

// loadConfig reads the configuration selected by the persistent flags.
func loadConfig() (*config.Config, error) {
	path := configFile
	if path == "" {
		path = config.GetConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.LogLevel = logLevel
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "macroscript %s\n", version)
		},
	}
}
