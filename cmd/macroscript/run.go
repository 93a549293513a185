package main

import (
	_ "embed"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codefionn/macroscript/internal/host"
	"github.com/codefionn/macroscript/internal/pprof"
)

//go:embed scripts/echo.go
var echoScript []byte

func newRunCmd() *cobra.Command {
	var noWatch bool
	cmd := &cobra.Command{
		Use:   "run <script.go> [args...]",
		Short: "Run a script",
		Long: `Run loads the script and dispatches events to it until it calls
macro.Quit() or the process receives SIGINT or SIGTERM. SIGHUP and edits
to the script file reload it.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if noWatch {
				cfg.Script.Watch = false
			}
			return runHost(cmd, host.Options{
				Config:     cfg,
				ScriptPath: args[0],
				ScriptArgs: args[1:],
			})
		},
	}
	cmd.Flags().BoolVar(&noWatch, "no-watch", false, "Do not reload the script when it changes")
	return cmd
}

func newEchoCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "echo",
		Short: "Run the built-in TCP echo server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			cfg.Input.Devices = false
			cfg.Input.Inject = false
			return runHost(cmd, host.Options{
				Config:       cfg,
				ScriptPath:   "echo.go",
				ScriptSource: echoScript,
				ScriptArgs:   []string{addr},
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:9001", "Listen address")
	return cmd
}

func runHost(cmd *cobra.Command, opts host.Options) error {
	h, err := host.New(opts)
	if err != nil {
		return err
	}

	if profiling.Enabled() {
		prof := pprof.NewHandler(profiling, func() any { return h.Stats() }, h.Log.WithPrefix("pprof"))
		if err := prof.Start(); err != nil {
			h.Close()
			return err
		}
		defer func() {
			if err := prof.Stop(); err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "macroscript: profiling: %v\n", err)
			}
		}()
	}

	err = h.Run(cmd.Context())
	if errors.Is(err, host.ErrPanic) {
		h.Fatal(err)
	}
	if cerr := h.Close(); cerr != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "macroscript: shutdown: %v\n", cerr)
	}
	if err != nil {
		return err
	}
	if st := h.Dispatcher.Stats(); st.Failures > 0 {
		fmt.Fprintf(cmd.ErrOrStderr(), "macroscript: %d script callback failures, see the log\n", st.Failures)
	}
	return nil
}
