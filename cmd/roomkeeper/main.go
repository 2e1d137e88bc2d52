// Package main provides the roomkeeper command: it keeps one account present
// in a rotating set of meeting rooms and claims the meeting quest on a
// schedule.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roomkeeper/roomkeeper/pkg/config"
	"github.com/roomkeeper/roomkeeper/pkg/logging"
)

const version = "0.3.0"

// flags shared by every subcommand
type rootFlags struct {
	configPath string
	engine     string
	headless   bool
	verbosity  string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:           "roomkeeper",
		Short:         "Keep an account present in rotating meeting rooms",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Path to the YAML configuration file")
	root.PersistentFlags().StringVar(&flags.engine, "engine", "", "Browser engine: playwright or rod (overrides config)")
	root.PersistentFlags().BoolVar(&flags.headless, "headless", true, "Run the browser without a window (overrides config)")
	root.PersistentFlags().StringVarP(&flags.verbosity, "verbosity", "v", "", "Log verbosity: quiet, normal, verbose, debug")

	root.AddCommand(
		newRunCmd(flags),
		newClaimCmd(flags),
		newValidateCmd(flags),
		newVersionCmd(),
	)
	return root
}

// loadConfig resolves the configuration and configures logging from it.
func loadConfig(cmd *cobra.Command, flags *rootFlags) (*config.Config, error) {
	o := config.Overrides{
		Engine:    &flags.engine,
		Verbosity: &flags.verbosity,
	}
	if cmd.Flags().Changed("headless") {
		o.Headless = &flags.headless
	}

	cfg, err := config.Resolve(flags.configPath, os.Getenv, o)
	if err != nil {
		return nil, err
	}
	logging.Configure(logging.ParseLevel(cfg.Logging.Verbosity), cfg.Logging.Stderr)
	return cfg, nil
}

// signalContext cancels on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-sigChan:
			fmt.Fprintln(os.Stderr, "\nShutting down gracefully...")
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigChan)
	}()
	return ctx, cancel
}
