package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/roomkeeper/roomkeeper/pkg/app"
	"github.com/roomkeeper/roomkeeper/pkg/config"
	"github.com/roomkeeper/roomkeeper/pkg/identity"
	"github.com/roomkeeper/roomkeeper/pkg/logging"
	"github.com/roomkeeper/roomkeeper/pkg/notify"
)

func newRunCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Join a room, monitor presence and claim on schedule until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}

			logger := logging.MustLogger("roomkeeper")
			defer logger.Close()
			fmt.Fprintf(cmd.ErrOrStderr(), "Logging to %s\n", logger.LogPath())

			runner, err := app.NewRunner(cfg, logger)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			return runner.Run(ctx)
		},
	}
}

func newClaimCmd(flags *rootFlags) *cobra.Command {
	var timeout time.Duration
	var notifyResult bool

	cmd := &cobra.Command{
		Use:   "claim",
		Short: "Authenticate and claim the quest once",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}

			logger := logging.MustLogger("claim")
			defer logger.Close()

			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			ctx, cancelTimeout := context.WithTimeout(ctx, timeout)
			defer cancelTimeout()

			var sink notify.Sink
			if notifyResult {
				sink = app.NewSink(cfg, logger)
				if a, ok := sink.(*notify.Async); ok {
					defer a.Close(context.Background())
				}
			}

			res, err := app.ClaimOnce(ctx, cfg, sink, logger)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			switch {
			case res.Success:
				fmt.Fprintf(out, "claimed: %s (points %s)\n", res.Message, res.Points)
			case res.MaxHPReached:
				fmt.Fprintf(out, "max HP reached for today: %s\n", res.Message)
			default:
				fmt.Fprintf(out, "claim failed: %s\n", res.Message)
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 2*time.Minute, "Overall timeout for the claim")
	cmd.Flags().BoolVar(&notifyResult, "notify", false, "Send the result to the notification channel")
	return cmd
}

func newValidateCmd(flags *rootFlags) *cobra.Command {
	var checkRPC bool

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate the configuration, then print a summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, flags)
			if err != nil {
				return err
			}

			printSummary(cmd, cfg)

			if checkRPC {
				if cfg.Claim.RPCURL == "" {
					return fmt.Errorf("--check-rpc needs claim.rpc_url or WEB3_RPC_URL")
				}
				ctx, cancel := context.WithTimeout(cmd.Context(), 20*time.Second)
				defer cancel()
				if err := identity.VerifyChain(ctx, cfg.Claim.RPCURL, cfg.Claim.ChainID); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "rpc:        chain %d ok\n", cfg.Claim.ChainID)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&checkRPC, "check-rpc", false, "Dial the RPC endpoint and verify the chain ID")
	return cmd
}

func printSummary(cmd *cobra.Command, cfg *config.Config) {
	out := cmd.OutOrStdout()
	source := cfg.ConfigFilePath
	if source == "" {
		source = "(defaults)"
	}

	fmt.Fprintf(out, "config:     %s\n", source)
	fmt.Fprintf(out, "account:    %s\n", cfg.AccountName)
	fmt.Fprintf(out, "rooms:      %s\n", strings.Join(cfg.Meeting.RoomIDs, ", "))
	fmt.Fprintf(out, "endpoint:   %s\n", cfg.Meeting.URLTemplate)
	fmt.Fprintf(out, "browser:    %s (headless=%v)\n", cfg.Browser.Engine, cfg.Browser.Headless)
	fmt.Fprintf(out, "check:      every %v\n", cfg.Presence.CheckInterval)
	fmt.Fprintf(out, "telegram:   %s\n", enabled(cfg.Notify.TelegramToken != "" && cfg.Notify.ChatID != ""))
	if cfg.Claim.Enabled {
		fmt.Fprintf(out, "claim:      every %v (tick %v), wallet %s\n",
			cfg.Claim.ClaimInterval, cfg.Claim.TickInterval, enabled(cfg.ClaimReady()))
	} else {
		fmt.Fprintf(out, "claim:      disabled\n")
	}
}

func enabled(ok bool) string {
	if ok {
		return "configured"
	}
	return "not configured"
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "roomkeeper v%s\n", version)
		},
	}
}
