package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dwizi/governor/internal/app"
	"github.com/dwizi/governor/internal/config"
	"github.com/dwizi/governor/internal/policy"
)

const version = "0.1.0"

func NewRoot(logger *slog.Logger) *cobra.Command {
	root := &cobra.Command{
		Use:   "governor",
		Short: "Governor gates autonomous agent actions behind policy, budgets, and risk checks",
	}

	root.AddCommand(newServeCommand(logger))
	root.AddCommand(newCheckPolicyCommand())
	root.AddCommand(newVersionCommand())

	return root
}

func newServeCommand(logger *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the gating services and HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.FromEnv()
			runtime, err := app.New(cfg, logger)
			if err != nil {
				return err
			}
			defer runtime.Close()

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			return runtime.Run(ctx)
		},
	}
}

func newCheckPolicyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "check-policy [path]",
		Short: "Validate a policy document without starting the runtime",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.FromEnv().PolicyPath
			if len(args) == 1 && strings.TrimSpace(args[0]) != "" {
				path = args[0]
			}
			document, err := policy.LoadFile(path)
			if err != nil {
				return fmt.Errorf("policy %s is invalid: %w", path, err)
			}
			cmd.Printf("policy %s is valid (version %d)\n", path, document.Version)
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(version)
		},
	}
}
