// Toolflow runs audited multi-step generation pipelines.
//
// Usage:
//
//	# Generate a palette from a brief
//	toolflow run palette --input "calm harbor at dawn"
//
//	# Read the run input from a file and keep only final attempts
//	toolflow run palette --input @brief.json --final-only --usage final
//
//	# Check configuration and pipeline definitions
//	toolflow validate
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "toolflow",
		Short: "Run audited multi-step generation pipelines",
		Long: `toolflow runs a fixed sequence of generation steps. Every step output is
decoded into a typed value, audited by checks, and retried with the audit
issues forwarded until it passes or runs out of retries.

Configuration is read from ~/.config/toolflow/config.yaml and TOOLFLOW_*
environment variables.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default ~/.config/toolflow/config.yaml)")

	cmd.AddCommand(newRunCmd(opts))
	cmd.AddCommand(newValidateCmd(opts))
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "toolflow %s\n", version)
			fmt.Fprintf(cmd.OutOrStdout(), "  commit: %s\n", gitCommit)
			fmt.Fprintf(cmd.OutOrStdout(), "  built:  %s\n", buildDate)
		},
	}
}
