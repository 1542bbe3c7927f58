// Command strategybench runs a benchmark corpus through an LLM under every
// configured reasoning strategy and stores the answers for grading.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

// rootOptions are the flags shared by every subcommand.
type rootOptions struct {
	configPath string
	logLevel   string
	logFormat  string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "strategybench",
		Short: "Run exam benchmarks against an LLM under several reasoning strategies",
		Long: `strategybench sends every question of a benchmark corpus to an LLM once per
reasoning strategy and writes the answers to one result file per strategy and
category. Runs are resumable: answered questions are never sent again.

Examples:
  strategybench check --config batch.json
  strategybench run --config batch.json --strategy cot --category Physics_MCMS
  strategybench status --config batch.json --history`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "batch.json", "path to the batch file")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override the log level (debug, info, warn, error)")
	cmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "override the log format (text, json)")

	cmd.AddCommand(newRunCmd(opts))
	cmd.AddCommand(newStatusCmd(opts))
	cmd.AddCommand(newCheckCmd(opts))
	return cmd
}
