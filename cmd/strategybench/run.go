package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/ahrav/strategybench/internal/llm"
	"github.com/ahrav/strategybench/internal/orchestrator"
)

type runOptions struct {
	strategies      []string
	categories      []string
	keepFailed      bool
	strictTemplates bool
	runID           string
}

func newRunCmd(root *rootOptions) *cobra.Command {
	opts := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Answer every unanswered question of the batch",
		Long: `Run the strategy x category x question matrix of the batch, one API call at a
time. Each answer is written to its result file before the next question is
sent, so an interrupted run can simply be started again.

Examples:
  strategybench run --config batch.json
  strategybench run --config batch.json --strategy cot --strategy direct
  strategybench run --config batch.json --category Physics_MCMS --keep-failed`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBatch(cmd, root, opts)
		},
	}

	cmd.Flags().StringSliceVar(&opts.strategies, "strategy", nil, "restrict the run to these strategies (repeatable)")
	cmd.Flags().StringSliceVar(&opts.categories, "category", nil, "restrict the run to these categories (repeatable)")
	cmd.Flags().BoolVar(&opts.keepFailed, "keep-failed", false, "do not retry questions whose stored attempt failed")
	cmd.Flags().BoolVar(&opts.strictTemplates, "strict-templates", false, "abort before any API call when a category has no template")
	cmd.Flags().StringVar(&opts.runID, "run-id", "", "correlation ID for the run's events (generated when empty; reusing one updates that run's ledger entry)")
	return cmd
}

func runBatch(cmd *cobra.Command, root *rootOptions, opts *runOptions) error {
	ctx := cmd.Context()
	batch, logger, err := loadBatch(root, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	if len(opts.strategies) > 0 {
		batch.Strategies = opts.strategies
	}
	if len(opts.categories) > 0 {
		batch.Categories = opts.categories
	}
	if opts.keepFailed {
		batch.Resume = string(orchestrator.ResumeKeepFailed)
	}

	a, err := newApp(batch, logger)
	if err != nil {
		return err
	}

	client, err := llm.NewClient(batch.ClientConfig(), llm.WithLogger(slog.Default()))
	if err != nil {
		return err
	}
	defer client.Close()

	sink, closeSinks, err := a.eventSinks(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeSinks(); err != nil {
			logger.Warn("closing event sinks", "error", err)
		}
	}()

	runner, err := orchestrator.New(orchestrator.Dependencies{
		Client:    client,
		Corpus:    a.corpus,
		Templates: a.templates,
		Store:     a.store,
		Catalog:   a.catalog,
		Events:    sink,
		Logger:    slog.Default(),
	}, orchestrator.Options{
		Categories:      batch.Categories,
		Resume:          batch.ResumePolicy(),
		StrictTemplates: batch.StrictTemplates || opts.strictTemplates,
		RunID:           opts.runID,
		Provider:        batch.Provider.Name,
	})
	if err != nil {
		return err
	}

	report, runErr := runner.Run(ctx)
	printReport(cmd.OutOrStdout(), report)
	if runErr != nil && ctx.Err() != nil && errors.Is(runErr, ctx.Err()) {
		return fmt.Errorf("run interrupted; start it again to resume: %w", runErr)
	}
	return runErr
}

func printReport(w io.Writer, r orchestrator.Report) {
	fmt.Fprintf(w, "run %s finished in %s\n", r.RunID, r.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "  answered: %d\n  failed:   %d\n  skipped:  %d\n", r.Answered, r.Failed, r.Skipped)
	fmt.Fprintf(w, "  pairs:    %d completed, %d skipped\n", r.PairsCompleted, len(r.PairsSkipped))
	for _, s := range r.PairsSkipped {
		fmt.Fprintf(w, "    - %s/%s: %s\n", s.Strategy, s.Category, s.Reason)
	}
	if r.Client != nil {
		fmt.Fprintf(w, "  api attempts: %d (%d recovered by retry), cache hits: %d\n",
			r.Client.Retry.TotalAttempts, r.Client.Retry.SuccessfulRetries, r.Client.Cache.Hits)
	}
}
