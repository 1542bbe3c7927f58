package main

import (
	"errors"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ahrav/strategybench/internal/ledger"
	"github.com/ahrav/strategybench/internal/results"
)

type statusOptions struct {
	history bool
	limit   int
}

func newStatusCmd(root *rootOptions) *cobra.Command {
	opts := &statusOptions{}
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show answered and failed counts per result file",
		Long: `Summarise the result files of the batch. With --history, also list past runs
from the run ledger configured under paths.ledger.

Examples:
  strategybench status --config batch.json
  strategybench status --config batch.json --history --limit 5`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			batch, _, err := loadBatch(root, cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			store, err := results.NewFileStore(batch.Resolve(batch.Paths.Results))
			if err != nil {
				return err
			}
			summaries, err := store.List(ctx)
			if err != nil {
				return err
			}
			printSummaries(cmd.OutOrStdout(), summaries)

			if !opts.history {
				return nil
			}
			path := batch.Resolve(batch.Paths.Ledger)
			if path == "" {
				return errors.New("--history needs paths.ledger in the batch file")
			}
			l, err := ledger.Open(ctx, path)
			if err != nil {
				return fmt.Errorf("open run ledger: %w", err)
			}
			defer l.Close()

			runs, err := l.History(ctx, opts.limit)
			if err != nil {
				return err
			}
			printHistory(cmd.OutOrStdout(), runs)
			return nil
		},
	}

	cmd.Flags().BoolVar(&opts.history, "history", false, "list past runs from the run ledger")
	cmd.Flags().IntVar(&opts.limit, "limit", 20, "number of runs to list with --history (0 for all)")
	return cmd
}

func printSummaries(w io.Writer, summaries []results.Summary) {
	if len(summaries) == 0 {
		fmt.Fprintln(w, "no result files yet")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STRATEGY\tCATEGORY\tMODEL\tSUCCEEDED\tFAILED")
	var succeeded, failed int
	for _, s := range summaries {
		if s.Error != "" {
			fmt.Fprintf(tw, "%s\t%s\t-\t-\t-\t(unreadable: %s)\n", s.Strategy, s.Category, s.Error)
			continue
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\n", s.Strategy, s.Category, s.ModelName, s.Succeeded, s.Failed)
		succeeded += s.Succeeded
		failed += s.Failed
	}
	fmt.Fprintf(tw, "TOTAL\t\t\t%d\t%d\n", succeeded, failed)
	_ = tw.Flush()
}

func printHistory(w io.Writer, runs []ledger.Run) {
	fmt.Fprintln(w)
	if len(runs) == 0 {
		fmt.Fprintln(w, "no runs recorded")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tMODEL\tSTATUS\tANSWERED\tFAILED\tSKIPPED\tDURATION")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			r.RunID,
			r.StartedAt().Format(time.DateTime),
			r.Model,
			r.Status,
			r.Answered,
			r.Failed,
			r.Skipped,
			r.Duration().Round(time.Second))
	}
	_ = tw.Flush()
}
