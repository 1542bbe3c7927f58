package main

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ahrav/strategybench/internal/corpus"
	"github.com/ahrav/strategybench/internal/domain"
	"github.com/ahrav/strategybench/internal/results"
)

// checkConcurrency bounds the corpus files parsed at once.
const checkConcurrency = 4

// errCheckFailed is returned when check found problems. They have been
// printed already.
var errCheckFailed = errors.New("batch check failed")

func newCheckCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the batch without calling the API",
		Long: `Validate the batch file, the strategy catalog, the templates and every corpus
file the run would read. No API call is made.

Examples:
  strategybench check --config batch.json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			batch, logger, err := loadBatch(root, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			a, err := newApp(batch, logger)
			if err != nil {
				return err
			}

			var problems []string
			cfg := batch.ClientConfig()
			if err := cfg.Validate(); err != nil {
				problems = append(problems, err.Error())
			}

			var ids []domain.StrategyID
			for _, st := range a.catalog.Strategies() {
				ids = append(ids, st.Name)
			}
			if err := results.CheckStrategyDirs(ids...); err != nil {
				problems = append(problems, err.Error())
			}

			categories := batch.Categories
			if len(categories) == 0 {
				categories, err = a.corpus.Categories(ctx)
				if err != nil {
					return err
				}
			}
			if len(categories) == 0 {
				problems = append(problems, fmt.Sprintf("no category files in %s", a.corpus.Dir()))
			}
			if err := a.templates.Require(categories...); err != nil {
				problems = append(problems, err.Error())
			}

			counts, corpusProblems := scanCorpus(cmd, a.corpus, categories)
			problems = append(problems, corpusProblems...)

			unused := unusedTemplates(a.templates.Keywords(), categories)

			fmt.Fprintf(out, "provider:   %s (%s)\n", cfg.Provider.Name, cfg.Provider.Model)
			fmt.Fprintf(out, "strategies: %d\n", a.catalog.Len())
			fmt.Fprintf(out, "categories: %d\n", len(categories))
			total := 0
			for _, c := range categories {
				if n, ok := counts[c]; ok {
					fmt.Fprintf(out, "  %-40s %d questions\n", c, n)
					total += n
				}
			}
			fmt.Fprintf(out, "planned attempts: %d\n", total*a.catalog.Len())
			for _, k := range unused {
				fmt.Fprintf(out, "note: template %q matches no category\n", k)
			}

			if len(problems) == 0 {
				fmt.Fprintln(out, "ok")
				return nil
			}
			printProblems(out, problems)
			return errCheckFailed
		},
	}
}

// scanCorpus parses every category file concurrently and returns the
// question count per readable category.
func scanCorpus(cmd *cobra.Command, loader *corpus.Loader, categories []string) (map[string]int, []string) {
	var (
		mu       sync.Mutex
		counts   = make(map[string]int, len(categories))
		problems []string
	)

	g, gCtx := errgroup.WithContext(cmd.Context())
	g.SetLimit(checkConcurrency)
	for _, category := range categories {
		g.Go(func() error {
			records, err := loader.Load(gCtx, category)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if gCtx.Err() != nil {
					return gCtx.Err()
				}
				problems = append(problems, err.Error())
				return nil
			}
			counts[category] = len(records)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		problems = append(problems, err.Error())
	}

	slices.Sort(problems)
	return counts, problems
}

func unusedTemplates(keywords, categories []string) []string {
	var unused []string
	for _, k := range keywords {
		if !slices.Contains(categories, k) {
			unused = append(unused, k)
		}
	}
	return unused
}

func printProblems(w io.Writer, problems []string) {
	fmt.Fprintf(w, "%d problem(s):\n", len(problems))
	for _, p := range problems {
		fmt.Fprintf(w, "  - %s\n", p)
	}
}
