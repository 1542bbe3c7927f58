package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/ahrav/strategybench/internal/config"
	"github.com/ahrav/strategybench/internal/corpus"
	"github.com/ahrav/strategybench/internal/domain"
	"github.com/ahrav/strategybench/internal/ledger"
	"github.com/ahrav/strategybench/internal/prompt"
	"github.com/ahrav/strategybench/internal/results"
	"github.com/ahrav/strategybench/pkg/events"
)

// app holds the components shared by the subcommands, built from one batch
// file.
type app struct {
	batch     *config.Batch
	logger    *slog.Logger
	corpus    *corpus.Loader
	templates *prompt.TemplateStore
	catalog   prompt.Catalog
	store     *results.FileStore
}

// loadBatch reads the batch file and installs the configured logger as the
// process default, so component loggers inherit it.
func loadBatch(opts *rootOptions, logW io.Writer) (*config.Batch, *slog.Logger, error) {
	batch, err := config.Load(opts.configPath)
	if err != nil {
		return nil, nil, err
	}
	if opts.logLevel != "" {
		batch.Log.Level = opts.logLevel
	}
	if opts.logFormat != "" {
		batch.Log.Format = opts.logFormat
	}

	logger := newLogger(batch.Log.Level, batch.Log.Format, logW)
	slog.SetDefault(logger)
	return batch, logger.With("component", "cli"), nil
}

// newApp loads the static inputs named by the batch file.
func newApp(batch *config.Batch, logger *slog.Logger) (*app, error) {
	templates, err := prompt.LoadTemplates(batch.Resolve(batch.Paths.Templates))
	if err != nil {
		return nil, err
	}

	catalog, err := prompt.LoadCatalog(batch.Resolve(batch.Paths.Strategies))
	if err != nil {
		return nil, err
	}
	catalog, err = catalog.Select(strategyIDs(batch.Strategies)...)
	if err != nil {
		return nil, err
	}

	store, err := results.NewFileStore(batch.Resolve(batch.Paths.Results))
	if err != nil {
		return nil, err
	}

	return &app{
		batch:     batch,
		logger:    logger,
		corpus:    corpus.NewLoader(batch.Resolve(batch.Paths.Corpus)),
		templates: templates,
		catalog:   catalog,
		store:     store,
	}, nil
}

// eventSinks opens the configured event sinks. The returned close function
// releases them.
func (a *app) eventSinks(ctx context.Context) (events.EventSink, func() error, error) {
	sinks := events.MultiSink{events.NewLogSink(a.logger, slog.LevelDebug)}
	var closers []func() error

	closeAll := func() error {
		var errs []error
		for i := len(closers) - 1; i >= 0; i-- {
			errs = append(errs, closers[i]())
		}
		return errors.Join(errs...)
	}

	if p := a.batch.Resolve(a.batch.Paths.Events); p != "" {
		jsonl, err := events.OpenJSONL(p)
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, jsonl)
		closers = append(closers, jsonl.Close)
	}

	if p := a.batch.Resolve(a.batch.Paths.Ledger); p != "" {
		l, err := ledger.Open(ctx, p)
		if err != nil {
			_ = closeAll()
			return nil, nil, fmt.Errorf("open run ledger: %w", err)
		}
		sinks = append(sinks, l)
		closers = append(closers, l.Close)
	}

	return sinks, closeAll, nil
}

func strategyIDs(names []string) []domain.StrategyID {
	ids := make([]domain.StrategyID, len(names))
	for i, n := range names {
		ids[i] = domain.StrategyID(n)
	}
	return ids
}
