// Package orchestrator drives a benchmark run: every strategy of the
// catalog crossed with every category, every question of a category in
// corpus order, one API call at a time.
//
// The run is restart-safe. Each attempt is flushed to its result file
// before the next question starts, and questions already answered on disk
// are skipped without an API call, so rerunning the same batch after a
// crash or an interrupt only does the work still missing.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/ahrav/strategybench/internal/corpus"
	"github.com/ahrav/strategybench/internal/domain"
	"github.com/ahrav/strategybench/internal/llm"
	"github.com/ahrav/strategybench/internal/prompt"
	"github.com/ahrav/strategybench/internal/results"
	"github.com/ahrav/strategybench/pkg/events"
)

// ErrModelMismatch indicates an existing result file written by another
// model. Resuming into it would mix answers of two models.
var ErrModelMismatch = errors.New("result file belongs to another model")

// ErrMissingTemplates indicates categories without a template when
// Options.StrictTemplates is set.
var ErrMissingTemplates = errors.New("categories without template")

// Client obtains model output for a rendered prompt.
type Client interface {
	Send(ctx context.Context, p prompt.Prompt) (string, error)
	ModelName() string
}

// Corpus supplies question records per category.
type Corpus interface {
	Load(ctx context.Context, category string) ([]domain.QuestionRecord, error)
	Categories(ctx context.Context) ([]string, error)
}

// Templates supplies the prompt template of a category.
type Templates interface {
	Lookup(category string) (prompt.Template, error)
	Require(categories ...string) error
}

// Store persists result files.
type Store interface {
	Load(ctx context.Context, strategy domain.StrategyID, category string) (*results.ResultFile, error)
	AlreadyAnswered(rf *results.ResultFile, index int) bool
	Record(rf *results.ResultFile, attempt domain.AnswerAttempt) *results.ResultFile
	Flush(ctx context.Context, rf *results.ResultFile) error
}

// statsProvider is implemented by clients that expose call metrics.
type statsProvider interface {
	Stats() llm.Stats
}

// attemptBudget is implemented by clients that bound the attempts of a call.
type attemptBudget interface {
	MaxAttempts() int
}

// Runner executes the strategy × category × question matrix.
type Runner struct {
	deps   Dependencies
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// New validates deps and opts.
func New(deps Dependencies, opts Options) (*Runner, error) {
	if err := validate.Struct(deps); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRunner, err)
	}
	if deps.Catalog.Len() == 0 {
		return nil, fmt.Errorf("%w: strategy catalog is empty", ErrInvalidRunner)
	}
	if err := results.CheckStrategyDirs(strategyIDs(deps.Catalog.Strategies())...); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRunner, err)
	}
	if err := validate.Struct(opts); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidRunner, err)
	}
	if opts.Resume == "" {
		opts.Resume = ResumeRetryFailed
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := deps.Clock
	if now == nil {
		now = time.Now
	}

	return &Runner{
		deps:   deps,
		opts:   opts,
		logger: logger.With("component", "orchestrator"),
		now:    now,
	}, nil
}

// PairSkip records a (strategy, category) pair that was not processed.
type PairSkip struct {
	Strategy domain.StrategyID `json:"strategy"`
	Category string            `json:"category"`
	Reason   string            `json:"reason"`
}

// Report summarises a run.
type Report struct {
	RunID string `json:"run_id"`
	// Answered and Failed count attempts made by this run.
	Answered int `json:"answered"`
	Failed   int `json:"failed"`
	// Skipped counts questions left alone because of a stored attempt.
	Skipped        int           `json:"skipped"`
	PairsCompleted int           `json:"pairs_completed"`
	PairsSkipped   []PairSkip    `json:"pairs_skipped,omitempty"`
	Duration       time.Duration `json:"duration"`
	// Client holds the API client metrics when the client exposes them.
	Client *llm.Stats `json:"client,omitempty"`
}

// Attempts returns the number of attempts this run recorded.
func (r Report) Attempts() int { return r.Answered + r.Failed }

// Run processes the whole matrix. It returns early only when ctx ends or a
// result file cannot be stored; per-question and per-pair failures are
// recorded and the run moves on. The report is valid in every case.
func (r *Runner) Run(ctx context.Context) (Report, error) {
	start := r.now()
	emitter := events.NewEmitter(r.deps.Events, "orchestrator", r.opts.RunID)
	report := Report{RunID: emitter.RunID()}
	logger := r.logger.With("run_id", report.RunID)

	categories, err := r.categories(ctx)
	if err != nil {
		return r.finish(ctx, emitter, logger, report, start, err)
	}

	missing := r.deps.Templates.Require(categories...)
	if missing != nil {
		if r.opts.StrictTemplates {
			return r.finish(ctx, emitter, logger, report, start, fmt.Errorf("%w: %w", ErrMissingTemplates, missing))
		}
		logger.Warn("some categories have no template and will be skipped", "error", missing)
	}

	strategies := r.deps.Catalog.Strategies()
	var maxAttempts int
	if b, ok := r.deps.Client.(attemptBudget); ok {
		maxAttempts = b.MaxAttempts()
	}
	emitter.Emit(ctx, events.TypeRunStarted, events.RunStarted{
		Model:       r.deps.Client.ModelName(),
		Provider:    r.opts.Provider,
		Strategies:  strategyNames(strategies),
		Categories:  categories,
		Resume:      string(r.opts.Resume),
		MaxAttempts: maxAttempts,
	})
	logger.Info("run started",
		"model", r.deps.Client.ModelName(),
		"strategies", len(strategies),
		"categories", len(categories),
		"resume", r.opts.Resume,
		"max_attempts", maxAttempts)

	for si, strategy := range strategies {
		logger.Info("strategy started",
			"strategy", strategy.Name,
			"position", fmt.Sprintf("%d/%d", si+1, len(strategies)))

		for _, category := range categories {
			if err := ctx.Err(); err != nil {
				return r.finish(ctx, emitter, logger, report, start, err)
			}
			p := pairRun{runner: r, emitter: emitter, strategy: strategy, category: category, report: &report}
			p.logger = logger.With("strategy", strategy.Name, "category", category)
			if err := p.run(ctx); err != nil {
				return r.finish(ctx, emitter, logger, report, start, err)
			}
		}
	}

	return r.finish(ctx, emitter, logger, report, start, nil)
}

func (r *Runner) categories(ctx context.Context) ([]string, error) {
	if len(r.opts.Categories) > 0 {
		return append([]string(nil), r.opts.Categories...), nil
	}
	categories, err := r.deps.Corpus.Categories(ctx)
	if err != nil {
		return nil, fmt.Errorf("discover categories: %w", err)
	}
	if len(categories) == 0 {
		return nil, fmt.Errorf("discover categories: %w: no category files", corpus.ErrCorpusNotFound)
	}
	return categories, nil
}

// finish completes the report, emits run.completed and logs the outcome.
func (r *Runner) finish(ctx context.Context, emitter *events.Emitter, logger *slog.Logger, report Report, start time.Time, runErr error) (Report, error) {
	report.Duration = r.now().Sub(start)
	if sp, ok := r.deps.Client.(statsProvider); ok {
		stats := sp.Stats()
		report.Client = &stats
	}

	status := events.RunStatusCompleted
	switch {
	case runErr == nil:
	case errors.Is(runErr, context.Canceled), errors.Is(runErr, context.DeadlineExceeded):
		status = events.RunStatusCancelled
	default:
		status = events.RunStatusFailed
	}

	completed := events.RunCompleted{
		Status:       status,
		Answered:     report.Answered,
		Failed:       report.Failed,
		Skipped:      report.Skipped,
		PairsSkipped: len(report.PairsSkipped),
		DurationMs:   report.Duration.Milliseconds(),
	}
	if runErr != nil {
		completed.Error = runErr.Error()
	}
	emitter.Emit(context.WithoutCancel(ctx), events.TypeRunCompleted, completed)

	fields := []any{
		"status", status,
		"answered", report.Answered,
		"failed", report.Failed,
		"skipped", report.Skipped,
		"pairs_completed", report.PairsCompleted,
		"pairs_skipped", len(report.PairsSkipped),
		"duration", report.Duration,
	}
	if report.Client != nil {
		fields = append(fields,
			"total_attempts", report.Client.Retry.TotalAttempts,
			"successful_retries", report.Client.Retry.SuccessfulRetries,
			"cache_hits", report.Client.Cache.Hits)
	}

	switch status {
	case events.RunStatusCompleted:
		logger.Info("run completed", fields...)
	case events.RunStatusCancelled:
		logger.Info("run cancelled", fields...)
	default:
		logger.Error("run aborted", append(fields, "error", runErr)...)
	}
	return report, runErr
}

// pairRun processes one (strategy, category) pair.
type pairRun struct {
	runner   *Runner
	emitter  *events.Emitter
	logger   *slog.Logger
	strategy domain.Strategy
	category string
	report   *Report

	answered, failed, skipped int
}

// run returns an error only when the whole run must stop.
func (p *pairRun) run(ctx context.Context) error {
	r := p.runner
	strategyName := string(p.strategy.Name)

	tpl, err := r.deps.Templates.Lookup(p.category)
	if err != nil {
		return p.skip(ctx, err)
	}
	records, err := r.deps.Corpus.Load(ctx, p.category)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return p.skip(ctx, err)
	}

	rf, err := r.deps.Store.Load(ctx, p.strategy.Name, p.category)
	if errors.Is(err, results.ErrForeignFile) {
		return p.skip(ctx, err)
	}
	if err != nil {
		return fmt.Errorf("load results for %s/%s: %w", strategyName, p.category, err)
	}
	model := r.deps.Client.ModelName()
	switch {
	case rf == nil:
		rf = results.NewResultFile(p.strategy.Name, p.category, model)
	case rf.ModelName != "" && rf.ModelName != model:
		return p.skip(ctx, fmt.Errorf("%w: %q", ErrModelMismatch, rf.ModelName))
	default:
		rf.ModelName = model
	}

	p.emitter.Emit(ctx, events.TypePairStarted, events.Pair{
		Strategy:  strategyName,
		Category:  p.category,
		Questions: len(records),
	}, strategyName, p.category)
	p.logger.Info("pair started", "questions", len(records))

	for i, q := range records {
		if err := ctx.Err(); err != nil {
			p.flushCounts()
			return err
		}
		if p.resumed(rf, q.Index) {
			p.skipped++
			p.emitter.Emit(ctx, events.TypeAttemptSkipped, events.Attempt{
				Strategy: strategyName,
				Category: p.category,
				Index:    q.Index,
				Status:   string(statusOf(rf, q.Index)),
			}, strategyName, p.category, strconv.Itoa(q.Index))
			continue
		}
		if err := p.attempt(ctx, tpl, rf, q, i, len(records)); err != nil {
			return err
		}
	}

	p.emitter.Emit(ctx, events.TypePairCompleted, events.Pair{
		Strategy:  strategyName,
		Category:  p.category,
		Questions: len(records),
		Answered:  p.answered,
		Failed:    p.failed,
		Skipped:   p.skipped,
	}, strategyName, p.category)
	p.logger.Info("pair completed",
		"answered", p.answered,
		"failed", p.failed,
		"skipped", p.skipped)
	p.report.PairsCompleted++
	p.flushCounts()
	return nil
}

// resumed reports whether the stored attempt for index is kept as is.
func (p *pairRun) resumed(rf *results.ResultFile, index int) bool {
	if p.runner.deps.Store.AlreadyAnswered(rf, index) {
		return true
	}
	if p.runner.opts.Resume == ResumeKeepFailed {
		_, exists := rf.Lookup(index)
		return exists
	}
	return false
}

// attempt answers one question and durably records the outcome.
func (p *pairRun) attempt(ctx context.Context, tpl prompt.Template, rf *results.ResultFile, q domain.QuestionRecord, pos, total int) error {
	r := p.runner
	strategyName := string(p.strategy.Name)

	rendered := prompt.Render(tpl, p.strategy.Guidance(), q.Question)
	callCtx := llm.WithLabels(ctx,
		"strategy", strategyName,
		"category", p.category,
		"index", strconv.Itoa(q.Index))

	started := r.now()
	output, sendErr := r.deps.Client.Send(callCtx, rendered)
	if sendErr != nil && ctx.Err() != nil {
		// The in-flight attempt is abandoned, not recorded as a failure.
		p.flushCounts()
		return ctx.Err()
	}
	finished := r.now()

	var attempt domain.AnswerAttempt
	if sendErr != nil {
		attempt = domain.NewFailure(q, p.strategy.Name, sendErr, finished)
	} else {
		attempt = domain.NewSuccess(q, p.strategy.Name, output, finished)
	}

	r.deps.Store.Record(rf, attempt)
	// A paid answer is written even when the run is being cancelled.
	if err := r.deps.Store.Flush(context.WithoutCancel(ctx), rf); err != nil {
		p.flushCounts()
		return fmt.Errorf("flush results for %s/%s: %w", strategyName, p.category, err)
	}

	event := events.Attempt{
		Strategy:  strategyName,
		Category:  p.category,
		Index:     q.Index,
		Status:    string(attempt.Status()),
		LatencyMs: finished.Sub(started).Milliseconds(),
		Error:     attempt.Error,
	}
	p.emitter.Emit(ctx, events.TypeAttemptRecorded, event, strategyName, p.category, strconv.Itoa(q.Index))

	progress := fmt.Sprintf("%d/%d", pos+1, total)
	if sendErr != nil {
		p.failed++
		p.logger.Warn("attempt failed",
			"index", q.Index,
			"progress", progress,
			"error", sendErr)
		return nil
	}
	p.answered++
	p.logger.Info("attempt recorded",
		"index", q.Index,
		"progress", progress,
		"latency", finished.Sub(started))
	return nil
}

// flushCounts moves the pair counters into the report.
func (p *pairRun) flushCounts() {
	p.report.Answered += p.answered
	p.report.Failed += p.failed
	p.report.Skipped += p.skipped
	p.answered, p.failed, p.skipped = 0, 0, 0
}

// skip records the pair as not processed. Only the pair is abandoned.
func (p *pairRun) skip(ctx context.Context, cause error) error {
	skip := PairSkip{Strategy: p.strategy.Name, Category: p.category, Reason: skipReason(cause)}
	p.report.PairsSkipped = append(p.report.PairsSkipped, skip)

	strategyName := string(p.strategy.Name)
	p.emitter.Emit(ctx, events.TypePairSkipped, events.Pair{
		Strategy: strategyName,
		Category: p.category,
		Reason:   skip.Reason,
	}, strategyName, p.category)
	p.logger.Warn("pair skipped", "reason", skip.Reason, "error", cause)
	return nil
}

func skipReason(err error) string {
	switch {
	case errors.Is(err, prompt.ErrTemplateNotFound):
		return "template_not_found"
	case errors.Is(err, corpus.ErrCorpusNotFound):
		return "corpus_not_found"
	case errors.Is(err, corpus.ErrCorpusMalformed):
		return "corpus_malformed"
	case errors.Is(err, ErrModelMismatch):
		return "model_mismatch"
	case errors.Is(err, results.ErrForeignFile):
		return "foreign_result_file"
	default:
		return "corpus_unreadable"
	}
}

func statusOf(rf *results.ResultFile, index int) domain.Status {
	a, ok := rf.Lookup(index)
	if !ok {
		return ""
	}
	return a.Status()
}

func strategyIDs(strategies []domain.Strategy) []domain.StrategyID {
	ids := make([]domain.StrategyID, len(strategies))
	for i, s := range strategies {
		ids[i] = s.Name
	}
	return ids
}

func strategyNames(strategies []domain.Strategy) []string {
	names := make([]string, len(strategies))
	for i, s := range strategies {
		names[i] = string(s.Name)
	}
	return names
}
