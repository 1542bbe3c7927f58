package orchestrator

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ahrav/strategybench/internal/prompt"
	"github.com/ahrav/strategybench/pkg/events"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ErrInvalidRunner indicates missing dependencies or invalid options.
var ErrInvalidRunner = errors.New("invalid runner configuration")

// ResumePolicy decides which stored attempts a run leaves alone.
type ResumePolicy string

const (
	// ResumeRetryFailed skips successful attempts only; failed entries are
	// attempted again like missing ones.
	ResumeRetryFailed ResumePolicy = "retry_failed"
	// ResumeKeepFailed skips every stored attempt, failed or not.
	ResumeKeepFailed ResumePolicy = "keep_failed"
)

// ParseResumePolicy maps a configuration value to a policy. An empty value
// selects ResumeRetryFailed.
func ParseResumePolicy(s string) (ResumePolicy, error) {
	switch ResumePolicy(s) {
	case "", ResumeRetryFailed:
		return ResumeRetryFailed, nil
	case ResumeKeepFailed:
		return ResumeKeepFailed, nil
	default:
		return "", fmt.Errorf("%w: unknown resume policy %q", ErrInvalidRunner, s)
	}
}

// Dependencies are the collaborators of a Runner.
type Dependencies struct {
	Client    Client       `validate:"required"`
	Corpus    Corpus       `validate:"required"`
	Templates Templates    `validate:"required"`
	Store     Store        `validate:"required"`
	Catalog   prompt.Catalog

	// Events receives progress events. Optional.
	Events events.EventSink
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// Clock stamps attempts. Defaults to time.Now.
	Clock func() time.Time
}

// Options tune a run.
type Options struct {
	// Categories restricts and orders the categories. Empty means every
	// category the corpus lists.
	Categories []string `validate:"dive,required"`
	// Resume selects which stored attempts are skipped.
	Resume ResumePolicy `validate:"omitempty,oneof=retry_failed keep_failed"`
	// StrictTemplates aborts the run before any API call when a category
	// has no template. Otherwise such pairs are skipped.
	StrictTemplates bool
	// RunID correlates the run's events. Generated when empty.
	RunID string
	// Provider is reported in the run.started event.
	Provider string
}
