package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Emitter builds envelopes for one run and delivers them with best-effort
// semantics: a failing sink is retried once and then logged, never
// propagated.
//
// Idempotency keys are scoped to the emitter. A later invocation that reuses
// a run ID gets fresh keys, so its events are never taken for duplicates of
// the earlier ones.
type Emitter struct {
	sink    EventSink
	source  string
	runID   string
	session string
	logger  *slog.Logger
	now     func() time.Time
}

// NewEmitter returns an emitter for source. An empty runID is replaced by
// a new UUID. A nil sink disables emission.
func NewEmitter(sink EventSink, source, runID string) *Emitter {
	if runID == "" {
		runID = uuid.NewString()
	}
	return &Emitter{
		sink:    sink,
		source:  source,
		runID:   runID,
		session: uuid.NewString(),
		logger:  slog.Default().With("component", "events", "source", source),
		now:     time.Now,
	}
}

// RunID returns the run correlation ID.
func (e *Emitter) RunID() string { return e.runID }

// Key returns the idempotency key Emit assigns to an event of type typ with
// the given key parts.
func (e *Emitter) Key(typ Type, keyParts ...string) string {
	return IdempotencyKey(e.runID, typ, append([]string{e.session}, keyParts...)...)
}

// Emit marshals payload into an envelope of type typ and appends it. The
// key parts identify the event within the run.
func (e *Emitter) Emit(ctx context.Context, typ Type, payload any, keyParts ...string) {
	if e == nil || e.sink == nil {
		return
	}

	data, err := json.Marshal(payload)
	if err != nil {
		e.logger.Error("failed to marshal event payload", "event_type", typ, "error", err)
		return
	}

	envelope := Envelope{
		ID:             uuid.NewString(),
		Type:           typ,
		Source:         e.source,
		Version:        CurrentVersion,
		Timestamp:      e.now(),
		IdempotencyKey: e.Key(typ, keyParts...),
		RunID:          e.runID,
		Payload:        data,
	}
	e.emitSafe(ctx, envelope)
}

// emitSafe retries a failed append once after a short delay.
func (e *Emitter) emitSafe(ctx context.Context, envelope Envelope) {
	const maxAttempts = 2
	const retryDelay = 200 * time.Millisecond

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			timer := time.NewTimer(retryDelay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				e.logger.Debug("event emission cancelled", "event_type", envelope.Type)
				return
			}
		}

		if err := e.sink.Append(ctx, envelope); err != nil {
			lastErr = err
			continue
		}
		return
	}

	e.logger.Warn("failed to emit event",
		"event_type", envelope.Type,
		"attempts", maxAttempts,
		"error", lastErr)
}
