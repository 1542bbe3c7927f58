// Package events provides the generic event infrastructure for progress
// reporting. It defines the Envelope type for wrapping run events with
// consistent metadata and the EventSink interface for event storage or
// transmission.
package events

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"
)

// Type identifies an event for routing and processing.
type Type string

// Event types emitted by a benchmark run.
const (
	// TypeRunStarted is emitted once before the first pair is processed.
	TypeRunStarted Type = "run.started"
	// TypeRunCompleted is emitted once when the run ends, cancelled or not.
	TypeRunCompleted Type = "run.completed"
	// TypePairStarted is emitted when a (strategy, category) pair begins.
	TypePairStarted Type = "pair.started"
	// TypePairSkipped is emitted when a pair cannot be processed.
	TypePairSkipped Type = "pair.skipped"
	// TypePairCompleted is emitted after the last question of a pair.
	TypePairCompleted Type = "pair.completed"
	// TypeAttemptRecorded is emitted after an attempt has been flushed.
	TypeAttemptRecorded Type = "attempt.recorded"
	// TypeAttemptSkipped is emitted for a question resumed from disk.
	TypeAttemptSkipped Type = "attempt.skipped"
)

// CurrentVersion is the payload schema version of every event type.
const CurrentVersion = "1.0.0"

// Envelope wraps run events with consistent metadata.
type Envelope struct {
	// ID uniquely identifies this event instance.
	// Generated as a UUID for each event emission.
	ID string `json:"id"`

	// Type identifies the event for routing and processing.
	Type Type `json:"type"`

	// Source identifies the component that emitted this event.
	// Examples: "orchestrator"
	Source string `json:"source"`

	// Version enables schema evolution and backward compatibility.
	Version string `json:"version"`

	// Timestamp records when the event was emitted.
	Timestamp time.Time `json:"timestamp"`

	// IdempotencyKey is stable for the same logical event within a run, so a
	// consumer can drop duplicates caused by emission retries.
	IdempotencyKey string `json:"idempotency_key"`

	// RunID identifies the batch execution. All events of a run share it.
	RunID string `json:"run_id"`

	// Payload contains the event data as JSON. Schema varies by Type.
	Payload json.RawMessage `json:"payload"`
}

// IdempotencyKey derives a deterministic key from the run, the event type
// and the parts that identify the event within the run.
func IdempotencyKey(runID string, typ Type, parts ...string) string {
	h := sha256.New()
	h.Write([]byte(runID))
	h.Write([]byte{0})
	h.Write([]byte(typ))
	h.Write([]byte{0})
	h.Write([]byte(strings.Join(parts, "\x00")))
	return hex.EncodeToString(h.Sum(nil))
}

// EventSink defines the interface for emitting events to downstream
// consumers such as a log, a JSON lines file or the run ledger.
type EventSink interface {
	// Append adds an event to the sink with best-effort delivery.
	//
	// Returns error if the event cannot be stored, but callers should
	// not fail their primary operation due to event sink failures.
	// Events are important for observability but not critical for correctness.
	Append(ctx context.Context, envelope Envelope) error
}

// NoOpEventSink is a null implementation of EventSink for testing or when events are disabled.
// All Append calls succeed immediately without side effects.
type NoOpEventSink struct{}

// Append implements EventSink.Append with no-op behavior.
func (n *NoOpEventSink) Append(_ context.Context, _ Envelope) error {
	return nil
}

// NewNoOpEventSink creates a new no-op event sink.
func NewNoOpEventSink() EventSink {
	return &NoOpEventSink{}
}
