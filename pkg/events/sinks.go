package events

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
)

// LogSink writes every event as a structured log record.
type LogSink struct {
	logger *slog.Logger
	level  slog.Level
}

// NewLogSink returns a sink logging at level. A nil logger uses the default.
func NewLogSink(logger *slog.Logger, level slog.Level) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{logger: logger.With("component", "events"), level: level}
}

// Append implements EventSink.
func (s *LogSink) Append(ctx context.Context, e Envelope) error {
	s.logger.Log(ctx, s.level, "event",
		"event_type", e.Type,
		"event_id", e.ID,
		"run_id", e.RunID,
		"source", e.Source,
		"payload", string(e.Payload))
	return nil
}

// JSONLSink appends each event as one JSON line to a file. Lines are
// written with a single write call so a crash leaves at most one partial
// trailing line.
type JSONLSink struct {
	mu   sync.Mutex
	file *os.File
	seen map[string]struct{}
}

// OpenJSONL opens path for appending, creating it when needed.
func OpenJSONL(path string) (*JSONLSink, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open event log: %w", err)
	}
	return &JSONLSink{file: f, seen: make(map[string]struct{})}, nil
}

// Append implements EventSink. An envelope whose idempotency key was
// already written by this sink is a no-op.
func (s *JSONLSink) Append(ctx context.Context, e Envelope) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(e); err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return os.ErrClosed
	}
	if e.IdempotencyKey != "" {
		if _, dup := s.seen[e.IdempotencyKey]; dup {
			return nil
		}
	}
	if _, err := s.file.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	if e.IdempotencyKey != "" {
		s.seen[e.IdempotencyKey] = struct{}{}
	}
	return nil
}

// Close closes the underlying file.
func (s *JSONLSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// MultiSink fans an event out to several sinks. Every sink is tried and the
// failures are joined.
type MultiSink []EventSink

// Append implements EventSink.
func (m MultiSink) Append(ctx context.Context, e Envelope) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Append(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
