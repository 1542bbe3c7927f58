package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Answer attempt field names added on top of the question record.
const (
	fieldModelOutput = "model_output"
	fieldStrategy    = "strategy"
	fieldTimestamp   = "timestamp"
	fieldError       = "error"
)

// TimestampLayout is the wall-clock layout used in result files.
const TimestampLayout = "2006-01-02 15:04:05"

// Status is the outcome of an answer attempt. It is not persisted; it is
// derived from whether the attempt carries model output.
type Status string

const (
	// StatusSuccess marks an attempt that produced model output.
	StatusSuccess Status = "success"
	// StatusFailed marks an attempt whose API call failed terminally.
	StatusFailed Status = "failed"
)

// AnswerAttempt records one (strategy, category, question) inference outcome.
type AnswerAttempt struct {
	QuestionRecord

	// ModelOutput is nil when the call failed terminally.
	ModelOutput *string
	Strategy    StrategyID
	Timestamp   Timestamp
	// Error describes the terminal failure. Empty on success.
	Error string
}

// NewSuccess builds a successful attempt for q.
func NewSuccess(q QuestionRecord, strategy StrategyID, output string, at time.Time) AnswerAttempt {
	return AnswerAttempt{
		QuestionRecord: withoutAttemptFields(q),
		ModelOutput:    &output,
		Strategy:       strategy,
		Timestamp:      Timestamp{Time: at},
	}
}

// NewFailure builds a failed attempt for q with model_output left null.
func NewFailure(q QuestionRecord, strategy StrategyID, cause error, at time.Time) AnswerAttempt {
	a := AnswerAttempt{
		QuestionRecord: withoutAttemptFields(q),
		Strategy:       strategy,
		Timestamp:      Timestamp{Time: at},
	}
	if cause != nil {
		a.Error = cause.Error()
	}
	return a
}

// Status derives the attempt outcome.
func (a *AnswerAttempt) Status() Status {
	if a.ModelOutput == nil {
		return StatusFailed
	}
	return StatusSuccess
}

// Output returns the model output, or "" for a failed attempt.
func (a *AnswerAttempt) Output() string {
	if a.ModelOutput == nil {
		return ""
	}
	return *a.ModelOutput
}

// MarshalJSON encodes the attempt as the question record followed by the
// attempt members.
func (a AnswerAttempt) MarshalJSON() ([]byte, error) {
	w := newObjectWriter()
	a.QuestionRecord.writeFields(w)
	if a.ModelOutput == nil {
		w.raw(fieldModelOutput, nil)
	} else {
		w.value(fieldModelOutput, *a.ModelOutput)
	}
	w.value(fieldStrategy, a.Strategy)
	w.value(fieldTimestamp, a.Timestamp)
	if a.Error != "" {
		w.value(fieldError, a.Error)
	}
	return w.bytes()
}

// UnmarshalJSON decodes an attempt from a result file.
func (a *AnswerAttempt) UnmarshalJSON(data []byte) error {
	fields, err := decodeObject(data)
	if err != nil {
		return err
	}

	*a = AnswerAttempt{}
	questionFields := make([]Field, 0, len(fields))
	for _, f := range fields {
		switch f.Key {
		case fieldModelOutput:
			if Value(f.Value).IsZero() {
				continue
			}
			var out string
			if err := json.Unmarshal(f.Value, &out); err != nil {
				return fmt.Errorf("decode model_output: %w", err)
			}
			a.ModelOutput = &out
		case fieldStrategy:
			if err := json.Unmarshal(f.Value, &a.Strategy); err != nil {
				return fmt.Errorf("decode strategy: %w", err)
			}
		case fieldTimestamp:
			if err := json.Unmarshal(f.Value, &a.Timestamp); err != nil {
				return err
			}
		case fieldError:
			if err := decodeOptionalString(f.Value, &a.Error); err != nil {
				return fmt.Errorf("decode error: %w", err)
			}
		default:
			questionFields = append(questionFields, f)
		}
	}

	rest, err := a.QuestionRecord.fromFields(questionFields)
	if err != nil {
		return err
	}
	a.Extra = rest
	return nil
}

// withoutAttemptFields drops extra members that would collide with the
// members an attempt writes itself.
func withoutAttemptFields(q QuestionRecord) QuestionRecord {
	if len(q.Extra) == 0 {
		return q
	}
	extra := make([]Field, 0, len(q.Extra))
	for _, f := range q.Extra {
		switch f.Key {
		case fieldModelOutput, fieldStrategy, fieldTimestamp, fieldError:
			continue
		}
		extra = append(extra, f)
	}
	q.Extra = extra
	return q
}

// Timestamp is a wall-clock capture time written in TimestampLayout.
type Timestamp struct {
	time.Time
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.Format(TimestampLayout))
}

// UnmarshalJSON accepts TimestampLayout, RFC 3339 or null.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	if Value(data).IsZero() {
		t.Time = time.Time{}
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidTimestamp, err)
	}
	for _, layout := range []string{TimestampLayout, time.RFC3339Nano} {
		if parsed, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrInvalidTimestamp, s)
}
