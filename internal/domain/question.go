// Package domain defines the records that flow through a benchmark run: the
// questions read from the corpus, the strategies applied to them and the
// answer attempts produced by the model.
package domain

import (
	"encoding/json"
	"fmt"
)

// Question record field names as they appear in corpus and result files.
const (
	fieldIndex    = "index"
	fieldYear     = "year"
	fieldCategory = "category"
	fieldQuestion = "question"
	fieldAnswer   = "answer"
	fieldAnalysis = "analysis"
)

// QuestionRecord is one exam question loaded from the corpus.
// Records are treated as immutable once loaded; Index is unique within a
// category and stable across runs, which makes it the join key for resume.
type QuestionRecord struct {
	Index    int    `validate:"gte=0"`
	Year     Value
	Category string
	Question string `validate:"required"`
	Answer   Value
	Analysis Value

	// Extra holds members the loader does not interpret (score, picture and
	// similar), in source order, so they survive into result files.
	Extra []Field
}

// Validate checks the record's struct constraints.
func (q *QuestionRecord) Validate() error { return validateStruct(q) }

// AnswerText returns the reference answer as plain text.
func (q *QuestionRecord) AnswerText() string { return q.Answer.Text() }

// AnalysisText returns the reference analysis as plain text.
func (q *QuestionRecord) AnalysisText() string { return q.Analysis.Text() }

// UnmarshalJSON decodes a corpus record, rejecting records without an index
// or question text.
func (q *QuestionRecord) UnmarshalJSON(data []byte) error {
	fields, err := decodeObject(data)
	if err != nil {
		return err
	}
	rest, err := q.fromFields(fields)
	if err != nil {
		return err
	}
	q.Extra = rest
	return nil
}

// MarshalJSON encodes the record with the known members first, followed by
// the preserved extra members.
func (q QuestionRecord) MarshalJSON() ([]byte, error) {
	w := newObjectWriter()
	q.writeFields(w)
	return w.bytes()
}

// fromFields fills the known members from fields and returns the rest.
func (q *QuestionRecord) fromFields(fields []Field) ([]Field, error) {
	var (
		rest     []Field
		hasIndex bool
	)
	*q = QuestionRecord{}

	for _, f := range fields {
		switch f.Key {
		case fieldIndex:
			if err := json.Unmarshal(f.Value, &q.Index); err != nil {
				return nil, fmt.Errorf("decode index: %w", err)
			}
			hasIndex = true
		case fieldYear:
			q.Year = Value(f.Value)
		case fieldCategory:
			if err := decodeOptionalString(f.Value, &q.Category); err != nil {
				return nil, fmt.Errorf("decode category: %w", err)
			}
		case fieldQuestion:
			if err := decodeOptionalString(f.Value, &q.Question); err != nil {
				return nil, fmt.Errorf("decode question: %w", err)
			}
		case fieldAnswer:
			q.Answer = Value(f.Value)
		case fieldAnalysis:
			q.Analysis = Value(f.Value)
		default:
			rest = append(rest, f)
		}
	}

	if !hasIndex {
		return nil, ErrMissingIndex
	}
	if q.Question == "" {
		return nil, fmt.Errorf("%w (index %d)", ErrMissingQuestion, q.Index)
	}
	return rest, nil
}

func (q *QuestionRecord) writeFields(w *objectWriter) {
	w.value(fieldIndex, q.Index)
	w.raw(fieldYear, json.RawMessage(q.Year))
	w.value(fieldCategory, q.Category)
	w.value(fieldQuestion, q.Question)
	w.raw(fieldAnswer, json.RawMessage(q.Answer))
	w.raw(fieldAnalysis, json.RawMessage(q.Analysis))
	for _, f := range q.Extra {
		w.raw(f.Key, f.Value)
	}
}

// decodeOptionalString accepts a JSON string or null.
func decodeOptionalString(raw json.RawMessage, dst *string) error {
	if Value(raw).IsZero() {
		*dst = ""
		return nil
	}
	return json.Unmarshal(raw, dst)
}
