package domain_test

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/strategybench/internal/domain"
)

const sampleRecord = `{
	"year": "2024",
	"category": "全国甲卷",
	"question": "原子半径: $Y>X>W$",
	"answer": ["A"],
	"analysis": "【分析】W 为 Li",
	"index": 219,
	"score": 6
}`

// TestQuestionRecord_UnmarshalJSON verifies that corpus records decode their
// known members and keep unknown members in source order.
func TestQuestionRecord_UnmarshalJSON(t *testing.T) {
	var q domain.QuestionRecord
	require.NoError(t, json.Unmarshal([]byte(sampleRecord), &q))

	assert.Equal(t, 219, q.Index)
	assert.Equal(t, "2024", q.Year.Text())
	assert.Equal(t, "全国甲卷", q.Category)
	assert.Equal(t, "原子半径: $Y>X>W$", q.Question)
	assert.Equal(t, "A", q.AnswerText())
	assert.Equal(t, "【分析】W 为 Li", q.AnalysisText())
	require.Len(t, q.Extra, 1)
	assert.Equal(t, "score", q.Extra[0].Key)
	assert.JSONEq(t, "6", string(q.Extra[0].Value))
	require.NoError(t, q.Validate())
}

// TestQuestionRecord_UnmarshalJSON_Invalid verifies that records without the
// resume join key or question text are rejected.
func TestQuestionRecord_UnmarshalJSON_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{name: "missing index", input: `{"question": "q"}`, wantErr: domain.ErrMissingIndex},
		{name: "missing question", input: `{"index": 1}`, wantErr: domain.ErrMissingQuestion},
		{name: "null question", input: `{"index": 1, "question": null}`, wantErr: domain.ErrMissingQuestion},
		{name: "not an object", input: `[1, 2]`, wantErr: domain.ErrNotObject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var q domain.QuestionRecord
			err := json.Unmarshal([]byte(tt.input), &q)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	t.Run("non-numeric index", func(t *testing.T) {
		var q domain.QuestionRecord
		assert.Error(t, json.Unmarshal([]byte(`{"index": "one", "question": "q"}`), &q))
	})
}

// TestQuestionRecord_MarshalJSON verifies that the encoded record keeps text
// literal and carries extra members through.
func TestQuestionRecord_MarshalJSON(t *testing.T) {
	var q domain.QuestionRecord
	require.NoError(t, json.Unmarshal([]byte(sampleRecord), &q))

	out, err := json.Marshal(q)
	require.NoError(t, err)
	assert.JSONEq(t, sampleRecord, string(out))
	assert.Contains(t, string(out), `"index":219,"year":"2024"`, "known members come first in fixed order")
}

// TestValue_Text verifies plain-text rendering of the loosely typed members.
func TestValue_Text(t *testing.T) {
	tests := []struct {
		name  string
		value domain.Value
		want  string
	}{
		{name: "string", value: domain.Value(`"B"`), want: "B"},
		{name: "list", value: domain.Value(`["A", "C"]`), want: "A, C"},
		{name: "number", value: domain.Value(`2023`), want: "2023"},
		{name: "null", value: domain.Value(`null`), want: ""},
		{name: "empty", value: nil, want: ""},
		{name: "constructed", value: domain.TextValue("x<y"), want: "x<y"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.value.Text())
		})
	}
}

// TestAnswerAttempt_RoundTrip verifies that success and failure attempts
// survive a write and read of a result file unchanged.
func TestAnswerAttempt_RoundTrip(t *testing.T) {
	var q domain.QuestionRecord
	require.NoError(t, json.Unmarshal([]byte(sampleRecord), &q))
	at := time.Date(2025, 3, 1, 12, 30, 45, 0, time.Local)

	success := domain.NewSuccess(q, "cot", "【答案】A<eoa>", at)
	failure := domain.NewFailure(q, "cot", assert.AnError, at)

	for _, original := range []domain.AnswerAttempt{success, failure} {
		data, err := json.Marshal(original)
		require.NoError(t, err)

		var decoded domain.AnswerAttempt
		require.NoError(t, json.Unmarshal(data, &decoded))

		assert.Equal(t, original.Status(), decoded.Status())
		assert.Equal(t, original.Output(), decoded.Output())
		assert.Equal(t, original.Strategy, decoded.Strategy)
		assert.Equal(t, original.Error, decoded.Error)
		assert.True(t, original.Timestamp.Equal(decoded.Timestamp.Time))
		assert.Equal(t, original.Index, decoded.Index)
		assert.Equal(t, original.Extra, decoded.Extra)
	}

	data, err := json.Marshal(failure)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"model_output":null`)
	assert.Contains(t, string(data), `"timestamp":"2025-03-01 12:30:45"`)
	assert.Contains(t, string(data), `"error":`)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	require.NoError(t, enc.Encode(success))
	assert.Contains(t, buf.String(), `"model_output":"【答案】A<eoa>"`, "output is not HTML escaped")
	assert.NotContains(t, buf.String(), `"error"`)
}

// TestAnswerAttempt_Status verifies that status is derived from model output.
func TestAnswerAttempt_Status(t *testing.T) {
	q := domain.QuestionRecord{Index: 1, Question: "q"}

	success := domain.NewSuccess(q, "s", "", time.Now())
	assert.Equal(t, domain.StatusSuccess, success.Status(), "empty output is still a success")

	failure := domain.NewFailure(q, "s", nil, time.Now())
	assert.Equal(t, domain.StatusFailed, failure.Status())
	assert.Empty(t, failure.Error)
}

// TestNewSuccess_DropsCollidingExtras verifies that corpus members named like
// attempt members do not produce duplicate keys.
func TestNewSuccess_DropsCollidingExtras(t *testing.T) {
	var q domain.QuestionRecord
	require.NoError(t, json.Unmarshal([]byte(`{"index": 0, "question": "q", "model_output": "stale", "picture": "p.png"}`), &q))

	a := domain.NewSuccess(q, "s", "fresh", time.Now())
	require.Len(t, a.Extra, 1)
	assert.Equal(t, "picture", a.Extra[0].Key)
	assert.Len(t, q.Extra, 2, "source record is not modified")
}

// TestTimestamp_UnmarshalJSON verifies the accepted timestamp layouts.
func TestTimestamp_UnmarshalJSON(t *testing.T) {
	var ts domain.Timestamp
	require.NoError(t, json.Unmarshal([]byte(`"2024-06-07 09:00:00"`), &ts))
	assert.Equal(t, 2024, ts.Year())

	require.NoError(t, json.Unmarshal([]byte(`"2024-06-07T09:00:00Z"`), &ts))
	assert.Equal(t, time.June, ts.Month())

	require.NoError(t, json.Unmarshal([]byte(`null`), &ts))
	assert.True(t, ts.IsZero())

	err := json.Unmarshal([]byte(`"yesterday"`), &ts)
	assert.ErrorIs(t, err, domain.ErrInvalidTimestamp)
}

// TestStrategy_Guidance verifies the description fallback.
func TestStrategy_Guidance(t *testing.T) {
	s := domain.Strategy{Name: "cot", Description: "think step by step"}
	assert.Equal(t, "think step by step", s.Guidance())

	s.Description = ""
	assert.Equal(t, "cot", s.Guidance())
	require.NoError(t, s.Validate())

	empty := domain.Strategy{}
	assert.ErrorIs(t, empty.Validate(), domain.ErrInvalidRecord)
}
