package ledger_test

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/strategybench/internal/ledger"
	"github.com/ahrav/strategybench/pkg/events"
)

func openMemory(t *testing.T) *ledger.Ledger {
	t.Helper()
	l, err := ledger.Open(context.Background(), ledger.MemoryDSN)
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func envelope(t *testing.T, runID string, typ events.Type, at time.Time, payload any, keyParts ...string) events.Envelope {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	return events.Envelope{
		ID:             runID + "-" + string(typ) + "-" + at.Format(time.RFC3339Nano),
		Type:           typ,
		Source:         "orchestrator",
		Version:        events.CurrentVersion,
		Timestamp:      at,
		IdempotencyKey: events.IdempotencyKey(runID, typ, keyParts...),
		RunID:          runID,
		Payload:        data,
	}
}

// TestOpen_AppliesMigrations verifies that every embedded migration runs
// once, including on reopen.
func TestOpen_AppliesMigrations(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "ledger.db")
	ctx := context.Background()

	l, err := ledger.Open(ctx, path)
	require.NoError(t, err)
	versions, err := l.AppliedMigrations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, versions)
	require.NoError(t, l.Close())

	l, err = ledger.Open(ctx, path)
	require.NoError(t, err)
	defer l.Close()
	versions, err = l.AppliedMigrations(ctx)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2}, versions)
}

// TestLedger_RunLifecycle verifies that run and attempt events are projected
// into the history tables.
func TestLedger_RunLifecycle(t *testing.T) {
	l := openMemory(t)
	ctx := context.Background()
	start := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	require.NoError(t, l.Append(ctx, envelope(t, "run-1", events.TypeRunStarted, start,
		events.RunStarted{Model: "deepseek-r1", Provider: "openai", Resume: "retry_failed"})))
	require.NoError(t, l.Append(ctx, envelope(t, "run-1", events.TypeAttemptRecorded, start.Add(time.Second),
		events.Attempt{Strategy: "cot", Category: "Chem", Index: 0, Status: "success", LatencyMs: 900}, "cot", "Chem", "0")))
	require.NoError(t, l.Append(ctx, envelope(t, "run-1", events.TypeAttemptRecorded, start.Add(2*time.Second),
		events.Attempt{Strategy: "cot", Category: "Chem", Index: 1, Status: "failed", Error: "exhausted"}, "cot", "Chem", "1")))

	run, err := l.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "running", run.Status)
	assert.Zero(t, run.Duration())

	require.NoError(t, l.Append(ctx, envelope(t, "run-1", events.TypeRunCompleted, start.Add(time.Minute),
		events.RunCompleted{Status: events.RunStatusCompleted, Answered: 1, Failed: 1, Skipped: 4, PairsSkipped: 1})))

	run, err = l.GetRun(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, "deepseek-r1", run.Model)
	assert.Equal(t, events.RunStatusCompleted, run.Status)
	assert.Equal(t, 1, run.Answered)
	assert.Equal(t, 1, run.Failed)
	assert.Equal(t, 4, run.Skipped)
	assert.Equal(t, 1, run.PairsSkipped)
	assert.Equal(t, time.Minute, run.Duration())
	assert.True(t, run.StartedAt().Equal(start))

	attempts, err := l.Attempts(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, "success", attempts[0].Status)
	assert.Equal(t, int64(900), attempts[0].LatencyMs)
	assert.Equal(t, "exhausted", attempts[1].Error)

	n, err := l.EventCount(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

// TestLedger_DuplicateEvents verifies that a re-delivered event is ignored.
func TestLedger_DuplicateEvents(t *testing.T) {
	l := openMemory(t)
	ctx := context.Background()
	at := time.Now()

	e := envelope(t, "run-1", events.TypeRunStarted, at, events.RunStarted{Model: "m"})
	require.NoError(t, l.Append(ctx, e))
	e.ID = "another-id"
	require.NoError(t, l.Append(ctx, e))

	n, err := l.EventCount(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

// TestLedger_History verifies newest-first ordering and the limit.
func TestLedger_History(t *testing.T) {
	l := openMemory(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, l.Append(ctx, envelope(t, id, events.TypeRunStarted, base.Add(time.Duration(i)*time.Hour), events.RunStarted{Model: "m"})))
	}

	runs, err := l.History(ctx, 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "c", runs[0].RunID)
	assert.Equal(t, "b", runs[1].RunID)

	all, err := l.History(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

// TestLedger_GetRunNotFound verifies the not-found sentinel.
func TestLedger_GetRunNotFound(t *testing.T) {
	l := openMemory(t)
	_, err := l.GetRun(context.Background(), "missing")
	assert.ErrorIs(t, err, ledger.ErrRunNotFound)
}

// TestLedger_MalformedPayload verifies that a payload that cannot be
// projected leaves no partial event row.
func TestLedger_MalformedPayload(t *testing.T) {
	l := openMemory(t)
	ctx := context.Background()

	e := envelope(t, "run-1", events.TypeRunStarted, time.Now(), nil)
	e.Payload = json.RawMessage(`"not an object"`)
	assert.Error(t, l.Append(ctx, e))

	n, err := l.EventCount(ctx, "run-1")
	require.NoError(t, err)
	assert.Zero(t, n)
}

// TestLedger_ReusedRunID verifies that a second invocation under the same
// run ID updates the projections instead of being dropped as a duplicate.
func TestLedger_ReusedRunID(t *testing.T) {
	l := openMemory(t)
	ctx := context.Background()

	first := events.NewEmitter(l, "orchestrator", "nightly")
	first.Emit(ctx, events.TypeRunStarted, events.RunStarted{Model: "m"})
	first.Emit(ctx, events.TypeAttemptRecorded,
		events.Attempt{Strategy: "cot", Category: "Chem", Index: 1, Status: "failed", Error: "exhausted"}, "cot", "Chem", "1")
	first.Emit(ctx, events.TypeRunCompleted, events.RunCompleted{Status: events.RunStatusCompleted, Failed: 1})

	second := events.NewEmitter(l, "orchestrator", "nightly")
	second.Emit(ctx, events.TypeRunStarted, events.RunStarted{Model: "m"})
	second.Emit(ctx, events.TypeAttemptRecorded,
		events.Attempt{Strategy: "cot", Category: "Chem", Index: 1, Status: "success"}, "cot", "Chem", "1")
	second.Emit(ctx, events.TypeRunCompleted, events.RunCompleted{Status: events.RunStatusCompleted, Answered: 1})

	attempts, err := l.Attempts(ctx, "nightly")
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	assert.Equal(t, "success", attempts[0].Status)
	assert.Empty(t, attempts[0].Error)

	run, err := l.GetRun(ctx, "nightly")
	require.NoError(t, err)
	assert.Equal(t, 1, run.Answered)
	assert.Zero(t, run.Failed)

	n, err := l.EventCount(ctx, "nightly")
	require.NoError(t, err)
	assert.Equal(t, 6, n)
}
