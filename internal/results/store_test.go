package results_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ahrav/strategybench/internal/domain"
	"github.com/ahrav/strategybench/internal/results"
)

var at = time.Date(2025, 3, 1, 9, 0, 0, 0, time.Local)

func question(index int) domain.QuestionRecord {
	return domain.QuestionRecord{
		Index:    index,
		Category: "Physics_MCMS",
		Question: "question",
		Answer:   domain.TextValue("A"),
	}
}

func newStore(t *testing.T) *results.FileStore {
	t.Helper()
	s, err := results.NewFileStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func indices(rf *results.ResultFile) []int {
	var out []int
	for _, a := range rf.Example {
		out = append(out, a.Index)
	}
	return out
}

// TestFileStore_LoadAbsent verifies that a pair never flushed loads as nil.
func TestFileStore_LoadAbsent(t *testing.T) {
	s := newStore(t)
	rf, err := s.Load(context.Background(), "cot", "Physics_MCMS")
	require.NoError(t, err)
	assert.Nil(t, rf)
	assert.False(t, s.AlreadyAnswered(rf, 0))
}

// TestFileStore_RecordKeepsIndexOrder verifies that attempts recorded out of
// order are stored ordered by index and that re-recording replaces.
func TestFileStore_RecordKeepsIndexOrder(t *testing.T) {
	s := newStore(t)
	rf := results.NewResultFile("cot", "Physics_MCMS", "model-x")

	for _, i := range []int{5, 1, 3} {
		got := s.Record(rf, domain.NewFailure(question(i), "cot", assert.AnError, at))
		assert.Same(t, rf, got)
	}
	s.Record(rf, domain.NewSuccess(question(3), "cot", "【答案】B", at))

	assert.Equal(t, []int{1, 3, 5}, indices(rf))
	assert.True(t, s.AlreadyAnswered(rf, 3))
	assert.False(t, s.AlreadyAnswered(rf, 1), "failed entries are not answered")
	assert.False(t, s.AlreadyAnswered(rf, 7))

	succeeded, failed := rf.Counts()
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 2, failed)
}

// TestFileStore_FlushAndLoad verifies the on-disk layout and that a flushed
// file loads back equal.
func TestFileStore_FlushAndLoad(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	rf := results.NewResultFile("cot", "Physics_MCMS", "model-x")
	s.Record(rf, domain.NewSuccess(question(0), "cot", "【答案】A<eoa>", at))
	s.Record(rf, domain.NewFailure(question(1), "cot", assert.AnError, at))
	require.NoError(t, s.Flush(ctx, rf))

	path := filepath.Join(s.Root(), "Strategy_cot", "Physics_MCMS.json")
	assert.Equal(t, path, s.Path("cot", "Physics_MCMS"))
	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\n    \"category\": \"Physics_MCMS\"", "four space indent")
	assert.Contains(t, string(raw), `"model_output": "【答案】A<eoa>"`, "no HTML or unicode escaping")
	assert.Contains(t, string(raw), `"model_output": null`)

	var header map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &header))
	assert.JSONEq(t, `"model-x"`, string(header["model_name"]))
	assert.JSONEq(t, `"cot"`, string(header["strategy"]))

	loaded, err := s.Load(ctx, "cot", "Physics_MCMS")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "model-x", loaded.ModelName)
	assert.Equal(t, []int{0, 1}, indices(loaded))
	assert.True(t, s.AlreadyAnswered(loaded, 0))
	assert.False(t, s.AlreadyAnswered(loaded, 1))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files are left behind")
}

// TestFileStore_FlushReplacesPrevious verifies that each flush carries every
// earlier attempt forward.
func TestFileStore_FlushReplacesPrevious(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	rf := results.NewResultFile("cot", "Chem", "m")

	for i := range 3 {
		s.Record(rf, domain.NewSuccess(question(i), "cot", "out", at))
		require.NoError(t, s.Flush(ctx, rf))

		loaded, err := s.Load(ctx, "cot", "Chem")
		require.NoError(t, err)
		assert.Len(t, loaded.Example, i+1)
	}
}

// TestFileStore_LoadCorrupt verifies that an undecodable file is a storage
// error and is left untouched.
func TestFileStore_LoadCorrupt(t *testing.T) {
	s := newStore(t)
	path := s.Path("cot", "Chem")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(`{"example": [`), 0o644))

	rf, err := s.Load(context.Background(), "cot", "Chem")
	assert.Nil(t, rf)
	assert.ErrorIs(t, err, results.ErrStorage)
	assert.ErrorIs(t, err, results.ErrCorrupt)

	var storageErr *results.StorageError
	require.ErrorAs(t, err, &storageErr)
	assert.Equal(t, path, storageErr.Path)

	raw, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, `{"example": [`, string(raw))
}

// TestFileStore_LoadNormalizes verifies that a hand-edited file with
// unsorted or repeated indices is brought back into index order.
func TestFileStore_LoadNormalizes(t *testing.T) {
	s := newStore(t)
	path := s.Path("cot", "Chem")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	doc := `{"category": "Chem", "strategy": "cot", "model_name": "m", "example": [
		{"index": 2, "question": "q", "model_output": "b"},
		{"index": 0, "question": "q", "model_output": null},
		{"index": 2, "question": "q", "model_output": "c"}
	]}`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	rf, err := s.Load(context.Background(), "cot", "Chem")
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, indices(rf))
	a, ok := rf.Lookup(2)
	require.True(t, ok)
	assert.Equal(t, "c", a.Output(), "the last entry for an index wins")
}

// TestFileStore_FlushFailure verifies that an unwritable location is a
// storage error.
func TestFileStore_FlushFailure(t *testing.T) {
	root := t.TempDir()
	blocker := filepath.Join(root, "results")
	require.NoError(t, os.WriteFile(blocker, []byte("not a directory"), 0o644))

	s, err := results.NewFileStore(blocker)
	require.NoError(t, err)

	rf := results.NewResultFile("cot", "Chem", "m")
	err = s.Flush(context.Background(), rf)
	assert.ErrorIs(t, err, results.ErrStorage)
}

// TestFileStore_FlushKeepsPreviousOnFailure verifies that a failed flush
// leaves the last good version readable.
func TestFileStore_FlushKeepsPreviousOnFailure(t *testing.T) {
	if runtime.GOOS == "windows" || os.Getuid() == 0 {
		t.Skip("directory permissions are not enforced")
	}
	s := newStore(t)
	ctx := context.Background()
	rf := results.NewResultFile("cot", "Chem", "m")
	s.Record(rf, domain.NewSuccess(question(0), "cot", "first", at))
	require.NoError(t, s.Flush(ctx, rf))

	dir := filepath.Dir(s.Path("cot", "Chem"))
	require.NoError(t, os.Chmod(dir, 0o555))
	t.Cleanup(func() { _ = os.Chmod(dir, 0o755) })

	s.Record(rf, domain.NewSuccess(question(1), "cot", "second", at))
	assert.ErrorIs(t, s.Flush(ctx, rf), results.ErrStorage)

	loaded, err := s.Load(ctx, "cot", "Chem")
	require.NoError(t, err)
	assert.Equal(t, []int{0}, indices(loaded))
}

// TestStrategyDir verifies directory name sanitising.
func TestStrategyDir(t *testing.T) {
	tests := []struct {
		in   domain.StrategyID
		want string
	}{
		{in: "cot", want: "Strategy_cot"},
		{in: "Chain of Thought (CoT)", want: "Strategy_Chain_of_Thought__CoT_"},
		{in: "../escape", want: "Strategy_.._escape"},
		{in: "思维链", want: "Strategy_思维链"},
	}
	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			assert.Equal(t, tt.want, results.StrategyDir(tt.in))
		})
	}
}

// TestFileStore_LoadForeignFile verifies that a file written for another
// strategy that sanitises to the same directory is refused, not adopted.
func TestFileStore_LoadForeignFile(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	require.Equal(t, s.Path("step by step", "Physics_MCMS"), s.Path("step_by_step", "Physics_MCMS"))

	rf := results.NewResultFile("step by step", "Physics_MCMS", "m")
	s.Record(rf, domain.NewSuccess(question(0), "step by step", "A", at))
	require.NoError(t, s.Flush(ctx, rf))
	before, err := os.ReadFile(s.Path("step by step", "Physics_MCMS"))
	require.NoError(t, err)

	other, err := s.Load(ctx, "step_by_step", "Physics_MCMS")
	require.Error(t, err)
	assert.Nil(t, other)
	assert.ErrorIs(t, err, results.ErrForeignFile)
	assert.NotErrorIs(t, err, results.ErrStorage)

	var foreign *results.ForeignFileError
	require.ErrorAs(t, err, &foreign)
	assert.Equal(t, domain.StrategyID("step by step"), foreign.FileStrategy)

	after, err := os.ReadFile(s.Path("step by step", "Physics_MCMS"))
	require.NoError(t, err)
	assert.Equal(t, before, after)

	own, err := s.Load(ctx, "step by step", "Physics_MCMS")
	require.NoError(t, err)
	assert.True(t, s.AlreadyAnswered(own, 0))
}

// TestFileStore_LoadAdoptsEmptyHeader verifies that a file without header
// fields takes the identity of its location.
func TestFileStore_LoadAdoptsEmptyHeader(t *testing.T) {
	s := newStore(t)
	path := s.Path("cot", "Chem")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(`{"example": []}`), 0o644))

	rf, err := s.Load(context.Background(), "cot", "Chem")
	require.NoError(t, err)
	assert.Equal(t, domain.StrategyID("cot"), rf.Strategy)
	assert.Equal(t, "Chem", rf.Category)
}

// TestCheckStrategyDirs verifies collision detection between identifiers.
func TestCheckStrategyDirs(t *testing.T) {
	tests := []struct {
		name    string
		ids     []domain.StrategyID
		wantErr bool
	}{
		{name: "distinct", ids: []domain.StrategyID{"cot", "direct", "思维链"}},
		{name: "space and underscore", ids: []domain.StrategyID{"step by step", "step_by_step"}, wantErr: true},
		{name: "parentheses", ids: []domain.StrategyID{"direct", "CoT(a)", "CoT_a_"}, wantErr: true},
		{name: "repeated identifier", ids: []domain.StrategyID{"cot", "cot"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := results.CheckStrategyDirs(tt.ids...)
			if tt.wantErr {
				assert.ErrorIs(t, err, results.ErrDirCollision)
				return
			}
			assert.NoError(t, err)
		})
	}
}

// TestFileStore_List verifies per-file counts and that corrupt files are
// reported rather than failing the listing.
func TestFileStore_List(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	summaries, err := s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, summaries)

	rf := results.NewResultFile("cot", "Chem", "m")
	s.Record(rf, domain.NewSuccess(question(0), "cot", "a", at))
	s.Record(rf, domain.NewFailure(question(1), "cot", assert.AnError, at))
	require.NoError(t, s.Flush(ctx, rf))
	require.NoError(t, s.Flush(ctx, results.NewResultFile("direct", "Bio", "m")))

	bad := s.Path("direct", "Physics")
	require.NoError(t, os.WriteFile(bad, []byte("{"), 0o644))

	summaries, err = s.List(ctx)
	require.NoError(t, err)
	require.Len(t, summaries, 3)

	assert.Equal(t, domain.StrategyID("cot"), summaries[0].Strategy)
	assert.Equal(t, 1, summaries[0].Succeeded)
	assert.Equal(t, 1, summaries[0].Failed)

	assert.Equal(t, "Bio", summaries[1].Category)
	assert.Zero(t, summaries[1].Succeeded+summaries[1].Failed)

	assert.Equal(t, "Physics", summaries[2].Category)
	assert.NotEmpty(t, summaries[2].Error)
}

// TestNewFileStore_RequiresRoot verifies constructor validation.
func TestNewFileStore_RequiresRoot(t *testing.T) {
	_, err := results.NewFileStore(" ")
	assert.Error(t, err)
}
