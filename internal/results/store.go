// Package results persists answer attempts incrementally, one JSON file per
// (strategy, category) pair, so that an interrupted run loses at most the
// attempt in flight.
//
// Files live at <root>/Strategy_<strategy>/<category>.json. Every Flush
// replaces the whole file through a temporary sibling and a rename, so
// readers only ever observe a complete previous or current version.
package results

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/ahrav/strategybench/internal/domain"
)

const (
	strategyDirPrefix = "Strategy_"
	fileExt           = ".json"
	indent            = "    "
)

// FileStore reads and writes result files below a root directory. It is
// used by a single worker and does no locking.
type FileStore struct {
	root   string
	logger *slog.Logger
}

// NewFileStore returns a store rooted at root. The directory is created on
// the first Flush.
func NewFileStore(root string) (*FileStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, errors.New("results root directory is required")
	}
	return &FileStore{
		root:   root,
		logger: slog.Default().With("component", "results"),
	}, nil
}

// Root returns the results directory.
func (s *FileStore) Root() string { return s.root }

// Path returns the file location for the pair.
func (s *FileStore) Path(strategy domain.StrategyID, category string) string {
	return filepath.Join(s.root, StrategyDir(strategy), category+fileExt)
}

// StrategyDir maps a strategy identifier to its directory name. Characters
// that are not letters, digits, '-', '_' or '.' become '_'.
func StrategyDir(strategy domain.StrategyID) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, strings.TrimSpace(string(strategy)))
	return strategyDirPrefix + name
}

// Load returns the stored file for the pair, or nil when none exists yet.
// A file that cannot be decoded is reported as a StorageError wrapping
// ErrCorrupt, and a file whose header names another pair as a
// ForeignFileError. Neither is overwritten silently.
func (s *FileStore) Load(ctx context.Context, strategy domain.StrategyID, category string) (*ResultFile, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := s.Path(strategy, category)
	rf, err := readFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	if (rf.Strategy != "" && rf.Strategy != strategy) || (rf.Category != "" && rf.Category != category) {
		return nil, &ForeignFileError{Path: path, FileStrategy: rf.Strategy, FileCategory: rf.Category}
	}
	rf.Strategy, rf.Category = strategy, category
	return rf, nil
}

// CheckStrategyDirs reports every pair of strategies whose identifiers map
// to the same directory under StrategyDir.
func CheckStrategyDirs(strategies ...domain.StrategyID) error {
	owners := make(map[string]domain.StrategyID, len(strategies))
	var errs []error
	for _, id := range strategies {
		dir := StrategyDir(id)
		if first, taken := owners[dir]; taken && first != id {
			errs = append(errs, fmt.Errorf("%w: %q and %q both map to %s", ErrDirCollision, first, id, dir))
			continue
		}
		owners[dir] = id
	}
	return errors.Join(errs...)
}

// AlreadyAnswered reports whether rf holds a successful attempt for index.
func (s *FileStore) AlreadyAnswered(rf *ResultFile, index int) bool {
	a, ok := rf.Lookup(index)
	return ok && a.Status() == domain.StatusSuccess
}

// Record inserts attempt into rf, replacing any entry with the same index
// and keeping the entries ordered by index. It returns rf.
func (s *FileStore) Record(rf *ResultFile, attempt domain.AnswerAttempt) *ResultFile {
	rf.upsert(attempt)
	return rf
}

// Flush durably writes rf, atomically replacing the previous version.
func (s *FileStore) Flush(ctx context.Context, rf *ResultFile) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	path := s.Path(rf.Strategy, rf.Category)
	data, err := encode(rf)
	if err != nil {
		return &StorageError{Op: "encode", Path: path, Err: err}
	}
	if err := writeAtomic(path, data); err != nil {
		return &StorageError{Op: "flush", Path: path, Err: err}
	}
	return nil
}

// Summary describes one stored result file.
type Summary struct {
	Strategy  domain.StrategyID `json:"strategy"`
	Category  string            `json:"category"`
	ModelName string            `json:"model_name"`
	Path      string            `json:"path"`
	Succeeded int               `json:"succeeded"`
	Failed    int               `json:"failed"`
	// Error is set when the file could not be decoded.
	Error string `json:"error,omitempty"`
}

// List summarises every result file below the root, ordered by directory
// and category. A missing root yields no summaries.
func (s *FileStore) List(ctx context.Context) ([]Summary, error) {
	dirs, err := os.ReadDir(s.root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, &StorageError{Op: "list", Path: s.root, Err: err}
	}

	var out []Summary
	for _, d := range dirs {
		if !d.IsDir() || !strings.HasPrefix(d.Name(), strategyDirPrefix) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		dir := filepath.Join(s.root, d.Name())
		files, err := os.ReadDir(dir)
		if err != nil {
			return nil, &StorageError{Op: "list", Path: dir, Err: err}
		}
		for _, f := range files {
			if f.IsDir() || filepath.Ext(f.Name()) != fileExt {
				continue
			}
			sum := summarize(filepath.Join(dir, f.Name()))
			if sum.Error != "" {
				s.logger.Warn("unreadable result file", "path", sum.Path, "error", sum.Error)
			}
			out = append(out, sum)
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func summarize(path string) Summary {
	sum := Summary{
		Path:     path,
		Category: strings.TrimSuffix(filepath.Base(path), fileExt),
	}
	rf, err := readFile(path)
	if err != nil {
		sum.Error = err.Error()
		return sum
	}
	sum.Strategy = rf.Strategy
	sum.ModelName = rf.ModelName
	if rf.Category != "" {
		sum.Category = rf.Category
	}
	sum.Succeeded, sum.Failed = rf.Counts()
	return sum
}

// readFile decodes the file at path. A missing file is returned as the
// underlying fs error.
func readFile(path string) (*ResultFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
		return nil, &StorageError{Op: "load", Path: path, Err: err}
	}

	var rf ResultFile
	if err := json.Unmarshal(data, &rf); err != nil {
		return nil, &StorageError{Op: "load", Path: path, Err: fmt.Errorf("%w: %w", ErrCorrupt, err)}
	}
	rf.normalize()
	return &rf, nil
}

// encode writes rf as indented JSON without HTML escaping, so model output
// such as "<eoa>" is stored literally.
func encode(rf *ResultFile) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", indent)
	if err := enc.Encode(rf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeAtomic replaces path with data via a synced temporary file in the
// same directory, then syncs the directory so the rename survives a crash.
func writeAtomic(path string, data []byte) (err error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("replace file: %w", err)
	}
	return syncDir(dir)
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return fmt.Errorf("open directory: %w", err)
	}
	defer d.Close()
	if err := d.Sync(); err != nil && !errors.Is(err, os.ErrInvalid) {
		return fmt.Errorf("sync directory: %w", err)
	}
	return nil
}
