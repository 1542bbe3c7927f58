// Package corpus loads the benchmark question sets, one JSON document per
// category, from a directory on disk.
package corpus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ahrav/strategybench/internal/domain"
)

const fileExt = ".json"

var (
	// ErrCorpusNotFound indicates that no source exists for a category.
	ErrCorpusNotFound = errors.New("corpus not found")

	// ErrCorpusMalformed indicates that a category source could not be parsed
	// into question records.
	ErrCorpusMalformed = errors.New("corpus malformed")
)

// CorpusError carries the category and file behind a load failure.
type CorpusError struct {
	Category string
	Path     string
	Err      error
}

func (e *CorpusError) Error() string {
	return fmt.Sprintf("load corpus %q (%s): %v", e.Category, e.Path, e.Err)
}

func (e *CorpusError) Unwrap() error { return e.Err }

// document is the on-disk shape of a category file.
type document struct {
	Example *[]json.RawMessage `json:"example"`
}

// Loader reads category files from a directory. A Loader holds no state
// beyond its directory and is safe to call repeatedly.
type Loader struct {
	dir string
}

// NewLoader returns a loader rooted at dir.
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir}
}

// Dir returns the corpus directory.
func (l *Loader) Dir() string { return l.dir }

// Load returns the records of category in file order.
func (l *Loader) Load(ctx context.Context, category string) ([]domain.QuestionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	path := l.path(category)
	if category == "" || strings.ContainsAny(category, `/\`) {
		return nil, &CorpusError{Category: category, Path: path, Err: ErrCorpusNotFound}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &CorpusError{Category: category, Path: path, Err: ErrCorpusNotFound}
		}
		return nil, &CorpusError{Category: category, Path: path, Err: err}
	}

	records, err := parse(data)
	if err != nil {
		return nil, &CorpusError{Category: category, Path: path, Err: fmt.Errorf("%w: %w", ErrCorpusMalformed, err)}
	}
	return records, nil
}

// Categories lists the category identifiers available in the directory,
// sorted so that runs visit them in a stable order.
func (l *Loader) Categories(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, &CorpusError{Path: l.dir, Err: ErrCorpusNotFound}
		}
		return nil, fmt.Errorf("list corpus directory: %w", err)
	}

	var categories []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.EqualFold(filepath.Ext(name), fileExt) {
			continue
		}
		categories = append(categories, strings.TrimSuffix(name, filepath.Ext(name)))
	}
	sort.Strings(categories)
	return categories, nil
}

func (l *Loader) path(category string) string {
	return filepath.Join(l.dir, category+fileExt)
}

func parse(data []byte) ([]domain.QuestionRecord, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if doc.Example == nil {
		return nil, errors.New(`missing "example" array`)
	}

	records := make([]domain.QuestionRecord, 0, len(*doc.Example))
	seen := make(map[int]int, len(*doc.Example))
	for pos, raw := range *doc.Example {
		var q domain.QuestionRecord
		if err := json.Unmarshal(raw, &q); err != nil {
			return nil, fmt.Errorf("record %d: %w", pos, err)
		}
		if err := q.Validate(); err != nil {
			return nil, fmt.Errorf("record %d: %w", pos, err)
		}
		if first, dup := seen[q.Index]; dup {
			return nil, fmt.Errorf("record %d: duplicate index %d (first at record %d)", pos, q.Index, first)
		}
		seen[q.Index] = pos
		records = append(records, q)
	}
	return records, nil
}
