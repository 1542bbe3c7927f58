package results

import (
	"errors"
	"fmt"

	"github.com/ahrav/strategybench/internal/domain"
)

// ErrStorage indicates that a result file could not be read or durably
// written. A run cannot continue safely after it.
var ErrStorage = errors.New("result storage failure")

// ErrCorrupt indicates that an existing result file could not be decoded.
// The file is left in place for the operator to inspect.
var ErrCorrupt = errors.New("result file corrupt")

// ErrForeignFile indicates that the file at a pair's location names another
// strategy or category in its header. It is neither adopted nor overwritten.
var ErrForeignFile = errors.New("result file belongs to another pair")

// ErrDirCollision indicates two strategies whose identifiers map to the same
// result directory.
var ErrDirCollision = errors.New("strategies share a result directory")

// ForeignFileError describes a result file whose header disagrees with its
// location.
type ForeignFileError struct {
	Path         string
	FileStrategy domain.StrategyID
	FileCategory string
}

func (e *ForeignFileError) Error() string {
	return fmt.Sprintf("%v: %s holds strategy %q category %q", ErrForeignFile, e.Path, e.FileStrategy, e.FileCategory)
}

func (e *ForeignFileError) Unwrap() error { return ErrForeignFile }

// StorageError carries the operation and path behind a storage failure.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

// Unwrap exposes both ErrStorage and the underlying cause.
func (e *StorageError) Unwrap() []error { return []error{ErrStorage, e.Err} }
