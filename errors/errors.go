package errors

import (
	"errors"
	"fmt"
)

// Category classifies error types for targeted handling and reporting.
type Category string

const (
	CategoryDecode     Category = "decode"
	CategoryEncode     Category = "encode"
	CategoryFilesystem Category = "filesystem"
	CategorySnapshot   Category = "snapshot"
	CategoryConfig     Category = "config"
	CategoryPlan       Category = "plan"
)

// BuildError is the structured error type used throughout the module.
type BuildError struct {
	Category Category
	Op       string // operation name
	Err      error
}

func (e *BuildError) Error() string {
	return fmt.Sprintf("[%s] %s: %v", e.Category, e.Op, e.Err)
}

func (e *BuildError) Unwrap() error { return e.Err }

// New creates a BuildError.
func New(category Category, op string, err error) *BuildError {
	return &BuildError{Category: category, Op: op, Err: err}
}

// Wrap wraps an existing error with context.
func Wrap(category Category, op string, err error) error {
	if err == nil {
		return nil
	}
	return New(category, op, err)
}

// IsCategory reports whether err belongs to the given category.
func IsCategory(err error, cat Category) bool {
	var be *BuildError
	if errors.As(err, &be) {
		return be.Category == cat
	}
	return false
}

// Sentinel errors for common failure modes.
var (
	ErrUnsupportedFormat = errors.New("unsupported output format")
	ErrInvalidDimensions = errors.New("invalid dimensions")
	ErrSnapshotShape     = errors.New("snapshot missing required fields")
	ErrDependencyFailed  = errors.New("dependency operation failed")
)
