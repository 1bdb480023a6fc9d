// Package fault defines the error taxonomy shared across datashelf.
//
// Errors are classified with sentinel values and wrapped with context via
// fmt.Errorf("...: %w", ...), so callers classify with errors.Is and still
// see the full failure chain.
package fault

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation marks malformed input: bad schema shape, missing
	// required metadata, duplicate field names.
	ErrValidation = errors.New("validation error")

	// ErrNotFound marks a referenced database, collection, or document
	// that does not exist.
	ErrNotFound = errors.New("not found")

	// ErrPermission marks a caller that is not the owner of the resource
	// it is trying to mutate.
	ErrPermission = errors.New("permission denied")

	// ErrDependency marks a collaborator failure: document store, object
	// storage, search index, or embedding provider.
	ErrDependency = errors.New("dependency error")
)

// Validation wraps a formatted message as a validation error.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFound wraps a formatted message as a not-found error.
func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Permission wraps a formatted message as a permission error.
func Permission(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPermission, fmt.Sprintf(format, args...))
}

// Dependency wraps an underlying collaborator error, keeping the cause in
// the chain so errors.Is works against both sentinels.
func Dependency(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrDependency, op, err)
}
