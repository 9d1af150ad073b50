package common

import "github.com/cockroachdb/errors"

// Error kinds shared by every layer. Recoverable failures are wrapped and marked with one of these
// so callers can test them with errors.Is regardless of the wrapping chain.
var (
	// ErrResourceCreation marks a failure to create a device resource (out of memory, invalid descriptor, no adapter).
	ErrResourceCreation = errors.New("resource creation failed")

	// ErrCompilation marks a pipeline compilation failure (missing entry point, descriptor mismatch).
	ErrCompilation = errors.New("pipeline compilation failed")

	// ErrMissingBacking marks an operation on a resource that has no backing store (unrealized or freed).
	ErrMissingBacking = errors.New("missing backing store")

	// ErrUsageViolation marks an access that breaks a resource's usage class contract.
	// Violations are programmer errors and are raised as panics carrying a marked error.
	ErrUsageViolation = errors.New("usage violation")
)

// ResourceCreationError wraps err with a message and marks it as ErrResourceCreation.
// Returns nil when err is nil.
//
// Parameters:
//   - err: the underlying error
//   - format: message format
//   - args: message arguments
//
// Returns:
//   - error: the marked error
func ResourceCreationError(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrapf(err, format, args...), ErrResourceCreation)
}

// CompilationError wraps err with a message and marks it as ErrCompilation.
// Returns nil when err is nil.
//
// Parameters:
//   - err: the underlying error
//   - format: message format
//   - args: message arguments
//
// Returns:
//   - error: the marked error
func CompilationError(err error, format string, args ...any) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrapf(err, format, args...), ErrCompilation)
}

// MissingBackingError builds a new error marked as ErrMissingBacking.
//
// Parameters:
//   - format: message format
//   - args: message arguments
//
// Returns:
//   - error: the marked error
func MissingBackingError(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrMissingBacking)
}

// PanicUsageViolation panics with an error marked as ErrUsageViolation.
func PanicUsageViolation(format string, args ...any) {
	panic(errors.Mark(errors.Newf(format, args...), ErrUsageViolation))
}

// PanicMissingBacking panics with an error marked as ErrMissingBacking.
func PanicMissingBacking(format string, args ...any) {
	panic(MissingBackingError(format, args...))
}
