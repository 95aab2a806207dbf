package domain

import "errors"

// Sentinel error kinds. Services wrap these with context via
// fmt.Errorf("...: %w", ...); callers classify with errors.Is.
var (
	// ErrNotFound marks a missing account, transaction, invoice or bill.
	ErrNotFound = errors.New("not found")

	// ErrValidation marks a missing required field, an unrecognized
	// category, or a malformed allocation.
	ErrValidation = errors.New("validation failed")

	// ErrConflict marks an attempt to mutate a reconciled transaction or
	// to strictly insert a duplicate.
	ErrConflict = errors.New("conflict")

	// ErrParseFailure marks a completely unreadable statement file. Bad
	// rows never produce this; they become warnings.
	ErrParseFailure = errors.New("statement unreadable")
)
