package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrInvalidQuantity indicates a zero or negative quantity.
	ErrInvalidQuantity = errors.New("quantity must be greater than zero")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates the request conflicts with current state.
	ErrConflict = errors.New("conflict")
	// ErrUnprocessable indicates well-formed input that cannot be acted upon.
	ErrUnprocessable = errors.New("unprocessable")
	// ErrConcurrentModification is returned on lock contention or serialization failure.
	// The whole operation can be retried from scratch.
	ErrConcurrentModification = errors.New("concurrent modification, retry the request")
)
