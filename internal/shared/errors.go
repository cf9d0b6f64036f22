package shared

import "errors"

var (
	// ErrIdempotencyConflict indicates a key that was already processed.
	ErrIdempotencyConflict = errors.New("shared: idempotent request already processed")
	// ErrNotInitialised is returned by nil helpers that cannot degrade.
	ErrNotInitialised = errors.New("shared: helper not initialised")
)
