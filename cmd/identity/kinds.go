package identity

import "errors"

// Sentinel error kinds (stable for errors.Is and for mapping to API status codes).
var (
	ErrInvalidInput = errors.New("invalid_input")
	ErrNotFound     = errors.New("not_found")
	ErrConflict     = errors.New("conflict")
	ErrNotActive    = errors.New("not_active")

	// ErrVersionConflict is returned by Store.Update when the record changed
	// since it was read.
	ErrVersionConflict = errors.New("version_conflict")

	// ErrNoPendingToken means no ephemeral token of the requested purpose is
	// outstanding (never requested, or already consumed).
	ErrNoPendingToken = errors.New("no_pending_token")
)
