package password

import "errors"

// Public, stable errors for callers.
var (
	// ErrInvalidInput is returned by Hash for an empty plaintext.
	ErrInvalidInput = errors.New("password: invalid input")
	// ErrCorruptHash is returned by Verify when the stored hash cannot be parsed
	// or carries parameters outside accepted bounds.
	ErrCorruptHash = errors.New("password: corrupt hash")

	ErrPasswordTooShort = errors.New("password too short")
	ErrPasswordTooLong  = errors.New("password too long")
	ErrWeakPassword     = errors.New("weak password")
)
