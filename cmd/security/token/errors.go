package token

import "errors"

// Public, stable errors for callers.
var (
	ErrHMACKeyMissing  = errors.New("token HMAC key missing")
	ErrHMACKeyTooShort = errors.New("token HMAC key too short")

	// ErrTokenExpired means the current time is past the stored expiry.
	ErrTokenExpired = errors.New("token expired")
	// ErrTokenMismatch means the supplied plaintext does not match the stored digest.
	ErrTokenMismatch = errors.New("token mismatch")
)
