package session

import (
	"errors"
	"fmt"

	"basecampy/cmd/identity"
)

var (
	// ErrMalformedToken is returned when a token is not a structurally valid JWT.
	ErrMalformedToken = errors.New("malformed token")

	// ErrInvalidSignature is returned when a token fails signature or claim validation.
	ErrInvalidSignature = errors.New("invalid token signature")

	// ErrKindMismatch is returned when a well-formed token of one kind is
	// presented where the other kind is expected.
	ErrKindMismatch = fmt.Errorf("%w: token kind mismatch", ErrInvalidSignature)

	// ErrExpiredToken is returned when a correctly signed token is past its expiry.
	ErrExpiredToken = errors.New("token expired")

	// ErrInvalidCredentials is returned for any failed login. It does not say
	// whether the identifier or the password was wrong.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrSessionNotActive is returned when a refresh is attempted after logout.
	ErrSessionNotActive = fmt.Errorf("%w: session not active", identity.ErrNotActive)

	// ErrRefreshReuseDetected is returned when a refresh token that was already
	// rotated away is presented again. The stored reference has been cleared.
	ErrRefreshReuseDetected = errors.New("refresh token reuse detected")

	// ErrAlreadyVerified is returned when email verification is requested for
	// an address that is already verified.
	ErrAlreadyVerified = fmt.Errorf("%w: email already verified", identity.ErrInvalidInput)

	// ErrConfig is returned for invalid configuration.
	ErrConfig = errors.New("invalid config")
)
