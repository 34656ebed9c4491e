package authapi

import (
	"errors"
	"fmt"
	"net/http"

	"basecampy/cmd/identity"
	"basecampy/cmd/internal/auth/session"
	"basecampy/cmd/security/password"
	"basecampy/cmd/security/token"
)

// failure is the transport view of a service error.
type failure struct {
	Status  int
	Code    string
	Message string
}

// classify maps service errors to HTTP failures. Unknown errors are
// reported as 500 and must be logged by the caller.
func classify(err error) failure {
	switch {
	case errors.Is(err, session.ErrAlreadyVerified):
		return failure{http.StatusBadRequest, "already_verified", "email is already verified"}
	case errors.Is(err, password.ErrPasswordTooShort),
		errors.Is(err, password.ErrPasswordTooLong),
		errors.Is(err, password.ErrWeakPassword):
		return failure{http.StatusBadRequest, "weak_password", "password does not meet the policy"}
	case identity.IsConflict(err):
		field := identity.ConflictField(err)
		if field == "" {
			field = "value"
		}
		return failure{http.StatusConflict, "conflict", fmt.Sprintf("%s is already in use", field)}
	case identity.IsVersionConflict(err):
		return failure{http.StatusConflict, "version_conflict", "record changed concurrently, please retry"}
	case errors.Is(err, session.ErrMalformedToken):
		return failure{http.StatusBadRequest, "malformed_token", "malformed token"}
	case identity.IsInvalidInput(err):
		return failure{http.StatusBadRequest, "invalid_input", "invalid input"}
	case errors.Is(err, session.ErrExpiredToken), errors.Is(err, token.ErrTokenExpired):
		return failure{http.StatusUnauthorized, "token_expired", "token expired"}
	case errors.Is(err, session.ErrInvalidSignature):
		return failure{http.StatusUnauthorized, "invalid_token", "invalid token"}
	case errors.Is(err, token.ErrTokenMismatch), errors.Is(err, identity.ErrNoPendingToken):
		return failure{http.StatusUnauthorized, "token_invalid", "token is invalid or has already been used"}
	case errors.Is(err, session.ErrInvalidCredentials):
		return failure{http.StatusUnauthorized, "invalid_credentials", "invalid credentials"}
	case errors.Is(err, session.ErrRefreshReuseDetected):
		return failure{http.StatusUnauthorized, "refresh_reuse_detected", "refresh token reuse detected"}
	case identity.IsNotActive(err):
		return failure{http.StatusUnauthorized, "session_not_active", "session not active"}
	case identity.IsNotFound(err):
		return failure{http.StatusNotFound, "not_found", "identity not found"}
	default:
		return failure{http.StatusInternalServerError, "server_error", "internal error"}
	}
}

// writeServiceError writes the mapped failure and logs server errors.
// Corrupt stored hashes are data integrity problems and logged as such.
func (h *Handler) writeServiceError(w http.ResponseWriter, op string, err error) failure {
	f := classify(err)
	if f.Status >= http.StatusInternalServerError {
		if errors.Is(err, password.ErrCorruptHash) {
			h.log.Error(op+".corrupt_hash", "err", err)
		} else {
			h.log.Error(op+".fail", "err", err)
		}
	}
	writeError(w, f.Status, f.Code, f.Message)
	return f
}
