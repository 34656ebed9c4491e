package identity

import (
	"strings"
	"time"
)

// Purpose names what a pending ephemeral token is for.
type Purpose string

const (
	PurposeEmailVerification Purpose = "email-verification"
	PurposePasswordReset     Purpose = "password-reset"
)

// Valid reports whether p is a known purpose.
func (p Purpose) Valid() bool {
	switch p {
	case PurposeEmailVerification, PurposePasswordReset:
		return true
	default:
		return false
	}
}

// DefaultAvatarURL is assigned to new records without an avatar.
const DefaultAvatarURL = "https://placehold.co/200x200"

// PendingToken is the stored half of an outstanding ephemeral token.
type PendingToken struct {
	Hash      string    `json:"hash"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Avatar points at the profile image.
type Avatar struct {
	URL       string
	LocalPath string
}

// Record is the persisted identity with its credential state.
// IMPORTANT: no plaintext secret is ever stored here.
type Record struct {
	ID       string
	Username string
	Email    string
	FullName string
	Avatar   Avatar

	PasswordHash string

	// RefreshTokenHash references the single active refresh token.
	// Empty means no active session.
	RefreshTokenHash string

	EmailVerified bool

	EmailVerification *PendingToken
	PasswordReset     *PendingToken

	// Version increases by one on every successful Store.Update.
	Version int64

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Pending returns the outstanding token for purpose, or nil.
func (r *Record) Pending(p Purpose) *PendingToken {
	switch p {
	case PurposeEmailVerification:
		return r.EmailVerification
	case PurposePasswordReset:
		return r.PasswordReset
	default:
		return nil
	}
}

func (r *Record) setPending(p Purpose, t *PendingToken) {
	switch p {
	case PurposeEmailVerification:
		r.EmailVerification = t
	case PurposePasswordReset:
		r.PasswordReset = t
	}
}

// HasActiveSession reports whether a refresh token reference is stored.
func (r *Record) HasActiveSession() bool {
	return r.RefreshTokenHash != ""
}

// Clone returns a deep copy of r.
func (r Record) Clone() Record {
	out := r
	if r.EmailVerification != nil {
		v := *r.EmailVerification
		out.EmailVerification = &v
	}
	if r.PasswordReset != nil {
		v := *r.PasswordReset
		out.PasswordReset = &v
	}
	return out
}

// validateForStore checks the invariants every store enforces on write.
func (r Record) validateForStore(op string) error {
	switch {
	case strings.TrimSpace(r.ID) == "":
		return invalid(op, "missing id")
	case r.Username == "" || r.Username != NormalizeUsername(r.Username):
		return invalid(op, "username must be normalized and non-empty")
	case r.Email == "" || r.Email != NormalizeEmail(r.Email):
		return invalid(op, "email must be normalized and non-empty")
	case r.PasswordHash == "":
		return invalid(op, "missing password hash")
	}
	return nil
}
