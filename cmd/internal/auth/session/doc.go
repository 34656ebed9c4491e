// Package session mints and verifies bearer tokens and runs the credential
// flows built on top of identity records.
//
// Access tokens are short-lived HS256 JWTs carrying the identity id, username
// and email. Refresh tokens are long-lived HS256 JWTs carrying only the
// identity id, signed with a different secret. Both carry a "kind" claim so
// one can never be accepted in place of the other.
//
// A refresh token is only honored while its digest matches the single
// reference stored on the identity record. Every successful refresh rotates
// that reference. Presenting a token that no longer matches clears the
// reference and ends the session.
//
// Transport (HTTP) integration lives in auth/api.
package session
