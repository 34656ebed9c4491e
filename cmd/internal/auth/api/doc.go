// Package authapi exposes the credential flows over HTTP under
// /api/v1/auth.
//
// Every response uses one JSON envelope. Successful responses carry
// {statusCode, success: true, message, data}; failures carry
// {statusCode, success: false, message, errors: [{code, message}]}.
//
// Plaintext passwords, bearer tokens and ephemeral tokens are never logged.
package authapi
