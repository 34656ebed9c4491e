// Package identity owns the identity record: the username/email principal
// together with its credential state (password hash, the single refresh-token
// reference, and at most one pending ephemeral token per purpose).
//
// Service implements the record operations as pure mutations of a Record.
// Persistence is a separate Store with optimistic concurrency on Version;
// Modify ties the two together as an atomic fetch-modify-save.
//
// Stores never hash. The password hash only changes through ChangePassword.
package identity
