// Package password hashes and verifies identity secrets.
//
// New hashes use Argon2id in the PHC string format:
//
//	$argon2id$v=19$m=<mem>,t=<iter>,p=<par>$<salt_b64>$<hash_b64>
//
// The work factor is the Argon2id iteration count and can be raised over time;
// NeedsRehash reports hashes produced with weaker settings. Bcrypt hashes
// ($2a$, $2b$, $2y$) from earlier deployments are still accepted by Verify.
//
// Stored hashes are untrusted input: Verify refuses hashes whose parameters
// exceed reasonable bounds and reports them as ErrCorruptHash.
package password
