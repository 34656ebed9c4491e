// Package token provides the one-way digests and the single-use ephemeral
// tokens that sit next to an identity record.
//
// Digests are stable 64-char hex strings suitable for storage and
// constant-time comparison:
//   - SHA-256(token) for ephemeral tokens and, when no key is configured,
//     refresh-token references.
//   - HMAC-SHA256(token, key) for refresh-token references once a key is set.
//
// Ephemeral tokens are random hex plaintexts handed out of band (mail links).
// Only their SHA-256 digest and expiry are stored. Consume checks expiry and
// digest independently, so an expired token is rejected even when it matches.
//
// Environment (read once at startup by callers):
//   - BASECAMPY_TOKEN_HMAC_KEY
//   - BASECAMPY_EPHEMERAL_TOKEN_TTL
//   - BASECAMPY_EPHEMERAL_TOKEN_BYTES
package token
