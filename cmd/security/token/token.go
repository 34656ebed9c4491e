package token

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"os"
	"strings"
)

const (
	// HMACEnvKey is the env var name for the refresh digest secret.
	// #nosec G101 -- not a credential; it's an environment variable name.
	HMACEnvKey = "BASECAMPY_TOKEN_HMAC_KEY"
)

// HashSHA256Hex returns a SHA-256 hex digest of s.
func HashSHA256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// HashHMACSHA256Hex returns an HMAC-SHA256 hex digest of s using key.
func HashHMACSHA256Hex(s string, key []byte) string {
	m := hmac.New(sha256.New, key)
	_, _ = m.Write([]byte(s))
	return hex.EncodeToString(m.Sum(nil))
}

// EqualHex64 compares two 64-char hex digests in constant time.
// Any other length never matches.
func EqualHex64(a, b string) bool {
	if len(a) != 64 || len(b) != 64 {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// HMACKeyFromEnv returns the configured HMAC key bytes (trimmed), enforcing a minimum byte length.
// If the env var is missing/blank -> ErrHMACKeyMissing.
// If too short -> ErrHMACKeyTooShort.
func HMACKeyFromEnv(minBytes int) ([]byte, error) {
	raw := strings.TrimSpace(os.Getenv(HMACEnvKey))
	if raw == "" {
		return nil, ErrHMACKeyMissing
	}
	b := []byte(raw)
	if minBytes > 0 && len(b) < minBytes {
		return nil, ErrHMACKeyTooShort
	}
	return b, nil
}

// Digester hashes refresh tokens for server-side storage.
// The zero value uses plain SHA-256.
type Digester struct {
	Key []byte
}

// NewDigester returns a Digester for key. When requireHMAC is set the key
// must be at least minBytes long.
func NewDigester(key []byte, requireHMAC bool, minBytes int) (Digester, error) {
	if len(key) == 0 {
		if requireHMAC {
			return Digester{}, ErrHMACKeyMissing
		}
		return Digester{}, nil
	}
	if minBytes > 0 && len(key) < minBytes {
		return Digester{}, ErrHMACKeyTooShort
	}
	return Digester{Key: append([]byte(nil), key...)}, nil
}

// HMACEnabled reports whether a key is configured.
func (d Digester) HMACEnabled() bool {
	return len(d.Key) > 0
}

// HashRefreshTokenHex returns HMAC-SHA256(token, key) when a key is set and
// SHA-256(token) otherwise.
func (d Digester) HashRefreshTokenHex(token string) string {
	if len(d.Key) == 0 {
		return HashSHA256Hex(token)
	}
	return HashHMACSHA256Hex(token, d.Key)
}
