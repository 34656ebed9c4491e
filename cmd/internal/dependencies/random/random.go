package random

import (
	"crypto/rand"
	"fmt"
	"io"
)

// Random is the source of unpredictable bytes used for salts, ids and tokens.
// It can be mocked for testing.
type Random interface {
	// Read fills p entirely or returns an error.
	Read(p []byte) (int, error)
}

// CryptoRandom implements Random using crypto/rand.
type CryptoRandom struct{}

// New creates a new CryptoRandom.
func New() *CryptoRandom {
	return &CryptoRandom{}
}

// Read fills p from the operating system CSPRNG.
func (r *CryptoRandom) Read(p []byte) (int, error) {
	return rand.Read(p)
}

// OrCrypto returns r, or a CryptoRandom when r is nil.
func OrCrypto(r Random) Random {
	if r == nil {
		return New()
	}
	return r
}

// Bytes reads exactly n bytes from r.
func Bytes(r Random, n int) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("random: invalid length %d", n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(OrCrypto(r), b); err != nil {
		return nil, fmt.Errorf("random: %w", err)
	}
	return b, nil
}
