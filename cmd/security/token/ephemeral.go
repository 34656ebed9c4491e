package token

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"basecampy/cmd/internal/dependencies/clock"
	"basecampy/cmd/internal/dependencies/random"
)

const (
	// MinEphemeralBytes is the smallest accepted entropy (160 bits).
	MinEphemeralBytes = 20

	DefaultEphemeralTTL   = 20 * time.Minute
	DefaultEphemeralBytes = MinEphemeralBytes
)

// EphemeralConfig controls single-use token generation.
type EphemeralConfig struct {
	TTL   time.Duration `env:"BASECAMPY_EPHEMERAL_TOKEN_TTL"`
	Bytes int           `env:"BASECAMPY_EPHEMERAL_TOKEN_BYTES"`
}

// DefaultEphemeralConfig returns the 20 minute, 160-bit baseline.
func DefaultEphemeralConfig() EphemeralConfig {
	return EphemeralConfig{TTL: DefaultEphemeralTTL, Bytes: DefaultEphemeralBytes}
}

// Validate checks that the config yields usable tokens.
func (c EphemeralConfig) Validate() error {
	if c.TTL <= 0 {
		return fmt.Errorf("ephemeral token ttl must be positive")
	}
	if c.Bytes < MinEphemeralBytes || c.Bytes > 128 {
		return fmt.Errorf("ephemeral token bytes out of range [%d..128]", MinEphemeralBytes)
	}
	return nil
}

// EphemeralConfigFromEnv loads the ephemeral token config, starting from
// DefaultEphemeralConfig.
//
// Env surface:
// - BASECAMPY_EPHEMERAL_TOKEN_TTL (Go duration)
// - BASECAMPY_EPHEMERAL_TOKEN_BYTES
func EphemeralConfigFromEnv() (EphemeralConfig, error) {
	cfg := DefaultEphemeralConfig()
	if err := env.Parse(&cfg); err != nil {
		return EphemeralConfig{}, fmt.Errorf("ephemeral token config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return EphemeralConfig{}, err
	}
	return cfg, nil
}

// Ephemeral is a freshly generated single-use token.
// Plaintext goes to the user; Hash and ExpiresAt are stored.
type Ephemeral struct {
	Plaintext string
	Hash      string
	ExpiresAt time.Time
}

// Generator mints ephemeral tokens.
type Generator struct {
	cfg   EphemeralConfig
	clock clock.Clock
	rand  random.Random
}

// NewGenerator returns a Generator. Nil clock or random fall back to the
// system clock and crypto/rand.
func NewGenerator(cfg EphemeralConfig, clk clock.Clock, rnd random.Random) (*Generator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Generator{
		cfg:   cfg,
		clock: clock.OrReal(clk),
		rand:  random.OrCrypto(rnd),
	}, nil
}

// TTL returns the configured lifetime.
func (g *Generator) TTL() time.Duration {
	return g.cfg.TTL
}

// Generate returns a hex plaintext, its SHA-256 digest and an expiry of now+TTL.
func (g *Generator) Generate() (Ephemeral, error) {
	b, err := random.Bytes(g.rand, g.cfg.Bytes)
	if err != nil {
		return Ephemeral{}, fmt.Errorf("ephemeral token: %w", err)
	}
	plain := hex.EncodeToString(b)

	return Ephemeral{
		Plaintext: plain,
		Hash:      HashSHA256Hex(plain),
		ExpiresAt: g.clock.Now().Add(g.cfg.TTL),
	}, nil
}

// Consume checks a supplied plaintext against stored state.
//
// Expiry and digest are both evaluated. Past expiry always yields
// ErrTokenExpired; otherwise a digest mismatch yields ErrTokenMismatch.
// Consume does not mutate anything; callers clear the stored state on success.
func Consume(storedHash string, storedExpiry time.Time, supplied string, now time.Time) error {
	matches := EqualHex64(HashSHA256Hex(supplied), storedHash)
	expired := now.After(storedExpiry)

	switch {
	case expired:
		return ErrTokenExpired
	case !matches:
		return ErrTokenMismatch
	default:
		return nil
	}
}

// Consume is the method form of the package-level Consume.
func (g *Generator) Consume(storedHash string, storedExpiry time.Time, supplied string, now time.Time) error {
	return Consume(storedHash, storedExpiry, supplied, now)
}
