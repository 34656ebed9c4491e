package password

import (
	"fmt"
	"io"
	"runtime"

	"github.com/caarlos0/env/v11"
)

const (
	minWorkFactor = 1
	maxWorkFactor = 20
)

// Argon2idParams controls Argon2id hashing cost.
// MemoryKiB is in KiB as required by argon2.IDKey.
type Argon2idParams struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
	KeyLength   uint32
}

// Policy controls password acceptance on registration and change.
// Hash itself only rejects empty input.
type Policy struct {
	MinLength int
	MaxLength int
	// If true, enable an extra, minimal weak-pattern rejection.
	RejectVeryWeak bool
}

// Config is the single configuration surface for this package.
type Config struct {
	Params Argon2idParams
	Policy Policy

	// Rand supplies salts. Nil means crypto/rand.
	Rand io.Reader
}

// DefaultConfig returns the baseline used when no env overrides are present.
func DefaultConfig() Config {
	// Parallelism follows the CPU count, clamped to [1..4] to keep container
	// resource usage predictable.
	threads := runtime.NumCPU()
	if threads <= 0 {
		threads = 1
	}
	if threads > 4 {
		threads = 4
	}

	return Config{
		Params: Argon2idParams{
			MemoryKiB:   64 * 1024, // 64 MiB
			Iterations:  3,
			Parallelism: uint8(threads), // #nosec G115 -- clamped to [1..4] above.
			SaltLength:  16,
			KeyLength:   32,
		},
		Policy: Policy{
			MinLength:      6,
			MaxLength:      256,
			RejectVeryWeak: false,
		},
	}
}

// WorkFactor returns the tunable cost of new hashes.
func (c Config) WorkFactor() int {
	return int(c.Params.Iterations)
}

// WithWorkFactor returns a copy of c with the given work factor.
func (c Config) WithWorkFactor(n int) (Config, error) {
	if n < minWorkFactor || n > maxWorkFactor {
		return Config{}, fmt.Errorf("work factor out of range [%d..%d]", minWorkFactor, maxWorkFactor)
	}
	c.Params.Iterations = uint32(n) // #nosec G115 -- range checked above.
	return c, nil
}

// passwordEnv holds raw env values; fields start at DefaultConfig.
type passwordEnv struct {
	WorkFactor     int    `env:"BASECAMPY_PASSWORD_WORK_FACTOR"`
	MinLength      int    `env:"BASECAMPY_PASSWORD_MIN_LEN"`
	MaxLength      int    `env:"BASECAMPY_PASSWORD_MAX_LEN"`
	RejectVeryWeak bool   `env:"BASECAMPY_PASSWORD_REJECT_VERY_WEAK"`
	MemoryKiB      uint32 `env:"BASECAMPY_ARGON2_MEMORY_KIB"`
	Parallelism    uint8  `env:"BASECAMPY_ARGON2_PARALLELISM"`
	SaltLength     uint32 `env:"BASECAMPY_ARGON2_SALT_LEN"`
	KeyLength      uint32 `env:"BASECAMPY_ARGON2_KEY_LEN"`
}

// FromEnv loads config from environment variables.
//
// Env surface:
// - BASECAMPY_PASSWORD_WORK_FACTOR
// - BASECAMPY_PASSWORD_MIN_LEN
// - BASECAMPY_PASSWORD_MAX_LEN
// - BASECAMPY_PASSWORD_REJECT_VERY_WEAK (true/false)
// - BASECAMPY_ARGON2_MEMORY_KIB
// - BASECAMPY_ARGON2_PARALLELISM
// - BASECAMPY_ARGON2_SALT_LEN
// - BASECAMPY_ARGON2_KEY_LEN
func FromEnv() (Config, error) {
	cfg := DefaultConfig()
	raw := passwordEnv{
		WorkFactor:     cfg.WorkFactor(),
		MinLength:      cfg.Policy.MinLength,
		MaxLength:      cfg.Policy.MaxLength,
		RejectVeryWeak: cfg.Policy.RejectVeryWeak,
		MemoryKiB:      cfg.Params.MemoryKiB,
		Parallelism:    cfg.Params.Parallelism,
		SaltLength:     cfg.Params.SaltLength,
		KeyLength:      cfg.Params.KeyLength,
	}
	if err := env.Parse(&raw); err != nil {
		return Config{}, fmt.Errorf("password config: %w", err)
	}

	bounds := []struct {
		key      string
		got      int64
		min, max int64
	}{
		{"BASECAMPY_PASSWORD_WORK_FACTOR", int64(raw.WorkFactor), minWorkFactor, maxWorkFactor},
		{"BASECAMPY_PASSWORD_MIN_LEN", int64(raw.MinLength), 1, 1024},
		{"BASECAMPY_PASSWORD_MAX_LEN", int64(raw.MaxLength), 1, 4096},
		{"BASECAMPY_ARGON2_MEMORY_KIB", int64(raw.MemoryKiB), 8 * 1024, maxMemoryKiB}, // 8 MiB .. 1 GiB
		{"BASECAMPY_ARGON2_PARALLELISM", int64(raw.Parallelism), 1, 64},
		{"BASECAMPY_ARGON2_SALT_LEN", int64(raw.SaltLength), minSaltLength, maxSaltLength},
		{"BASECAMPY_ARGON2_KEY_LEN", int64(raw.KeyLength), minKeyLength, 64},
	}
	for _, b := range bounds {
		if b.got < b.min || b.got > b.max {
			return Config{}, fmt.Errorf("%s: out of range [%d..%d]", b.key, b.min, b.max)
		}
	}

	cfg, _ = cfg.WithWorkFactor(raw.WorkFactor)
	cfg.Policy = Policy{
		MinLength:      raw.MinLength,
		MaxLength:      raw.MaxLength,
		RejectVeryWeak: raw.RejectVeryWeak,
	}
	cfg.Params.MemoryKiB = raw.MemoryKiB
	cfg.Params.Parallelism = raw.Parallelism
	cfg.Params.SaltLength = raw.SaltLength
	cfg.Params.KeyLength = raw.KeyLength

	if cfg.Policy.MinLength > cfg.Policy.MaxLength {
		return Config{}, fmt.Errorf(
			"password policy invalid: min_len(%d) > max_len(%d)",
			cfg.Policy.MinLength,
			cfg.Policy.MaxLength,
		)
	}

	return cfg, nil
}
