package session

import (
	"bytes"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// MinSecretBytes is the minimum length of each signing secret.
const MinSecretBytes = 32

// Config defines all runtime configuration for token minting and the
// credential flows.
//
// Access and refresh tokens are signed with distinct secrets so that a leaked
// access secret cannot be used to forge refresh tokens.
type Config struct {
	// Issuer is the value set in the "iss" claim and required on verify.
	Issuer string

	// AccessTokenTTL is the fixed lifetime of access tokens.
	AccessTokenTTL time.Duration

	// RefreshTokenTTL is the fixed lifetime of refresh tokens.
	RefreshTokenTTL time.Duration

	// ClockSkew is the leeway applied to expiry checks.
	ClockSkew time.Duration

	AccessTokenSecret  []byte
	RefreshTokenSecret []byte

	// RehashOnLogin upgrades stored password hashes whose parameters are
	// below the current hasher configuration after a successful login.
	RehashOnLogin bool
}

// DefaultConfig returns the default TTLs. Secrets are left empty and must be
// provided before the config validates.
func DefaultConfig() Config {
	return Config{
		Issuer:          "basecampy",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 10 * 24 * time.Hour,
	}
}

// sessionEnv holds raw env values for session configuration.
type sessionEnv struct {
	Issuer             string        `env:"BASECAMPY_AUTH_ISSUER"           envDefault:"basecampy"`
	AccessTokenSecret  string        `env:"BASECAMPY_ACCESS_TOKEN_SECRET"`
	RefreshTokenSecret string        `env:"BASECAMPY_REFRESH_TOKEN_SECRET"`
	AccessTokenTTL     time.Duration `env:"BASECAMPY_ACCESS_TOKEN_TTL"      envDefault:"15m"`
	RefreshTokenTTL    time.Duration `env:"BASECAMPY_REFRESH_TOKEN_TTL"     envDefault:"240h"`
	ClockSkew          time.Duration `env:"BASECAMPY_AUTH_CLOCK_SKEW"       envDefault:"0s"`
	RehashOnLogin      bool          `env:"BASECAMPY_AUTH_REHASH_ON_LOGIN"  envDefault:"false"`
}

// LoadConfigFromEnv loads session configuration from environment variables.
//
// Required:
//   - BASECAMPY_ACCESS_TOKEN_SECRET
//   - BASECAMPY_REFRESH_TOKEN_SECRET
//
// Optional (durations must be valid Go duration strings):
//   - BASECAMPY_AUTH_ISSUER
//   - BASECAMPY_ACCESS_TOKEN_TTL
//   - BASECAMPY_REFRESH_TOKEN_TTL
//   - BASECAMPY_AUTH_CLOCK_SKEW
//   - BASECAMPY_AUTH_REHASH_ON_LOGIN
//
// Returns an error wrapping ErrConfig if configuration is invalid.
func LoadConfigFromEnv() (Config, error) {
	var raw sessionEnv
	if err := env.Parse(&raw); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}

	cfg := Config{
		Issuer:             raw.Issuer,
		AccessTokenTTL:     raw.AccessTokenTTL,
		RefreshTokenTTL:    raw.RefreshTokenTTL,
		ClockSkew:          raw.ClockSkew,
		AccessTokenSecret:  []byte(raw.AccessTokenSecret),
		RefreshTokenSecret: []byte(raw.RefreshTokenSecret),
		RehashOnLogin:      raw.RehashOnLogin,
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks secrets and TTL ordering.
func (c Config) Validate() error {
	switch {
	case c.Issuer == "":
		return fmt.Errorf("%w: issuer is required", ErrConfig)
	case len(c.AccessTokenSecret) < MinSecretBytes:
		return fmt.Errorf("%w: access token secret must be at least %d bytes", ErrConfig, MinSecretBytes)
	case len(c.RefreshTokenSecret) < MinSecretBytes:
		return fmt.Errorf("%w: refresh token secret must be at least %d bytes", ErrConfig, MinSecretBytes)
	case bytes.Equal(c.AccessTokenSecret, c.RefreshTokenSecret):
		return fmt.Errorf("%w: access and refresh secrets must differ", ErrConfig)
	case c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0:
		return fmt.Errorf("%w: token ttl must be positive", ErrConfig)
	case c.AccessTokenTTL >= c.RefreshTokenTTL:
		return fmt.Errorf("%w: access ttl must be shorter than refresh ttl", ErrConfig)
	case c.ClockSkew < 0:
		return fmt.Errorf("%w: clock skew must not be negative", ErrConfig)
	}
	return nil
}
