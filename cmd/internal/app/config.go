package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"

	"basecampy/cmd/identity"
)

// ErrConfig marks an invalid runtime configuration.
var ErrConfig = errors.New("app: invalid config")

// Config contains all runtime configuration loaded from environment variables.
type Config struct {
	HTTPAddr  string `env:"BASECAMPY_HTTP_ADDR"  envDefault:"0.0.0.0:3000"`
	LogLevel  string `env:"BASECAMPY_LOG_LEVEL"  envDefault:"info"`
	LogFormat string `env:"BASECAMPY_LOG_FORMAT" envDefault:"json"` // json | pretty
	LogColor  bool   `env:"BASECAMPY_LOG_COLOR"  envDefault:"true"`

	ReadHeaderTimeout time.Duration `env:"BASECAMPY_HTTP_READ_HEADER_TIMEOUT" envDefault:"5s"`
	ReadTimeout       time.Duration `env:"BASECAMPY_HTTP_READ_TIMEOUT"        envDefault:"15s"`
	WriteTimeout      time.Duration `env:"BASECAMPY_HTTP_WRITE_TIMEOUT"       envDefault:"15s"`
	IdleTimeout       time.Duration `env:"BASECAMPY_HTTP_IDLE_TIMEOUT"        envDefault:"60s"`
	ShutdownTimeout   time.Duration `env:"BASECAMPY_HTTP_SHUTDOWN_TIMEOUT"    envDefault:"10s"`
	MaxHeaderBytes    int           `env:"BASECAMPY_HTTP_MAX_HEADER_BYTES"    envDefault:"1048576"`

	// Identity persistence. DatabaseURL wins over RedisURL; with neither set
	// records live in process memory.
	DatabaseURL   string `env:"BASECAMPY_DATABASE_URL"`
	DBSchema      string `env:"BASECAMPY_DB_SCHEMA"`
	DBMaxConns    int32  `env:"BASECAMPY_DB_MAX_CONNS"    envDefault:"10"`
	DBMinConns    int32  `env:"BASECAMPY_DB_MIN_CONNS"    envDefault:"0"`
	DBAutoMigrate bool   `env:"BASECAMPY_DB_AUTO_MIGRATE" envDefault:"true"`

	RedisURL       string `env:"BASECAMPY_REDIS_URL"`
	RedisKeyPrefix string `env:"BASECAMPY_REDIS_KEY_PREFIX"`

	// If true, /readyz returns 503 while identities live in memory.
	ReadinessRequireStore bool `env:"BASECAMPY_READINESS_REQUIRE_STORE" envDefault:"false"`

	CORSAllowedOrigins   []string `env:"BASECAMPY_CORS_ORIGINS"           envDefault:"http://localhost:5173" envSeparator:","`
	CORSAllowCredentials bool     `env:"BASECAMPY_CORS_ALLOW_CREDENTIALS" envDefault:"true"`
	CORSMaxAgeSeconds    int      `env:"BASECAMPY_CORS_MAX_AGE_SECONDS"   envDefault:"600"`

	MetricsEnabled bool `env:"BASECAMPY_METRICS_ENABLED" envDefault:"true"`

	// If true, BASECAMPY_TOKEN_HMAC_KEY MUST be set (>= 32 bytes) and refresh
	// references are stored as HMAC digests.
	RequireTokenHMAC bool `env:"BASECAMPY_REQUIRE_TOKEN_HMAC" envDefault:"false"`
}

// LoadConfig loads Config from environment variables with defaults. Values
// that do not parse are errors rather than silent fallbacks.
func LoadConfig() (Config, error) {
	return loadConfig(env.Options{})
}

func loadConfig(opts env.Options) (Config, error) {
	cfg := Config{
		DBSchema:       identity.DefaultSchema,
		RedisKeyPrefix: identity.DefaultRedisConfig().KeyPrefix,
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrConfig, err)
	}
	cfg.CORSAllowedOrigins = compactList(cfg.CORSAllowedOrigins)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the ranges env tags cannot express.
func (c Config) Validate() error {
	switch {
	case c.HTTPAddr == "":
		return fmt.Errorf("%w: http addr is required", ErrConfig)
	case c.ReadHeaderTimeout <= 0 || c.ReadTimeout <= 0 || c.WriteTimeout <= 0 ||
		c.IdleTimeout <= 0 || c.ShutdownTimeout <= 0:
		return fmt.Errorf("%w: http timeouts must be positive", ErrConfig)
	case c.MaxHeaderBytes <= 0:
		return fmt.Errorf("%w: max header bytes must be positive", ErrConfig)
	case c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns:
		return fmt.Errorf("%w: db pool bounds invalid (min=%d max=%d)", ErrConfig, c.DBMinConns, c.DBMaxConns)
	case c.CORSMaxAgeSeconds < 0:
		return fmt.Errorf("%w: cors max age must not be negative", ErrConfig)
	}
	return nil
}

// compactList trims entries and drops blanks.
func compactList(in []string) []string {
	out := in[:0]
	for _, v := range in {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
