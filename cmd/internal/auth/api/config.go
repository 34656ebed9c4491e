package authapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/caarlos0/env/v11"
)

// DefaultMaxBodyBytes caps JSON request bodies.
const DefaultMaxBodyBytes = 16 << 10

// Config controls auth API behavior and security defaults.
type Config struct {
	TrustProxy   bool
	MaxBodyBytes int64

	// AppBaseURL prefixes the links sent in verification and reset mail.
	AppBaseURL string

	// CookieTransport sets the access and refresh tokens as HttpOnly cookies
	// in addition to returning them in the body.
	CookieTransport bool
	CookieSecure    bool
	CookieSameSite  http.SameSite
	CookieDomain    string
	CookiePath      string
}

// DefaultConfig returns development-friendly defaults.
func DefaultConfig() Config {
	return Config{
		MaxBodyBytes:    DefaultMaxBodyBytes,
		AppBaseURL:      "http://localhost:3000",
		CookieTransport: true,
		CookieSecure:    true,
		CookieSameSite:  http.SameSiteLaxMode,
		CookiePath:      "/",
	}
}

type authEnv struct {
	TrustProxy      bool   `env:"BASECAMPY_AUTH_TRUST_PROXY"      envDefault:"false"`
	MaxBodyBytes    int64  `env:"BASECAMPY_AUTH_MAX_BODY_BYTES"   envDefault:"16384"`
	AppBaseURL      string `env:"BASECAMPY_APP_BASE_URL"          envDefault:"http://localhost:3000"`
	CookieTransport bool   `env:"BASECAMPY_AUTH_COOKIES"          envDefault:"true"`
	CookieSecure    bool   `env:"BASECAMPY_AUTH_COOKIE_SECURE"    envDefault:"true"`
	CookieSameSite  string `env:"BASECAMPY_AUTH_COOKIE_SAMESITE"  envDefault:"lax"`
	CookieDomain    string `env:"BASECAMPY_AUTH_COOKIE_DOMAIN"`
	CookiePath      string `env:"BASECAMPY_AUTH_COOKIE_PATH"      envDefault:"/"`
}

// LoadConfigFromEnv loads auth API config from environment variables.
func LoadConfigFromEnv() (Config, error) {
	var raw authEnv
	if err := env.Parse(&raw); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}

	cfg := Config{
		TrustProxy:      raw.TrustProxy,
		MaxBodyBytes:    raw.MaxBodyBytes,
		AppBaseURL:      strings.TrimRight(strings.TrimSpace(raw.AppBaseURL), "/"),
		CookieTransport: raw.CookieTransport,
		CookieSecure:    raw.CookieSecure,
		CookieSameSite:  parseSameSite(raw.CookieSameSite),
		CookieDomain:    strings.TrimSpace(raw.CookieDomain),
		CookiePath:      strings.TrimSpace(raw.CookiePath),
	}

	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.CookiePath == "" {
		cfg.CookiePath = "/"
	}
	// Browsers drop SameSite=None cookies that are not Secure.
	if cfg.CookieSameSite == http.SameSiteNoneMode {
		cfg.CookieSecure = true
	}
	return cfg, nil
}

func parseSameSite(raw string) http.SameSite {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "strict":
		return http.SameSiteStrictMode
	case "none":
		return http.SameSiteNoneMode
	case "default":
		return http.SameSiteDefaultMode
	default:
		return http.SameSiteLaxMode
	}
}
