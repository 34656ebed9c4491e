package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/caarlos0/env/v11"

	"basecampy/cmd/identity"
	"basecampy/cmd/security/token"
)

const (
	testAccessSecret  = "access-secret-access-secret-access-secret"
	testRefreshSecret = "refresh-secret-refresh-secret-refresh-sec"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// newTestApp builds an in-memory App with cheap hashing. It uses t.Setenv,
// so callers must not run in parallel.
func newTestApp(t *testing.T, cfg Config) *App {
	t.Helper()

	t.Setenv("BASECAMPY_ACCESS_TOKEN_SECRET", testAccessSecret)
	t.Setenv("BASECAMPY_REFRESH_TOKEN_SECRET", testRefreshSecret)
	t.Setenv("BASECAMPY_PASSWORD_WORK_FACTOR", "1")
	t.Setenv("BASECAMPY_ARGON2_MEMORY_KIB", "8192")
	t.Setenv(token.HMACEnvKey, "")

	a, err := New(context.Background(), cfg, discardLogger())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(a.Close)
	return a
}

// testConfig returns the defaults, ignoring the process environment.
func testConfig() Config {
	cfg, err := loadConfig(env.Options{Environment: map[string]string{}})
	if err != nil {
		panic(err)
	}
	return cfg
}

func serve(a *App, method, path, body string) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	a.Handler().ServeHTTP(rr, req)
	return rr
}

func TestApp_Welcome(t *testing.T) {
	a := newTestApp(t, testConfig())

	rr := serve(a, http.MethodGet, "/", "")
	if rr.Code != http.StatusOK || rr.Body.String() != "Welcome to basecampy" {
		t.Fatalf("status=%d body=%q", rr.Code, rr.Body.String())
	}

	if rr := serve(a, http.MethodGet, "/nope", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown path status=%d", rr.Code)
	}
}

func TestApp_Healthcheck(t *testing.T) {
	a := newTestApp(t, testConfig())

	rr := serve(a, http.MethodGet, "/api/v1/healthcheck", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}

	var got healthEnvelope
	if err := json.Unmarshal(rr.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := healthEnvelope{
		StatusCode: http.StatusOK,
		Data:       healthMessage{Message: "Server is running"},
		Message:    "Successful",
		Success:    true,
	}
	if got != want {
		t.Fatalf("envelope=%+v want=%+v", got, want)
	}

	if rr := serve(a, http.MethodPost, "/api/v1/healthcheck", ""); rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("POST status=%d", rr.Code)
	}
}

func TestApp_Readiness(t *testing.T) {
	a := newTestApp(t, testConfig())
	if rr := serve(a, http.MethodGet, "/readyz", ""); rr.Code != http.StatusOK {
		t.Fatalf("memory store readyz=%d", rr.Code)
	}

	cfg := testConfig()
	cfg.ReadinessRequireStore = true
	strict := newTestApp(t, cfg)
	if rr := serve(strict, http.MethodGet, "/readyz", ""); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("strict readyz=%d want 503", rr.Code)
	}
}

func TestApp_RequestIDAndSecurityHeaders(t *testing.T) {
	a := newTestApp(t, testConfig())

	rr := serve(a, http.MethodGet, "/healthz", "")
	if id := rr.Header().Get(RequestIDHeader); id == "" {
		t.Fatalf("missing %s", RequestIDHeader)
	}
	if got := rr.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("nosniff=%q", got)
	}
}

func TestApp_RegisterLoginMeAndMetrics(t *testing.T) {
	a := newTestApp(t, testConfig())

	rr := serve(a, http.MethodPost, "/api/v1/auth/register",
		`{"username":"alice","email":"alice@example.com","fullName":"Alice","password":"S3cr3t!"}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("register status=%d body=%s", rr.Code, rr.Body.String())
	}

	rr = serve(a, http.MethodPost, "/api/v1/auth/login", `{"username":"alice","password":"s3cr3t!"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("wrong-case password status=%d", rr.Code)
	}

	rr = serve(a, http.MethodPost, "/api/v1/auth/login", `{"username":"alice","password":"S3cr3t!"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("login status=%d body=%s", rr.Code, rr.Body.String())
	}
	var login struct {
		Data struct {
			Tokens struct {
				AccessToken string `json:"accessToken"`
			} `json:"tokens"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &login); err != nil {
		t.Fatalf("decode login: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+login.Data.Tokens.AccessToken)
	me := httptest.NewRecorder()
	a.Handler().ServeHTTP(me, req)
	if me.Code != http.StatusOK || !strings.Contains(me.Body.String(), `"username":"alice"`) {
		t.Fatalf("me status=%d body=%s", me.Code, me.Body.String())
	}

	metrics := serve(a, http.MethodGet, "/metrics", "")
	if metrics.Code != http.StatusOK {
		t.Fatalf("metrics status=%d", metrics.Code)
	}
	body := metrics.Body.String()
	for _, want := range []string{
		`basecampy_auth_events_total{event="auth.login",outcome="failure"} 1`,
		`basecampy_auth_events_total{event="auth.login",outcome="success"} 1`,
		`basecampy_http_requests_total{method="POST",route="/api/v1/auth/register",status="201"} 1`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q", want)
		}
	}
}

func TestApp_MetricsDisabled(t *testing.T) {
	cfg := testConfig()
	cfg.MetricsEnabled = false
	a := newTestApp(t, cfg)

	// Falls through to the root handler.
	if rr := serve(a, http.MethodGet, "/metrics", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("metrics status=%d want 404", rr.Code)
	}
}

func TestNew_RejectsMissingTokenSecrets(t *testing.T) {
	t.Setenv("BASECAMPY_ACCESS_TOKEN_SECRET", "")
	t.Setenv("BASECAMPY_REFRESH_TOKEN_SECRET", "")
	t.Setenv(token.HMACEnvKey, "")

	if _, err := New(context.Background(), testConfig(), discardLogger()); err == nil {
		t.Fatalf("expected config error without token secrets")
	}
}

func TestRefreshDigester(t *testing.T) {
	cases := []struct {
		name     string
		key      string
		require  bool
		wantErr  bool
		wantHMAC bool
	}{
		{name: "no key optional", key: "", require: false, wantHMAC: false},
		{name: "no key required", key: "", require: true, wantErr: true},
		{name: "short key", key: "too-short", require: false, wantErr: true},
		{name: "good key", key: strings.Repeat("k", 32), require: true, wantHMAC: true},
		{name: "good key optional", key: strings.Repeat("k", 40), require: false, wantHMAC: true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Setenv(token.HMACEnvKey, tc.key)

			d, err := RefreshDigester(Config{RequireTokenHMAC: tc.require})
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if d.HMACEnabled() != tc.wantHMAC {
				t.Fatalf("HMACEnabled=%v want %v", d.HMACEnabled(), tc.wantHMAC)
			}
		})
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig(env.Options{Environment: map[string]string{
		"BASECAMPY_HTTP_ADDR":    "",
		"BASECAMPY_CORS_ORIGINS": "",
		"BASECAMPY_DB_SCHEMA":    "",
	}})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	if cfg.HTTPAddr != "0.0.0.0:3000" {
		t.Fatalf("HTTPAddr=%q", cfg.HTTPAddr)
	}
	if len(cfg.CORSAllowedOrigins) != 1 || cfg.CORSAllowedOrigins[0] != "http://localhost:5173" {
		t.Fatalf("CORS origins=%v", cfg.CORSAllowedOrigins)
	}
	if cfg.DBSchema != identity.DefaultSchema || cfg.RedisKeyPrefix != "basecampy" {
		t.Fatalf("DBSchema=%q RedisKeyPrefix=%q", cfg.DBSchema, cfg.RedisKeyPrefix)
	}
	if cfg.ReadHeaderTimeout != 5*time.Second || cfg.MaxHeaderBytes != 1<<20 || cfg.DBMaxConns != 10 {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if !cfg.MetricsEnabled || !cfg.DBAutoMigrate || cfg.RequireTokenHMAC {
		t.Fatalf("unexpected flag defaults: %+v", cfg)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	cfg, err := loadConfig(env.Options{Environment: map[string]string{
		"BASECAMPY_CORS_ORIGINS":      " https://a.example.com , ,http://127.0.0.1:* ",
		"BASECAMPY_HTTP_IDLE_TIMEOUT": "2m",
		"BASECAMPY_DB_MAX_CONNS":      "4",
		"BASECAMPY_METRICS_ENABLED":   "false",
		"BASECAMPY_REDIS_KEY_PREFIX":  "tenant-a",
	}})
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}
	got := cfg.CORSAllowedOrigins
	if len(got) != 2 || got[0] != "https://a.example.com" || got[1] != "http://127.0.0.1:*" {
		t.Fatalf("CORS origins=%v", got)
	}
	if cfg.IdleTimeout != 2*time.Minute || cfg.DBMaxConns != 4 || cfg.MetricsEnabled || cfg.RedisKeyPrefix != "tenant-a" {
		t.Fatalf("overrides not applied: %+v", cfg)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	cases := map[string]map[string]string{
		"bad duration":  {"BASECAMPY_HTTP_READ_TIMEOUT": "soon"},
		"zero timeout":  {"BASECAMPY_HTTP_WRITE_TIMEOUT": "0s"},
		"bad bool":      {"BASECAMPY_METRICS_ENABLED": "maybe"},
		"bad int":       {"BASECAMPY_DB_MAX_CONNS": "ten"},
		"min over max":  {"BASECAMPY_DB_MIN_CONNS": "5", "BASECAMPY_DB_MAX_CONNS": "2"},
		"negative cors": {"BASECAMPY_CORS_MAX_AGE_SECONDS": "-1"},
	}
	for name, environ := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := loadConfig(env.Options{Environment: environ}); !errors.Is(err, ErrConfig) {
				t.Fatalf("expected ErrConfig, got %v", err)
			}
		})
	}
}
