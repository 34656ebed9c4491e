// Package app wires the basecampy server runtime: config, logging, identity
// storage, the credential services and the HTTP surface.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"basecampy/cmd/identity"
	authapi "basecampy/cmd/internal/auth/api"
	"basecampy/cmd/internal/auth/session"
	"basecampy/cmd/internal/dependencies/clock"
	"basecampy/cmd/internal/dependencies/random"
	"basecampy/cmd/security/password"
	"basecampy/cmd/security/token"
)

// App is the basecampy server runtime. It owns the store connection, the
// metrics registry and the HTTP handler chain.
type App struct {
	cfg Config
	log Logger

	backend  *backend
	registry *prometheus.Registry
	handler  http.Handler
}

// New constructs a fully wired App from cfg. Credential settings (token
// secrets, hashing cost, ephemeral token TTL, cookie policy) are read from the
// environment by their owning packages.
func New(ctx context.Context, cfg Config, log Logger) (*App, error) {
	if log == nil {
		log = NewLogger(cfg)
	}

	digester, err := RefreshDigester(cfg)
	if err != nil {
		return nil, err
	}

	hasher, err := password.FromEnv()
	if err != nil {
		return nil, fmt.Errorf("app: password config: %w", err)
	}

	clk := clock.New()
	rnd := random.New()

	ephCfg, err := token.EphemeralConfigFromEnv()
	if err != nil {
		return nil, fmt.Errorf("app: ephemeral token config: %w", err)
	}
	tokens, err := token.NewGenerator(ephCfg, clk, rnd)
	if err != nil {
		return nil, err
	}

	ids, err := identity.NewService(hasher, tokens, digester, clk, rnd)
	if err != nil {
		return nil, err
	}

	sessCfg, err := session.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}
	minter, err := session.NewMinter(sessCfg, clk)
	if err != nil {
		return nil, err
	}

	authCfg, err := authapi.LoadConfigFromEnv()
	if err != nil {
		return nil, err
	}

	be, err := openStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	sessions, err := session.NewService(sessCfg, be.store, ids, minter, hasher, clk, log)
	if err != nil {
		be.Close()
		return nil, err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	auth, err := authapi.NewHandler(log, sessions, authCfg,
		authapi.WithEmailSender(authapi.LogEmailSender{Log: log}),
		authapi.WithRegisterer(registry),
	)
	if err != nil {
		be.Close()
		return nil, err
	}

	mux := http.NewServeMux()
	registerHTTP(mux, log, cfg, be, registry, auth)

	var h http.Handler = mux
	if cfg.MetricsEnabled {
		h = newHTTPMetrics(registry).wrap(h)
	}
	h = WithCORS(h, cfg, log)
	h = WithSecurityHeaders(h)
	h = WithRequestLogging(h, log)
	h = WithRequestID(h)

	log.Info("app.ready",
		"store", be.kind,
		"refresh_digest_hmac", digester.HMACEnabled(),
		"access_ttl", minter.AccessTTL().String(),
		"refresh_ttl", minter.RefreshTTL().String(),
		"ephemeral_ttl", tokens.TTL().String(),
	)

	return &App{
		cfg:      cfg,
		log:      log,
		backend:  be,
		registry: registry,
		handler:  h,
	}, nil
}

// Handler returns the full middleware chain around the route mux.
func (a *App) Handler() http.Handler { return a.handler }

// Close releases the store connection.
func (a *App) Close() { a.backend.Close() }

// Run serves HTTP until ctx is cancelled or the listener fails, then shuts
// down gracefully and closes the store.
func (a *App) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              a.cfg.HTTPAddr,
		Handler:           a.handler,
		ReadHeaderTimeout: nonZeroDuration(a.cfg.ReadHeaderTimeout, 5*time.Second),
		ReadTimeout:       nonZeroDuration(a.cfg.ReadTimeout, 15*time.Second),
		WriteTimeout:      nonZeroDuration(a.cfg.WriteTimeout, 15*time.Second),
		IdleTimeout:       nonZeroDuration(a.cfg.IdleTimeout, 60*time.Second),
		MaxHeaderBytes:    nonZeroInt(a.cfg.MaxHeaderBytes, 1<<20),
	}
	defer a.Close()

	a.log.Info("server.start", "addr", a.cfg.HTTPAddr, "store", a.backend.kind)

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		a.log.Info("server.stop", "reason", "context_done")
	case err := <-errCh:
		a.log.Error("server.fail", "err", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), nonZeroDuration(a.cfg.ShutdownTimeout, 10*time.Second))
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.log.Error("server.shutdown.fail", "err", err)
		return err
	}

	a.log.Info("server.stopped")
	return nil
}

func nonZeroDuration(v, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return v
}

func nonZeroInt(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
