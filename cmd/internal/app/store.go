package app

import (
	"context"
	"fmt"
	"time"

	"basecampy/cmd/identity"
)

const (
	backendPostgres = "postgres"
	backendRedis    = "redis"
	backendMemory   = "memory"
)

// backend owns the identity store and whatever connection sits behind it.
type backend struct {
	kind  string
	store identity.Store
	ping  func(ctx context.Context) error
	close func()
}

// Close releases the underlying connection. Safe on a nil backend.
func (b *backend) Close() {
	if b != nil && b.close != nil {
		b.close()
	}
}

// Ready reports whether the store can serve requests right now.
func (b *backend) Ready(ctx context.Context) error {
	if b == nil || b.ping == nil {
		return nil
	}
	return b.ping(ctx)
}

// openStore selects the identity store: Postgres when a database URL is set,
// Redis when a Redis URL is set, process memory otherwise.
func openStore(ctx context.Context, cfg Config, log Logger) (*backend, error) {
	switch {
	case cfg.DatabaseURL != "":
		return openPostgres(ctx, cfg, log)
	case cfg.RedisURL != "":
		return openRedis(ctx, cfg, log)
	default:
		log.Warn("store.memory", "hint", "records are lost on restart; set BASECAMPY_DATABASE_URL or BASECAMPY_REDIS_URL")
		return &backend{kind: backendMemory, store: identity.NewMemoryStore()}, nil
	}
}

func openPostgres(ctx context.Context, cfg Config, log Logger) (*backend, error) {
	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return nil, err
	}

	if cfg.DBAutoMigrate {
		if err := identity.Migrate(ctx, pool, cfg.DBSchema); err != nil {
			pool.Close()
			return nil, err
		}
		log.Info("store.postgres.migrated", "schema", cfg.DBSchema)
	}

	st, err := identity.NewPostgresStore(pool, identity.WithSchema(cfg.DBSchema))
	if err != nil {
		pool.Close()
		return nil, err
	}

	log.Info("store.postgres", "schema", st.Schema())
	return &backend{
		kind:  backendPostgres,
		store: st,
		ping: func(ctx context.Context) error {
			return PingDB(ctx, pool, 2*time.Second)
		},
		close: pool.Close,
	}, nil
}

func openRedis(ctx context.Context, cfg Config, log Logger) (*backend, error) {
	rcfg := identity.DefaultRedisConfig()
	rcfg.URL = cfg.RedisURL
	rcfg.KeyPrefix = cfg.RedisKeyPrefix

	st, err := identity.NewRedisStore(ctx, rcfg)
	if err != nil {
		return nil, err
	}

	log.Info("store.redis", "prefix", rcfg.KeyPrefix)
	return &backend{
		kind:  backendRedis,
		store: st,
		ping: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
			defer cancel()
			return st.Ping(ctx)
		},
		close: func() { _ = st.Close() },
	}, nil
}

// Migrate applies the identity schema migrations against cfg.DatabaseURL.
func Migrate(ctx context.Context, cfg Config) error {
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("app: migrate: BASECAMPY_DATABASE_URL is not set")
	}
	pool, err := NewDBPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()
	return identity.Migrate(ctx, pool, cfg.DBSchema)
}
