package identity

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"basecampy/cmd/identity/migrations"
)

// goose keeps its base FS and dialect in package state.
var migrateMu sync.Mutex

// Migrate creates schema if needed and applies the embedded migrations into it.
// The pool is not closed.
func Migrate(ctx context.Context, pool *pgxpool.Pool, schema string) error {
	schema = strings.TrimSpace(schema)
	if !pgIdentIsValid(schema) {
		return fmt.Errorf("identity: invalid schema identifier")
	}

	if _, err := pool.Exec(ctx, `CREATE SCHEMA IF NOT EXISTS `+pgx.Identifier{schema}.Sanitize()); err != nil {
		return fmt.Errorf("identity: create schema: %w", err)
	}

	// Dedicated pool so every goose connection resolves unqualified names in schema.
	cfg := pool.Config()
	cfg.MaxConns = 2
	cfg.MinConns = 0
	cfg.ConnConfig.RuntimeParams["search_path"] = schema

	scoped, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return fmt.Errorf("identity: migration pool: %w", err)
	}
	defer scoped.Close()

	db := stdlib.OpenDBFromPool(scoped)
	defer func() { _ = db.Close() }()

	migrateMu.Lock()
	defer migrateMu.Unlock()

	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("identity: goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("identity: migrate: %w", err)
	}
	return nil
}
