// Package migrations embeds the identity schema migrations for goose.
package migrations

import "embed"

// Migrations holds the *.sql files applied by identity.Migrate.
//
//go:embed *.sql
var Migrations embed.FS
