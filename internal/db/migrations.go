// Package db embeds the Postgres schema migrations.
package db

import "embed"

// MigrationFS holds the SQL files applied by internal/db/migrate.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
