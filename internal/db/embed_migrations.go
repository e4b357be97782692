package db

import "embed"

// MigrationFS holds the users and sessions schema, applied by internal/db/migrate.
//
//go:embed migrations/*.sql
var MigrationFS embed.FS
