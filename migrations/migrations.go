// Package migrations embeds the PostgreSQL schema applied by cmd/migrate.
// Files are named NNN_description.sql and applied in version order.
package migrations

import "embed"

// FS holds every *.sql migration.
//
//go:embed *.sql
var FS embed.FS
