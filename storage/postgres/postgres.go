// Package postgres holds the pgx-backed implementations of the storage
// interfaces the authentication core defines. Schema changes live in
// migrations/ and are applied with pg.Migrate.
package postgres

import "embed"

//go:embed migrations/*.sql
var Migrations embed.FS
