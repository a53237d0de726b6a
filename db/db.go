// Package db embeds the SQL schema migrations and seed files shipped with
// the service.
package db

import "embed"

//go:embed migrations/*.sql seeds/*.sql
var Files embed.FS

const (
	MigrationsDir = "migrations"
	SeedsDir      = "seeds"
)
