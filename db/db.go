// Package db embeds the goose migrations applied at startup.
package db

import "embed"

// Migrations holds the SQL migration files under migrations/.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory inside Migrations that goose reads.
const MigrationsDir = "migrations"
