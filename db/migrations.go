// Package db holds the Postgres schema of the oracle scanner.
package db

import (
	"embed"
	"io/fs"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Migrations returns the SQL migration files at the root of the FS.
func Migrations() fs.FS {
	sub, err := fs.Sub(embeddedMigrations, "migrations")
	if err != nil {
		panic("failed to create sub-filesystem: " + err.Error())
	}
	return sub
}
