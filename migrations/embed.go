// Package migrations embeds the SQLite schema migration files so the
// binary can apply them without shipping loose SQL files.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
