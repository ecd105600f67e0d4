package migrations

import "embed"

// FS contains embedded SQLite migrations for association storage.
//
//go:embed *.sql
var FS embed.FS
