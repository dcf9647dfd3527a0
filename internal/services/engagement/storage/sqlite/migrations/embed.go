// Package migrations embeds SQLite schema migrations for engagement storage.
package migrations

import "embed"

// FS contains embedded SQLite migrations for engagement storage.
//
//go:embed *.sql
var FS embed.FS
