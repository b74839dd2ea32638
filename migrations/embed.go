// Package migrations embeds the switch status schema into the binary.
//
// Pass FS to database.DB.Migrate; files are at the root of the embedded FS.
package migrations

import "embed"

// FS holds every *.up.sql migration in this directory.
//
//go:embed *.sql
var FS embed.FS
