// Package migrations embeds the sqlite schema so the binary and the tests migrate the same way.
package migrations

import "embed"

// FS holds the numbered *.sql migration files
//
//go:embed *.sql
var FS embed.FS
