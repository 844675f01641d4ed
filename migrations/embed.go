// Package migrations carries the schema as ordered *.up.sql files compiled
// into every binary that needs it.
package migrations

import "embed"

//go:embed *.up.sql
var FS embed.FS
