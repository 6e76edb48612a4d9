// Package migrations holds the schema as timestamped goose SQL files,
// embedded so the binary migrates itself on startup.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
