// Package migrations embeds the goose SQL migration files so the binary is
// self-contained and the schema is applied at store open.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
