// Package migrations embeds the clinical store schema.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
