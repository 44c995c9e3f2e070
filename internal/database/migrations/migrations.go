// Package migrations embute os arquivos SQL aplicados por cmd/migrate.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
