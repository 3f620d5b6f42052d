// Package migrations embeds the SQL schema applied by pkg/postgres.Migrate.
package migrations

import "embed"

//go:embed *.sql
var FS embed.FS
