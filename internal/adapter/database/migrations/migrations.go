package migrations

import "embed"

// FS holds one directory of golang-migrate files per SQL dialect.
//
//go:embed sqlite/*.sql postgres/*.sql
var FS embed.FS
