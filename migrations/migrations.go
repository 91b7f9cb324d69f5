package migrations

import "embed"

// FS holds the versioned schema files, applied in file name order.
//
//go:embed *.sql
var FS embed.FS
