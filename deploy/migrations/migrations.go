package migrations

import "embed"

// Files holds the SQL migrations applied to the invocation ledger.
//
//go:embed *.sql
var Files embed.FS
