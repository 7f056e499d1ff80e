// Package migrations embeds the SQL migrations for the engine's own
// bookkeeping tables. Per-index tables are created on demand by the store.
package migrations

import "embed"

// FS contains all SQL migration files embedded at compile time.
//
//go:embed *.sql
var FS embed.FS
