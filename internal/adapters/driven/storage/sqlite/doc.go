// Package sqlite implements the search storage engine and the persistent
// query cache on SQLite, using modernc.org/sqlite (pure Go, no CGO) with
// its FTS5, fts5vocab, R-tree and JSON1 extensions.
//
// # Schema
//
// Every index owns a document table named after it, a full-text table
// {name}_fts, a vocabulary table {name}_fts_vocab and, when spatial, an
// R-tree {name}_spatial(id, minX, maxX, minY, maxY) where X is longitude
// and Y latitude. Two strategies exist:
//
//   - external: the document table has doc_id INTEGER PRIMARY KEY and
//     id TEXT UNIQUE, carries the full-text columns itself, and the FTS5
//     table is declared with content='{name}' and content_rowid='doc_id'.
//   - embedded: the document table is keyed by id and the FTS5 table stores
//     its own copy of the text next to an UNINDEXED id column.
//
// Index configuration lives in the _indices registry, created by the
// versioned migrations in migrations/. Index names are validated against
// ^[A-Za-z_][A-Za-z0-9_]{0,63}$ before being used as identifiers; every
// value is bound as a parameter.
//
// # Data Location
//
// By default, the database is stored at ~/.yetisearch/yetisearch.db.
//
// # Thread Safety
//
// All operations are safe for concurrent use. Writes run in transactions
// that are retried on lock contention; SQLite in WAL mode serialises them.
package sqlite
