// Package domain defines the core entities of the search engine.
//
// This package is part of the hexagonal architecture's innermost layer.
// It has NO external dependencies and defines the fundamental types:
//
//   - Document: A unit stored in an index, optionally geo-located
//   - FieldSet: Per-index field configuration (boost, store, index)
//   - SearchOptions / SearchResults: The query and result contracts
//   - Settings: Engine configuration
//   - Typed errors: ValidationError, SchemaError, StorageError, IndexError, CacheError
//
// # Architectural Position
//
// Domain is at the centre of the hexagon. It may only import
// the Go standard library. All other packages depend on domain,
// never the reverse.
//
// # Import Rules
//
//   - Can Import: Standard library only
//   - Cannot Import: Any internal/ package, any external dependency
package domain
