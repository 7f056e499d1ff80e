// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - Storage: Per-index document, full-text and spatial persistence (SQLite)
//
// # Optional Interfaces
//
// These can be nil - the application degrades gracefully:
//
//   - Analyzer: Tokenisation and stemming. Without it raw text is indexed.
//   - QueryCache: Persistent result cache. Without it every query hits storage.
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven
