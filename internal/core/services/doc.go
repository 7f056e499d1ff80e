// Package services implements the driving port interfaces.
// Services hold the indexing and search logic and orchestrate
// calls to driven ports (storage, analyzer, query cache).
package services
