package driven

import (
	"context"

	"github.com/yetidevworks/yetisearch/internal/core/domain"
)

// Storage owns the per-index schema: a document table, a full-text index
// and an optional spatial index. Backed by SQLite FTS5 and R-tree.
type Storage interface {
	// CreateIndex creates the tables for a new index.
	CreateIndex(ctx context.Context, name string, opts domain.IndexOptions) error

	// DropIndex removes every table of the index. A missing index is a no-op.
	DropIndex(ctx context.Context, name string) error

	// IndexExists reports whether the index tables are present.
	IndexExists(ctx context.Context, name string) (bool, error)

	// Insert upserts a document keyed by ID.
	Insert(ctx context.Context, name string, doc *domain.Document) error

	// InsertBatch upserts documents in one transaction.
	InsertBatch(ctx context.Context, name string, docs []*domain.Document) error

	// Update fully replaces the stored document with the given id.
	Update(ctx context.Context, name, id string, doc *domain.Document) error

	// Delete removes a document, its chunk documents and their index entries.
	Delete(ctx context.Context, name, id string) error

	// DeleteChunks removes the chunk documents of parentID.
	DeleteChunks(ctx context.Context, name, parentID string) (int, error)

	// Get returns a stored document.
	Get(ctx context.Context, name, id string) (*domain.Document, error)

	// Search runs a ranked, filtered query.
	Search(ctx context.Context, name string, opts domain.SearchOptions) (*domain.SearchResults, error)

	// Count returns the filtered match count without ranking.
	Count(ctx context.Context, name string, opts domain.SearchOptions) (int, error)

	// SearchMultiple searches several indices and merges by score.
	SearchMultiple(ctx context.Context, names []string, opts domain.SearchOptions) (*domain.SearchResults, error)

	// Optimize compacts the full-text index.
	Optimize(ctx context.Context, name string) error

	// MigrateToExternalContent converts an embedded-content index in place.
	MigrateToExternalContent(ctx context.Context, name string) error

	// EnsureSpatialTableExists creates the spatial table if missing.
	EnsureSpatialTableExists(ctx context.Context, name string) error

	// GetIndexStats summarises an index.
	GetIndexStats(ctx context.Context, name string) (*domain.IndexStats, error)

	// ListIndices returns all registered indices.
	ListIndices(ctx context.Context) ([]domain.IndexInfo, error)

	// GetIndexedTerms lists vocabulary terms. An empty name covers every index.
	GetIndexedTerms(ctx context.Context, name string, minFrequency, limit int) ([]domain.TermStat, error)

	// Close releases resources.
	Close() error
}
