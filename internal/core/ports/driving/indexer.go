package driving

import (
	"context"

	"github.com/yetidevworks/yetisearch/internal/core/domain"
)

// IndexService writes documents into one index.
type IndexService interface {
	// Index processes and writes (or buffers) a document.
	Index(ctx context.Context, doc domain.Document) error

	// IndexBatch processes documents independently; failures are per document.
	IndexBatch(ctx context.Context, docs []domain.Document) (domain.BatchResult, error)

	// Update replaces an existing document. The id is required.
	Update(ctx context.Context, doc domain.Document) error

	// Delete removes a document and its chunks.
	Delete(ctx context.Context, id string) error

	// Flush writes any buffered documents.
	Flush(ctx context.Context) error

	// Optimize flushes and compacts the index.
	Optimize(ctx context.Context) error

	// Clear drops and recreates the index empty.
	Clear(ctx context.Context) error

	// Rebuild clears, re-indexes docs and optimizes.
	Rebuild(ctx context.Context, docs []domain.Document) (domain.BatchResult, error)

	// Stats returns indexer counters and storage statistics.
	Stats(ctx context.Context) (domain.IndexerStats, error)
}
