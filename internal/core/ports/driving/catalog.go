package driving

import (
	"context"

	"github.com/yetidevworks/yetisearch/internal/core/domain"
)

// IndexCatalog gives access to the registered indices and their indexers.
type IndexCatalog interface {
	// ListIndices returns all registered indices.
	ListIndices(ctx context.Context) ([]domain.IndexInfo, error)

	// Stats summarises an index.
	Stats(ctx context.Context, index string) (*domain.IndexStats, error)

	// Get returns a stored document.
	Get(ctx context.Context, index, id string) (*domain.Document, error)

	// Indexer returns the indexer of an existing index.
	Indexer(ctx context.Context, index string) (IndexService, error)
}
