package driven

import (
	"context"

	"github.com/yetidevworks/yetisearch/internal/core/domain"
)

// QueryCache stores serialized result sets keyed by a normalized query
// signature. Implementations never return persistence errors from reads
// or writes; failures degrade to a miss or a no-op.
type QueryCache interface {
	// Get returns a cached result set or nil.
	Get(ctx context.Context, index string, opts domain.SearchOptions) *domain.SearchResults

	// Set stores a result set. A zero ttl uses the configured default.
	Set(ctx context.Context, index string, opts domain.SearchOptions, results *domain.SearchResults, ttlSeconds int)

	// Invalidate removes all entries of an index and returns the count removed.
	Invalidate(ctx context.Context, index string) int

	// InvalidateByQuery removes entries whose signature hash contains pattern.
	InvalidateByQuery(ctx context.Context, index, pattern string) int

	// Clear removes every entry.
	Clear(ctx context.Context) int

	// Stats returns counters and table aggregates.
	Stats(ctx context.Context) domain.CacheStats
}
