package driving

import (
	"context"

	"github.com/yetidevworks/yetisearch/internal/core/domain"
)

// SearchService provides search capabilities to external actors.
type SearchService interface {
	// Search queries one index, consulting the query cache first.
	Search(ctx context.Context, index string, opts domain.SearchOptions) (*domain.SearchResults, error)

	// SearchMultiple queries several indices and merges the results.
	SearchMultiple(ctx context.Context, indices []string, opts domain.SearchOptions) (*domain.SearchResults, error)

	// Count returns the number of matches.
	Count(ctx context.Context, index string, opts domain.SearchOptions) (int, error)
}
