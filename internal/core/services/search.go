package services

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/yetidevworks/yetisearch/internal/core/domain"
	"github.com/yetidevworks/yetisearch/internal/core/ports/driven"
	"github.com/yetidevworks/yetisearch/internal/core/ports/driving"
	"github.com/yetidevworks/yetisearch/internal/logger"
)

// Ensure SearchService implements the interface.
var _ driving.SearchService = (*SearchService)(nil)

// SearchService answers queries from the query cache when it can and from
// storage otherwise. Query text runs through the same analyzer as indexed
// text before reaching storage.
type SearchService struct {
	storage  driven.Storage
	analyzer driven.Analyzer
	cache    driven.QueryCache
	defaults domain.SearchSettings
	log      *zap.Logger
}

// NewSearchService creates a new search service.
// The analyzer and cache parameters are optional (can be nil).
func NewSearchService(
	storage driven.Storage,
	analyzer driven.Analyzer,
	cache driven.QueryCache,
	defaults domain.SearchSettings,
) *SearchService {
	return &SearchService{
		storage:  storage,
		analyzer: analyzer,
		cache:    cache,
		defaults: defaults,
		log:      logger.Named("search"),
	}
}

// Search queries one index, consulting the query cache first.
func (s *SearchService) Search(ctx context.Context, index string, opts domain.SearchOptions) (*domain.SearchResults, error) {
	opts = s.withDefaults(opts)

	if s.cache != nil {
		if cached := s.cache.Get(ctx, index, opts); cached != nil {
			s.log.Debug("cache hit", zap.String("index", index), zap.String("query", opts.Query))
			return cached, nil
		}
	}

	results, err := s.storage.Search(ctx, index, s.analyzed(opts))
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		s.cache.Set(ctx, index, opts, results, 0)
	}
	return results, nil
}

// SearchMultiple queries several indices and merges the results. Merged
// results are not cached because invalidation is per index.
func (s *SearchService) SearchMultiple(ctx context.Context, indices []string, opts domain.SearchOptions) (*domain.SearchResults, error) {
	return s.storage.SearchMultiple(ctx, indices, s.analyzed(s.withDefaults(opts)))
}

// Count returns the number of matches.
func (s *SearchService) Count(ctx context.Context, index string, opts domain.SearchOptions) (int, error) {
	return s.storage.Count(ctx, index, s.analyzed(s.withDefaults(opts)))
}

// withDefaults fills options the caller left unset from the configured
// search settings.
func (s *SearchService) withDefaults(opts domain.SearchOptions) domain.SearchOptions {
	if opts.Limit <= 0 {
		opts.Limit = s.defaults.DefaultLimit
		if opts.Limit <= 0 {
			opts.Limit = domain.DefaultSearchLimit
		}
	}
	if s.defaults.Fuzzy {
		opts.Fuzzy = true
	}
	if g := opts.Geo; g != nil {
		geo := *g
		if geo.DistanceWeight == 0 {
			geo.DistanceWeight = s.defaults.DistanceWeight
		}
		if geo.DecayK == 0 {
			geo.DecayK = s.defaults.DecayK
		}
		opts.Geo = &geo
	}
	return opts
}

// analyzed replaces the query with its analyzed terms. A query that
// analyzes to nothing, such as one made only of stop words, is kept as typed.
func (s *SearchService) analyzed(opts domain.SearchOptions) domain.SearchOptions {
	if s.analyzer == nil || strings.TrimSpace(opts.Query) == "" {
		return opts
	}
	if terms := s.analyzer.Analyze(opts.Query, opts.Language); len(terms) > 0 {
		opts.Query = strings.Join(terms, " ")
	}
	return opts
}
