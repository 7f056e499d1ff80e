// Package yetisearch is an embeddable full-text and geospatial search
// engine on SQLite FTS5 and R-tree tables.
//
// An Engine owns one database file holding any number of named indices,
// plus a persistent query cache. Documents are written through an
// indexer per index and read back through Search.
package yetisearch

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/yetidevworks/yetisearch/internal/adapters/driven/analyzer/standard"
	"github.com/yetidevworks/yetisearch/internal/adapters/driven/storage/sqlite"
	"github.com/yetidevworks/yetisearch/internal/core/domain"
	"github.com/yetidevworks/yetisearch/internal/core/ports/driven"
	"github.com/yetidevworks/yetisearch/internal/core/ports/driving"
	"github.com/yetidevworks/yetisearch/internal/core/services"
	"github.com/yetidevworks/yetisearch/internal/logger"
)

// Ensure Engine implements the interfaces.
var (
	_ driving.SearchService = (*Engine)(nil)
	_ driving.IndexCatalog  = (*Engine)(nil)
)

// Engine wires storage, analyzer, query cache and services together.
// It is safe for concurrent use.
type Engine struct {
	settings domain.Settings
	store    *sqlite.Store
	cache    *sqlite.QueryCache
	analyzer *standard.Analyzer
	search   *services.SearchService
	log      *zap.Logger

	mu       sync.Mutex
	indexers map[string]*services.Indexer
}

// Open opens the database named by settings.Storage.Path and prepares the
// query cache.
func Open(ctx context.Context, settings domain.Settings) (*Engine, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}

	log := logger.Named("engine")
	store, err := sqlite.NewStore(settings.Storage.Path,
		sqlite.WithLogger(logger.Named("storage")),
		sqlite.WithBusyTimeout(settings.Storage.BusyTimeoutMS),
		sqlite.WithHighlightTag(settings.Search.HighlightTag),
		sqlite.WithDecayK(settings.Search.DecayK),
	)
	if err != nil {
		return nil, err
	}

	cache, err := store.QueryCache(ctx,
		sqlite.WithCacheEnabled(settings.Cache.Enabled),
		sqlite.WithCacheTable(settings.Cache.TableName),
		sqlite.WithCacheTTL(settings.Cache.TTL()),
		sqlite.WithCacheMaxSize(settings.Cache.MaxSize),
	)
	if err != nil {
		store.Close()
		return nil, err
	}

	analyzer := standard.New()
	e := &Engine{
		settings: settings,
		store:    store,
		cache:    cache,
		analyzer: analyzer,
		search:   services.NewSearchService(store, analyzer, cache, settings.Search),
		log:      log,
		indexers: make(map[string]*services.Indexer),
	}
	log.Debug("engine opened", zap.String("path", store.Path()))
	return e, nil
}

// Close flushes every indexer and closes the database.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var errs []error
	for name, ix := range e.indexers {
		if err := ix.Flush(context.Background()); err != nil {
			errs = append(errs, fmt.Errorf("flushing %s: %w", name, err))
		}
	}
	e.indexers = map[string]*services.Indexer{}
	errs = append(errs, e.store.Close())
	return errors.Join(errs...)
}

// Settings returns the settings the engine was opened with.
func (e *Engine) Settings() domain.Settings {
	return e.settings
}

// Path returns the database file path.
func (e *Engine) Path() string {
	return e.store.Path()
}

// CreateIndex creates an index. Empty fields and strategy are taken from
// the engine settings.
func (e *Engine) CreateIndex(ctx context.Context, name string, opts domain.IndexOptions) error {
	if len(opts.Fields) == 0 {
		opts.Fields = e.settings.Indexer.Fields
	}
	if opts.Strategy == "" {
		opts.Strategy = e.settings.Strategy()
	}
	if err := e.store.CreateIndex(ctx, name, opts); err != nil {
		return err
	}
	e.log.Info("index created", zap.String("index", name), zap.String("strategy", string(opts.Strategy)))
	return nil
}

// DropIndex removes an index and its cached results. Documents still
// buffered in its indexer are discarded with a warning.
func (e *Engine) DropIndex(ctx context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.store.DropIndex(ctx, name); err != nil {
		return err
	}
	if ix, ok := e.indexers[name]; ok {
		if n := ix.Discard(); n > 0 {
			e.log.Warn("discarding buffered documents of dropped index",
				zap.String("index", name), zap.Int("pending", n))
		}
		delete(e.indexers, name)
	}
	e.cache.Invalidate(ctx, name)
	e.log.Info("index dropped", zap.String("index", name))
	return nil
}

// ListIndices returns all registered indices.
func (e *Engine) ListIndices(ctx context.Context) ([]domain.IndexInfo, error) {
	return e.store.ListIndices(ctx)
}

// Indexer returns the indexer of an existing index, configured with the
// index's registered fields.
func (e *Engine) Indexer(ctx context.Context, name string) (driving.IndexService, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if ix, ok := e.indexers[name]; ok {
		return ix, nil
	}

	infos, err := e.store.ListIndices(ctx)
	if err != nil {
		return nil, err
	}
	for _, info := range infos {
		if info.Name != name {
			continue
		}
		cfg := e.settings.Indexer
		cfg.Fields = info.Fields
		ix := services.NewIndexer(name, e.store, e.analyzer, cfg,
			services.WithIndexerCache(e.cache),
			services.WithIndexOptions(domain.IndexOptions{
				Fields:      info.Fields,
				Strategy:    info.Strategy,
				MultiColumn: info.MultiColumn,
				Spatial:     info.Spatial,
			}),
		)
		e.indexers[name] = ix
		return ix, nil
	}
	return nil, domain.NewStorageError("indexer", name, domain.ErrIndexNotFound)
}

// Search queries one index.
func (e *Engine) Search(ctx context.Context, index string, opts domain.SearchOptions) (*domain.SearchResults, error) {
	return e.search.Search(ctx, index, opts)
}

// SearchMultiple queries several indices and merges the results by score.
func (e *Engine) SearchMultiple(ctx context.Context, indices []string, opts domain.SearchOptions) (*domain.SearchResults, error) {
	return e.search.SearchMultiple(ctx, indices, opts)
}

// Count returns the number of matches in one index.
func (e *Engine) Count(ctx context.Context, index string, opts domain.SearchOptions) (int, error) {
	return e.search.Count(ctx, index, opts)
}

// Get returns a stored document.
func (e *Engine) Get(ctx context.Context, index, id string) (*domain.Document, error) {
	return e.store.Get(ctx, index, id)
}

// Stats summarises an index.
func (e *Engine) Stats(ctx context.Context, index string) (*domain.IndexStats, error) {
	return e.store.GetIndexStats(ctx, index)
}

// Terms lists vocabulary terms seen at least minFrequency times. An empty
// index covers every index.
func (e *Engine) Terms(ctx context.Context, index string, minFrequency, limit int) ([]domain.TermStat, error) {
	return e.store.GetIndexedTerms(ctx, index, minFrequency, limit)
}

// Optimize flushes pending documents of the index and compacts it.
func (e *Engine) Optimize(ctx context.Context, index string) error {
	ix, err := e.Indexer(ctx, index)
	if err != nil {
		return err
	}
	return ix.Optimize(ctx)
}

// MigrateToExternalContent converts an embedded-content index in place.
// The spatial table comes back empty; geo documents must be re-indexed.
func (e *Engine) MigrateToExternalContent(ctx context.Context, index string) error {
	if err := e.flush(ctx, index); err != nil {
		return err
	}
	if err := e.store.MigrateToExternalContent(ctx, index); err != nil {
		return err
	}

	e.mu.Lock()
	delete(e.indexers, index)
	e.mu.Unlock()
	e.cache.Invalidate(ctx, index)
	e.log.Info("index migrated", zap.String("index", index))
	return nil
}

// EnsureSpatialTableExists adds the spatial table to an index created
// without one.
func (e *Engine) EnsureSpatialTableExists(ctx context.Context, index string) error {
	return e.store.EnsureSpatialTableExists(ctx, index)
}

// Cache returns the query cache.
func (e *Engine) Cache() driven.QueryCache {
	return e.cache
}

// Analyzer returns the text analyzer shared by indexing and search.
func (e *Engine) Analyzer() driven.Analyzer {
	return e.analyzer
}

func (e *Engine) flush(ctx context.Context, index string) error {
	e.mu.Lock()
	ix, ok := e.indexers[index]
	e.mu.Unlock()
	if !ok {
		return nil
	}
	return ix.Flush(ctx)
}
