package mcp

import (
	"context"

	"github.com/yetidevworks/yetisearch/internal/core/domain"
	"github.com/yetidevworks/yetisearch/internal/core/ports/driving"
)

// mockSearchService is a mock implementation of driving.SearchService.
type mockSearchService struct {
	results *domain.SearchResults
	err     error

	lastIndex   string
	lastIndices []string
	lastOpts    domain.SearchOptions
}

func (m *mockSearchService) Search(
	_ context.Context,
	index string,
	opts domain.SearchOptions,
) (*domain.SearchResults, error) {
	m.lastIndex, m.lastOpts = index, opts
	return m.result(), m.err
}

func (m *mockSearchService) SearchMultiple(
	_ context.Context,
	indices []string,
	opts domain.SearchOptions,
) (*domain.SearchResults, error) {
	m.lastIndices, m.lastOpts = indices, opts
	return m.result(), m.err
}

func (m *mockSearchService) Count(_ context.Context, _ string, _ domain.SearchOptions) (int, error) {
	return len(m.result().Results), m.err
}

func (m *mockSearchService) result() *domain.SearchResults {
	if m.results == nil {
		return &domain.SearchResults{}
	}
	return m.results
}

// mockIndexService is a mock implementation of driving.IndexService.
type mockIndexService struct {
	docs    []domain.Document
	result  domain.BatchResult
	err     error
	pending int
}

func (m *mockIndexService) Index(_ context.Context, doc domain.Document) error {
	m.docs = append(m.docs, doc)
	return m.err
}

func (m *mockIndexService) IndexBatch(_ context.Context, docs []domain.Document) (domain.BatchResult, error) {
	m.docs = append(m.docs, docs...)
	return m.result, m.err
}

func (m *mockIndexService) Update(_ context.Context, _ domain.Document) error { return m.err }
func (m *mockIndexService) Delete(_ context.Context, _ string) error          { return m.err }
func (m *mockIndexService) Flush(_ context.Context) error                     { return m.err }
func (m *mockIndexService) Optimize(_ context.Context) error                  { return m.err }
func (m *mockIndexService) Clear(_ context.Context) error                     { return m.err }

func (m *mockIndexService) Rebuild(_ context.Context, _ []domain.Document) (domain.BatchResult, error) {
	return m.result, m.err
}

func (m *mockIndexService) Stats(_ context.Context) (domain.IndexerStats, error) {
	return domain.IndexerStats{Pending: m.pending}, nil
}

// mockCatalog is a mock implementation of driving.IndexCatalog.
type mockCatalog struct {
	indices []domain.IndexInfo
	stats   map[string]*domain.IndexStats
	docs    map[string]*domain.Document
	indexer *mockIndexService
	err     error
}

func (m *mockCatalog) ListIndices(_ context.Context) ([]domain.IndexInfo, error) {
	return m.indices, m.err
}

func (m *mockCatalog) Stats(_ context.Context, index string) (*domain.IndexStats, error) {
	if m.err != nil {
		return nil, m.err
	}
	st, ok := m.stats[index]
	if !ok {
		return nil, domain.NewStorageError("stats", index, domain.ErrIndexNotFound)
	}
	return st, nil
}

func (m *mockCatalog) Get(_ context.Context, index, id string) (*domain.Document, error) {
	if m.err != nil {
		return nil, m.err
	}
	doc, ok := m.docs[index+"/"+id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return doc, nil
}

func (m *mockCatalog) Indexer(_ context.Context, index string) (driving.IndexService, error) {
	if m.err != nil {
		return nil, m.err
	}
	if m.indexer == nil {
		return nil, domain.NewStorageError("indexer", index, domain.ErrIndexNotFound)
	}
	return m.indexer, nil
}
