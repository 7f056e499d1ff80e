package mcp

import (
	"context"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/yetidevworks/yetisearch/internal/core/domain"
)

// defaultLimit is the number of results returned when the caller sets none.
const defaultLimit = 10

// GeoInput is a coordinate with an optional radius.
type GeoInput struct {
	Lat    float64 `json:"lat" jsonschema:"latitude in degrees"`
	Lng    float64 `json:"lng" jsonschema:"longitude in degrees"`
	Radius float64 `json:"radius,omitempty" jsonschema:"search radius, used by the search tool"`
	Units  string  `json:"units,omitempty" jsonschema:"radius units: m, km, mi or ft (default m)"`
}

// SearchInput is the input schema for the search tool.
type SearchInput struct {
	Index     string          `json:"index,omitempty" jsonschema:"index to search"`
	Indices   []string        `json:"indices,omitempty" jsonschema:"several indices to search and merge; overrides index"`
	Query     string          `json:"query" jsonschema:"the search query to find documents"`
	Limit     int             `json:"limit,omitempty" jsonschema:"maximum number of results to return (default 10)"`
	Offset    int             `json:"offset,omitempty" jsonschema:"number of results to skip"`
	Fuzzy     bool            `json:"fuzzy,omitempty" jsonschema:"match term prefixes"`
	Highlight bool            `json:"highlight,omitempty" jsonschema:"return highlighted snippets"`
	Filters   []domain.Filter `json:"filters,omitempty" jsonschema:"field filters such as {field: metadata.category, operator: =, value: news}"`
	Near      *GeoInput       `json:"near,omitempty" jsonschema:"only documents within radius of this point"`
}

// SearchOutput is the output schema for the search tool.
type SearchOutput struct {
	Results []SearchResultOutput `json:"results"`
	Count   int                  `json:"count"`
	Total   int                  `json:"total"`
	Cached  bool                 `json:"cached,omitempty"`
}

// SearchResultOutput represents a single search result.
type SearchResultOutput struct {
	ID         string              `json:"id"`
	Index      string              `json:"index,omitempty"`
	Score      float64             `json:"score"`
	Title      string              `json:"title,omitempty"`
	Content    map[string]any      `json:"content,omitempty"`
	Metadata   map[string]any      `json:"metadata,omitempty"`
	Highlights map[string][]string `json:"highlights,omitempty"`
	Distance   *float64            `json:"distance_meters,omitempty"`
}

// IndexDocumentInput is the input schema for the index_document tool.
type IndexDocumentInput struct {
	Index    string         `json:"index" jsonschema:"index to write into"`
	ID       string         `json:"id,omitempty" jsonschema:"document id; generated when empty"`
	Content  map[string]any `json:"content" jsonschema:"field values keyed by field name"`
	Metadata map[string]any `json:"metadata,omitempty" jsonschema:"stored, unsearchable attributes"`
	Type     string         `json:"type,omitempty" jsonschema:"document type"`
	Language string         `json:"language,omitempty" jsonschema:"analyzer language (default english)"`
	Geo      *GeoInput      `json:"geo,omitempty" jsonschema:"document location"`
}

// IndexDocumentOutput is the output schema for the index_document tool.
type IndexDocumentOutput struct {
	Index   string `json:"index"`
	ID      string `json:"id"`
	Pending int    `json:"pending"`
}

// IndexStatsInput is the input schema for the index_stats tool.
type IndexStatsInput struct {
	Index string `json:"index,omitempty" jsonschema:"index name; empty lists every index"`
}

// IndexStatsOutput is the output schema for the index_stats tool.
type IndexStatsOutput struct {
	Indices []domain.IndexStats `json:"indices"`
}

// registerTools registers all tool handlers with the MCP server.
func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "search",
		Description: "Full-text search over one or more indices, optionally restricted to a radius around a point",
	}, s.handleSearch)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "index_document",
		Description: "Add or replace a document in an index",
	}, s.handleIndexDocument)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "index_stats",
		Description: "Document, chunk, spatial and vocabulary counts of indices",
	}, s.handleIndexStats)
}

// handleSearch handles the search tool invocation.
func (s *Server) handleSearch(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input SearchInput,
) (*mcp.CallToolResult, SearchOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	opts := domain.SearchOptions{
		Query:     input.Query,
		Limit:     limit,
		Offset:    input.Offset,
		Fuzzy:     input.Fuzzy,
		Highlight: input.Highlight,
		Filters:   input.Filters,
	}
	if n := input.Near; n != nil {
		opts.Geo = &domain.GeoFilters{Near: &domain.NearFilter{
			Point:  domain.GeoPoint{Lat: n.Lat, Lng: n.Lng},
			Radius: n.Radius,
			Units:  domain.DistanceUnit(n.Units),
		}}
	}

	var (
		results *domain.SearchResults
		err     error
	)
	switch {
	case len(input.Indices) > 0:
		results, err = s.ports.Search.SearchMultiple(ctx, input.Indices, opts)
	case input.Index != "":
		results, err = s.ports.Search.Search(ctx, input.Index, opts)
	default:
		return nil, SearchOutput{}, fmt.Errorf("index or indices is required: %w", domain.ErrInvalidInput)
	}
	if err != nil {
		return nil, SearchOutput{}, err
	}
	s.log.Debug("search tool", zap.String("query", input.Query), zap.Int("total", results.Total))

	output := SearchOutput{
		Results: make([]SearchResultOutput, len(results.Results)),
		Count:   len(results.Results),
		Total:   results.Total,
		Cached:  results.Cached,
	}
	for i := range results.Results {
		r := &results.Results[i]
		title, _ := r.Document.FieldText("title")
		output.Results[i] = SearchResultOutput{
			ID:         r.ID,
			Index:      r.Index,
			Score:      r.Score,
			Title:      title,
			Content:    r.Document.Content,
			Metadata:   r.Document.Metadata,
			Highlights: r.Highlights,
			Distance:   r.Distance,
		}
	}

	return nil, output, nil
}

// handleIndexDocument handles the index_document tool invocation.
func (s *Server) handleIndexDocument(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input IndexDocumentInput,
) (*mcp.CallToolResult, IndexDocumentOutput, error) {
	if s.ports.Catalog == nil {
		return nil, IndexDocumentOutput{}, ErrMissingCatalog
	}
	if input.Index == "" {
		return nil, IndexDocumentOutput{}, fmt.Errorf("index is required: %w", domain.ErrInvalidInput)
	}

	ix, err := s.ports.Catalog.Indexer(ctx, input.Index)
	if err != nil {
		return nil, IndexDocumentOutput{}, err
	}

	doc := domain.Document{
		ID:       input.ID,
		Content:  input.Content,
		Metadata: input.Metadata,
		Type:     input.Type,
		Language: input.Language,
	}
	if input.Geo != nil {
		doc.Geo = &domain.GeoPoint{Lat: input.Geo.Lat, Lng: input.Geo.Lng}
	}

	// A single-document batch reports the generated id.
	result, err := ix.IndexBatch(ctx, []domain.Document{doc})
	if err != nil {
		return nil, IndexDocumentOutput{}, err
	}
	if len(result.IDs) == 0 {
		return nil, IndexDocumentOutput{}, firstError(result.Errors)
	}

	stats, err := ix.Stats(ctx)
	if err != nil {
		return nil, IndexDocumentOutput{}, err
	}
	return nil, IndexDocumentOutput{Index: input.Index, ID: result.IDs[0], Pending: stats.Pending}, nil
}

// handleIndexStats handles the index_stats tool invocation.
func (s *Server) handleIndexStats(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input IndexStatsInput,
) (*mcp.CallToolResult, IndexStatsOutput, error) {
	if s.ports.Catalog == nil {
		return nil, IndexStatsOutput{}, ErrMissingCatalog
	}

	names := []string{input.Index}
	if input.Index == "" {
		infos, err := s.ports.Catalog.ListIndices(ctx)
		if err != nil {
			return nil, IndexStatsOutput{}, err
		}
		names = names[:0]
		for _, info := range infos {
			names = append(names, info.Name)
		}
	}

	output := IndexStatsOutput{Indices: make([]domain.IndexStats, 0, len(names))}
	for _, name := range names {
		stats, err := s.ports.Catalog.Stats(ctx, name)
		if err != nil {
			return nil, IndexStatsOutput{}, err
		}
		output.Indices = append(output.Indices, *stats)
	}
	return nil, output, nil
}

func firstError(errs map[string]error) error {
	for _, err := range errs {
		return err
	}
	return errors.New("document was not indexed")
}
