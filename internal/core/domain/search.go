package domain

import "time"

// SearchOptions configures a query against one or more indices.
// JSON names are the canonical parameter names used by the query cache
// signature.
type SearchOptions struct {
	// Query is free text. Empty means "match everything".
	Query string `json:"query,omitempty"`

	// Filters restrict matches by column, metadata or content values.
	Filters []Filter `json:"filters,omitempty"`

	// Limit is the maximum number of results.
	Limit int `json:"limit,omitempty"`

	// Offset is the number of results to skip.
	Offset int `json:"offset,omitempty"`

	// Sort orders results by fields. Ignored when a distance sort is set.
	Sort []SortField `json:"sort,omitempty"`

	// Language is passed to the analyzer for the query text.
	Language string `json:"language,omitempty"`

	// Geo holds near/bounds filters and distance sorting.
	Geo *GeoFilters `json:"geoFilters,omitempty"`

	// FieldWeights overrides the schema boosts for this query.
	FieldWeights map[string]float64 `json:"field_weights,omitempty"`

	// Fields restricts text matching to these fields.
	Fields []string `json:"fields,omitempty"`

	// Fuzzy enables prefix expansion of query terms.
	Fuzzy bool `json:"fuzzy,omitempty"`

	// Fuzziness in [0,1] shortens the kept prefix of fuzzy terms.
	Fuzziness float64 `json:"fuzziness,omitempty"`

	// Boost multiplies the final score of every result.
	Boost float64 `json:"boost,omitempty"`

	// UniqueByRoute collapses results sharing a route or parent.
	UniqueByRoute bool `json:"unique_by_route,omitempty"`

	// FieldWeightCandidateCap overrides the candidate-limit guard.
	FieldWeightCandidateCap int `json:"field_weight_candidate_cap,omitempty"`

	// BypassCache skips the query cache for this request.
	BypassCache bool `json:"bypass_cache,omitempty"`

	// Highlight wraps matched terms of stored text in the highlight tag.
	Highlight bool `json:"highlight,omitempty"`
}

// FilterOperator is a comparison used by Filter.
type FilterOperator string

// Supported filter operators.
const (
	OpEq       FilterOperator = "="
	OpNe       FilterOperator = "!="
	OpGt       FilterOperator = ">"
	OpGte      FilterOperator = ">="
	OpLt       FilterOperator = "<"
	OpLte      FilterOperator = "<="
	OpIn       FilterOperator = "in"
	OpNotIn    FilterOperator = "not_in"
	OpContains FilterOperator = "contains"
	OpExists   FilterOperator = "exists"
)

// IsValid reports whether the operator is recognised.
func (o FilterOperator) IsValid() bool {
	switch o {
	case OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpIn, OpNotIn, OpContains, OpExists:
		return true
	default:
		return false
	}
}

// Filter restricts results. Field is a document column (id, type,
// language, timestamp, indexed_at) or a "metadata." / "content." path.
type Filter struct {
	Field    string         `json:"field"`
	Operator FilterOperator `json:"operator"`
	Value    any            `json:"value,omitempty"`
}

// SortDirection orders results.
type SortDirection string

// Sort directions.
const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// SortField orders results by one field.
type SortField struct {
	Field     string        `json:"field"`
	Direction SortDirection `json:"direction"`
}

// GeoFilters groups spatial predicates and ordering.
type GeoFilters struct {
	Near         *NearFilter   `json:"near,omitempty"`
	Bounds       *GeoBounds    `json:"bounds,omitempty"`
	DistanceSort *DistanceSort `json:"distance_sort,omitempty"`

	// DistanceWeight in [0,1] blends proximity into the score.
	// Zero keeps geo as a filter and sort only.
	DistanceWeight float64 `json:"distance_weight,omitempty"`

	// DecayK is the per-meter decay constant of the proximity score.
	DecayK float64 `json:"decay_k,omitempty"`
}

// NearFilter keeps documents within Radius of Point.
type NearFilter struct {
	Point  GeoPoint     `json:"point"`
	Radius float64      `json:"radius"`
	Units  DistanceUnit `json:"units,omitempty"`
}

// DistanceSort orders results by distance from a point.
type DistanceSort struct {
	From      GeoPoint      `json:"from"`
	Direction SortDirection `json:"direction,omitempty"`
}

// SearchResult is a single hit.
type SearchResult struct {
	ID         string              `json:"id"`
	Score      float64             `json:"score"`
	Document   Document            `json:"document"`
	Highlights map[string][]string `json:"highlights,omitempty"`
	Metadata   map[string]any      `json:"metadata,omitempty"`

	// Distance in meters, present only when a geo filter or sort applied.
	Distance *float64 `json:"distance,omitempty"`

	// Index names the source index in multi-index searches.
	Index string `json:"index,omitempty"`
}

// SearchResults is a ranked, paginated result set.
type SearchResults struct {
	Results    []SearchResult `json:"results"`
	Total      int            `json:"total"`
	SearchTime time.Duration  `json:"search_time"`
	Plan       QueryPlan      `json:"plan"`
	Cached     bool           `json:"cached,omitempty"`
}

// QueryPlan records how the storage engine executed a search.
type QueryPlan struct {
	Strategy Strategy `json:"strategy,omitempty"`

	// CandidateLimit is the row cap applied before application-layer
	// ranking, zero when ranking ran entirely in SQL.
	CandidateLimit int `json:"candidate_limit,omitempty"`

	// AppRanked is true when final ordering was computed in Go.
	AppRanked bool `json:"app_ranked,omitempty"`

	// Boxes is the number of spatial boxes used to pre-filter.
	Boxes int `json:"boxes,omitempty"`

	// MatchExpression is the full-text expression sent to the engine.
	MatchExpression string `json:"match,omitempty"`
}

// Strategy is the full-text schema layout of an index.
type Strategy string

// Index schema strategies.
const (
	// StrategyEmbedded stores field text inside the full-text table.
	StrategyEmbedded Strategy = "embedded"

	// StrategyExternal keeps text in the document table only; the
	// full-text table references it by doc_id.
	StrategyExternal Strategy = "external"
)

// IndexOptions configures index creation.
type IndexOptions struct {
	Fields FieldSet `json:"fields"`

	// Strategy defaults to StrategyExternal.
	Strategy Strategy `json:"strategy,omitempty"`

	// MultiColumn creates one full-text column per indexed field and
	// ranks with per-column weights. Otherwise a single boosted column is used.
	MultiColumn bool `json:"multi_column"`

	// Spatial creates the spatial table up front.
	Spatial bool `json:"spatial"`
}

// IndexInfo describes a registered index.
type IndexInfo struct {
	Name        string    `json:"name"`
	Fields      FieldSet  `json:"fields"`
	Strategy    Strategy  `json:"strategy"`
	MultiColumn bool      `json:"multi_column"`
	Spatial     bool      `json:"spatial"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// IndexStats summarises an index.
type IndexStats struct {
	IndexInfo
	Documents      int   `json:"documents"`
	Chunks         int   `json:"chunks"`
	SpatialEntries int   `json:"spatial_entries"`
	Terms          int   `json:"terms"`
	DatabaseBytes  int64 `json:"database_bytes"`
}

// TermStat is a vocabulary entry.
type TermStat struct {
	Index     string `json:"index"`
	Term      string `json:"term"`
	Documents int    `json:"documents"`
	Count     int    `json:"count"`
}

// BatchResult reports the outcome of a batch indexing call.
type BatchResult struct {
	Indexed int `json:"indexed"`
	Failed  int `json:"failed"`

	// IDs lists the accepted documents in input order, including
	// generated ids.
	IDs []string `json:"ids,omitempty"`

	// Errors maps a document id, or "#<position>" when it had none, to its failure.
	Errors map[string]error `json:"-"`
}

// IndexerStats summarises an indexer's activity.
type IndexerStats struct {
	Index     string      `json:"index"`
	Indexed   int64       `json:"indexed"`
	Failed    int64       `json:"failed"`
	Chunks    int64       `json:"chunks"`
	Pending   int         `json:"pending"`
	Flushes   int64       `json:"flushes"`
	Storage   *IndexStats `json:"storage,omitempty"`
	LastFlush time.Time   `json:"last_flush,omitempty"`
}

// CacheStats summarises query cache activity.
type CacheStats struct {
	Enabled    bool    `json:"enabled"`
	Hits       int64   `json:"hits"`
	Misses     int64   `json:"misses"`
	Writes     int64   `json:"writes"`
	Evictions  int64   `json:"evictions"`
	Errors     int64   `json:"errors"`
	HitRate    float64 `json:"hit_rate"`
	Entries    int     `json:"entries"`
	AvgHits    float64 `json:"avg_hits"`
	AvgAgeSecs float64 `json:"avg_age_seconds"`
}
