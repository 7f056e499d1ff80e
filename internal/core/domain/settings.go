package domain

import (
	"fmt"
	"time"
)

// Settings is the engine configuration, persisted as TOML.
type Settings struct {
	Storage StorageSettings `toml:"storage"`
	Indexer IndexerSettings `toml:"indexer"`
	Cache   CacheSettings   `toml:"cache"`
	Search  SearchSettings  `toml:"search"`
}

// StorageSettings configures the SQLite database.
type StorageSettings struct {
	// Path is the database file. Empty uses ~/.yetisearch/yetisearch.db.
	Path string `toml:"path"`

	// ExternalContent selects StrategyExternal for new indices.
	ExternalContent bool `toml:"external_content"`

	// BusyTimeoutMS is the SQLite busy timeout.
	BusyTimeoutMS int `toml:"busy_timeout_ms"`
}

// IndexerSettings configures document processing and batching.
type IndexerSettings struct {
	BatchSize    int      `toml:"batch_size"`
	AutoFlush    bool     `toml:"auto_flush"`
	ChunkSize    int      `toml:"chunk_size"`
	ChunkOverlap int      `toml:"chunk_overlap"`
	Fields       FieldSet `toml:"fields"`
}

// CacheSettings configures the persistent query cache.
type CacheSettings struct {
	Enabled    bool   `toml:"enabled"`
	TTLSeconds int    `toml:"ttl_seconds"`
	MaxSize    int    `toml:"max_size"`
	TableName  string `toml:"table_name"`
}

// TTL returns the default entry lifetime.
func (c CacheSettings) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// SearchSettings holds query defaults.
type SearchSettings struct {
	DefaultLimit   int     `toml:"default_limit"`
	DistanceWeight float64 `toml:"distance_weight"`
	DecayK         float64 `toml:"decay_k"`
	MultiColumn    bool    `toml:"multi_column"`
	Fuzzy          bool    `toml:"fuzzy"`
	HighlightTag   string  `toml:"highlight_tag"`
}

// Defaults for engine settings.
const (
	DefaultBatchSize    = 100
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 100
	DefaultCacheTTL     = 300
	DefaultCacheSize    = 1000
	DefaultCacheTable   = "_query_cache"
	DefaultSearchLimit  = 20
	DefaultDecayK       = 0.0001
)

// DefaultFields is the field configuration used when none is configured.
func DefaultFields() FieldSet {
	return FieldSet{
		"title":   {Boost: 3, Store: true, Index: true},
		"content": {Boost: 1, Store: true, Index: true},
		"tags":    {Boost: 2, Store: true, Index: true},
	}
}

// DefaultSettings returns the out-of-the-box configuration.
func DefaultSettings() Settings {
	return Settings{
		Storage: StorageSettings{
			ExternalContent: true,
			BusyTimeoutMS:   5000,
		},
		Indexer: IndexerSettings{
			BatchSize:    DefaultBatchSize,
			AutoFlush:    true,
			ChunkSize:    DefaultChunkSize,
			ChunkOverlap: DefaultChunkOverlap,
			Fields:       DefaultFields(),
		},
		Cache: CacheSettings{
			Enabled:    true,
			TTLSeconds: DefaultCacheTTL,
			MaxSize:    DefaultCacheSize,
			TableName:  DefaultCacheTable,
		},
		Search: SearchSettings{
			DefaultLimit: DefaultSearchLimit,
			DecayK:       DefaultDecayK,
			MultiColumn:  true,
			HighlightTag: "mark",
		},
	}
}

// Validate checks ranges and identifiers.
func (s Settings) Validate() error {
	if s.Indexer.BatchSize <= 0 {
		return NewValidationError("settings", "indexer.batch_size must be positive", ErrInvalidInput)
	}
	if s.Indexer.ChunkSize <= 0 {
		return NewValidationError("settings", "indexer.chunk_size must be positive", ErrInvalidInput)
	}
	if s.Indexer.ChunkOverlap < 0 || s.Indexer.ChunkOverlap >= s.Indexer.ChunkSize {
		return NewValidationError("settings",
			fmt.Sprintf("indexer.chunk_overlap must be in [0,%d)", s.Indexer.ChunkSize), ErrInvalidInput)
	}
	if err := s.Indexer.Fields.Validate(); err != nil {
		return err
	}
	if s.Cache.MaxSize <= 0 || s.Cache.TTLSeconds <= 0 {
		return NewValidationError("settings", "cache.max_size and cache.ttl_seconds must be positive", ErrInvalidInput)
	}
	if err := ValidateIdentifier("settings", s.Cache.TableName); err != nil {
		return err
	}
	if s.Search.DistanceWeight < 0 || s.Search.DistanceWeight > 1 {
		return NewValidationError("settings", "search.distance_weight must be in [0,1]", ErrInvalidInput)
	}
	return nil
}

// Strategy returns the schema strategy for new indices.
func (s Settings) Strategy() Strategy {
	if s.Storage.ExternalContent {
		return StrategyExternal
	}
	return StrategyEmbedded
}
