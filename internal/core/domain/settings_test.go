package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultSettings(t *testing.T) {
	s := DefaultSettings()

	require.NoError(t, s.Validate())
	assert.True(t, s.Storage.ExternalContent)
	assert.Equal(t, DefaultBatchSize, s.Indexer.BatchSize)
	assert.True(t, s.Indexer.AutoFlush)
	assert.Equal(t, DefaultChunkSize, s.Indexer.ChunkSize)
	assert.Equal(t, DefaultChunkOverlap, s.Indexer.ChunkOverlap)
	assert.Equal(t, DefaultFields(), s.Indexer.Fields)
	assert.True(t, s.Cache.Enabled)
	assert.Equal(t, DefaultCacheTable, s.Cache.TableName)
	assert.Equal(t, DefaultSearchLimit, s.Search.DefaultLimit)
	assert.Zero(t, s.Search.DistanceWeight)
	assert.Equal(t, "mark", s.Search.HighlightTag)
}

func TestCacheSettings_TTL(t *testing.T) {
	c := CacheSettings{TTLSeconds: 90}

	assert.Equal(t, 90*time.Second, c.TTL())
}

func TestSettings_Strategy(t *testing.T) {
	s := DefaultSettings()
	assert.Equal(t, StrategyExternal, s.Strategy())

	s.Storage.ExternalContent = false
	assert.Equal(t, StrategyEmbedded, s.Strategy())
}

func TestSettings_Validate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(s *Settings)
		want   error
	}{
		{"zero batch size", func(s *Settings) { s.Indexer.BatchSize = 0 }, ErrInvalidInput},
		{"zero chunk size", func(s *Settings) { s.Indexer.ChunkSize = 0 }, ErrInvalidInput},
		{"negative overlap", func(s *Settings) { s.Indexer.ChunkOverlap = -1 }, ErrInvalidInput},
		{"overlap not below size", func(s *Settings) { s.Indexer.ChunkOverlap = s.Indexer.ChunkSize }, ErrInvalidInput},
		{"no fields", func(s *Settings) { s.Indexer.Fields = FieldSet{} }, ErrInvalidInput},
		{"zero cache size", func(s *Settings) { s.Cache.MaxSize = 0 }, ErrInvalidInput},
		{"zero ttl", func(s *Settings) { s.Cache.TTLSeconds = 0 }, ErrInvalidInput},
		{"unsafe cache table", func(s *Settings) { s.Cache.TableName = "cache; drop" }, ErrInvalidIdentifier},
		{"distance weight above one", func(s *Settings) { s.Search.DistanceWeight = 1.5 }, ErrInvalidInput},
		{"negative distance weight", func(s *Settings) { s.Search.DistanceWeight = -0.1 }, ErrInvalidInput},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := DefaultSettings()
			tt.modify(&s)

			err := s.Validate()

			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			var verr *ValidationError
			assert.ErrorAs(t, err, &verr)
		})
	}
}

func TestSettings_ValidateAcceptsBoundaries(t *testing.T) {
	s := DefaultSettings()
	s.Search.DistanceWeight = 1
	s.Indexer.ChunkOverlap = 0

	assert.NoError(t, s.Validate())
}

func TestDefaultFields_AreIndependent(t *testing.T) {
	a := DefaultFields()
	a["title"] = FieldConfig{Boost: 9}

	assert.Equal(t, 3.0, DefaultFields()["title"].Boost)
}
