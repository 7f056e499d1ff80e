package file

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yetidevworks/yetisearch/internal/core/domain"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), FileName)
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoad_MissingFileGivesDefaults(t *testing.T) {
	settings, err := Load(filepath.Join(t.TempDir(), "absent.toml"))

	require.NoError(t, err)
	assert.Equal(t, domain.DefaultSettings(), settings)
}

func TestLoad_OverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
[storage]
path = "/tmp/search.db"

[indexer]
batch_size = 50
auto_flush = false

[search]
distance_weight = 0.25
highlight_tag = "em"
`)

	settings, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/search.db", settings.Storage.Path)
	assert.True(t, settings.Storage.ExternalContent, "unset keys keep defaults")
	assert.Equal(t, 50, settings.Indexer.BatchSize)
	assert.False(t, settings.Indexer.AutoFlush)
	assert.Equal(t, domain.DefaultChunkSize, settings.Indexer.ChunkSize)
	assert.Equal(t, domain.DefaultFields(), settings.Indexer.Fields)
	assert.Equal(t, 0.25, settings.Search.DistanceWeight)
	assert.Equal(t, "em", settings.Search.HighlightTag)
	assert.Equal(t, domain.DefaultCacheTable, settings.Cache.TableName)
}

func TestLoad_FieldsReplaceDefaults(t *testing.T) {
	path := writeConfig(t, `
[indexer.fields.name]
boost = 2.5
store = true
index = true

[indexer.fields.sku]
boost = 1.0
store = true
index = false
`)

	settings, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, domain.FieldSet{
		"name": {Boost: 2.5, Store: true, Index: true},
		"sku":  {Boost: 1, Store: true, Index: false},
	}, settings.Indexer.Fields)
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{name: "invalid toml", body: "[indexer\nbatch_size = "},
		{name: "negative batch size", body: "[indexer]\nbatch_size = -1\n"},
		{name: "overlap too large", body: "[indexer]\nchunk_size = 100\nchunk_overlap = 100\n"},
		{name: "bad cache table", body: "[cache]\ntable_name = \"drop table\"\n"},
		{name: "distance weight out of range", body: "[search]\ndistance_weight = 1.5\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}

func TestLoad_ValidationErrorIsTyped(t *testing.T) {
	_, err := Load(writeConfig(t, "[search]\ndistance_weight = 2.0\n"))

	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", FileName)
	want := domain.DefaultSettings()
	want.Search.Fuzzy = true
	want.Cache.MaxSize = 42

	require.NoError(t, Save(path, want))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	got, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestNewSettingsStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)

	store, err := NewSettingsStore(path)
	require.NoError(t, err)
	assert.Equal(t, path, store.Path())
	assert.Equal(t, domain.DefaultSettings(), store.Settings())

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "opening does not create the file")
}

func TestNewSettingsStore_DefaultPath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("Cannot determine home directory")
	}
	if _, err := os.Stat(filepath.Join(home, ".yetisearch", FileName)); err == nil {
		t.Skip("user settings present")
	}

	store, err := NewSettingsStore("")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, ".yetisearch", FileName), store.Path())
}

func TestNewSettingsStore_CorruptedFile(t *testing.T) {
	_, err := NewSettingsStore(writeConfig(t, "not = [valid"))
	assert.Error(t, err)
}

func TestSettingsStore_Update(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	store, err := NewSettingsStore(path)
	require.NoError(t, err)

	require.NoError(t, store.Update(func(s *domain.Settings) {
		s.Search.DefaultLimit = 5
	}))
	assert.Equal(t, 5, store.Settings().Search.DefaultLimit)

	reloaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, reloaded.Search.DefaultLimit)

	err = store.Update(func(s *domain.Settings) { s.Indexer.BatchSize = 0 })
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Equal(t, domain.DefaultBatchSize, store.Settings().Indexer.BatchSize, "failed update is discarded")
}

func TestSettingsStore_SettingsAreCopies(t *testing.T) {
	store, err := NewSettingsStore(filepath.Join(t.TempDir(), FileName))
	require.NoError(t, err)

	s := store.Settings()
	s.Indexer.Fields["extra"] = domain.DefaultFieldConfig()

	_, ok := store.Settings().Indexer.Fields["extra"]
	assert.False(t, ok)
}

func TestSettingsStore_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), FileName)
	store, err := NewSettingsStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Save())

	require.NoError(t, Save(path, func() domain.Settings {
		s := domain.DefaultSettings()
		s.Storage.BusyTimeoutMS = 100
		return s
	}()))
	require.NoError(t, store.Load())
	assert.Equal(t, 100, store.Settings().Storage.BusyTimeoutMS)
}

func TestSettingsStore_Concurrency(t *testing.T) {
	store, err := NewSettingsStore(filepath.Join(t.TempDir(), FileName))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 1; i <= 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			assert.NoError(t, store.Update(func(s *domain.Settings) { s.Search.DefaultLimit = n }))
			_ = store.Settings()
		}(i)
	}
	wg.Wait()

	limit := store.Settings().Search.DefaultLimit
	assert.GreaterOrEqual(t, limit, 1)
	assert.LessOrEqual(t, limit, 10)
}
