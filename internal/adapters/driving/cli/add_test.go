package cli

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yetidevworks/yetisearch/internal/core/domain"
)

func TestReadDocuments(t *testing.T) {
	tests := []struct {
		name  string
		input string
		ids   []string
	}{
		{"empty", "  \n", nil},
		{"single object", `{"id": "a", "content": {"title": "A"}}`, []string{"a"}},
		{"array", `[{"id": "a"}, {"id": "b"}]`, []string{"a", "b"}},
		{"jsonl", "{\"id\": \"a\"}\n{\"id\": \"b\"}\n\n{\"id\": \"c\"}\n", []string{"a", "b", "c"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := readDocuments(strings.NewReader(tt.input))

			require.NoError(t, err)
			var ids []string
			for _, d := range docs {
				ids = append(ids, d.ID)
			}
			assert.Equal(t, tt.ids, ids)
		})
	}
}

func TestReadDocuments_Geo(t *testing.T) {
	input := `[
		{"id": "map", "geo": {"lat": 51.5, "lng": -0.12}},
		{"id": "pair", "geo": [48.85, 2.35]},
		{"id": "text", "geo": "40.7,-74.0"},
		{"id": "none", "geo": null}
	]`

	docs, err := readDocuments(strings.NewReader(input))

	require.NoError(t, err)
	require.Len(t, docs, 4)
	assert.Equal(t, &domain.GeoPoint{Lat: 51.5, Lng: -0.12}, docs[0].Geo)
	assert.Equal(t, &domain.GeoPoint{Lat: 48.85, Lng: 2.35}, docs[1].Geo)
	assert.Equal(t, &domain.GeoPoint{Lat: 40.7, Lng: -74.0}, docs[2].Geo)
	assert.Nil(t, docs[3].Geo)
}

func TestReadDocuments_Errors(t *testing.T) {
	t.Run("bad geo", func(t *testing.T) {
		_, err := readDocuments(strings.NewReader(`{"id": "x", "geo": "north"}`))
		assert.ErrorIs(t, err, domain.ErrInvalidGeo)
	})

	t.Run("malformed json", func(t *testing.T) {
		_, err := readDocuments(strings.NewReader("{\"id\": \"a\"}\n{oops"))
		require.Error(t, err)
		assert.Contains(t, err.Error(), "document 2")
	})
}

func TestAddCmd_FromFile(t *testing.T) {
	e := setupTestEngine(t)
	ctx := context.Background()
	require.NoError(t, e.CreateIndex(ctx, "docs", domain.IndexOptions{MultiColumn: true}))

	path := filepath.Join(t.TempDir(), "docs.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(
		`{"id": "1", "content": {"title": "Harbour", "content": "fishing boats"}}`+"\n"+
			`{"id": "2", "content": {"title": "Market", "content": "fresh bread"}}`+"\n"), 0600))

	out, err := execute(t, "add", "docs", path)

	require.NoError(t, err)
	assert.Contains(t, out, "Indexed 2 documents into docs")
	doc, err := e.Get(ctx, "docs", "2")
	require.NoError(t, err)
	assert.Equal(t, "Market", doc.Content["title"])
}

func TestAddCmd_FromStdinCreatesIndex(t *testing.T) {
	e := setupTestEngine(t)

	in := strings.NewReader(`[{"id": "p1", "content": {"title": "Pier"}, "geo": "50.8,-1.1"}]`)
	_, err := executeWithInput(t, in, "add", "places", "--create")

	require.NoError(t, err)
	stats, err := e.Stats(context.Background(), "places")
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Documents)
	assert.Equal(t, 1, stats.SpatialEntries)
}

func TestAddCmd_UnknownIndex(t *testing.T) {
	setupTestEngine(t)

	_, err := executeWithInput(t, strings.NewReader(`{"id": "1"}`), "add", "missing")

	assert.ErrorIs(t, err, domain.ErrIndexNotFound)
}

func TestAddCmd_ReportsFailures(t *testing.T) {
	e := setupTestEngine(t)
	require.NoError(t, e.CreateIndex(context.Background(), "docs", domain.IndexOptions{}))

	in := strings.NewReader(`[{"id": "ok", "content": {"title": "Fine"}},
		{"id": "bad", "content": {"title": "Lost"}, "geo_bounds": {"min_lat": 95, "max_lat": 99, "min_lng": 0, "max_lng": 1}}]`)
	out, err := executeWithInput(t, in, "--json", "add", "docs")

	require.NoError(t, err)
	var result struct {
		Indexed int               `json:"indexed"`
		Failed  int               `json:"failed"`
		Errors  map[string]string `json:"errors"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	assert.Equal(t, 1, result.Indexed)
	assert.Equal(t, 1, result.Failed)
	assert.Contains(t, result.Errors, "bad")
}

func TestAddCmd_Replace(t *testing.T) {
	e := setupTestEngine(t)
	ctx := context.Background()
	addDocs(t, e, "docs", domain.Document{ID: "old", Content: map[string]any{"title": "Old"}})

	in := strings.NewReader(`{"id": "new", "content": {"title": "New"}}`)
	_, err := executeWithInput(t, in, "add", "docs", "--replace")

	require.NoError(t, err)
	_, err = e.Get(ctx, "docs", "old")
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = e.Get(ctx, "docs", "new")
	assert.NoError(t, err)
}

func TestDeleteCmd(t *testing.T) {
	e := setupTestEngine(t)
	ctx := context.Background()
	addDocs(t, e, "docs",
		domain.Document{ID: "1", Content: map[string]any{"title": "One"}},
		domain.Document{ID: "2", Content: map[string]any{"title": "Two"}},
	)

	out, err := execute(t, "delete", "docs", "1", "2")

	require.NoError(t, err)
	assert.Contains(t, out, "Deleted 2 documents from docs")
	stats, err := e.Stats(ctx, "docs")
	require.NoError(t, err)
	assert.Zero(t, stats.Documents)
}

func TestDeleteCmd_RequiresIDs(t *testing.T) {
	setupTestEngine(t)

	_, err := execute(t, "delete", "docs")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "requires at least 2 arg(s)")
}

func TestGetCmd(t *testing.T) {
	e := setupTestEngine(t)
	addDocs(t, e, "docs", domain.Document{
		ID:       "1",
		Content:  map[string]any{"title": "Harbour"},
		Metadata: map[string]any{"rating": 4},
	})

	out, err := execute(t, "get", "docs", "1")

	require.NoError(t, err)
	var doc domain.Document
	require.NoError(t, json.Unmarshal([]byte(out), &doc))
	assert.Equal(t, "Harbour", doc.Content["title"])
	assert.EqualValues(t, 4, doc.Metadata["rating"])
}
