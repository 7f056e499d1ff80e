package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yetidevworks/yetisearch"
	"github.com/yetidevworks/yetisearch/internal/core/domain"
)

func TestSearchCmd_Use(t *testing.T) {
	assert.Equal(t, "search [query]", searchCmd.Use)
}

func TestSearchCmd_Short(t *testing.T) {
	assert.Equal(t, "Search indexed documents", searchCmd.Short)
}

func TestSearchCmd_RequiresExactlyOneArg(t *testing.T) {
	setupTestEngine(t)

	_, err := execute(t, "search")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "accepts 1 arg(s)")
}

func TestSearchCmd_HasLimitFlag(t *testing.T) {
	flag := searchCmd.Flags().Lookup("limit")
	require.NotNil(t, flag, "limit flag should exist")
	assert.Equal(t, "n", flag.Shorthand)
	assert.Equal(t, "0", flag.DefValue)
}

func TestSearchCmd_RequiresIndex(t *testing.T) {
	setupTestEngine(t)

	_, err := execute(t, "search", "harbour")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "--index")
}

func setupSearchEngine(t *testing.T) *yetisearch.Engine {
	t.Helper()
	e := setupTestEngine(t)
	addDocs(t, e, "places",
		domain.Document{
			ID:       "bridge",
			Content:  map[string]any{"title": "Tower Bridge", "content": "bascule bridge over the Thames"},
			Metadata: map[string]any{"city": "london", "rating": 5},
			Geo:      &domain.GeoPoint{Lat: 51.5055, Lng: -0.0754},
		},
		domain.Document{
			ID:       "eye",
			Content:  map[string]any{"title": "London Eye", "content": "observation wheel by the Thames"},
			Metadata: map[string]any{"city": "london", "rating": 4},
			Geo:      &domain.GeoPoint{Lat: 51.5033, Lng: -0.1196},
		},
		domain.Document{
			ID:       "eiffel",
			Content:  map[string]any{"title": "Eiffel Tower", "content": "wrought iron tower on the Seine"},
			Metadata: map[string]any{"city": "paris", "rating": 5},
			Geo:      &domain.GeoPoint{Lat: 48.8584, Lng: 2.2945},
		},
	)
	return e
}

func searchJSON(t *testing.T, args ...string) domain.SearchResults {
	t.Helper()
	out, err := execute(t, append([]string{"--json", "search"}, args...)...)
	require.NoError(t, err)

	var results domain.SearchResults
	require.NoError(t, json.Unmarshal([]byte(out), &results))
	return results
}

func resultIDs(results domain.SearchResults) []string {
	ids := make([]string, len(results.Results))
	for i := range results.Results {
		ids[i] = results.Results[i].ID
	}
	return ids
}

func TestSearchCmd_Table(t *testing.T) {
	setupSearchEngine(t)

	out, err := execute(t, "search", "-i", "places", "--highlight", "tower")

	require.NoError(t, err)
	assert.Contains(t, out, "Results:")
	assert.Contains(t, out, "Tower Bridge")
	assert.Contains(t, out, "Eiffel Tower")
	assert.Contains(t, out, "<mark>")
	assert.NotContains(t, out, "London Eye")
}

func TestSearchCmd_NoResults(t *testing.T) {
	setupSearchEngine(t)

	out, err := execute(t, "search", "-i", "places", "submarine")

	require.NoError(t, err)
	assert.Contains(t, out, "No results found.")
}

func TestSearchCmd_JSON(t *testing.T) {
	setupSearchEngine(t)

	results := searchJSON(t, "-i", "places", "thames")

	assert.ElementsMatch(t, []string{"bridge", "eye"}, resultIDs(results))
	assert.Equal(t, 2, results.Total)
}

func TestSearchCmd_Near(t *testing.T) {
	setupSearchEngine(t)

	results := searchJSON(t, "-i", "places", "--near", "51.5007,-0.1246,5km", "")

	assert.ElementsMatch(t, []string{"bridge", "eye"}, resultIDs(results))
	for _, r := range results.Results {
		require.NotNil(t, r.Distance)
		assert.Less(t, *r.Distance, 5000.0)
	}
}

func TestSearchCmd_SortDistance(t *testing.T) {
	setupSearchEngine(t)

	results := searchJSON(t, "-i", "places", "--sort-distance", "48.86,2.29", "")

	assert.Equal(t, []string{"eiffel", "bridge", "eye"}, resultIDs(results))
}

func TestSearchCmd_Filter(t *testing.T) {
	setupSearchEngine(t)

	results := searchJSON(t, "-i", "places", "--filter", "metadata.city = paris", "tower")
	assert.Equal(t, []string{"eiffel"}, resultIDs(results))

	results = searchJSON(t, "-i", "places", "--filter", "metadata.rating>=5", "--sort", "id:asc", "")
	assert.Equal(t, []string{"bridge", "eiffel"}, resultIDs(results))
}

func TestSearchCmd_Count(t *testing.T) {
	setupSearchEngine(t)

	out, err := execute(t, "search", "-i", "places", "--count", "thames")

	require.NoError(t, err)
	assert.Equal(t, "2\n", out)
}

func TestSearchCmd_MultipleIndices(t *testing.T) {
	e := setupSearchEngine(t)
	addDocs(t, e, "events", domain.Document{
		ID:      "regatta",
		Content: map[string]any{"title": "Boat race", "content": "rowing on the Thames"},
	})

	results := searchJSON(t, "-i", "places", "-i", "events", "thames")

	assert.ElementsMatch(t, []string{"bridge", "eye", "regatta"}, resultIDs(results))
	for _, r := range results.Results {
		assert.NotEmpty(t, r.Index)
	}
}

func TestSearchCmd_InvalidGeo(t *testing.T) {
	setupSearchEngine(t)

	_, err := execute(t, "search", "-i", "places", "--near", "north", "")

	assert.ErrorIs(t, err, domain.ErrInvalidGeo)
}

func TestParseFilter(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  domain.Filter
	}{
		{"spaced equality", "metadata.city = paris",
			domain.Filter{Field: "metadata.city", Operator: domain.OpEq, Value: "paris"}},
		{"compact comparison", "metadata.rating>=4",
			domain.Filter{Field: "metadata.rating", Operator: domain.OpGte, Value: 4.0}},
		{"compact not equal", "type!=page",
			domain.Filter{Field: "type", Operator: domain.OpNe, Value: "page"}},
		{"in list", "metadata.city in london,paris",
			domain.Filter{Field: "metadata.city", Operator: domain.OpIn, Value: []any{"london", "paris"}}},
		{"exists", "metadata.phone exists",
			domain.Filter{Field: "metadata.phone", Operator: domain.OpExists}},
		{"contains keeps text", "content.title contains 42",
			domain.Filter{Field: "content.title", Operator: domain.OpContains, Value: "42"}},
		{"quoted number stays string", `metadata.zip = "02134"`,
			domain.Filter{Field: "metadata.zip", Operator: domain.OpEq, Value: "02134"}},
		{"boolean", "metadata.open = true",
			domain.Filter{Field: "metadata.open", Operator: domain.OpEq, Value: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseFilter(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFilter_Invalid(t *testing.T) {
	for _, input := range []string{"metadata.city", "=paris"} {
		_, err := parseFilter(input)
		assert.ErrorIs(t, err, domain.ErrInvalidInput, input)
	}
}

func TestParseNear(t *testing.T) {
	near, err := parseNear("51.5,-0.12,2.5mi")
	require.NoError(t, err)
	assert.Equal(t, &domain.NearFilter{
		Point:  domain.GeoPoint{Lat: 51.5, Lng: -0.12},
		Radius: 2.5,
		Units:  domain.UnitMiles,
	}, near)

	near, err = parseNear("51.5,-0.12,800")
	require.NoError(t, err)
	assert.Equal(t, domain.UnitMeters, near.Units)

	for _, input := range []string{"51.5,-0.12", "91,0,5km", "51.5,-0.12,-1", "51.5,-0.12,5parsecs"} {
		_, err := parseNear(input)
		assert.ErrorIs(t, err, domain.ErrInvalidGeo, input)
	}
}

func TestParseBounds(t *testing.T) {
	b, err := parseBounds("51.4, -0.2, 51.6, 0.0")
	require.NoError(t, err)
	assert.Equal(t, &domain.GeoBounds{MinLat: 51.4, MinLng: -0.2, MaxLat: 51.6, MaxLng: 0}, b)

	_, err = parseBounds("1,2,3")
	assert.ErrorIs(t, err, domain.ErrInvalidGeo)
}
