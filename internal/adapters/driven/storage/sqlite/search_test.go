package sqlite

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yetidevworks/yetisearch/internal/core/domain"
)

func geoDoc(id string, lat, lng float64) *domain.Document {
	d := textDoc(id, "place "+id, "a place to visit")
	d.Geo = &domain.GeoPoint{Lat: lat, Lng: lng}
	return d
}

func fillerDocs(n int) []*domain.Document {
	docs := make([]*domain.Document, n)
	for i := range docs {
		docs[i] = textDoc(fmt.Sprintf("filler-%d", i), "unrelated", "nothing to see here")
	}
	return docs
}

// ==================== Text Search ====================

func TestSearch_RanksTitleMatchesFirst(t *testing.T) {
	for _, strategy := range []domain.Strategy{domain.StrategyExternal, domain.StrategyEmbedded} {
		t.Run(string(strategy), func(t *testing.T) {
			store := setupTestStore(t)
			createTestIndex(t, store, "docs", strategy)
			insertDocs(t, store, "docs",
				textDoc("2", "lazy dog", "a fox sleeps under the tree"),
				textDoc("1", "quick brown fox", "the fox jumps"),
				textDoc("3", "cat", "a cat naps"),
			)

			res, err := store.Search(context.Background(), "docs", domain.SearchOptions{Query: "fox"})
			require.NoError(t, err)

			assert.Equal(t, 2, res.Total)
			assert.Equal(t, []string{"1", "2"}, resultIDs(res))
			assert.Greater(t, res.Results[0].Score, res.Results[1].Score)
			assert.Nil(t, res.Results[0].Distance)
			assert.Equal(t, strategy, res.Plan.Strategy)
			assert.Equal(t, `"fox"`, res.Plan.MatchExpression)
			assert.False(t, res.Plan.AppRanked)
		})
	}
}

func TestSearch_EmbeddedSurvivesRowidRenumbering(t *testing.T) {
	store := setupTestStore(t)
	createTestIndex(t, store, "docs", domain.StrategyEmbedded)
	insertDocs(t, store, "docs",
		textDoc("1", "quick brown fox", "the fox jumps"),
		textDoc("2", "lazy dog", "sleeps all day"),
	)

	// VACUUM may renumber implicit rowids; shift them explicitly.
	_, err := store.db.Exec(`UPDATE "docs" SET rowid = rowid + 1000`)
	require.NoError(t, err)

	res, err := store.Search(context.Background(), "docs", domain.SearchOptions{Query: "fox"})
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, resultIDs(res))
	assert.Equal(t, "quick brown fox", res.Results[0].Document.Content["title"])
}

func TestSearch_AllTermsRequired(t *testing.T) {
	store := setupTestStore(t)
	createTestIndex(t, store, "docs", domain.StrategyExternal)
	insertDocs(t, store, "docs",
		textDoc("1", "red apple", "fruit"),
		textDoc("2", "green apple", "fruit"),
	)

	res, err := store.Search(context.Background(), "docs", domain.SearchOptions{Query: "Apple RED"})
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, resultIDs(res))
}

func TestSearch_SingleColumnIndex(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateIndex(ctx, "single", domain.IndexOptions{Fields: domain.DefaultFields()}))
	insertDocs(t, store, "single",
		textDoc("1", "quick brown fox", "jumps"),
		textDoc("2", "slow turtle", "walks"),
	)

	res, err := store.Search(ctx, "single", domain.SearchOptions{Query: "fox", Highlight: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, resultIDs(res))
	assert.Equal(t, []string{"quick brown <mark>fox</mark>"}, res.Results[0].Highlights["title"])
}

func TestSearch_Pagination(t *testing.T) {
	store := setupTestStore(t)
	createTestIndex(t, store, "docs", domain.StrategyExternal)

	docs := make([]*domain.Document, 30)
	for i := range docs {
		docs[i] = textDoc(fmt.Sprintf("%02d", i), "common", "shared words")
	}
	insertDocs(t, store, "docs", docs...)

	ctx := context.Background()
	res, err := store.Search(ctx, "docs", domain.SearchOptions{Query: "common", Limit: 5})
	require.NoError(t, err)
	assert.Equal(t, 30, res.Total)
	assert.Len(t, res.Results, 5)

	all, err := store.Search(ctx, "docs", domain.SearchOptions{Query: "common", Limit: 30})
	require.NoError(t, err)
	page, err := store.Search(ctx, "docs", domain.SearchOptions{Query: "common", Limit: 5, Offset: 10})
	require.NoError(t, err)
	assert.Equal(t, resultIDs(all)[10:15], resultIDs(page))

	beyond, err := store.Search(ctx, "docs", domain.SearchOptions{Query: "common", Offset: 100})
	require.NoError(t, err)
	assert.Empty(t, beyond.Results)
	assert.Equal(t, 30, beyond.Total)
}

func TestSearch_EmptyQueryMatchesEverything(t *testing.T) {
	store := setupTestStore(t)
	createTestIndex(t, store, "docs", domain.StrategyExternal)
	insertDocs(t, store, "docs", textDoc("1", "a", "b"), textDoc("2", "c", "d"))

	res, err := store.Search(context.Background(), "docs", domain.SearchOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, []string{"1", "2"}, resultIDs(res))
}

func TestSearch_Filters(t *testing.T) {
	store := setupTestStore(t)
	createTestIndex(t, store, "docs", domain.StrategyExternal)

	news := textDoc("news-1", "market report", "stocks rallied")
	news.Type = "article"
	news.Metadata = map[string]any{"category": "news", "views": 150, "author": "ann", "featured": true}
	blog := textDoc("blog-1", "market musings", "thoughts on stocks")
	blog.Type = "post"
	blog.Metadata = map[string]any{"category": "blog", "views": 20}
	old := textDoc("news-2", "old market", "stocks fell")
	old.Type = "article"
	old.Metadata = map[string]any{"category": "news", "views": 5}
	insertDocs(t, store, "docs", news, blog, old)

	tests := []struct {
		name    string
		filters []domain.Filter
		want    []string
	}{
		{"metadata equality", []domain.Filter{{Field: "metadata.category", Operator: domain.OpEq, Value: "news"}}, []string{"news-1", "news-2"}},
		{"bare name resolves to metadata", []domain.Filter{{Field: "category", Operator: domain.OpEq, Value: "blog"}}, []string{"blog-1"}},
		{"numeric range", []domain.Filter{{Field: "metadata.views", Operator: domain.OpGte, Value: 20}}, []string{"blog-1", "news-1"}},
		{"combined", []domain.Filter{
			{Field: "metadata.category", Operator: domain.OpEq, Value: "news"},
			{Field: "metadata.views", Operator: domain.OpGt, Value: 100},
		}, []string{"news-1"}},
		{"column", []domain.Filter{{Field: "type", Operator: domain.OpEq, Value: "post"}}, []string{"blog-1"}},
		{"not equal", []domain.Filter{{Field: "type", Operator: domain.OpNe, Value: "article"}}, []string{"blog-1"}},
		{"in", []domain.Filter{{Field: "id", Operator: domain.OpIn, Value: []string{"news-2", "blog-1"}}}, []string{"blog-1", "news-2"}},
		{"empty in", []domain.Filter{{Field: "id", Operator: domain.OpIn, Value: []string{}}}, nil},
		{"not in", []domain.Filter{{Field: "id", Operator: domain.OpNotIn, Value: []any{"news-1"}}}, []string{"blog-1", "news-2"}},
		{"contains on declared field", []domain.Filter{{Field: "title", Operator: domain.OpContains, Value: "musing"}}, []string{"blog-1"}},
		{"exists", []domain.Filter{{Field: "metadata.author", Operator: domain.OpExists}}, []string{"news-1"}},
		{"not exists", []domain.Filter{{Field: "metadata.author", Operator: domain.OpExists, Value: false}}, []string{"blog-1", "news-2"}},
		{"boolean", []domain.Filter{{Field: "metadata.featured", Operator: domain.OpEq, Value: true}}, []string{"news-1"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := store.Search(context.Background(), "docs", domain.SearchOptions{
				Query:   "stocks",
				Filters: tt.filters,
				Sort:    []domain.SortField{{Field: "id"}},
			})
			require.NoError(t, err)
			if tt.want == nil {
				assert.Empty(t, res.Results)
				return
			}
			assert.Equal(t, tt.want, resultIDs(res))
			assert.Equal(t, len(tt.want), res.Total)
		})
	}
}

func TestSearch_InvalidFilters(t *testing.T) {
	store := setupTestStore(t)
	createTestIndex(t, store, "docs", domain.StrategyExternal)

	for _, f := range []domain.Filter{
		{Field: "type", Operator: "like"},
		{Field: "metadata.a') OR 1=1 --", Operator: domain.OpEq, Value: 1},
	} {
		_, err := store.Search(context.Background(), "docs", domain.SearchOptions{Filters: []domain.Filter{f}})
		assert.ErrorIs(t, err, domain.ErrInvalidInput, f.Field)
	}
}

func TestSearch_SortByMetadata(t *testing.T) {
	store := setupTestStore(t)
	createTestIndex(t, store, "docs", domain.StrategyExternal)

	var docs []*domain.Document
	for i, views := range []int{10, 30, 20} {
		d := textDoc(fmt.Sprint(i), "item", "item")
		d.Metadata = map[string]any{"views": views}
		docs = append(docs, d)
	}
	insertDocs(t, store, "docs", docs...)

	res, err := store.Search(context.Background(), "docs", domain.SearchOptions{
		Query: "item",
		Sort:  []domain.SortField{{Field: "metadata.views", Direction: domain.SortDesc}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "0"}, resultIDs(res))
}

func TestSearch_Fuzzy(t *testing.T) {
	store := setupTestStore(t)
	createTestIndex(t, store, "docs", domain.StrategyExternal)
	insertDocs(t, store, "docs", textDoc("1", "quantum physics", "particles"))

	ctx := context.Background()
	n, err := store.Count(ctx, "docs", domain.SearchOptions{Query: "quantu"})
	require.NoError(t, err)
	assert.Zero(t, n)

	res, err := store.Search(ctx, "docs", domain.SearchOptions{Query: "quantu", Fuzzy: true})
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, resultIDs(res))
	assert.Equal(t, `("quantu" OR "quant"*)`, res.Plan.MatchExpression)
}

func TestSearch_FieldRestriction(t *testing.T) {
	store := setupTestStore(t)
	createTestIndex(t, store, "docs", domain.StrategyExternal)
	insertDocs(t, store, "docs",
		textDoc("in-title", "zebra crossing", "road"),
		textDoc("in-body", "road", "a zebra crossing"),
	)

	res, err := store.Search(context.Background(), "docs", domain.SearchOptions{Query: "zebra", Fields: []string{"title"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"in-title"}, resultIDs(res))
	assert.Equal(t, `{f_title} : ("zebra")`, res.Plan.MatchExpression)
}

func TestSearch_Highlight(t *testing.T) {
	store := setupTestStore(t, WithHighlightTag("em"))
	createTestIndex(t, store, "docs", domain.StrategyExternal)
	insertDocs(t, store, "docs", textDoc("1", "quick brown fox", "the fox jumps over the lazy dog"))

	res, err := store.Search(context.Background(), "docs", domain.SearchOptions{Query: "fox", Highlight: true})
	require.NoError(t, err)
	require.Len(t, res.Results, 1)

	hl := res.Results[0].Highlights
	assert.Equal(t, []string{"quick brown <em>fox</em>"}, hl["title"])
	assert.Equal(t, []string{"the <em>fox</em> jumps over the lazy dog"}, hl["content"])
}

func TestSnippets(t *testing.T) {
	text := "Lorem ipsum dolor sit amet, consectetur adipiscing elit, sed do eiusmod tempor incididunt ut labore " +
		"et dolore magna aliqua. Ut enim ad minim veniam, quis nostrud exercitation ullamco laboris nisi ut aliquip"

	got := snippets(text, []string{"tempor"}, "b")
	require.Len(t, got, 1)
	assert.Contains(t, got[0], "<b>tempor</b>")
	assert.True(t, len(got[0]) < len(text))
	assert.Equal(t, "...", got[0][:3])
	assert.Equal(t, "...", got[0][len(got[0])-3:])

	assert.Empty(t, snippets(text, []string{"absent"}, "b"))
}

func TestSearch_BoostMultipliesScore(t *testing.T) {
	store := setupTestStore(t)
	createTestIndex(t, store, "docs", domain.StrategyExternal)
	insertDocs(t, store, "docs", append(fillerDocs(3), textDoc("1", "fox", "fox"))...)

	ctx := context.Background()
	plain, err := store.Search(ctx, "docs", domain.SearchOptions{Query: "fox"})
	require.NoError(t, err)
	boosted, err := store.Search(ctx, "docs", domain.SearchOptions{Query: "fox", Boost: 2})
	require.NoError(t, err)

	assert.InDelta(t, plain.Results[0].Score*2, boosted.Results[0].Score, 1e-9)
}

// ==================== Route Collapsing ====================

func TestSearch_UniqueByRoute(t *testing.T) {
	store := setupTestStore(t)
	createTestIndex(t, store, "docs", domain.StrategyExternal)

	a1 := textDoc("a1", "guide page", "install guide")
	a1.Metadata = map[string]any{domain.MetaRoute: "/a"}
	a2 := textDoc("a2", "guide", "guide")
	a2.Metadata = map[string]any{domain.MetaRoute: "/a"}
	b := textDoc("b", "guide", "other guide")
	b.Metadata = map[string]any{domain.MetaRoute: "/b"}
	insertDocs(t, store, "docs", a1, a2, b)

	ctx := context.Background()
	opts := domain.SearchOptions{Query: "guide", UniqueByRoute: true}

	res, err := store.Search(ctx, "docs", opts)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Total)
	assert.Len(t, res.Results, 2)

	n, err := store.Count(ctx, "docs", domain.SearchOptions{Query: "guide"})
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestSearch_UniqueByRouteCollapsesChunks(t *testing.T) {
	store := setupTestStore(t)
	createTestIndex(t, store, "docs", domain.StrategyExternal)

	parent := textDoc("p", "manual", "chapter one of the manual")
	chunk := textDoc(domain.ChunkID("p", 0), "manual", "chapter one")
	chunk.Metadata = map[string]any{domain.MetaParentID: "p", domain.MetaIsChunk: true}
	insertDocs(t, store, "docs", parent, chunk)

	res, err := store.Search(context.Background(), "docs", domain.SearchOptions{Query: "chapter", UniqueByRoute: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
	assert.Len(t, res.Results, 1)
}

// ==================== Field Weights ====================

func TestSearch_CandidateLimit(t *testing.T) {
	store := setupTestStore(t)
	createTestIndex(t, store, "docs", domain.StrategyExternal)
	insertDocs(t, store, "docs", textDoc("1", "fox", "fox"))
	ctx := context.Background()

	res, err := store.Search(ctx, "docs", domain.SearchOptions{Query: "fox", Limit: 20, FieldWeights: map[string]float64{"title": 10}})
	require.NoError(t, err)
	assert.True(t, res.Plan.AppRanked)
	assert.Equal(t, 400, res.Plan.CandidateLimit)

	res, err = store.Search(ctx, "docs", domain.SearchOptions{Query: "fox", Limit: 50, FieldWeights: map[string]float64{"title": 10}})
	require.NoError(t, err)
	assert.Equal(t, 1000, res.Plan.CandidateLimit)

	res, err = store.Search(ctx, "docs", domain.SearchOptions{
		Query: "fox", FieldWeights: map[string]float64{"title": 10}, FieldWeightCandidateCap: 150,
	})
	require.NoError(t, err)
	assert.Equal(t, 150, res.Plan.CandidateLimit)

	res, err = store.Search(ctx, "docs", domain.SearchOptions{Query: "fox", FieldWeights: map[string]float64{"title": 3, "content": 1}})
	require.NoError(t, err)
	assert.False(t, res.Plan.AppRanked)
	assert.Zero(t, res.Plan.CandidateLimit)
}

func TestSearch_FieldWeightsRerank(t *testing.T) {
	store := setupTestStore(t)
	createTestIndex(t, store, "docs", domain.StrategyExternal)
	insertDocs(t, store, "docs", append(fillerDocs(4),
		textDoc("X", "alpha", "other words"),
		textDoc("Y", "other words", "alpha"),
	)...)
	ctx := context.Background()

	res, err := store.Search(ctx, "docs", domain.SearchOptions{Query: "alpha"})
	require.NoError(t, err)
	assert.Equal(t, []string{"X", "Y"}, resultIDs(res))

	res, err = store.Search(ctx, "docs", domain.SearchOptions{Query: "alpha", FieldWeights: map[string]float64{"content": 100}})
	require.NoError(t, err)
	assert.Equal(t, []string{"Y", "X"}, resultIDs(res))
	assert.Equal(t, 2, res.Total)
}

func TestWeightFactor(t *testing.T) {
	x := &indexSchema{fields: domain.DefaultFields()}
	q := &query{x: x, terms: []string{"alpha"}, weights: map[string]float64{"content": 4}}

	doc := &domain.Document{Content: map[string]any{"title": "alpha", "content": "alpha alpha"}}
	// (3*1 + 4*2) / (3*1 + 1*2)
	assert.InDelta(t, 11.0/5.0, q.weightFactor(doc), 1e-9)

	assert.Equal(t, 1.0, q.weightFactor(&domain.Document{Content: map[string]any{"title": "none"}}))
}

// ==================== Geo ====================

func TestSearch_Near(t *testing.T) {
	store := setupTestStore(t)
	createTestIndex(t, store, "docs", domain.StrategyExternal)
	insertDocs(t, store, "docs",
		geoDoc("london", 51.5074, -0.1278),
		geoDoc("paris", 48.8566, 2.3522),
		geoDoc("nyc", 40.7128, -74.0060),
		textDoc("nowhere", "place", "no coordinates"),
	)

	res, err := store.Search(context.Background(), "docs", domain.SearchOptions{
		Geo: &domain.GeoFilters{Near: &domain.NearFilter{
			Point:  domain.GeoPoint{Lat: 51.5074, Lng: -0.1278},
			Radius: 500,
			Units:  domain.UnitKilometers,
		}},
		Sort: []domain.SortField{{Field: "distance"}},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"london", "paris"}, resultIDs(res))
	require.NotNil(t, res.Results[1].Distance)
	assert.InDelta(t, 343_000, *res.Results[1].Distance, 2_000)
	assert.Equal(t, 1, res.Plan.Boxes)
}

func TestSearch_NearWithoutSpatialTable(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	require.NoError(t, store.CreateIndex(ctx, "flat", domain.IndexOptions{Fields: domain.DefaultFields(), MultiColumn: true}))
	insertDocs(t, store, "flat", geoDoc("near", 10, 10), geoDoc("far", 40, 40))

	res, err := store.Search(ctx, "flat", domain.SearchOptions{Geo: &domain.GeoFilters{
		Near: &domain.NearFilter{Point: domain.GeoPoint{Lat: 10, Lng: 10}, Radius: 1000},
	}})
	require.NoError(t, err)
	assert.Equal(t, []string{"near"}, resultIDs(res))
}

func TestSearch_NearAcrossDateline(t *testing.T) {
	store := setupTestStore(t)
	createTestIndex(t, store, "docs", domain.StrategyExternal)
	insertDocs(t, store, "docs",
		geoDoc("west", 0, 179.9),
		geoDoc("east", 0, -179.9),
		geoDoc("origin", 0, 0),
	)

	res, err := store.Search(context.Background(), "docs", domain.SearchOptions{
		Geo: &domain.GeoFilters{
			Near:         &domain.NearFilter{Point: domain.GeoPoint{Lat: 0, Lng: 179.95}, Radius: 50, Units: domain.UnitKilometers},
			DistanceSort: &domain.DistanceSort{From: domain.GeoPoint{Lat: 0, Lng: 179.95}},
		},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"west", "east"}, resultIDs(res))
	assert.Equal(t, 2, res.Plan.Boxes)
}

func TestSearch_BoundsAcrossDateline(t *testing.T) {
	store := setupTestStore(t)
	createTestIndex(t, store, "docs", domain.StrategyExternal)
	insertDocs(t, store, "docs",
		geoDoc("fiji", 15, 178),
		geoDoc("samoa", 15, -172),
		geoDoc("atlantic", 15, 0),
	)

	res, err := store.Search(context.Background(), "docs", domain.SearchOptions{
		Geo:  &domain.GeoFilters{Bounds: &domain.GeoBounds{MinLat: 10, MaxLat: 20, MinLng: 170, MaxLng: -170}},
		Sort: []domain.SortField{{Field: "id"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"fiji", "samoa"}, resultIDs(res))
	assert.Equal(t, 2, res.Plan.Boxes)
	for _, r := range res.Results {
		assert.Nil(t, r.Distance, "bounds alone do not measure distance")
	}
}

func TestSearch_BoundsMatchRegionDocuments(t *testing.T) {
	store := setupTestStore(t)
	createTestIndex(t, store, "docs", domain.StrategyExternal)

	region := textDoc("region", "park", "a large park")
	region.GeoBounds = &domain.GeoBounds{MinLat: 0, MaxLat: 5, MinLng: 0, MaxLng: 5}
	insertDocs(t, store, "docs", region)

	res, err := store.Search(context.Background(), "docs", domain.SearchOptions{
		Geo: &domain.GeoFilters{Bounds: &domain.GeoBounds{MinLat: 4, MaxLat: 10, MinLng: 4, MaxLng: 10}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"region"}, resultIDs(res))
}

func TestSearch_DatelineAreaDocument(t *testing.T) {
	for _, strategy := range []domain.Strategy{domain.StrategyExternal, domain.StrategyEmbedded} {
		t.Run(string(strategy), func(t *testing.T) {
			store := setupTestStore(t)
			createTestIndex(t, store, "docs", strategy)

			pacific := textDoc("pacific", "ocean", "open water")
			pacific.GeoBounds = &domain.GeoBounds{MinLat: 10, MaxLat: 20, MinLng: 170, MaxLng: -170}
			insertDocs(t, store, "docs", pacific)
			ctx := context.Background()

			search := func(g *domain.GeoFilters) []string {
				t.Helper()
				res, err := store.Search(ctx, "docs", domain.SearchOptions{Geo: g})
				require.NoError(t, err)
				return resultIDs(res)
			}

			// The far side of the world overlaps only the widened R-tree entry.
			assert.Empty(t, search(&domain.GeoFilters{
				Bounds: &domain.GeoBounds{MinLat: 10, MaxLat: 20, MinLng: -5, MaxLng: 5}}))
			assert.Empty(t, search(&domain.GeoFilters{
				Near: &domain.NearFilter{Point: domain.GeoPoint{Lat: 15, Lng: 0}, Radius: 10, Units: domain.UnitKilometers}}))

			assert.Equal(t, []string{"pacific"}, search(&domain.GeoFilters{
				Bounds: &domain.GeoBounds{MinLat: 12, MaxLat: 14, MinLng: 174, MaxLng: 180}}))
			assert.Equal(t, []string{"pacific"}, search(&domain.GeoFilters{
				Bounds: &domain.GeoBounds{MinLat: 12, MaxLat: 14, MinLng: -175, MaxLng: -160}}))
			assert.Equal(t, []string{"pacific"}, search(&domain.GeoFilters{
				Near: &domain.NearFilter{Point: domain.GeoPoint{Lat: 15, Lng: 175}, Radius: 10, Units: domain.UnitKilometers}}))
			assert.Equal(t, []string{"pacific"}, search(&domain.GeoFilters{
				Near: &domain.NearFilter{Point: domain.GeoPoint{Lat: 21, Lng: -175}, Radius: 200, Units: domain.UnitKilometers}}))
		})
	}
}

func TestSearch_PointAndAreaDocumentOutsideBounds(t *testing.T) {
	store := setupTestStore(t)
	createTestIndex(t, store, "docs", domain.StrategyExternal)

	// The R-tree entry spans the gap between the point and the area.
	split := textDoc("split", "estate", "two sites")
	split.Geo = &domain.GeoPoint{Lat: 0, Lng: 0}
	split.GeoBounds = &domain.GeoBounds{MinLat: 0, MaxLat: 1, MinLng: 10, MaxLng: 11}
	insertDocs(t, store, "docs", split)

	res, err := store.Search(context.Background(), "docs", domain.SearchOptions{
		Geo: &domain.GeoFilters{Bounds: &domain.GeoBounds{MinLat: -1, MaxLat: 1, MinLng: 4, MaxLng: 6}},
	})
	require.NoError(t, err)
	assert.Empty(t, resultIDs(res))
	assert.Equal(t, 0, res.Total)
}

func TestSearch_DistanceSort(t *testing.T) {
	store := setupTestStore(t)
	createTestIndex(t, store, "docs", domain.StrategyExternal)
	insertDocs(t, store, "docs",
		geoDoc("far", 0, 3),
		geoDoc("near", 0, 1),
		geoDoc("mid", 0, 2),
		textDoc("unplaced", "place", "somewhere"),
	)
	ctx := context.Background()
	from := domain.GeoPoint{Lat: 0, Lng: 0}

	asc, err := store.Search(ctx, "docs", domain.SearchOptions{Query: "place",
		Geo: &domain.GeoFilters{DistanceSort: &domain.DistanceSort{From: from}}})
	require.NoError(t, err)
	assert.Equal(t, []string{"near", "mid", "far", "unplaced"}, resultIDs(asc))
	assert.Nil(t, asc.Results[3].Distance)
	assert.False(t, asc.Plan.AppRanked)

	desc, err := store.Search(ctx, "docs", domain.SearchOptions{Query: "place",
		Geo: &domain.GeoFilters{DistanceSort: &domain.DistanceSort{From: from, Direction: domain.SortDesc}}})
	require.NoError(t, err)
	assert.Equal(t, []string{"far", "mid", "near", "unplaced"}, resultIDs(desc))
}

func TestSearch_DistanceBlend(t *testing.T) {
	store := setupTestStore(t)
	createTestIndex(t, store, "docs", domain.StrategyExternal)

	// The farthest document is the best text match.
	best := textDoc("far", "coffee coffee", "coffee shop coffee")
	best.Geo = &domain.GeoPoint{Lat: 0, Lng: 0.5}
	nearby := textDoc("close", "tea", "coffee")
	nearby.Geo = &domain.GeoPoint{Lat: 0, Lng: 0.01}
	insertDocs(t, store, "docs", append(fillerDocs(4), best, nearby)...)

	ctx := context.Background()
	near := &domain.NearFilter{Point: domain.GeoPoint{Lat: 0, Lng: 0}, Radius: 100, Units: domain.UnitKilometers}

	res, err := store.Search(ctx, "docs", domain.SearchOptions{Query: "coffee", Geo: &domain.GeoFilters{Near: near}})
	require.NoError(t, err)
	assert.Equal(t, []string{"far", "close"}, resultIDs(res))

	res, err = store.Search(ctx, "docs", domain.SearchOptions{Query: "coffee", Geo: &domain.GeoFilters{Near: near, DistanceWeight: 1}})
	require.NoError(t, err)
	assert.Equal(t, []string{"close", "far"}, resultIDs(res))
	assert.True(t, res.Plan.AppRanked)
	for _, r := range res.Results {
		assert.LessOrEqual(t, r.Score, 1.0)
	}
}

func TestSearch_InvalidGeo(t *testing.T) {
	store := setupTestStore(t)
	createTestIndex(t, store, "docs", domain.StrategyExternal)

	tests := []struct {
		name string
		geo  *domain.GeoFilters
	}{
		{"near latitude", &domain.GeoFilters{Near: &domain.NearFilter{Point: domain.GeoPoint{Lat: 95}, Radius: 1}}},
		{"near radius", &domain.GeoFilters{Near: &domain.NearFilter{Point: domain.GeoPoint{}, Radius: 0}}},
		{"bounds", &domain.GeoFilters{Bounds: &domain.GeoBounds{MinLat: 5, MaxLat: 1}}},
		{"distance sort origin", &domain.GeoFilters{DistanceSort: &domain.DistanceSort{From: domain.GeoPoint{Lng: 181}}}},
		{"distance weight", &domain.GeoFilters{DistanceWeight: 1.5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := store.Search(context.Background(), "docs", domain.SearchOptions{Geo: tt.geo})
			require.Error(t, err)

			var vErr *domain.ValidationError
			assert.True(t, errors.As(err, &vErr))
			assert.ErrorIs(t, err, domain.ErrInvalidGeo)
		})
	}
}

func TestSearch_MissingIndex(t *testing.T) {
	store := setupTestStore(t)

	_, err := store.Search(context.Background(), "missing", domain.SearchOptions{Query: "x"})

	var storageErr *domain.StorageError
	require.True(t, errors.As(err, &storageErr))
	assert.ErrorIs(t, err, domain.ErrIndexNotFound)
}

// ==================== Multiple Indices ====================

func TestSearchMultiple(t *testing.T) {
	store := setupTestStore(t)
	createTestIndex(t, store, "books", domain.StrategyExternal)
	createTestIndex(t, store, "films", domain.StrategyEmbedded)
	insertDocs(t, store, "books",
		textDoc("b1", "space opera", "stars"),
		textDoc("b2", "space travel", "rockets"),
		textDoc("b3", "deep space", "void"),
	)
	insertDocs(t, store, "films",
		textDoc("f1", "space odyssey", "monolith"),
		textDoc("f2", "space jam", "basketball"),
	)
	ctx := context.Background()

	res, err := store.SearchMultiple(ctx, []string{"books", "films"}, domain.SearchOptions{Query: "space"})
	require.NoError(t, err)
	assert.Equal(t, 5, res.Total)
	require.Len(t, res.Results, 5)

	byIndex := map[string]int{}
	for i, r := range res.Results {
		byIndex[r.Index]++
		if i > 0 {
			assert.GreaterOrEqual(t, res.Results[i-1].Score, r.Score)
		}
	}
	assert.Equal(t, map[string]int{"books": 3, "films": 2}, byIndex)

	page, err := store.SearchMultiple(ctx, []string{"books", "films"}, domain.SearchOptions{Query: "space", Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, resultIDs(res)[2:4], resultIDs(page))

	_, err = store.SearchMultiple(ctx, nil, domain.SearchOptions{})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

// ==================== Query Compilation ====================

func TestFuzzyPrefix(t *testing.T) {
	tests := []struct {
		term      string
		fuzziness float64
		want      string
	}{
		{"cat", 0, ""},
		{"quantu", 0, "quant"},
		{"searching", 0.5, "searc"},
		{"abcd", 0.9, "abc"},
		{"abcd", 0.1, ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, fuzzyPrefix(tt.term, tt.fuzziness), tt.term)
	}
}

func TestQueryTerms(t *testing.T) {
	assert.Equal(t, []string{"hello", "world"}, queryTerms(`Hello, "world" HELLO!`))
	assert.Empty(t, queryTerms("  ...  "))
}

func TestBuildMatch_EscapesQuotes(t *testing.T) {
	x := &indexSchema{fields: domain.DefaultFields(), multiColumn: true}
	assert.Equal(t, `"a""b" AND "c"`, buildMatch(x, []string{`a"b`, "c"}, domain.SearchOptions{}))
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `50\% off\_now`, escapeLike("50% off_now"))
}
