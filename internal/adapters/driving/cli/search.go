package cli

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/spf13/cobra"

	"github.com/yetidevworks/yetisearch/internal/core/domain"
	"github.com/yetidevworks/yetisearch/internal/geo"
)

var (
	searchIndices        []string
	searchLimit          int
	searchOffset         int
	searchFuzzy          bool
	searchFuzziness      float64
	searchHighlight      bool
	searchNear           string
	searchBounds         string
	searchSortDistance   string
	searchDistanceWeight float64
	searchFilters        []string
	searchSort           []string
	searchFields         []string
	searchUniqueByRoute  bool
	searchNoCache        bool
	searchCount          bool
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search indexed documents",
	Long: `Performs full-text search over one or more indices.
Results are ranked by BM25 with per-field boosts and can be restricted by
metadata filters and geo radius or bounding-box filters.

Examples:
  yetisearch search -i places "coffee"
  yetisearch search -i places --near 51.5,-0.12,2km "coffee"
  yetisearch search -i posts --filter "metadata.category = news" --sort timestamp:desc ""`,
	Args: cobra.ExactArgs(1),
	RunE: runSearch,
}

func init() {
	f := searchCmd.Flags()
	f.StringSliceVarP(&searchIndices, "index", "i", nil, "index to search; repeat to merge several")
	f.IntVarP(&searchLimit, "limit", "n", 0, "maximum number of results (default from settings)")
	f.IntVar(&searchOffset, "offset", 0, "number of results to skip")
	f.BoolVar(&searchFuzzy, "fuzzy", false, "match term prefixes")
	f.Float64Var(&searchFuzziness, "fuzziness", 0, "fuzzy prefix shortening in [0,1]")
	f.BoolVar(&searchHighlight, "highlight", false, "show highlighted snippets")
	f.StringVar(&searchNear, "near", "", "radius filter as lat,lng,radius[unit], e.g. 51.5,-0.12,5km")
	f.StringVar(&searchBounds, "bounds", "", "bounding box as minLat,minLng,maxLat,maxLng")
	f.StringVar(&searchSortDistance, "sort-distance", "", "order by distance from lat,lng")
	f.Float64Var(&searchDistanceWeight, "distance-weight", 0, "blend proximity into the score, in [0,1]")
	f.StringArrayVar(&searchFilters, "filter", nil, `filter such as "metadata.rating >= 4"; repeatable`)
	f.StringSliceVar(&searchSort, "sort", nil, "sort field[:asc|desc]; repeatable")
	f.StringSliceVar(&searchFields, "fields", nil, "restrict matching to these fields")
	f.BoolVar(&searchUniqueByRoute, "unique-by-route", false, "collapse results sharing a route or parent")
	f.BoolVar(&searchNoCache, "no-cache", false, "bypass the query cache")
	f.BoolVar(&searchCount, "count", false, "print only the number of matches")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	if len(searchIndices) == 0 {
		return errors.New("at least one --index is required")
	}

	opts, err := buildSearchOptions(args[0])
	if err != nil {
		return err
	}

	e, err := getEngine(cmd)
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	if searchCount {
		total := 0
		for _, index := range searchIndices {
			n, err := e.Count(ctx, index, opts)
			if err != nil {
				return fmt.Errorf("count failed: %w", err)
			}
			total += n
		}
		cmd.Println(total)
		return nil
	}

	var results *domain.SearchResults
	if len(searchIndices) == 1 {
		results, err = e.Search(ctx, searchIndices[0], opts)
	} else {
		results, err = e.SearchMultiple(ctx, searchIndices, opts)
	}
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	if jsonOutput {
		return printJSON(cmd, results)
	}
	return outputSearchTable(cmd, results, e.Settings().Search.HighlightTag)
}

// buildSearchOptions maps command flags onto search options.
func buildSearchOptions(query string) (domain.SearchOptions, error) {
	opts := domain.SearchOptions{
		Query:         query,
		Limit:         searchLimit,
		Offset:        searchOffset,
		Fuzzy:         searchFuzzy,
		Fuzziness:     searchFuzziness,
		Highlight:     searchHighlight,
		Fields:        searchFields,
		UniqueByRoute: searchUniqueByRoute,
		BypassCache:   searchNoCache,
	}

	for _, raw := range searchFilters {
		filter, err := parseFilter(raw)
		if err != nil {
			return opts, err
		}
		opts.Filters = append(opts.Filters, filter)
	}

	for _, raw := range searchSort {
		field, dir, _ := strings.Cut(raw, ":")
		direction := domain.SortAsc
		switch strings.ToLower(dir) {
		case "", "asc":
		case "desc":
			direction = domain.SortDesc
		default:
			return opts, fmt.Errorf("sort %q: direction must be asc or desc: %w", raw, domain.ErrInvalidInput)
		}
		opts.Sort = append(opts.Sort, domain.SortField{Field: field, Direction: direction})
	}

	geoFilters, err := buildGeoFilters()
	if err != nil {
		return opts, err
	}
	opts.Geo = geoFilters
	return opts, nil
}

func buildGeoFilters() (*domain.GeoFilters, error) {
	if searchNear == "" && searchBounds == "" && searchSortDistance == "" {
		if searchDistanceWeight != 0 {
			return nil, fmt.Errorf("--distance-weight needs --near or --sort-distance: %w", domain.ErrInvalidInput)
		}
		return nil, nil
	}

	gf := &domain.GeoFilters{DistanceWeight: searchDistanceWeight}
	if searchNear != "" {
		near, err := parseNear(searchNear)
		if err != nil {
			return nil, err
		}
		gf.Near = near
	}
	if searchBounds != "" {
		bounds, err := parseBounds(searchBounds)
		if err != nil {
			return nil, err
		}
		gf.Bounds = bounds
	}
	if searchSortDistance != "" {
		from := geo.ParsePoint(searchSortDistance)
		if from == nil {
			return nil, fmt.Errorf("--sort-distance %q: %w", searchSortDistance, domain.ErrInvalidGeo)
		}
		gf.DistanceSort = &domain.DistanceSort{From: *from, Direction: domain.SortAsc}
	}
	return gf, nil
}

// parseNear parses lat,lng,radius[unit].
func parseNear(s string) (*domain.NearFilter, error) {
	i := strings.LastIndex(s, ",")
	if i < 0 {
		return nil, fmt.Errorf("--near %q: expected lat,lng,radius: %w", s, domain.ErrInvalidGeo)
	}

	point := geo.ParsePoint(s[:i])
	if point == nil {
		return nil, fmt.Errorf("--near %q: invalid point: %w", s, domain.ErrInvalidGeo)
	}

	radiusText := strings.TrimSpace(s[i+1:])
	split := strings.IndexFunc(radiusText, unicode.IsLetter)
	unitText := ""
	if split >= 0 {
		radiusText, unitText = radiusText[:split], radiusText[split:]
	}
	radius, err := strconv.ParseFloat(strings.TrimSpace(radiusText), 64)
	if err != nil || radius <= 0 {
		return nil, fmt.Errorf("--near %q: invalid radius: %w", s, domain.ErrInvalidGeo)
	}
	unit := geo.ParseUnit(unitText)
	if !unit.IsValid() {
		return nil, fmt.Errorf("--near %q: unknown unit %q: %w", s, unitText, domain.ErrInvalidGeo)
	}

	return &domain.NearFilter{Point: *point, Radius: radius, Units: unit}, nil
}

// parseBounds parses minLat,minLng,maxLat,maxLng.
func parseBounds(s string) (*domain.GeoBounds, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil, fmt.Errorf("--bounds %q: expected minLat,minLng,maxLat,maxLng: %w", s, domain.ErrInvalidGeo)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("--bounds %q: %w", s, domain.ErrInvalidGeo)
		}
		v[i] = f
	}
	b := &domain.GeoBounds{MinLat: v[0], MinLng: v[1], MaxLat: v[2], MaxLng: v[3]}
	if !b.Valid() {
		return nil, fmt.Errorf("--bounds %q: out of range: %w", s, domain.ErrInvalidGeo)
	}
	return b, nil
}

// compactOperators are tried in order so two-character operators win.
var compactOperators = []domain.FilterOperator{
	domain.OpNe, domain.OpGte, domain.OpLte, domain.OpEq, domain.OpGt, domain.OpLt,
}

// parseFilter accepts "field op value" with any operator, or the compact
// "field>=value" form for comparison operators. in and not_in take a
// comma-separated list; exists takes no value.
func parseFilter(s string) (domain.Filter, error) {
	if tokens := strings.Fields(s); len(tokens) >= 2 {
		op := domain.FilterOperator(strings.ToLower(tokens[1]))
		if op.IsValid() {
			rest := strings.TrimSpace(strings.TrimSpace(s)[len(tokens[0]):])
			return newFilter(tokens[0], op, strings.TrimSpace(rest[len(tokens[1]):]))
		}
	}

	for _, op := range compactOperators {
		if field, value, ok := strings.Cut(s, string(op)); ok {
			return newFilter(strings.TrimSpace(field), op, strings.TrimSpace(value))
		}
	}
	return domain.Filter{}, fmt.Errorf("filter %q: no operator found: %w", s, domain.ErrInvalidInput)
}

func newFilter(field string, op domain.FilterOperator, value string) (domain.Filter, error) {
	if field == "" {
		return domain.Filter{}, fmt.Errorf("filter: empty field: %w", domain.ErrInvalidInput)
	}

	f := domain.Filter{Field: field, Operator: op}
	switch op {
	case domain.OpExists:
	case domain.OpIn, domain.OpNotIn:
		var values []any
		for _, v := range strings.Split(value, ",") {
			values = append(values, parseScalar(strings.TrimSpace(v)))
		}
		f.Value = values
	case domain.OpContains:
		f.Value = value
	default:
		f.Value = parseScalar(value)
	}
	return f, nil
}

// parseScalar reads numbers and booleans; anything else stays a string.
// Quoted values are always strings.
func parseScalar(s string) any {
	if unquoted, err := strconv.Unquote(s); err == nil {
		return unquoted
	}
	if n, err := strconv.ParseFloat(s, 64); err == nil {
		return n
	}
	if b, err := strconv.ParseBool(s); err == nil {
		return b
	}
	return s
}

func outputSearchTable(cmd *cobra.Command, results *domain.SearchResults, tag string) error {
	if len(results.Results) == 0 {
		cmd.Println("No results found.")
		return nil
	}

	s := stylesFor(cmd.OutOrStdout())
	cmd.Println(s.Render(s.Title, "Results:"))
	cmd.Println()
	for i := range results.Results {
		r := &results.Results[i]

		// Format: [N] Title (Score)
		title, _ := r.Document.FieldText("title")
		if title == "" {
			title = r.ID
		}
		cmd.Printf("  [%d] %s %s\n", searchOffset+i+1, s.Render(s.Subtitle, title),
			s.Render(s.Muted, fmt.Sprintf("(%.2f)", r.Score)))

		var details []string
		if r.Index != "" {
			details = append(details, "Index: "+r.Index)
		}
		details = append(details, "ID: "+r.ID)
		if r.Distance != nil {
			details = append(details, "Distance: "+geo.FormatDistance(*r.Distance, distanceUnit(), 2))
		}
		cmd.Printf("      %s\n", s.Render(s.Muted, strings.Join(details, "  ")))

		for _, snippet := range snippets(r) {
			cmd.Printf("      %s\n", s.Highlight(snippet, tag))
		}
		cmd.Println()
	}

	cmd.Println(s.Render(s.Muted, fmt.Sprintf("%d of %d results in %s", len(results.Results), results.Total,
		results.SearchTime.Round(time.Microsecond))))
	return nil
}

// distanceUnit prints distances in the unit of the --near radius.
func distanceUnit() domain.DistanceUnit {
	if near, err := parseNear(searchNear); err == nil && near.Units != "" {
		return near.Units
	}
	return domain.UnitKilometers
}

func snippets(r *domain.SearchResult) []string {
	fields := make([]string, 0, len(r.Highlights))
	for field := range r.Highlights {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	var out []string
	for _, field := range fields {
		out = append(out, r.Highlights[field]...)
	}
	return out
}
