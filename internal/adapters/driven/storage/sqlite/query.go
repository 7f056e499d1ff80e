package sqlite

import (
	"fmt"
	"math"
	"regexp"
	"strings"
	"unicode"

	"github.com/yetidevworks/yetisearch/internal/core/domain"
	"github.com/yetidevworks/yetisearch/internal/geo"
)

// Candidate-limit guard for application-layer re-ranking.
const (
	candidateMultiplier = 20
	minCandidateLimit   = 400
)

// defaultFuzziness is the share of a term that may be dropped for prefix expansion.
const defaultFuzziness = 0.2

var jsonPathPattern = regexp.MustCompile(`^[A-Za-z0-9_]+(\.[A-Za-z0-9_]+|\[[0-9]+\])*$`)

// query is a search compiled against one index.
type query struct {
	x      *indexSchema
	opts   domain.SearchOptions
	limit  int
	offset int

	terms []string
	match string

	// ref is the point distances are measured from, if any.
	ref          *domain.GeoPoint
	nearMeters   float64
	nearBoxes    []domain.GeoBounds
	bounds       *domain.GeoBounds
	boundsBoxes  []domain.GeoBounds
	distanceSort *domain.DistanceSort

	// weights is the field-weight override, nil when it matches the schema.
	weights        map[string]float64
	blendWeight    float64
	decayK         float64
	appRanked      bool
	candidateLimit int
}

// compileQuery validates options and derives the match expression, geo
// boxes and ranking mode.
func compileQuery(x *indexSchema, opts domain.SearchOptions, decayK float64) (*query, error) {
	q := &query{x: x, opts: opts, limit: opts.Limit, offset: opts.Offset, decayK: decayK}
	if q.limit <= 0 {
		q.limit = domain.DefaultSearchLimit
	}
	if q.offset < 0 {
		q.offset = 0
	}

	q.terms = queryTerms(opts.Query)
	if len(q.terms) > 0 {
		q.match = buildMatch(x, q.terms, opts)
	}

	if g := opts.Geo; g != nil {
		if err := q.compileGeo(g); err != nil {
			return nil, err
		}
	}

	for _, f := range opts.Filters {
		if !f.Operator.IsValid() {
			return nil, domain.NewValidationError("search", fmt.Sprintf("unknown filter operator %q", f.Operator), domain.ErrInvalidInput)
		}
	}
	for _, sf := range opts.Sort {
		if sf.Direction != "" && sf.Direction != domain.SortAsc && sf.Direction != domain.SortDesc {
			return nil, domain.NewValidationError("search", fmt.Sprintf("unknown sort direction %q", sf.Direction), domain.ErrInvalidInput)
		}
	}

	for field, w := range opts.FieldWeights {
		if cfg, ok := x.fields[field]; ok && cfg.Index && w != cfg.Boost {
			q.weights = opts.FieldWeights
			break
		}
	}

	if len(q.terms) > 0 && q.orderedByScore() && (q.weights != nil || q.blendWeight > 0) {
		q.appRanked = true
		q.candidateLimit = opts.FieldWeightCandidateCap
		if q.candidateLimit <= 0 {
			q.candidateLimit = max(q.limit*candidateMultiplier, minCandidateLimit)
		}
	}
	return q, nil
}

func (q *query) compileGeo(g *domain.GeoFilters) error {
	if g.DistanceWeight < 0 || g.DistanceWeight > 1 {
		return domain.NewValidationError("search", "distance_weight must be in [0,1]", domain.ErrInvalidGeo)
	}
	if g.DecayK > 0 {
		q.decayK = g.DecayK
	}

	if n := g.Near; n != nil {
		if !n.Point.Valid() {
			return domain.NewValidationError("search", "near point is out of range", domain.ErrInvalidGeo)
		}
		if n.Radius <= 0 || math.IsNaN(n.Radius) {
			return domain.NewValidationError("search", "near radius must be positive", domain.ErrInvalidGeo)
		}
		meters, err := geo.ToMeters(n.Radius, n.Units)
		if err != nil {
			return err
		}
		p := n.Point
		q.ref = &p
		q.nearMeters = meters
		q.nearBoxes = geo.BoundingBox(p, meters).Split()
	}

	if b := g.Bounds; b != nil {
		if !b.Valid() {
			return domain.NewValidationError("search", "bounds are out of range", domain.ErrInvalidGeo)
		}
		bb := *b
		q.bounds = &bb
		q.boundsBoxes = b.Split()
	}

	if ds := g.DistanceSort; ds != nil {
		if !ds.From.Valid() {
			return domain.NewValidationError("search", "distance sort origin is out of range", domain.ErrInvalidGeo)
		}
		if ds.Direction != "" && ds.Direction != domain.SortAsc && ds.Direction != domain.SortDesc {
			return domain.NewValidationError("search", fmt.Sprintf("unknown sort direction %q", ds.Direction), domain.ErrInvalidInput)
		}
		q.distanceSort = ds
		if q.ref == nil {
			from := ds.From
			q.ref = &from
		}
	}

	if q.ref != nil && len(q.terms) > 0 {
		q.blendWeight = g.DistanceWeight
	}
	return nil
}

// orderedByScore reports whether results are ordered by relevance rather
// than by distance or explicit sort fields.
func (q *query) orderedByScore() bool {
	if q.distanceSort != nil {
		return false
	}
	for _, sf := range q.opts.Sort {
		if sf.Field != "score" {
			return false
		}
	}
	return true
}

func (q *query) plan() domain.QueryPlan {
	return domain.QueryPlan{
		Strategy:        q.x.strategy,
		CandidateLimit:  q.candidateLimit,
		AppRanked:       q.appRanked,
		Boxes:           len(q.nearBoxes) + len(q.boundsBoxes),
		MatchExpression: q.match,
	}
}

// sqlBuilder accumulates SQL text and its bound arguments in order.
type sqlBuilder struct {
	b    strings.Builder
	args []any
}

func (sb *sqlBuilder) write(s string, args ...any) {
	sb.b.WriteString(s)
	sb.args = append(sb.args, args...)
}

// hitsCTE writes "WITH hits AS (...)". The count form selects only what
// filtering and route collapsing need.
func (q *query) hitsCTE(sb *sqlBuilder, forCount bool) error {
	x := q.x
	key := "d." + x.key()

	if q.opts.UniqueByRoute && !forCount {
		// bm25 must be evaluated before the window function runs over the rows.
		sb.write("WITH hits AS MATERIALIZED (SELECT ")
	} else {
		sb.write("WITH hits AS (SELECT ")
	}
	if forCount {
		sb.write("d.id AS id")
	} else {
		sb.write(key + " AS k, d.id, d.content, d.metadata, d.language, d.type, d.timestamp, d.indexed_at, d.geo_lat, d.geo_lng, d.geo_bounds, ")
		if q.match != "" {
			sb.write(q.scoreExpr() + " AS score, ")
		} else {
			sb.write("0.0 AS score, ")
		}
		if q.ref != nil {
			sb.write("geo_distance(d.geo_lat, d.geo_lng, ?, ?) AS distance", q.ref.Lat, q.ref.Lng)
		} else {
			sb.write("NULL AS distance")
		}
	}
	if q.opts.UniqueByRoute {
		sb.write(", COALESCE(json_extract(d.metadata, '$." + domain.MetaRoute + "'), json_extract(d.metadata, '$." +
			domain.MetaParentID + "'), d.id) AS route_key")
	}

	if q.match != "" {
		// Embedded rows join on id: the implicit rowid of the document
		// table is not stable across VACUUM.
		join := fmt.Sprintf("%s = %s.rowid", key, x.ftsTable())
		if !x.external() {
			join = fmt.Sprintf("d.id = %s.id", x.ftsTable())
		}
		sb.write(fmt.Sprintf(" FROM %s JOIN %s d ON %s WHERE %s MATCH ?",
			x.ftsTable(), x.docTable(), join, x.ftsTable()), q.match)
	} else {
		sb.write(fmt.Sprintf(" FROM %s d WHERE 1 = 1", x.docTable()))
	}

	if len(q.nearBoxes) > 0 {
		q.writeBoxFilter(sb, q.nearBoxes)
		if x.spatial {
			// Area documents without a point are measured to their nearest edge.
			sb.write(" AND (geo_distance(d.geo_lat, d.geo_lng, ?, ?) <= ?"+
				" OR (d.geo_lat IS NULL AND geo_bounds_distance(d.geo_bounds, ?, ?) <= ?))",
				q.ref.Lat, q.ref.Lng, q.nearMeters, q.ref.Lat, q.ref.Lng, q.nearMeters)
		} else {
			sb.write(" AND geo_distance(d.geo_lat, d.geo_lng, ?, ?) <= ?", q.ref.Lat, q.ref.Lng, q.nearMeters)
		}
	}
	if len(q.boundsBoxes) > 0 {
		q.writeBoxFilter(sb, q.boundsBoxes)
		if x.spatial {
			q.writeBoundsCheck(sb)
		}
	}

	for _, f := range q.opts.Filters {
		if err := q.writeFilter(sb, f); err != nil {
			return err
		}
	}

	sb.write(")")
	return nil
}

// writeBoxFilter restricts candidates to rows whose spatial entry overlaps
// any of boxes. Indices without a spatial table fall back to the point columns.
func (q *query) writeBoxFilter(sb *sqlBuilder, boxes []domain.GeoBounds) {
	if q.x.spatial {
		sb.write(fmt.Sprintf(" AND d.%s IN (SELECT id FROM %s WHERE ", q.x.key(), q.x.spatialTable()))
		for i, b := range boxes {
			if i > 0 {
				sb.write(" OR ")
			}
			sb.write("(minX <= ? AND maxX >= ? AND minY <= ? AND maxY >= ?)", b.MaxLng, b.MinLng, b.MaxLat, b.MinLat)
		}
		sb.write(")")
		return
	}

	sb.write(" AND (")
	for i, b := range boxes {
		if i > 0 {
			sb.write(" OR ")
		}
		sb.write("(d.geo_lat BETWEEN ? AND ? AND d.geo_lng BETWEEN ? AND ?)", b.MinLat, b.MaxLat, b.MinLng, b.MaxLng)
	}
	sb.write(")")
}

// writeBoundsCheck re-tests R-tree candidates exactly. Entries for areas
// crossing the antimeridian span every longitude, so the stored point or
// area must itself overlap the requested bounds.
func (q *query) writeBoundsCheck(sb *sqlBuilder) {
	b := q.bounds
	sb.write(" AND (geo_intersects(d.geo_bounds, ?, ?, ?, ?)", b.MinLat, b.MaxLat, b.MinLng, b.MaxLng)
	for _, box := range q.boundsBoxes {
		sb.write(" OR (d.geo_lat BETWEEN ? AND ? AND d.geo_lng BETWEEN ? AND ?)", box.MinLat, box.MaxLat, box.MinLng, box.MaxLng)
	}
	sb.write(")")
}

func (q *query) writeFilter(sb *sqlBuilder, f domain.Filter) error {
	expr, exprArgs, err := q.resolveField(f.Field, "d.")
	if err != nil {
		return err
	}

	switch f.Operator {
	case domain.OpEq, domain.OpNe, domain.OpGt, domain.OpGte, domain.OpLt, domain.OpLte:
		sb.write(" AND "+expr+" "+string(f.Operator)+" ?", append(exprArgs, sqlValue(f.Value))...)
	case domain.OpIn, domain.OpNotIn:
		values := toSlice(f.Value)
		if len(values) == 0 {
			if f.Operator == domain.OpIn {
				sb.write(" AND 0")
			}
			return nil
		}
		op := " IN ("
		if f.Operator == domain.OpNotIn {
			op = " NOT IN ("
		}
		args := exprArgs
		for _, v := range values {
			args = append(args, sqlValue(v))
		}
		sb.write(" AND "+expr+op+placeholders(len(values))+")", args...)
	case domain.OpContains:
		pattern := "%" + escapeLike(fmt.Sprint(f.Value)) + "%"
		sb.write(" AND "+expr+` LIKE ? ESCAPE '\'`, append(exprArgs, pattern)...)
	case domain.OpExists:
		want := true
		if b, ok := f.Value.(bool); ok {
			want = b
		}
		if want {
			sb.write(" AND "+expr+" IS NOT NULL", exprArgs...)
		} else {
			sb.write(" AND "+expr+" IS NULL", exprArgs...)
		}
	default:
		return domain.NewValidationError("search", fmt.Sprintf("unknown filter operator %q", f.Operator), domain.ErrInvalidInput)
	}
	return nil
}

// resolveField maps a filter or sort field onto a column or JSON path.
// Declared index fields resolve into content, other bare names into metadata.
func (q *query) resolveField(field, prefix string) (string, []any, error) {
	switch field {
	case "id", "type", "language", "timestamp", "indexed_at":
		return prefix + field, nil, nil
	}

	column, path := "metadata", field
	switch {
	case strings.HasPrefix(field, "metadata."):
		path = strings.TrimPrefix(field, "metadata.")
	case strings.HasPrefix(field, "content."):
		column, path = "content", strings.TrimPrefix(field, "content.")
	default:
		if _, ok := q.x.fields[field]; ok {
			column = "content"
		}
	}
	if !jsonPathPattern.MatchString(path) {
		return "", nil, domain.NewValidationError("search", fmt.Sprintf("invalid field %q", field), domain.ErrInvalidInput)
	}
	return "json_extract(" + prefix + column + ", ?)", []any{"$." + path}, nil
}

// orderBy writes the ORDER BY clause of the outer query.
func (q *query) orderBy(sb *sqlBuilder) error {
	sb.write(" ORDER BY ")
	if ds := q.distanceSort; ds != nil {
		sb.write("distance IS NULL, distance " + direction(ds.Direction, domain.SortAsc) + ", k")
		return nil
	}
	if len(q.opts.Sort) > 0 {
		for _, sf := range q.opts.Sort {
			var (
				expr string
				args []any
				err  error
			)
			switch sf.Field {
			case "score", "distance":
				expr = sf.Field
			default:
				expr, args, err = q.resolveField(sf.Field, "")
				if err != nil {
					return err
				}
			}
			def := domain.SortAsc
			if sf.Field == "score" {
				def = domain.SortDesc
			}
			sb.write(expr+" "+direction(sf.Direction, def)+", ", args...)
		}
		sb.write("k")
		return nil
	}
	if q.match != "" {
		sb.write("score DESC, k")
		return nil
	}
	sb.write("k")
	return nil
}

func direction(d, def domain.SortDirection) string {
	if d == "" {
		d = def
	}
	if d == domain.SortDesc {
		return "DESC"
	}
	return "ASC"
}

// selectSQL builds the result query. Application-ranked queries fetch the
// candidate window from the top; the rest are paginated in SQL.
func (q *query) selectSQL() (string, []any, error) {
	sb := &sqlBuilder{}
	if err := q.hitsCTE(sb, false); err != nil {
		return "", nil, err
	}

	source := "hits"
	if q.opts.UniqueByRoute {
		order := &sqlBuilder{}
		if err := q.orderBy(order); err != nil {
			return "", nil, err
		}
		sb.write(", ranked AS (SELECT *, ROW_NUMBER() OVER (PARTITION BY route_key"+order.b.String()+") AS rn FROM hits)", order.args...)
		source = "ranked WHERE rn = 1"
	}

	sb.write(" SELECT id, content, metadata, language, type, timestamp, indexed_at, geo_lat, geo_lng, geo_bounds, score, distance, k FROM " + source)
	if err := q.orderBy(sb); err != nil {
		return "", nil, err
	}
	if q.appRanked {
		sb.write(" LIMIT ?", q.candidateLimit)
	} else {
		sb.write(" LIMIT ? OFFSET ?", q.limit, q.offset)
	}
	return sb.b.String(), sb.args, nil
}

// countSQL builds the filtered-count query.
func (q *query) countSQL() (string, []any, error) {
	sb := &sqlBuilder{}
	if err := q.hitsCTE(sb, true); err != nil {
		return "", nil, err
	}
	if q.opts.UniqueByRoute {
		sb.write(" SELECT COUNT(DISTINCT route_key) FROM hits")
	} else {
		sb.write(" SELECT COUNT(*) FROM hits")
	}
	return sb.b.String(), sb.args, nil
}

// scoreExpr is the native relevance: bm25 with per-column schema boosts,
// negated so that larger is better.
func (q *query) scoreExpr() string {
	fields := q.x.ftsFields()
	if len(fields) == 0 {
		return fmt.Sprintf("-bm25(%s)", q.x.ftsTable())
	}
	weights := make([]string, len(fields))
	for i, f := range fields {
		weights[i] = fmt.Sprintf("%g", q.x.fields[f].Boost)
	}
	return fmt.Sprintf("-bm25(%s, %s)", q.x.ftsTable(), strings.Join(weights, ", "))
}

// queryTerms splits a query into unique lower-cased words.
func queryTerms(query string) []string {
	words := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	seen := make(map[string]bool, len(words))
	terms := words[:0]
	for _, w := range words {
		if !seen[w] {
			seen[w] = true
			terms = append(terms, w)
		}
	}
	return terms
}

// buildMatch renders terms as an FTS5 expression: every term is required,
// fuzzy terms also match by prefix, and a field restriction becomes a
// column filter.
func buildMatch(x *indexSchema, terms []string, opts domain.SearchOptions) string {
	parts := make([]string, len(terms))
	for i, t := range terms {
		parts[i] = quoteTerm(t)
		if opts.Fuzzy {
			if p := fuzzyPrefix(t, opts.Fuzziness); p != "" {
				parts[i] = "(" + quoteTerm(t) + " OR " + quoteTerm(p) + "*)"
			}
		}
	}
	expr := strings.Join(parts, " AND ")

	var cols []string
	for _, f := range opts.Fields {
		if c, ok := x.columnFor(f); ok {
			cols = append(cols, c)
		}
	}
	if len(cols) > 0 {
		expr = "{" + strings.Join(cols, " ") + "} : (" + expr + ")"
	}
	return expr
}

func quoteTerm(t string) string {
	return `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
}

// fuzzyPrefix returns the prefix a fuzzy term expands from, or "" when the
// term is too short to expand.
func fuzzyPrefix(term string, fuzziness float64) string {
	if fuzziness <= 0 {
		fuzziness = defaultFuzziness
	}
	fuzziness = math.Min(fuzziness, 0.9)
	r := []rune(term)
	if len(r) < 4 {
		return ""
	}
	n := max(3, int(math.Ceil(float64(len(r))*(1-fuzziness))))
	if n >= len(r) {
		return ""
	}
	return string(r[:n])
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// sqlValue converts a filter value into a bindable argument. Booleans
// compare as json_extract returns them.
func sqlValue(v any) any {
	switch t := v.(type) {
	case nil, string, int, int32, int64, float32, float64, uint, uint32:
		return t
	case bool:
		if t {
			return 1
		}
		return 0
	default:
		return fmt.Sprint(t)
	}
}

func toSlice(v any) []any {
	switch t := v.(type) {
	case nil:
		return nil
	case []any:
		return t
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out
	case []int:
		out := make([]any, len(t))
		for i, n := range t {
			out[i] = n
		}
		return out
	case []int64:
		out := make([]any, len(t))
		for i, n := range t {
			out[i] = n
		}
		return out
	case []float64:
		out := make([]any, len(t))
		for i, n := range t {
			out[i] = n
		}
		return out
	default:
		return []any{t}
	}
}
