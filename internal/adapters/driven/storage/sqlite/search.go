package sqlite

import (
	"context"
	"database/sql"
	"sort"
	"strings"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/yetidevworks/yetisearch/internal/core/domain"
)

// Highlight snippet shape.
const (
	snippetRadius       = 40
	maxSnippetsPerField = 3
)

// Search runs a ranked query against one index.
func (s *Store) Search(ctx context.Context, name string, opts domain.SearchOptions) (*domain.SearchResults, error) {
	start := time.Now()

	x, err := s.schema(ctx, "search", name)
	if err != nil {
		return nil, err
	}
	q, err := compileQuery(x, opts, s.decayK)
	if err != nil {
		return nil, err
	}

	total, err := s.count(ctx, q)
	if err != nil {
		return nil, domain.NewStorageError("search", name, err)
	}
	results, err := s.fetch(ctx, q)
	if err != nil {
		return nil, domain.NewStorageError("search", name, err)
	}

	if q.appRanked {
		q.rerank(results)
		results = paginate(results, q.offset, q.limit)
	}
	if opts.Boost > 0 {
		for i := range results {
			results[i].Score *= opts.Boost
		}
	}
	if opts.Highlight && len(q.terms) > 0 {
		for i := range results {
			results[i].Highlights = s.highlights(x, &results[i].Document, q.terms)
		}
	}

	out := &domain.SearchResults{
		Results:    results,
		Total:      total,
		SearchTime: time.Since(start),
		Plan:       q.plan(),
	}
	s.log.Debug("search executed",
		zap.String("index", name),
		zap.String("match", q.match),
		zap.Int("total", total),
		zap.Int("returned", len(results)),
		zap.Bool("app_ranked", q.appRanked),
		zap.Int("candidate_limit", q.candidateLimit),
		zap.Duration("elapsed", out.SearchTime))
	return out, nil
}

// Count returns the number of documents matching opts without ranking them.
func (s *Store) Count(ctx context.Context, name string, opts domain.SearchOptions) (int, error) {
	x, err := s.schema(ctx, "count", name)
	if err != nil {
		return 0, err
	}
	q, err := compileQuery(x, opts, s.decayK)
	if err != nil {
		return 0, err
	}
	n, err := s.count(ctx, q)
	if err != nil {
		return 0, domain.NewStorageError("count", name, err)
	}
	return n, nil
}

// SearchMultiple searches every index, tags rows with their index and
// merges them into one ranked page. Total is the sum of per-index totals.
func (s *Store) SearchMultiple(ctx context.Context, names []string, opts domain.SearchOptions) (*domain.SearchResults, error) {
	start := time.Now()
	if len(names) == 0 {
		return nil, domain.NewValidationError("search multiple", "no indices given", domain.ErrInvalidInput)
	}

	limit, offset := opts.Limit, max(opts.Offset, 0)
	if limit <= 0 {
		limit = domain.DefaultSearchLimit
	}
	per := opts
	per.Offset = 0
	per.Limit = offset + limit

	out := &domain.SearchResults{}
	var merged []domain.SearchResult
	for i, name := range names {
		res, err := s.Search(ctx, name, per)
		if err != nil {
			return nil, err
		}
		for j := range res.Results {
			res.Results[j].Index = name
		}
		merged = append(merged, res.Results...)
		out.Total += res.Total
		if i == 0 {
			out.Plan = res.Plan
		}
		out.Plan.AppRanked = out.Plan.AppRanked || res.Plan.AppRanked
	}

	if g := opts.Geo; g != nil && g.DistanceSort != nil {
		desc := g.DistanceSort.Direction == domain.SortDesc
		sort.SliceStable(merged, func(i, j int) bool {
			a, b := merged[i].Distance, merged[j].Distance
			if a == nil || b == nil {
				return a != nil
			}
			if desc {
				return *a > *b
			}
			return *a < *b
		})
	} else {
		sort.SliceStable(merged, func(i, j int) bool { return merged[i].Score > merged[j].Score })
	}

	out.Results = paginate(merged, offset, limit)
	out.SearchTime = time.Since(start)
	return out, nil
}

func (s *Store) count(ctx context.Context, q *query) (int, error) {
	stmt, args, err := q.countSQL()
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, stmt, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) fetch(ctx context.Context, q *query) ([]domain.SearchResult, error) {
	stmt, args, err := q.selectSQL()
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := []domain.SearchResult{}
	for rows.Next() {
		var (
			score    float64
			distance sql.NullFloat64
			key      int64
		)
		doc, err := scanDocument(rows, &score, &distance, &key)
		if err != nil {
			return nil, err
		}
		r := domain.SearchResult{
			ID:       doc.ID,
			Score:    score,
			Document: *doc,
			Metadata: doc.Metadata,
		}
		if q.ref != nil && distance.Valid {
			d := distance.Float64
			r.Distance = &d
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// rerank rescores candidates at the application layer: field-weight
// overrides scale each score by how the override redistributes the
// document's term hits across fields, and a distance blend mixes the
// normalised text score with proximity.
func (q *query) rerank(results []domain.SearchResult) {
	if q.weights != nil {
		for i := range results {
			results[i].Score *= q.weightFactor(&results[i].Document)
		}
	}

	if q.blendWeight > 0 {
		maxScore := 0.0
		for _, r := range results {
			maxScore = max(maxScore, r.Score)
		}
		w := q.blendWeight
		for i := range results {
			text := 0.0
			if maxScore > 0 {
				text = results[i].Score / maxScore
			}
			proximity := 0.0
			if d := results[i].Distance; d != nil {
				proximity = 1 / (1 + q.decayK * *d)
			}
			results[i].Score = text*(1-w) + proximity*w
		}
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
}

// weightFactor is sum(override_w * hits) / sum(schema_w * hits) over the
// indexed fields of doc.
func (q *query) weightFactor(doc *domain.Document) float64 {
	var num, den float64
	for _, f := range q.x.fields.IndexedNames() {
		text, ok := doc.FieldText(f)
		if !ok {
			continue
		}
		hits := float64(countHits(text, q.terms))
		if hits == 0 {
			continue
		}
		schemaW := q.x.fields[f].Boost
		w := schemaW
		if ow, ok := q.weights[f]; ok {
			w = ow
		}
		num += w * hits
		den += schemaW * hits
	}
	if den == 0 {
		return 1
	}
	return num / den
}

// countHits counts words of text that start with any term.
func countHits(text string, terms []string) int {
	n := 0
	for _, w := range words(text) {
		if matchesTerm(strings.ToLower(w.text), terms) {
			n++
		}
	}
	return n
}

func matchesTerm(w string, terms []string) bool {
	for _, t := range terms {
		if strings.HasPrefix(w, t) {
			return true
		}
	}
	return false
}

type word struct {
	text       string
	start, end int // rune offsets
}

func words(text string) []word {
	var out []word
	runes := []rune(text)
	start := -1
	for i, r := range runes {
		inWord := unicode.IsLetter(r) || unicode.IsNumber(r)
		switch {
		case inWord && start < 0:
			start = i
		case !inWord && start >= 0:
			out = append(out, word{text: string(runes[start:i]), start: start, end: i})
			start = -1
		}
	}
	if start >= 0 {
		out = append(out, word{text: string(runes[start:]), start: start, end: len(runes)})
	}
	return out
}

// highlights returns up to maxSnippetsPerField snippets per indexed field
// with matching words wrapped in the highlight tag.
func (s *Store) highlights(x *indexSchema, doc *domain.Document, terms []string) map[string][]string {
	out := make(map[string][]string)
	for _, f := range x.fields.IndexedNames() {
		text, ok := doc.Content[f].(string)
		if !ok || text == "" {
			continue
		}
		if snippets := snippets(text, terms, s.highlightTag); len(snippets) > 0 {
			out[f] = snippets
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func snippets(text string, terms []string, tag string) []string {
	runes := []rune(text)
	all := words(text)

	var out []string
	covered := -1
	for _, w := range all {
		if len(out) == maxSnippetsPerField {
			break
		}
		if w.start < covered || !matchesTerm(strings.ToLower(w.text), terms) {
			continue
		}
		from := max(0, w.start-snippetRadius)
		to := min(len(runes), w.end+snippetRadius)

		var b strings.Builder
		if from > 0 {
			b.WriteString("...")
		}
		pos := from
		for _, m := range all {
			if m.start < from || m.end > to || !matchesTerm(strings.ToLower(m.text), terms) {
				continue
			}
			b.WriteString(string(runes[pos:m.start]))
			b.WriteString("<" + tag + ">" + m.text + "</" + tag + ">")
			pos = m.end
		}
		b.WriteString(string(runes[pos:to]))
		if to < len(runes) {
			b.WriteString("...")
		}
		out = append(out, b.String())
		covered = to
	}
	return out
}

func paginate(results []domain.SearchResult, offset, limit int) []domain.SearchResult {
	if offset >= len(results) {
		return []domain.SearchResult{}
	}
	end := len(results)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return results[offset:end]
}
