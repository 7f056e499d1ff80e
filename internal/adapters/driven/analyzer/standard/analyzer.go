// Package standard provides the default text analyzer: Unicode word
// tokenisation, lower-casing with diacritics removal, per-language stop
// words and Snowball stemming.
package standard

import (
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/kljensen/snowball"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/yetidevworks/yetisearch/internal/core/ports/driven"
)

// Ensure Analyzer implements the interface.
var _ driven.Analyzer = (*Analyzer)(nil)

// DefaultLanguage is used when a document or query declares none.
const DefaultLanguage = "english"

// MinTokenLength drops shorter tokens.
const MinTokenLength = 2

// Analyzer tokenises, normalises, filters and stems text.
type Analyzer struct {
	mu        sync.RWMutex
	stopWords map[string]map[string]struct{}
	stemming  bool
	minLength int
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithStemming toggles stemming. Enabled by default.
func WithStemming(enabled bool) Option {
	return func(a *Analyzer) { a.stemming = enabled }
}

// WithMinTokenLength sets the minimum token length.
func WithMinTokenLength(n int) Option {
	return func(a *Analyzer) {
		if n > 0 {
			a.minLength = n
		}
	}
}

// New creates an analyzer with the built-in stop-word lists.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{
		stopWords: make(map[string]map[string]struct{}, len(defaultStopWords)),
		stemming:  true,
		minLength: MinTokenLength,
	}
	for lang, words := range defaultStopWords {
		set := make(map[string]struct{}, len(words))
		for _, w := range words {
			set[w] = struct{}{}
		}
		a.stopWords[lang] = set
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze runs the full pipeline: normalise, tokenise, drop stop words, stem.
func (a *Analyzer) Analyze(text, language string) []string {
	lang := Language(language)
	tokens := a.RemoveStopWords(a.Tokenize(a.Normalize(text)), lang)
	if !a.stemming {
		return tokens
	}
	for i, tok := range tokens {
		tokens[i] = a.Stem(tok, lang)
	}
	return tokens
}

// Normalize lower-cases text and strips combining marks.
func (a *Analyzer) Normalize(text string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, text)
	if err != nil {
		out = text
	}
	return strings.ToLower(out)
}

// Tokenize splits text into words of letters and digits.
func (a *Analyzer) Tokenize(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	tokens := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) >= a.minLength {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// RemoveStopWords filters tokens against the language's stop-word list.
func (a *Analyzer) RemoveStopWords(tokens []string, language string) []string {
	a.mu.RLock()
	set := a.stopWords[Language(language)]
	a.mu.RUnlock()
	if len(set) == 0 {
		return tokens
	}
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if _, stop := set[tok]; !stop {
			out = append(out, tok)
		}
	}
	return out
}

// Stem reduces a token to its Snowball stem. Unsupported languages and
// stemmer failures return the token unchanged.
func (a *Analyzer) Stem(token, language string) string {
	lang := Language(language)
	if !stemmable[lang] {
		return token
	}
	stemmed, err := snowball.Stem(token, lang, true)
	if err != nil || stemmed == "" {
		return token
	}
	return stemmed
}

// ExtractKeywords returns up to limit of the most frequent non-stop-word
// tokens, unstemmed, most frequent first.
func (a *Analyzer) ExtractKeywords(text, language string, limit int) []string {
	tokens := a.RemoveStopWords(a.Tokenize(a.Normalize(text)), Language(language))
	counts := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		counts[tok]++
	}
	keywords := make([]string, 0, len(counts))
	for k := range counts {
		keywords = append(keywords, k)
	}
	sort.Slice(keywords, func(i, j int) bool {
		if counts[keywords[i]] != counts[keywords[j]] {
			return counts[keywords[i]] > counts[keywords[j]]
		}
		return keywords[i] < keywords[j]
	})
	if limit > 0 && len(keywords) > limit {
		keywords = keywords[:limit]
	}
	return keywords
}

// StopWords returns the sorted stop words of a language.
func (a *Analyzer) StopWords(language string) []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	set := a.stopWords[Language(language)]
	out := make([]string, 0, len(set))
	for w := range set {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

// AddStopWords extends a language's stop-word list.
func (a *Analyzer) AddStopWords(language string, words ...string) {
	lang := Language(language)
	a.mu.Lock()
	defer a.mu.Unlock()
	set, ok := a.stopWords[lang]
	if !ok {
		set = make(map[string]struct{}, len(words))
		a.stopWords[lang] = set
	}
	for _, w := range words {
		set[strings.ToLower(w)] = struct{}{}
	}
}

// RemoveStopWordEntries deletes words from a language's stop-word list.
func (a *Analyzer) RemoveStopWordEntries(language string, words ...string) {
	lang := Language(language)
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, w := range words {
		delete(a.stopWords[lang], strings.ToLower(w))
	}
}

// Language maps ISO codes and names onto the analyzer's language keys.
func Language(language string) string {
	l := strings.ToLower(strings.TrimSpace(language))
	if i := strings.IndexAny(l, "-_"); i > 0 {
		l = l[:i]
	}
	switch l {
	case "", "en", "eng", "english":
		return DefaultLanguage
	case "fr", "fra", "french":
		return "french"
	case "es", "spa", "spanish":
		return "spanish"
	case "ru", "rus", "russian":
		return "russian"
	case "sv", "swe", "swedish":
		return "swedish"
	case "no", "nb", "nor", "norwegian":
		return "norwegian"
	case "hu", "hun", "hungarian":
		return "hungarian"
	case "de", "deu", "ger", "german":
		return "german"
	default:
		return l
	}
}

var stemmable = map[string]bool{
	"english":   true,
	"french":    true,
	"spanish":   true,
	"russian":   true,
	"swedish":   true,
	"norwegian": true,
	"hungarian": true,
}
