package driven

// Analyzer turns text into index terms. Stemming and stop-word policy are
// opaque to the core.
type Analyzer interface {
	// Analyze returns the ordered token sequence for text.
	Analyze(text, language string) []string
}
