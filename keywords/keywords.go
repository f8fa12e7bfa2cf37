// Package keywords turns free text into the deduplicated, stopword-filtered
// token sets used for lexical similarity scoring and anchor placement.
package keywords

import (
	"regexp"
	"strings"
)

// Config contains keyword extraction configuration
type Config struct {
	Stopwords []string // Tokens dropped regardless of length
	MinLength int      // Minimum token length to keep
}

// DefaultConfig returns default keyword extraction configuration
func DefaultConfig() Config {
	return Config{
		Stopwords: defaultStopwords,
		MinLength: 4,
	}
}

// Extractor derives keyword sets from text
type Extractor struct {
	stopwords map[string]struct{}
	minLength int
}

// New creates a new Extractor instance
func New(config Config) *Extractor {
	stop := make(map[string]struct{}, len(config.Stopwords))
	for _, w := range config.Stopwords {
		stop[strings.ToLower(w)] = struct{}{}
	}
	minLength := config.MinLength
	if minLength <= 0 {
		minLength = 4
	}
	return &Extractor{
		stopwords: stop,
		minLength: minLength,
	}
}

var (
	tagPattern   = regexp.MustCompile(`<[^>]*>`)
	tokenPattern = regexp.MustCompile(`[a-z0-9]+`)
)

// Keywords extracts the keyword list from text: HTML tags stripped, tokens
// case-folded, stopwords and short tokens removed, duplicates dropped.
// First-seen order is preserved.
func (e *Extractor) Keywords(text string) []string {
	plain := strings.ToLower(StripTags(text))

	seen := make(map[string]struct{})
	var result []string
	for _, token := range tokenPattern.FindAllString(plain, -1) {
		if len(token) < e.minLength {
			continue
		}
		if _, stop := e.stopwords[token]; stop {
			continue
		}
		if _, dup := seen[token]; dup {
			continue
		}
		seen[token] = struct{}{}
		result = append(result, token)
	}
	return result
}

// Set extracts keywords as a set for overlap computation.
func (e *Extractor) Set(text string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, kw := range e.Keywords(text) {
		set[kw] = struct{}{}
	}
	return set
}

// StripTags removes HTML tags from text, leaving the visible content.
// Unparsable fragments are treated as opaque text rather than rejected.
func StripTags(text string) string {
	return tagPattern.ReplaceAllString(text, " ")
}

// defaultStopwords is the fixed English stopword list applied when callers
// don't supply their own.
var defaultStopwords = []string{
	"a", "about", "above", "after", "again", "against", "all", "also", "and",
	"any", "are", "because", "been", "before", "being", "below", "between",
	"both", "but", "can", "come", "could", "does", "doing", "down", "during",
	"each", "few", "for", "from", "further", "get", "has", "have", "having",
	"here", "how", "into", "its", "itself", "just", "like", "make", "many",
	"more", "most", "much", "not", "now", "off", "once", "only", "other",
	"our", "out", "over", "own", "same", "should", "some", "such", "than",
	"that", "the", "their", "them", "then", "there", "these", "they", "this",
	"those", "through", "under", "until", "very", "was", "were", "what",
	"when", "where", "which", "while", "who", "whom", "why", "will", "with",
	"would", "you", "your",
}
