// Package linker scores topical similarity between stored items and weaves
// internal links into item HTML at tag-safe positions.
package linker

import (
	"sort"

	"github.com/appvault/harvester/keywords"
	"github.com/appvault/harvester/models"
)

// Config contains linker configuration
type Config struct {
	RelevanceFloor   float64         // Minimum similarity score for a related-item match
	ItemPathPrefix   string          // URL prefix internal item links point at
	MaxTitleKeywords int             // Keywords taken from a target title for placement
	Keywords         keywords.Config // Tokenization settings shared with the scorer
}

// DefaultConfig returns default linker configuration
func DefaultConfig() Config {
	return Config{
		RelevanceFloor:   0.1, // Below this, matches are noise
		ItemPathPrefix:   "/item/",
		MaxTitleKeywords: 5,
		Keywords:         keywords.DefaultConfig(),
	}
}

// Linker computes similarity between items and inserts internal links
type Linker struct {
	config   Config
	keywords *keywords.Extractor
}

// New creates a new Linker instance
func New(config Config) *Linker {
	if config.RelevanceFloor == 0 {
		config.RelevanceFloor = 0.1
	}
	if config.ItemPathPrefix == "" {
		config.ItemPathPrefix = "/item/"
	}
	if config.MaxTitleKeywords == 0 {
		config.MaxTitleKeywords = 5
	}
	return &Linker{
		config:   config,
		keywords: keywords.New(config.Keywords),
	}
}

// Score computes the lexical overlap between two texts as a Dice coefficient:
// 2*|intersection| / (|A|+|B|). HTML tags are stripped before tokenizing.
// Returns 0 when either keyword set is empty; always within [0, 1].
func (l *Linker) Score(textA, textB string) float64 {
	setA := l.keywords.Set(textA)
	setB := l.keywords.Set(textB)

	if len(setA) == 0 || len(setB) == 0 {
		return 0
	}

	intersection := 0
	for kw := range setA {
		if _, ok := setB[kw]; ok {
			intersection++
		}
	}

	return 2 * float64(intersection) / float64(len(setA)+len(setB))
}

// FindRelated ranks candidates by similarity to the target item.
// The target itself and unpublished candidates are excluded; only scores above
// the relevance floor survive. Results are sorted descending and truncated to
// maxLinks.
func (l *Linker) FindRelated(target models.Item, candidates []models.Item, maxLinks int) []models.RelatedItemScore {
	targetText := target.Title + " " + target.BodyHTML

	var related []models.RelatedItemScore
	for _, candidate := range candidates {
		if candidate.ID == target.ID {
			continue
		}
		if !candidate.Published {
			continue
		}

		score := l.Score(targetText, candidate.Title+" "+candidate.BodyHTML)
		if score <= l.config.RelevanceFloor {
			continue
		}

		related = append(related, models.RelatedItemScore{
			ItemID: candidate.ID,
			Title:  candidate.Title,
			Slug:   candidate.Slug,
			Score:  score,
		})
	}

	sort.Slice(related, func(i, j int) bool {
		return related[i].Score > related[j].Score
	})

	if maxLinks > 0 && len(related) > maxLinks {
		related = related[:maxLinks]
	}

	return related
}
