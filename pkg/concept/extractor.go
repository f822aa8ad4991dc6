// Package concept provides the concept extractor consumed by conceptual
// search: mining concepts from text, expanding them with variants, and
// scoring concept-to-concept similarity.
package concept

import (
	"context"
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
)

// Extractor defines the interface for concept extractors.
type Extractor interface {
	// Extract mines the concepts of a text.
	Extract(ctx context.Context, text string) ([]string, error)

	// Expand returns the concepts plus their variants.
	Expand(ctx context.Context, concepts []string) ([]string, error)

	// Similarity scores two concepts in [0, 1].
	Similarity(a, b string) float64
}

// RuleExtractor is the default, dependency-free extractor.
//
// Concepts are the distinct lower-cased words of a text longer than two
// characters that are not stop words, in order of first appearance.
// Expansion adds naive plural/singular variants. Similarity is
// 1 - levenshtein(a, b) / max(len(a), len(b)).
type RuleExtractor struct {
	stopWords map[string]struct{}
}

// NewRuleExtractor creates a rule-based extractor with the built-in English
// stop word list.
func NewRuleExtractor() *RuleExtractor {
	stop := make(map[string]struct{}, len(defaultStopWords))
	for _, w := range defaultStopWords {
		stop[w] = struct{}{}
	}
	return &RuleExtractor{stopWords: stop}
}

// Extract returns the distinct content words of text.
func (e *RuleExtractor) Extract(ctx context.Context, text string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{})
	var concepts []string
	for _, w := range Words(text) {
		if len(w) <= 2 {
			continue
		}
		if _, stop := e.stopWords[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		concepts = append(concepts, w)
	}
	return concepts, nil
}

// Expand returns concepts followed by their plural/singular variants,
// without duplicates.
func (e *RuleExtractor) Expand(ctx context.Context, concepts []string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(concepts)*2)
	out := make([]string, 0, len(concepts)*2)
	add := func(c string) {
		if c == "" {
			return
		}
		if _, ok := seen[c]; ok {
			return
		}
		seen[c] = struct{}{}
		out = append(out, c)
	}

	for _, c := range concepts {
		add(c)
	}
	for _, c := range concepts {
		for _, v := range variants(c) {
			add(v)
		}
	}
	return out, nil
}

// Similarity returns the normalized Levenshtein similarity of a and b.
func (e *RuleExtractor) Similarity(a, b string) float64 {
	return LevenshteinSimilarity(a, b)
}

// LevenshteinSimilarity returns 1 - distance / max(len(a), len(b)) over
// lower-cased runes. Two empty strings are identical.
func LevenshteinSimilarity(a, b string) float64 {
	a, b = strings.ToLower(a), strings.ToLower(b)
	if a == b {
		return 1
	}
	longest := len([]rune(a))
	if n := len([]rune(b)); n > longest {
		longest = n
	}
	if longest == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(longest)
}

// Words lower-cases text and splits it on anything that is not a letter or
// digit.
func Words(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func variants(c string) []string {
	switch {
	case strings.HasSuffix(c, "ies") && len(c) > 4:
		return []string{strings.TrimSuffix(c, "ies") + "y"}
	case strings.HasSuffix(c, "ss"):
		return []string{c + "es"}
	case strings.HasSuffix(c, "s") && len(c) > 3:
		return []string{strings.TrimSuffix(c, "s")}
	case strings.HasSuffix(c, "y") && len(c) > 3 && !isVowel(c[len(c)-2]):
		return []string{strings.TrimSuffix(c, "y") + "ies"}
	default:
		return []string{c + "s"}
	}
}

func isVowel(b byte) bool {
	return strings.IndexByte("aeiou", b) >= 0
}

var defaultStopWords = []string{
	"the", "and", "for", "are", "but", "not", "you", "all", "any", "can",
	"had", "her", "was", "one", "our", "out", "has", "have", "him", "his",
	"how", "its", "may", "new", "now", "old", "see", "two", "way", "who",
	"did", "get", "got", "let", "say", "she", "too", "use", "that", "with",
	"this", "from", "they", "will", "would", "there", "their", "what",
	"about", "which", "when", "were", "been", "being", "into", "than",
	"then", "them", "these", "those", "some", "such", "very", "just",
	"also", "over", "only", "your", "each", "could", "should", "because",
	"while", "where", "after", "before", "again", "further", "here",
	"more", "most", "other", "same", "both", "few", "own", "does", "doing",
}
