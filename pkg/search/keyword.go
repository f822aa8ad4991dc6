package search

import (
	"fmt"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/oceanbase/powermem-recall/pkg/types"
)

// highlightContext is the number of bytes kept on each side of a match.
const highlightContext = 30

// tokenize lower-cases text, strips punctuation and symbols, splits on white
// space and drops tokens of two characters or fewer.
func tokenize(text string) []string {
	stripped := strings.Map(func(r rune) rune {
		if unicode.IsPunct(r) || unicode.IsSymbol(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, text)

	fields := strings.Fields(stripped)
	tokens := fields[:0]
	for _, f := range fields {
		if utf8.RuneCountInString(f) > 2 {
			tokens = append(tokens, f)
		}
	}
	return tokens
}

// keywordSearch scores records by the share of query tokens found in their
// content (weight 1) and tags (weight 0.5), capped at 1.
func (e *Engine) keywordSearch(q *types.SearchQuery, records []*types.MemoryRecord) []types.SearchResult {
	tokens := tokenize(q.Query)
	if len(tokens) == 0 {
		return nil
	}

	results := make([]types.SearchResult, 0, len(records))
	for _, r := range records {
		content := strings.ToLower(r.Content)
		tags := make([]string, len(r.Tags))
		for i, t := range r.Tags {
			tags[i] = strings.ToLower(t)
		}

		var contentMatches, tagMatches int
		var highlights []string
		for _, tok := range tokens {
			if idx := strings.Index(content, tok); idx >= 0 {
				contentMatches++
				highlights = append(highlights, highlight(r.Content, content, idx, len(tok)))
			}
			for _, tag := range tags {
				if strings.Contains(tag, tok) {
					tagMatches++
					break
				}
			}
		}

		if contentMatches == 0 && tagMatches == 0 {
			continue
		}

		score := math.Min(1, (float64(contentMatches)+0.5*float64(tagMatches))/float64(len(tokens)))
		explanations := []string{fmt.Sprintf("Keyword matches: %d content, %d tags", contentMatches, tagMatches)}
		results = append(results, types.SearchResult{
			Memory:       r,
			Score:        score,
			KeywordScore: floatPtr(score),
			Explanations: explanations,
			Highlights:   highlights,
		})
	}
	return results
}

// highlight cuts a window of highlightContext bytes around a match found at
// idx in lower. The window is taken from original when lower-casing kept the
// byte layout, and widened to rune boundaries.
func highlight(original, lower string, idx, length int) string {
	src := lower
	if len(original) == len(lower) {
		src = original
	}

	start := idx - highlightContext
	if start < 0 {
		start = 0
	}
	end := idx + length + highlightContext
	if end > len(src) {
		end = len(src)
	}
	for start > 0 && !utf8.RuneStart(src[start]) {
		start--
	}
	for end < len(src) && !utf8.RuneStart(src[end]) {
		end++
	}

	snippet := strings.TrimSpace(src[start:end])
	if start > 0 {
		snippet = "..." + snippet
	}
	if end < len(src) {
		snippet += "..."
	}
	return snippet
}
