// Package keywords extracts the salient words of a message: lowercased,
// stopword-filtered, ranked by frequency. The tracker nudges preference
// weights on these, so extraction must be deterministic.
package keywords

import (
	"sort"
	"strings"
	"unicode"

	"github.com/orsinium-labs/stopwords"
)

var english = stopwords.MustGet("en")

// Extract returns up to limit salient keywords from text, most frequent
// first. Ties break alphabetically so repeated calls agree.
func Extract(text string, limit int) []string {
	if limit <= 0 {
		return nil
	}

	counts := make(map[string]int)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r) && r != '-'
	})
	for _, w := range words {
		w = strings.Trim(w, "-")
		if len(w) <= 3 {
			continue
		}
		if english.Contains(w) {
			continue
		}
		counts[w]++
	}
	if len(counts) == 0 {
		return nil
	}

	ranked := make([]string, 0, len(counts))
	for w := range counts {
		ranked = append(ranked, w)
	}
	sort.Slice(ranked, func(i, j int) bool {
		if counts[ranked[i]] != counts[ranked[j]] {
			return counts[ranked[i]] > counts[ranked[j]]
		}
		return ranked[i] < ranked[j]
	})
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
