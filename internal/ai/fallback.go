package ai

import (
	"regexp"
	"strings"
)

// Request-shaped phrases that usually carry an action item. Ordered so the
// most explicit forms win when a sentence matches several.
var todoPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bcan you\s+([^.!?\n]{4,100})`),
	regexp.MustCompile(`(?i)\bcould you\s+([^.!?\n]{4,100})`),
	regexp.MustCompile(`(?i)\bplease\s+([^.!?\n]{4,100})`),
	regexp.MustCompile(`(?i)\b(?:you|we|i) need to\s+([^.!?\n]{4,100})`),
	regexp.MustCompile(`(?i)\bdon't forget to\s+([^.!?\n]{4,100})`),
	regexp.MustCompile(`(?i)\bremember to\s+([^.!?\n]{4,100})`),
}

const (
	maxFallbackTodos     = 5
	fallbackConfidence   = 0.7
	fallbackTodoPriority = 5
)

// FallbackTodos is the degraded todo-extraction path used when no analysis
// service is configured. It pattern-matches request phrasing in the message
// text; crude, but it keeps the feature alive without a model.
func FallbackTodos(subject, body string) []TodoCandidate {
	text := subject + "\n" + body
	seen := make(map[string]bool)
	var out []TodoCandidate
	for _, re := range todoPatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			title := strings.TrimSpace(strings.TrimRight(m[1], " ,;:"))
			if title == "" {
				continue
			}
			key := strings.ToLower(title)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, TodoCandidate{
				Title:      title,
				Priority:   fallbackTodoPriority,
				Confidence: fallbackConfidence,
			})
			if len(out) >= maxFallbackTodos {
				return out
			}
		}
	}
	return out
}
