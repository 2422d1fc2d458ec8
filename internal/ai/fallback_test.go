package ai

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFallbackTodosMatchesRequestPhrases(t *testing.T) {
	body := "Hi! Can you send me the updated budget by Friday? Also please review the contract draft. We need to schedule the kickoff call."
	todos := FallbackTodos("", body)
	require.Len(t, todos, 3)

	titles := make([]string, len(todos))
	for i, td := range todos {
		titles[i] = strings.ToLower(td.Title)
	}
	assert.Contains(t, titles, "send me the updated budget by friday")
	assert.Contains(t, titles, "review the contract draft")
	assert.Contains(t, titles, "schedule the kickoff call")

	for _, td := range todos {
		assert.Greater(t, td.Confidence, 0.6, "fallback todos must clear the persistence threshold")
		assert.Equal(t, 5, td.Priority)
	}
}

func TestFallbackTodosCapAndDedupe(t *testing.T) {
	var b strings.Builder
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&b, "Can you handle task number %d today. ", i)
	}
	todos := FallbackTodos("", b.String())
	assert.Len(t, todos, 5)

	dup := FallbackTodos("", "Please send the invoice. please send the invoice.")
	assert.Len(t, dup, 1)
}

func TestFallbackTodosNoMatches(t *testing.T) {
	assert.Empty(t, FallbackTodos("weekly notes", "Everything is on track, nothing to report."))
}
