package keywords

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractFiltersStopwordsAndShortWords(t *testing.T) {
	got := Extract("Can you send the budget report for the quarterly review", 10)
	assert.Contains(t, got, "budget")
	assert.Contains(t, got, "report")
	assert.Contains(t, got, "quarterly")
	assert.NotContains(t, got, "the")
	assert.NotContains(t, got, "you")
	assert.NotContains(t, got, "can")
	assert.NotContains(t, got, "for", "words of three letters or fewer are dropped")
}

func TestExtractRanksByFrequency(t *testing.T) {
	got := Extract("deadline deadline deadline budget budget meeting", 2)
	assert.Equal(t, []string{"deadline", "budget"}, got)
}

func TestExtractDeterministicTieBreak(t *testing.T) {
	a := Extract("zebra apple zebra apple mango mango", 3)
	for i := 0; i < 10; i++ {
		assert.Equal(t, a, Extract("zebra apple zebra apple mango mango", 3))
	}
	assert.Equal(t, []string{"apple", "mango", "zebra"}, a)
}

func TestExtractEmptyAndLimit(t *testing.T) {
	assert.Nil(t, Extract("", 5))
	assert.Nil(t, Extract("the a an of", 5))
	assert.Nil(t, Extract("anything", 0))
	assert.Len(t, Extract("alpha1 beta2 gamma3 delta4 epsilon5", 3), 3)
}

func TestExtractNormalizesCaseAndPunctuation(t *testing.T) {
	got := Extract("Budget, BUDGET! budget?", 5)
	assert.Equal(t, []string{"budget"}, got)
}
