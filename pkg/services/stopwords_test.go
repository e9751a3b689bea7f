package services

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsCommonWord(t *testing.T) {
	assert.True(t, IsCommonWord("show"))
	assert.True(t, IsCommonWord("SHOW"))
	assert.True(t, IsCommonWord("Unmatched"))
	assert.True(t, IsCommonWord("records"))

	assert.False(t, IsCommonWord("brz_lnd_RBP_GPU"))
	assert.False(t, IsCommonWord("materials"))
	assert.False(t, IsCommonWord(""))
}

func TestStopWordsSortedAndComplete(t *testing.T) {
	words := StopWords()

	assert.True(t, sort.StringsAreSorted(words))
	assert.Contains(t, words, "show")
	assert.Contains(t, words, "not")
	assert.Contains(t, words, "table")

	// Every listed stop word round-trips through the membership check.
	for _, w := range words {
		assert.True(t, IsCommonWord(w), "word %q", w)
	}
}
