package ranker

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Adithya-Monish-Kumar-K/embedsearch/internal/indexer/index"
)

func TestIDFIsAlwaysPositive(t *testing.T) {
	assert.Greater(t, computeIDF(10, 10), 0.0)
	assert.Greater(t, computeIDF(1, 1), 0.0)
	assert.InDelta(t, math.Log(1+(10-1+0.5)/1.5), computeIDF(10, 1), 1e-12)
	assert.Greater(t, computeIDF(100, 1), computeIDF(100, 50))
}

func TestTermScorer(t *testing.T) {
	postings := index.PostingList{{DocID: 1, Frequency: 1}, {DocID: 2, Frequency: 3}}
	field := index.NewTermIndex(
		[]index.TermEntry{{Term: "sea", Postings: postings}},
		map[int64]int{1: 10, 2: 10, 3: 10},
	)
	s := NewTermScorer(field, postings)

	assert.Greater(t, s.Score(2), s.Score(1), "higher term frequency scores higher")
	assert.Zero(t, s.Score(3))
	assert.Zero(t, s.Score(42))

	// Same frequency, shorter field wins.
	short := index.NewTermIndex(
		[]index.TermEntry{{Term: "sea", Postings: index.PostingList{{DocID: 1, Frequency: 1}, {DocID: 2, Frequency: 1}}}},
		map[int64]int{1: 2, 2: 20},
	)
	ss := NewTermScorer(short, short.Postings("sea"))
	assert.Greater(t, ss.Score(1), ss.Score(2))
}

func TestBetterOrdering(t *testing.T) {
	assert.True(t, Better(ScoredDoc{DocID: 9, Score: 2}, ScoredDoc{DocID: 1, Score: 1}))
	assert.True(t, Better(ScoredDoc{DocID: -1, Score: 1}, ScoredDoc{DocID: 4, Score: 1}), "ties go to the lower id")
	assert.False(t, Better(ScoredDoc{DocID: 4, Score: 1}, ScoredDoc{DocID: 4, Score: 1}))
}
