// Package ranker implements Okapi BM25 term scoring with per-field length
// normalisation.
package ranker

import (
	"math"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/embedsearch/internal/indexer/index"
)

const (
	k1 = 1.2
	b  = 0.75

	// ConstantScore is what range leaves contribute per matching document.
	ConstantScore = 1.0
)

type ScoredDoc struct {
	DocID int64   `json:"id"`
	Score float64 `json:"score"`
}

// TermScorer scores the documents of one term's posting list within one
// field.
type TermScorer struct {
	postings  index.PostingList
	field     *index.TermIndex
	idf       float64
	avgLength float64
}

// NewTermScorer prepares BM25 scoring of postings against the statistics
// of field. The number of documents holding the field stands in for N.
func NewTermScorer(field *index.TermIndex, postings index.PostingList) *TermScorer {
	return &TermScorer{
		postings:  postings,
		field:     field,
		idf:       computeIDF(int64(field.DocCount()), int64(len(postings))),
		avgLength: field.AvgLength(),
	}
}

// Score returns the BM25 contribution of the term to docID, or 0 when the
// document does not hold the term.
func (s *TermScorer) Score(docID int64) float64 {
	i := sort.Search(len(s.postings), func(i int) bool {
		return s.postings[i].DocID >= docID
	})
	if i == len(s.postings) || s.postings[i].DocID != docID {
		return 0
	}
	tf := computeTFNorm(
		float64(s.postings[i].Frequency),
		float64(s.field.Length(docID)),
		s.avgLength,
	)
	return s.idf * tf
}

// Better reports whether a ranks ahead of b.
func Better(a, b ScoredDoc) bool {
	if a.Score != b.Score {
		return a.Score > b.Score
	}
	return a.DocID < b.DocID
}

// computeIDF is the BM25 idf with the +1 inside the log, which keeps it
// positive even for terms held by every document.
func computeIDF(totalDocs int64, docFreq int64) float64 {
	numerator := float64(totalDocs) - float64(docFreq) + 0.5
	denominator := float64(docFreq) + 0.5
	return math.Log(1 + numerator/denominator)
}

func computeTFNorm(termFreq float64, docLength float64, avgDocLength float64) float64 {
	if avgDocLength == 0 {
		return 0
	}
	lengthRatio := docLength / avgDocLength
	denominator := termFreq + k1*(1-b+b*lengthRatio)
	return (termFreq * (k1 + 1)) / denominator
}
