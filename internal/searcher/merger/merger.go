// Package merger keeps the best-k scored documents with a bounded heap.
package merger

import (
	"container/heap"

	"github.com/Adithya-Monish-Kumar-K/embedsearch/internal/searcher/ranker"
)

// TopK collects scored documents and retains the limit best ones, ranked by
// descending score, then ascending id.
type TopK struct {
	limit int
	h     scoredDocHeap
	seen  int
}

// NewTopK creates a collector for the limit best documents. limit must be
// positive.
func NewTopK(limit int) *TopK {
	return &TopK{limit: limit, h: make(scoredDocHeap, 0, min(limit, 1024))}
}

func (t *TopK) Push(doc ranker.ScoredDoc) {
	t.seen++
	if t.h.Len() < t.limit {
		heap.Push(&t.h, doc)
		return
	}
	// The root is the worst document kept so far.
	if ranker.Better(doc, t.h[0]) {
		t.h[0] = doc
		heap.Fix(&t.h, 0)
	}
}

// Seen is the number of documents pushed.
func (t *TopK) Seen() int { return t.seen }

// Results drains the collector, best first.
func (t *TopK) Results() []ranker.ScoredDoc {
	result := make([]ranker.ScoredDoc, t.h.Len())
	for i := len(result) - 1; i >= 0; i-- {
		result[i] = heap.Pop(&t.h).(ranker.ScoredDoc)
	}
	return result
}

// scoredDocHeap is a min-heap: the root ranks worst.
type scoredDocHeap []ranker.ScoredDoc

func (h scoredDocHeap) Len() int { return len(h) }

func (h scoredDocHeap) Less(i, j int) bool {
	if h[i].Score != h[j].Score {
		return h[i].Score < h[j].Score
	}
	return h[i].DocID > h[j].DocID
}

func (h scoredDocHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *scoredDocHeap) Push(x interface{}) {
	*h = append(*h, x.(ranker.ScoredDoc))
}

func (h *scoredDocHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
