package index

import (
	"sort"

	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/query"
)

// TermIndex is the immutable dictionary of one text or string field:
// entries sorted by term, plus the per-document field lengths BM25
// normalises against.
type TermIndex struct {
	entries     []TermEntry
	lengths     map[int64]int
	totalTokens int64
}

// NewTermIndex takes ownership of entries, which must be sorted by term
// with each posting list sorted by doc id.
func NewTermIndex(entries []TermEntry, lengths map[int64]int) *TermIndex {
	if lengths == nil {
		lengths = make(map[int64]int)
	}
	t := &TermIndex{entries: entries, lengths: lengths}
	for _, n := range lengths {
		t.totalTokens += int64(n)
	}
	return t
}

func (t *TermIndex) find(term string) (int, bool) {
	i := sort.Search(len(t.entries), func(i int) bool {
		return t.entries[i].Term >= term
	})
	return i, i < len(t.entries) && t.entries[i].Term == term
}

// Postings returns the postings of term, or nil when the field never holds it.
func (t *TermIndex) Postings(term string) PostingList {
	if t == nil {
		return nil
	}
	i, ok := t.find(term)
	if !ok {
		return nil
	}
	return t.entries[i].Postings
}

// Range returns the entries whose term sorts between lower and upper by
// byte order. The returned slice aliases the index and must not be modified.
func (t *TermIndex) Range(lower, upper query.Bound[string]) []TermEntry {
	if t == nil || query.Empty(lower, upper) {
		return nil
	}
	start, end := window(len(t.entries), func(i int) string { return t.entries[i].Term }, lower, upper)
	if start >= end {
		return nil
	}
	return t.entries[start:end]
}

// Entries returns the whole dictionary in term order.
func (t *TermIndex) Entries() []TermEntry {
	if t == nil {
		return nil
	}
	return t.entries
}

// Lengths returns the field length of every document holding the field.
// Callers must not modify the map.
func (t *TermIndex) Lengths() map[int64]int {
	if t == nil {
		return nil
	}
	return t.lengths
}

func (t *TermIndex) Terms() int {
	if t == nil {
		return 0
	}
	return len(t.entries)
}

// DocCount is the number of documents holding the field.
func (t *TermIndex) DocCount() int {
	if t == nil {
		return 0
	}
	return len(t.lengths)
}

func (t *TermIndex) Length(docID int64) int {
	if t == nil {
		return 0
	}
	return t.lengths[docID]
}

func (t *TermIndex) AvgLength() float64 {
	if t == nil || len(t.lengths) == 0 {
		return 0
	}
	return float64(t.totalTokens) / float64(len(t.lengths))
}
