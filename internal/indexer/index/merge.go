package index

import (
	"cmp"
	"container/heap"
	"strings"
)

// TermRun is one sorted input of a dictionary merge. Postings whose doc id
// Skip reports are left out of the result.
type TermRun struct {
	Entries []TermEntry
	Skip    func(docID int64) bool
}

// NumericRun is one sorted input of a numeric column merge.
type NumericRun struct {
	Entries []NumericEntry
	Skip    func(docID int64) bool
}

// MergeTerms k-way merges sorted dictionaries into a new one. When two runs
// hold a posting for the same (term, doc id), the later run wins. Terms
// left with no postings are dropped.
func MergeTerms(runs ...TermRun) []TermEntry {
	inputs := make([][]TermEntry, len(runs))
	for i, r := range runs {
		inputs[i] = r.Entries
	}
	var out []TermEntry
	kway(inputs, func(a, b TermEntry) int { return strings.Compare(a.Term, b.Term) },
		func(group []TermEntry, from []int) {
			term := group[0].Term
			lists := make([][]Posting, len(group))
			for i, e := range group {
				lists[i] = e.Postings
			}
			var merged PostingList
			kway(lists, func(a, b Posting) int { return cmp.Compare(a.DocID, b.DocID) },
				func(ps []Posting, idx []int) {
					for k := len(ps) - 1; k >= 0; k-- {
						if run := runs[from[idx[k]]]; run.Skip == nil || !run.Skip(ps[k].DocID) {
							merged = append(merged, ps[k])
							return
						}
					}
				})
			if len(merged) > 0 {
				out = append(out, TermEntry{Term: term, Postings: merged})
			}
		})
	return out
}

// MergeNumeric k-way merges sorted numeric columns into a new one.
func MergeNumeric(runs ...NumericRun) []NumericEntry {
	inputs := make([][]NumericEntry, len(runs))
	for i, r := range runs {
		inputs[i] = r.Entries
	}
	var out []NumericEntry
	kway(inputs, compareNumeric, func(group []NumericEntry, from []int) {
		for k := len(group) - 1; k >= 0; k-- {
			if run := runs[from[k]]; run.Skip == nil || !run.Skip(group[k].DocID) {
				out = append(out, group[k])
				return
			}
		}
	})
	return out
}

// kway walks runs, each sorted by compare, in ascending order and calls
// emit once per distinct key with the equal items and the index of the run
// each came from, in run order. emit must not retain its slices.
func kway[T any](runs [][]T, compare func(a, b T) int, emit func(items []T, from []int)) {
	h := &mergeHeap[T]{compare: compare}
	for i, r := range runs {
		if len(r) > 0 {
			h.cursors = append(h.cursors, &mergeCursor[T]{items: r, run: i})
		}
	}
	heap.Init(h)
	var (
		group []T
		from  []int
	)
	for h.Len() > 0 {
		group, from = group[:0], from[:0]
		key := h.cursors[0].head()
		for h.Len() > 0 {
			c := h.cursors[0]
			if compare(c.head(), key) != 0 {
				break
			}
			group = append(group, c.head())
			from = append(from, c.run)
			c.pos++
			if c.pos == len(c.items) {
				heap.Pop(h)
			} else {
				heap.Fix(h, 0)
			}
		}
		emit(group, from)
	}
}

type mergeCursor[T any] struct {
	items []T
	pos   int
	run   int
}

func (c *mergeCursor[T]) head() T { return c.items[c.pos] }

type mergeHeap[T any] struct {
	cursors []*mergeCursor[T]
	compare func(a, b T) int
}

func (h *mergeHeap[T]) Len() int { return len(h.cursors) }

func (h *mergeHeap[T]) Less(i, j int) bool {
	a, b := h.cursors[i], h.cursors[j]
	if c := h.compare(a.head(), b.head()); c != 0 {
		return c < 0
	}
	return a.run < b.run
}

func (h *mergeHeap[T]) Swap(i, j int) { h.cursors[i], h.cursors[j] = h.cursors[j], h.cursors[i] }

func (h *mergeHeap[T]) Push(x any) {
	h.cursors = append(h.cursors, x.(*mergeCursor[T]))
}

func (h *mergeHeap[T]) Pop() any {
	old := h.cursors
	n := len(old)
	item := old[n-1]
	h.cursors = old[:n-1]
	return item
}
