package index

import (
	"cmp"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/query"
)

// NumericIndex is the immutable sorted column of one integer field.
type NumericIndex struct {
	entries []NumericEntry
}

// NewNumericIndex takes ownership of entries, which must be sorted by
// value, then doc id.
func NewNumericIndex(entries []NumericEntry) *NumericIndex {
	return &NumericIndex{entries: entries}
}

// Range returns the entries whose value lies between lower and upper. The
// returned slice aliases the index and must not be modified.
func (n *NumericIndex) Range(lower, upper query.Bound[int64]) []NumericEntry {
	if n == nil || query.Empty(lower, upper) {
		return nil
	}
	start, end := window(len(n.entries), func(i int) int64 { return n.entries[i].Value }, lower, upper)
	if start >= end {
		return nil
	}
	return n.entries[start:end]
}

// window returns the [start, end) positions of n ascending keys that
// satisfy both bounds.
func window[T cmp.Ordered](n int, key func(i int) T, lower, upper query.Bound[T]) (int, int) {
	start := sort.Search(n, func(i int) bool { return lower.AboveLower(key(i)) })
	end := sort.Search(n, func(i int) bool { return !upper.BelowUpper(key(i)) })
	return start, end
}

func (n *NumericIndex) Entries() []NumericEntry {
	if n == nil {
		return nil
	}
	return n.entries
}

func (n *NumericIndex) Len() int {
	if n == nil {
		return 0
	}
	return len(n.entries)
}
