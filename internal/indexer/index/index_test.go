package index

import (
	"math"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/embedsearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/document"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/query"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.New([]schema.FieldMapping{
		{Name: "title", Type: schema.TextAnalyzed, Stored: true},
		{Name: "isbn", Type: schema.StringExact},
		{Name: "year", Type: schema.Integer, Stored: true},
	})
	require.NoError(t, err)
	return s
}

func TestKeyPreservesOrder(t *testing.T) {
	ids := []int64{math.MinInt64, -5, -1, 0, 1, 1001, math.MaxInt64}
	for i := 1; i < len(ids); i++ {
		assert.Less(t, Key(ids[i-1]), Key(ids[i]))
		assert.Equal(t, ids[i], ID(Key(ids[i])))
	}
}

func TestAnalyze(t *testing.T) {
	doc := document.New(7,
		document.Text("title", "The sea, the sea"),
		document.String("isbn", "978-0"),
		document.Int("year", 1952),
		document.Int("year", 1953),
	)
	a := Analyze(doc, testSchema(t), tokenizer.Standard{})

	assert.Equal(t, map[string]int{"the": 2, "sea": 2}, a.Terms["title"])
	assert.Equal(t, 4, a.Lengths["title"])
	assert.Equal(t, map[string]int{"978-0": 1}, a.Terms["isbn"])
	assert.Equal(t, []int64{1952, 1953}, a.Numbers["year"])

	// isbn is not stored.
	require.Len(t, a.Stored.Fields, 3)
	assert.Empty(t, a.Stored.Get("isbn"))
}

func buildSegment(t *testing.T, docs ...document.Document) *Segment {
	t.Helper()
	s := testSchema(t)
	m := NewMemoryIndex()
	for _, d := range docs {
		m.AddDocument(Analyze(d, s, tokenizer.Standard{}))
	}
	return m.Snapshot()
}

func TestMemoryIndexSnapshotIsSorted(t *testing.T) {
	seg := buildSegment(t,
		document.New(3, document.Text("title", "whale sea"), document.Int("year", 5)),
		document.New(-2, document.Text("title", "sea"), document.Int("year", 5)),
		document.New(1, document.Text("title", "old sea"), document.Int("year", -9)),
	)

	assert.Equal(t, []int64{-2, 1, 3}, seg.IDs)
	terms := seg.Terms["title"]
	require.Len(t, terms, 3)
	assert.Equal(t, "old", terms[0].Term)
	assert.Equal(t, "sea", terms[1].Term)
	assert.Equal(t, PostingList{{-2, 1}, {1, 1}, {3, 1}}, terms[1].Postings)
	assert.Equal(t, []NumericEntry{{-9, 1}, {5, -2}, {5, 3}}, seg.Numerics["year"])
	assert.Equal(t, 2, seg.Lengths["title"][3])
}

func TestNumericRange(t *testing.T) {
	idx := NewNumericIndex([]NumericEntry{{1001, 1}, {1002, 2}, {1003, 3}, {1004, 4}})
	ids := func(es []NumericEntry) []int64 {
		out := make([]int64, 0, len(es))
		for _, e := range es {
			out = append(out, e.DocID)
		}
		return out
	}

	assert.Equal(t, []int64{2, 3}, ids(idx.Range(query.Include[int64](1002), query.Include[int64](1003))))
	assert.Equal(t, []int64{3}, ids(idx.Range(query.Exclude[int64](1002), query.Include[int64](1003))))
	assert.Equal(t, []int64{1, 2}, ids(idx.Range(query.Open[int64](), query.Exclude[int64](1003))))
	assert.Equal(t, []int64{3, 4}, ids(idx.Range(query.Include[int64](1003), query.Open[int64]())))
	assert.Len(t, idx.Range(query.Open[int64](), query.Open[int64]()), 4)
	assert.Empty(t, idx.Range(query.Include[int64](1003), query.Include[int64](1002)))
	assert.Empty(t, idx.Range(query.Exclude[int64](1002), query.Exclude[int64](1002)))
	assert.Empty(t, (*NumericIndex)(nil).Range(query.Open[int64](), query.Open[int64]()))
}

func TestTermRange(t *testing.T) {
	seg := buildSegment(t,
		document.New(1, document.String("isbn", "a")),
		document.New(2, document.String("isbn", "b")),
		document.New(3, document.String("isbn", "bb")),
		document.New(4, document.String("isbn", "c")),
	)
	idx := NewTermIndex(seg.Terms["isbn"], seg.Lengths["isbn"])
	terms := func(es []TermEntry) []string {
		out := make([]string, 0, len(es))
		for _, e := range es {
			out = append(out, e.Term)
		}
		return out
	}

	assert.Equal(t, []string{"b", "bb"}, terms(idx.Range(query.Include("b"), query.Exclude("c"))))
	assert.Equal(t, []string{"bb", "c"}, terms(idx.Range(query.Exclude("b"), query.Open[string]())))
	assert.Equal(t, []string{"a", "b"}, terms(idx.Range(query.Open[string](), query.Include("b"))))
	assert.Empty(t, idx.Range(query.Include("c"), query.Include("a")))

	assert.Equal(t, PostingList{{3, 1}}, idx.Postings("bb"))
	assert.Nil(t, idx.Postings("zz"))
	assert.Equal(t, 4, idx.DocCount())
	assert.InDelta(t, 1.0, idx.AvgLength(), 1e-9)
}

func TestMergeTermsSkipsAndPrefersLaterRuns(t *testing.T) {
	prior := []TermEntry{
		{Term: "old", Postings: PostingList{{1, 1}, {2, 1}}},
		{Term: "sea", Postings: PostingList{{1, 2}, {2, 1}, {4, 1}}},
	}
	fresh := []TermEntry{
		{Term: "man", Postings: PostingList{{3, 1}}},
		{Term: "sea", Postings: PostingList{{2, 5}, {3, 1}}},
	}
	tombstoned := map[int64]bool{1: true, 2: true}

	merged := MergeTerms(
		TermRun{Entries: prior, Skip: func(id int64) bool { return tombstoned[id] }},
		TermRun{Entries: fresh},
	)

	assert.Equal(t, []TermEntry{
		{Term: "man", Postings: PostingList{{3, 1}}},
		{Term: "sea", Postings: PostingList{{2, 5}, {3, 1}, {4, 1}}},
	}, merged)
}

func TestMergeNumeric(t *testing.T) {
	prior := []NumericEntry{{1, 10}, {5, 11}, {9, 12}}
	fresh := []NumericEntry{{5, 2}, {7, 11}}

	merged := MergeNumeric(
		NumericRun{Entries: prior, Skip: func(id int64) bool { return id == 11 }},
		NumericRun{Entries: fresh},
	)

	assert.Equal(t, []NumericEntry{{1, 10}, {5, 2}, {7, 11}, {9, 12}}, merged)
}

func TestMergeEmptyRuns(t *testing.T) {
	assert.Empty(t, MergeTerms())
	assert.Empty(t, MergeTerms(TermRun{}, TermRun{Entries: nil}))
	assert.Empty(t, MergeNumeric(NumericRun{Entries: []NumericEntry{{1, 1}}, Skip: func(int64) bool { return true }}))
}
