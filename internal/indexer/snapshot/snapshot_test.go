package snapshot

import (
	"context"
	"testing"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/embedsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/document"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/query"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/schema"
)

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.New([]schema.FieldMapping{
		{Name: "title", Type: schema.TextAnalyzed, Stored: true},
		{Name: "year", Type: schema.Integer},
	})
	require.NoError(t, err)
	return s
}

func segmentOf(s *schema.Schema, docs ...document.Document) *index.Segment {
	m := index.NewMemoryIndex()
	for _, d := range docs {
		m.AddDocument(index.Analyze(d, s, tokenizer.Standard{}))
	}
	return m.Snapshot()
}

func TestNextMergesAndDropsTombstones(t *testing.T) {
	s := testSchema(t)
	ctx := context.Background()

	first, err := Next(ctx, Empty(s), nil, segmentOf(s,
		document.New(1, document.Text("title", "The Old Man and the Sea"), document.Int("year", 1001)),
		document.New(2, document.Text("title", "Frankenstein"), document.Int("year", 1002)),
	))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), first.Generation)
	assert.Equal(t, uint64(2), first.DocCount())

	tomb := roaring64.New()
	tomb.Add(index.Key(1))
	second, err := Next(ctx, first, tomb, segmentOf(s,
		document.New(1, document.Text("title", "The Sea"), document.Int("year", 2001)),
		document.New(3, document.Text("title", "Moby Dick"), document.Int("year", 1003)),
	))
	require.NoError(t, err)

	assert.Equal(t, uint64(2), second.Generation)
	assert.Equal(t, []int64{1, 2, 3}, second.IDs())
	assert.Nil(t, second.Term("title").Postings("old"))
	assert.Equal(t, index.PostingList{{DocID: 1, Frequency: 1}}, second.Term("title").Postings("sea"))
	assert.Equal(t, 2, second.Term("title").Length(1))

	years := second.Numeric("year").Range(query.Include[int64](1001), query.Include[int64](1003))
	require.Len(t, years, 2)
	assert.Equal(t, int64(2), years[0].DocID)
	assert.Equal(t, int64(3), years[1].DocID)

	doc, ok := second.Document(1)
	require.True(t, ok)
	assert.Equal(t, "The Sea", doc.Get("title")[0].Text)

	// The prior generation is untouched.
	assert.Equal(t, index.PostingList{{DocID: 1, Frequency: 1}}, first.Term("title").Postings("old"))
	assert.True(t, first.Contains(1))
	assert.False(t, first.Contains(3))
}

func TestNextDeleteOnly(t *testing.T) {
	s := testSchema(t)
	ctx := context.Background()
	first, err := Next(ctx, Empty(s), nil, segmentOf(s,
		document.New(1, document.Text("title", "sea")),
	))
	require.NoError(t, err)

	tomb := roaring64.New()
	tomb.Add(index.Key(1))
	second, err := Next(ctx, first, tomb, nil)
	require.NoError(t, err)

	assert.Zero(t, second.DocCount())
	assert.Nil(t, second.Term("title"))
	_, ok := second.Document(1)
	assert.False(t, ok)
}

func TestNextHonoursCancellation(t *testing.T) {
	s := testSchema(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Next(ctx, Empty(s), nil, segmentOf(s, document.New(1, document.Text("title", "sea"))))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStats(t *testing.T) {
	s := testSchema(t)
	snap, err := Next(context.Background(), Empty(s), nil, segmentOf(s,
		document.New(1, document.Text("title", "old sea"), document.Int("year", 1), document.Int("year", 2)),
		document.New(2, document.Text("title", "sea")),
	))
	require.NoError(t, err)

	st := snap.Stats()
	assert.Equal(t, uint64(2), st.Documents)
	assert.Equal(t, FieldStats{Type: "text", Terms: 2, Docs: 2, AvgLength: 1.5}, st.Fields["title"])
	assert.Equal(t, FieldStats{Type: "integer", Docs: 1, Values: 2}, st.Fields["year"])
}
