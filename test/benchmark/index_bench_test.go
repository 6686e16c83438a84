// Package benchmark measures analysis, commit and search throughput of the
// engine.
package benchmark

import (
	"context"
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/embedsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/internal/indexer/snapshot"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/document"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/schema"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/searcher"
)

var vocabulary = []string{"sea", "whale", "monster", "creator", "island", "voyage", "storm", "harbor", "lantern", "compass"}

var mappings = []schema.FieldMapping{
	{Name: "title", Type: schema.TextAnalyzed, Stored: true},
	{Name: "body", Type: schema.TextAnalyzed},
	{Name: "genre", Type: schema.StringExact, Stored: true},
	{Name: "year", Type: schema.Integer},
}

func benchSchema(b *testing.B) *schema.Schema {
	b.Helper()
	s, err := schema.New(mappings)
	if err != nil {
		b.Fatal(err)
	}
	return s
}

func book(id int64) document.Document {
	w := func(k int64) string { return vocabulary[(id+k)%int64(len(vocabulary))] }
	return document.New(id,
		document.Text("title", fmt.Sprintf("The %s and the %s", w(0), w(1))),
		document.Text("body", fmt.Sprintf("a tale of the %s, the %s and the %s told at the %s", w(2), w(3), w(5), w(7))),
		document.String("genre", []string{"novel", "novella", "poetry"}[id%3]),
		document.Int("year", 1800+id%200),
	)
}

func BenchmarkMemoryIndexAdd(b *testing.B) {
	s := benchSchema(b)
	m := index.NewMemoryIndex()
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		m.AddDocument(index.Analyze(book(int64(i)), s, tokenizer.Standard{}))
	}
}

func BenchmarkMemoryIndexSnapshot(b *testing.B) {
	s := benchSchema(b)
	m := index.NewMemoryIndex()
	for i := 0; i < 5000; i++ {
		m.AddDocument(index.Analyze(book(int64(i)), s, tokenizer.Standard{}))
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = m.Snapshot()
	}
}

// BenchmarkSnapshotMerge folds a fixed pending batch into prior snapshots
// of growing size.
func BenchmarkSnapshotMerge(b *testing.B) {
	ctx := context.Background()
	s := benchSchema(b)
	for _, prior := range []int{1000, 10000, 50000} {
		b.Run(fmt.Sprintf("prior_%d", prior), func(b *testing.B) {
			m := index.NewMemoryIndex()
			for i := 0; i < prior; i++ {
				m.AddDocument(index.Analyze(book(int64(i)), s, tokenizer.Standard{}))
			}
			base, err := snapshot.Next(ctx, snapshot.Empty(s), nil, m.Snapshot())
			if err != nil {
				b.Fatal(err)
			}
			fresh := index.NewMemoryIndex()
			for i := prior; i < prior+500; i++ {
				fresh.AddDocument(index.Analyze(book(int64(i)), s, tokenizer.Standard{}))
			}
			seg := fresh.Snapshot()

			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := snapshot.Next(ctx, base, nil, seg); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkCommitToDisk(b *testing.B) {
	ctx := context.Background()
	for _, codec := range []string{"none", "zstd", "lz4"} {
		b.Run(codec, func(b *testing.B) {
			s, err := searcher.Open(b.TempDir(), mappings, searcher.WithCompression(codec))
			if err != nil {
				b.Fatal(err)
			}
			defer s.Close()
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				batch := make([]document.Document, 100)
				for j := range batch {
					batch[j] = book(int64(i*100 + j))
				}
				if err := s.AddDocuments(ctx, batch, false); err != nil {
					b.Fatal(err)
				}
				if err := s.Commit(ctx); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}
