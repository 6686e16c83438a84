package benchmark

import (
	"context"
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/document"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/query"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/searcher"
)

func library(b *testing.B, n int) *searcher.Searcher {
	b.Helper()
	ctx := context.Background()
	s, err := searcher.Open("", mappings)
	if err != nil {
		b.Fatal(err)
	}
	batch := make([]document.Document, 0, 1000)
	for i := 0; i < n; i++ {
		batch = append(batch, book(int64(i)))
		if len(batch) == cap(batch) {
			if err := s.AddDocuments(ctx, batch, false); err != nil {
				b.Fatal(err)
			}
			batch = batch[:0]
		}
	}
	if err := s.AddDocuments(ctx, batch, false); err != nil {
		b.Fatal(err)
	}
	if err := s.Commit(ctx); err != nil {
		b.Fatal(err)
	}
	return s
}

func BenchmarkTextSearch(b *testing.B) {
	ctx := context.Background()
	for _, n := range []int{1000, 10000, 100000} {
		b.Run(fmt.Sprintf("docs_%d", n), func(b *testing.B) {
			s := library(b, n)
			defer s.Close()
			param := searcher.SearchParam{Limit: 10}
			b.ReportAllocs()
			b.ResetTimer()
			for i := 0; i < b.N; i++ {
				if _, err := s.Search(ctx, vocabulary[i%len(vocabulary)]+" harbor", nil, param); err != nil {
					b.Fatal(err)
				}
			}
		})
	}
}

func BenchmarkBooleanQuery(b *testing.B) {
	ctx := context.Background()
	s := library(b, 20000)
	defer s.Close()

	sea, err := s.TermQuery("body", "sea")
	if err != nil {
		b.Fatal(err)
	}
	years, err := s.RangeQueryLong("year", query.Include[int64](1850), query.Exclude[int64](1950))
	if err != nil {
		b.Fatal(err)
	}
	q := query.All(sea, years, &query.Boolean{Clauses: []query.OccurEntry{
		query.NewOccurEntry(query.MustNot, &query.Term{Field: "genre", Text: "poetry"}),
	}})
	param := searcher.SearchParam{Limit: 20, SkipFields: true}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := s.SearchByQuery(ctx, q, param); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSearchParallel(b *testing.B) {
	ctx := context.Background()
	s := library(b, 10000)
	defer s.Close()
	param := searcher.SearchParam{Limit: 10}

	b.ReportAllocs()
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			if _, err := s.Search(ctx, vocabulary[i%len(vocabulary)], []string{"title"}, param); err != nil {
				b.Error(err)
				return
			}
			i++
		}
	})
}
