package benchmark

import (
	"fmt"
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/embedsearch/internal/indexer/tokenizer"
)

var sampleTexts = map[string]string{
	"short": "The Old Man and the Sea",
	"medium": `Santiago is an aging, experienced fisherman who has gone eighty-four
        days without catching a fish. He is so unlucky that his young apprentice,
        Manolin, has been forbidden by his parents to sail with him and has been
        told instead to fish with successful fishermen.`,
	"long": strings.Repeat(`Sometimes the monster reflects on the inverted relations
        between creator and created, asking why the scientist abandoned him. The
        narrative nests letters within recollections within confessions, and each
        frame alters how the reader weighs the testimony that follows. `, 20),
}

func BenchmarkAnalyze(b *testing.B) {
	for _, a := range []tokenizer.Analyzer{tokenizer.Standard{}, tokenizer.English{}} {
		for name, text := range sampleTexts {
			b.Run(a.Name()+"/"+name, func(b *testing.B) {
				b.ReportAllocs()
				b.SetBytes(int64(len(text)))
				for i := 0; i < b.N; i++ {
					_ = a.Tokenize(text)
				}
			})
		}
	}
}

func BenchmarkAnalyzeParallel(b *testing.B) {
	text := sampleTexts["medium"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = tokenizer.Terms(tokenizer.English{}, text)
		}
	})
}

func BenchmarkAnalyzeVaryingSize(b *testing.B) {
	base := "the sea wolf and the modern prometheus "
	for _, size := range []int{10, 100, 1000, 10000} {
		text := strings.Repeat(base, size/len(base)+1)[:size]
		b.Run(fmt.Sprintf("bytes_%d", size), func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for i := 0; i < b.N; i++ {
				_ = tokenizer.Standard{}.Tokenize(text)
			}
		})
	}
}
