package index

import (
	"sort"

	"github.com/Adithya-Monish-Kumar-K/embedsearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/document"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/schema"
)

// Analyzed is a validated document broken down into what the index stores:
// term frequencies and lengths per text/string field, values per integer
// field, and the stored-field projection.
type Analyzed struct {
	ID      int64
	Terms   map[string]map[string]int
	Lengths map[string]int
	Numbers map[string][]int64
	Stored  document.Document
}

// Analyze breaks doc down under s. doc must already be valid for s.
func Analyze(doc document.Document, s *schema.Schema, analyzer tokenizer.Analyzer) Analyzed {
	a := Analyzed{
		ID:      doc.ID,
		Terms:   make(map[string]map[string]int),
		Lengths: make(map[string]int),
		Numbers: make(map[string][]int64),
		Stored:  document.Document{ID: doc.ID},
	}
	for _, f := range doc.Fields {
		m, ok := s.Field(f.Name)
		if !ok {
			continue
		}
		if m.Stored {
			a.Stored.Fields = append(a.Stored.Fields, f)
		}
		switch m.Type {
		case schema.TextAnalyzed:
			a.addTerms(f.Name, tokenizer.Terms(analyzer, f.Text))
		case schema.StringExact:
			a.addTerms(f.Name, []string{f.Text})
		case schema.Integer:
			a.Numbers[f.Name] = append(a.Numbers[f.Name], f.Int)
		}
	}
	return a
}

func (a *Analyzed) addTerms(field string, terms []string) {
	freqs, ok := a.Terms[field]
	if !ok {
		freqs = make(map[string]int)
		a.Terms[field] = freqs
	}
	for _, term := range terms {
		freqs[term]++
	}
	a.Lengths[field] += len(terms)
}

// Segment is the sorted, immutable form of a batch of pending documents,
// ready to be merged into a snapshot.
type Segment struct {
	Terms    map[string][]TermEntry
	Lengths  map[string]map[int64]int
	Numerics map[string][]NumericEntry
	Stored   map[int64]document.Document
	IDs      []int64
}

// MemoryIndex accumulates analyzed documents and sorts them into a Segment.
// It is not safe for concurrent use; the engine builds one per commit under
// its writer lock.
type MemoryIndex struct {
	index    map[string]map[string]map[int64]int
	lengths  map[string]map[int64]int
	numerics map[string][]NumericEntry
	stored   map[int64]document.Document
	ids      []int64
}

func NewMemoryIndex() *MemoryIndex {
	m := &MemoryIndex{}
	m.Reset()
	return m
}

// AddDocument adds a. Adding the same id twice is a caller error.
func (m *MemoryIndex) AddDocument(a Analyzed) {
	for field, freqs := range a.Terms {
		terms, ok := m.index[field]
		if !ok {
			terms = make(map[string]map[int64]int)
			m.index[field] = terms
		}
		for term, freq := range freqs {
			docs, ok := terms[term]
			if !ok {
				docs = make(map[int64]int)
				terms[term] = docs
			}
			docs[a.ID] = freq
		}
		if _, ok := m.lengths[field]; !ok {
			m.lengths[field] = make(map[int64]int)
		}
		m.lengths[field][a.ID] = a.Lengths[field]
	}
	for field, values := range a.Numbers {
		for _, v := range values {
			m.numerics[field] = append(m.numerics[field], NumericEntry{Value: v, DocID: a.ID})
		}
	}
	m.stored[a.ID] = a.Stored
	m.ids = append(m.ids, a.ID)
}

// Snapshot sorts everything added so far into a Segment. The MemoryIndex
// must be Reset before it is reused.
func (m *MemoryIndex) Snapshot() *Segment {
	seg := &Segment{
		Terms:    make(map[string][]TermEntry, len(m.index)),
		Lengths:  m.lengths,
		Numerics: make(map[string][]NumericEntry, len(m.numerics)),
		Stored:   m.stored,
		IDs:      append([]int64(nil), m.ids...),
	}
	for field, terms := range m.index {
		entries := make([]TermEntry, 0, len(terms))
		for term, docs := range terms {
			postings := make(PostingList, 0, len(docs))
			for id, freq := range docs {
				postings = append(postings, Posting{DocID: id, Frequency: freq})
			}
			sort.Slice(postings, func(i, j int) bool {
				return postings[i].DocID < postings[j].DocID
			})
			entries = append(entries, TermEntry{Term: term, Postings: postings})
		}
		sort.Slice(entries, func(i, j int) bool {
			return entries[i].Term < entries[j].Term
		})
		seg.Terms[field] = entries
	}
	for field, column := range m.numerics {
		sorted := append([]NumericEntry(nil), column...)
		sort.Slice(sorted, func(i, j int) bool {
			return compareNumeric(sorted[i], sorted[j]) < 0
		})
		seg.Numerics[field] = sorted
	}
	sort.Slice(seg.IDs, func(i, j int) bool { return seg.IDs[i] < seg.IDs[j] })
	return seg
}

func (m *MemoryIndex) DocCount() int { return len(m.ids) }

func (m *MemoryIndex) Reset() {
	m.index = make(map[string]map[string]map[int64]int)
	m.lengths = make(map[string]map[int64]int)
	m.numerics = make(map[string][]NumericEntry)
	m.stored = make(map[int64]document.Document)
	m.ids = nil
}
