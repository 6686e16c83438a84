// Package snapshot holds the immutable index state that searches run
// against. A commit never modifies a published Snapshot; it builds the next
// one from the prior snapshot, the tombstones and the pending documents.
package snapshot

import (
	"context"
	"fmt"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/embedsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/document"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/schema"
)

// Snapshot is one committed generation of the index. None of its fields may
// be modified once it has been published.
type Snapshot struct {
	Generation  uint64
	Schema      *schema.Schema
	Terms       map[string]*index.TermIndex
	Numerics    map[string]*index.NumericIndex
	Stored      map[int64]document.Document
	Live        *roaring64.Bitmap
	CommittedAt time.Time
}

// Empty is generation zero of an index with schema s.
func Empty(s *schema.Schema) *Snapshot {
	return &Snapshot{
		Schema:   s,
		Terms:    make(map[string]*index.TermIndex),
		Numerics: make(map[string]*index.NumericIndex),
		Stored:   make(map[int64]document.Document),
		Live:     roaring64.New(),
	}
}

func (s *Snapshot) DocCount() uint64 { return s.Live.GetCardinality() }

func (s *Snapshot) Contains(id int64) bool { return s.Live.Contains(index.Key(id)) }

// Document returns the stored fields of a live document.
func (s *Snapshot) Document(id int64) (document.Document, bool) {
	if !s.Contains(id) {
		return document.Document{}, false
	}
	doc, ok := s.Stored[id]
	if !ok {
		doc = document.Document{ID: id}
	}
	return doc, true
}

// Term returns the dictionary of field, or nil when nothing was indexed
// into it. A nil *TermIndex behaves as empty.
func (s *Snapshot) Term(field string) *index.TermIndex { return s.Terms[field] }

func (s *Snapshot) Numeric(field string) *index.NumericIndex { return s.Numerics[field] }

// FieldStats summarises one field of a snapshot.
type FieldStats struct {
	Type      string  `json:"type"`
	Terms     int     `json:"terms,omitempty"`
	Docs      int     `json:"docs"`
	AvgLength float64 `json:"avg_length,omitempty"`
	Values    int     `json:"values,omitempty"`
}

type Stats struct {
	Generation  uint64                `json:"generation"`
	Documents   uint64                `json:"documents"`
	CommittedAt time.Time             `json:"committed_at"`
	Fields      map[string]FieldStats `json:"fields"`
}

func (s *Snapshot) Stats() Stats {
	st := Stats{
		Generation:  s.Generation,
		Documents:   s.DocCount(),
		CommittedAt: s.CommittedAt,
		Fields:      make(map[string]FieldStats),
	}
	for _, m := range s.Schema.Fields() {
		fs := FieldStats{Type: m.Type.String()}
		if m.Type == schema.Integer {
			n := s.Numeric(m.Name)
			fs.Values = n.Len()
			fs.Docs = countDistinct(n.Entries())
		} else {
			t := s.Term(m.Name)
			fs.Terms = t.Terms()
			fs.Docs = t.DocCount()
			fs.AvgLength = t.AvgLength()
		}
		st.Fields[m.Name] = fs
	}
	return st
}

func countDistinct(entries []index.NumericEntry) int {
	seen := make(map[int64]struct{}, len(entries))
	for _, e := range entries {
		seen[e.DocID] = struct{}{}
	}
	return len(seen)
}

// Next builds the successor of prior. Documents whose id is in tombstones
// are dropped from prior before fresh is merged in; fresh may re-add such
// ids. Fields are merged concurrently. prior is left untouched.
func Next(ctx context.Context, prior *Snapshot, tombstones *roaring64.Bitmap, fresh *index.Segment) (*Snapshot, error) {
	if tombstones == nil {
		tombstones = roaring64.New()
	}
	if fresh == nil {
		fresh = index.NewMemoryIndex().Snapshot()
	}
	skip := func(id int64) bool { return tombstones.Contains(index.Key(id)) }

	fields := prior.Schema.Fields()
	terms := make([]*index.TermIndex, len(fields))
	numerics := make([]*index.NumericIndex, len(fields))

	g, gctx := errgroup.WithContext(ctx)
	for i, m := range fields {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			switch m.Type {
			case schema.Integer:
				numerics[i] = index.NewNumericIndex(index.MergeNumeric(
					index.NumericRun{Entries: prior.Numeric(m.Name).Entries(), Skip: skip},
					index.NumericRun{Entries: fresh.Numerics[m.Name]},
				))
			default:
				prev := prior.Term(m.Name)
				entries := index.MergeTerms(
					index.TermRun{Entries: prev.Entries(), Skip: skip},
					index.TermRun{Entries: fresh.Terms[m.Name]},
				)
				lengths := make(map[int64]int, prev.DocCount()+len(fresh.Lengths[m.Name]))
				for id, n := range prev.Lengths() {
					if !skip(id) {
						lengths[id] = n
					}
				}
				for id, n := range fresh.Lengths[m.Name] {
					lengths[id] = n
				}
				terms[i] = index.NewTermIndex(entries, lengths)
			}
			return nil
		})
	}

	live := prior.Live.Clone()
	live.AndNot(tombstones)
	stored := make(map[int64]document.Document, len(prior.Stored)+len(fresh.Stored))
	for id, doc := range prior.Stored {
		if !skip(id) {
			stored[id] = doc
		}
	}
	for _, id := range fresh.IDs {
		live.Add(index.Key(id))
		if doc, ok := fresh.Stored[id]; ok && len(doc.Fields) > 0 {
			stored[id] = doc
		}
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("merging snapshot fields: %w", err)
	}

	next := &Snapshot{
		Generation:  prior.Generation + 1,
		Schema:      prior.Schema,
		Terms:       make(map[string]*index.TermIndex),
		Numerics:    make(map[string]*index.NumericIndex),
		Stored:      stored,
		Live:        live,
		CommittedAt: time.Now().UTC(),
	}
	for i, m := range fields {
		if terms[i] != nil && terms[i].DocCount() > 0 {
			next.Terms[m.Name] = terms[i]
		}
		if numerics[i] != nil && numerics[i].Len() > 0 {
			next.Numerics[m.Name] = numerics[i]
		}
	}
	return next, nil
}

// IDs returns every live id in ascending order. Keys sort like ids, so the
// bitmap's own order is already right.
func (s *Snapshot) IDs() []int64 {
	keys := s.Live.ToArray()
	ids := make([]int64, len(keys))
	for i, k := range keys {
		ids[i] = index.ID(k)
	}
	return ids
}
