// Package executor evaluates query ASTs against a snapshot. Each node
// resolves to a set of matching documents plus a scorer; boolean nodes
// combine the sets first and only score the documents that survive.
package executor

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/Adithya-Monish-Kumar-K/embedsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/internal/indexer/snapshot"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/internal/searcher/merger"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/internal/searcher/ranker"
	apperrors "github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/query"
)

type SearchResult struct {
	Generation uint64             `json:"generation"`
	TotalHits  uint64             `json:"total_hits"`
	Results    []ranker.ScoredDoc `json:"results"`
}

type Executor struct {
	logger *slog.Logger
}

func New() *Executor {
	return &Executor{
		logger: slog.Default().With("component", "query-executor"),
	}
}

// Execute evaluates q against snap and returns the limit best documents.
// q must already be valid for snap's schema.
func (e *Executor) Execute(ctx context.Context, snap *snapshot.Snapshot, q query.Node, limit int) (*SearchResult, error) {
	if limit <= 0 {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "limit must be positive, got %d", limit)
	}
	m, err := e.eval(ctx, snap, q)
	if err != nil {
		return nil, err
	}
	top := merger.NewTopK(limit)
	it := m.docs.Iterator()
	for it.HasNext() {
		id := index.ID(it.Next())
		top.Push(ranker.ScoredDoc{DocID: id, Score: m.score(id)})
	}
	results := top.Results()
	e.logger.Debug("query executed",
		"query", q.String(),
		"generation", snap.Generation,
		"candidates", top.Seen(),
		"results", len(results),
	)
	return &SearchResult{
		Generation: snap.Generation,
		TotalHits:  uint64(top.Seen()),
		Results:    results,
	}, nil
}

// match is the evaluated form of a node.
type match struct {
	docs  *roaring64.Bitmap
	score func(docID int64) float64
}

func constant(docs *roaring64.Bitmap, score float64) match {
	return match{docs: docs, score: func(int64) float64 { return score }}
}

func (e *Executor) eval(ctx context.Context, snap *snapshot.Snapshot, q query.Node) (match, error) {
	switch n := q.(type) {
	case *query.Term:
		field := snap.Term(n.Field)
		postings := field.Postings(n.Text)
		if len(postings) == 0 {
			return constant(roaring64.New(), 0), nil
		}
		docs := roaring64.New()
		for _, p := range postings {
			docs.Add(index.Key(p.DocID))
		}
		return match{docs: docs, score: ranker.NewTermScorer(field, postings).Score}, nil

	case *query.NumericRange:
		docs := roaring64.New()
		for _, entry := range snap.Numeric(n.Field).Range(n.Lower, n.Upper) {
			docs.Add(index.Key(entry.DocID))
		}
		return constant(docs, ranker.ConstantScore), nil

	case *query.LexicalRange:
		docs := roaring64.New()
		for _, entry := range snap.Term(n.Field).Range(n.Lower, n.Upper) {
			for _, p := range entry.Postings {
				docs.Add(index.Key(p.DocID))
			}
		}
		return constant(docs, ranker.ConstantScore), nil

	case *query.Boolean:
		return e.evalBoolean(ctx, snap, n)

	case nil:
		return match{}, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "nil query")

	default:
		panic(fmt.Sprintf("executor: unhandled node %T", q))
	}
}

func (e *Executor) evalBoolean(ctx context.Context, snap *snapshot.Snapshot, n *query.Boolean) (match, error) {
	var must, should, mustNot []match
	for i, c := range n.Clauses {
		if err := ctx.Err(); err != nil {
			return match{}, err
		}
		m, err := e.eval(ctx, snap, c.Query)
		if err != nil {
			return match{}, fmt.Errorf("clause %d: %w", i, err)
		}
		switch c.Occur {
		case query.Must:
			must = append(must, m)
		case query.Should:
			should = append(should, m)
		case query.MustNot:
			mustNot = append(mustNot, m)
		default:
			return match{}, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "clause %d has invalid occur %d", i, int(c.Occur))
		}
	}

	var docs *roaring64.Bitmap
	switch {
	case len(must) > 0:
		docs = must[0].docs.Clone()
		for _, m := range must[1:] {
			docs.And(m.docs)
		}
	case len(should) > 0:
		docs = roaring64.New()
		for _, m := range should {
			docs.Or(m.docs)
		}
	case len(mustNot) > 0:
		docs = snap.Live.Clone()
	default:
		return constant(roaring64.New(), 0), nil
	}
	for _, m := range mustNot {
		docs.AndNot(m.docs)
	}

	score := func(docID int64) float64 {
		var total float64
		for _, m := range must {
			total += m.score(docID)
		}
		key := index.Key(docID)
		for _, m := range should {
			if m.docs.Contains(key) {
				total += m.score(docID)
			}
		}
		return total
	}
	return match{docs: docs, score: score}, nil
}
