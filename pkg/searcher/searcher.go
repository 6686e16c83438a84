// Package searcher is the embeddable entry point of the engine. A Searcher
// owns one index: it admits and deletes documents, commits them into
// snapshots, builds queries against its schema and runs searches on the
// snapshot current at call time.
//
//	s, err := searcher.Open(dir, []schema.FieldMapping{
//		{Name: "title", Type: schema.TextAnalyzed, Stored: true},
//		{Name: "year", Type: schema.Integer},
//	})
//	err = s.AddDocuments(ctx, docs, false)
//	err = s.Commit(ctx)
//	hits, err := s.Search(ctx, "old sea", nil, searcher.SearchParam{Limit: 10})
package searcher

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Adithya-Monish-Kumar-K/embedsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/internal/indexer/snapshot"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/document"
	apperrors "github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/query"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/schema"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/tracing"
)

type (
	Stats = indexer.Stats
	State = indexer.State
)

const (
	Idle         = indexer.Idle
	Accumulating = indexer.Accumulating
	Committing   = indexer.Committing
)

// SearchParam controls result size and projection.
type SearchParam struct {
	// Limit caps the number of results and must be positive.
	Limit int `json:"limit"`
	// Fields lists the stored fields to return. Nil returns every stored
	// field.
	Fields []string `json:"fields,omitempty"`
	// SkipFields returns ids and scores only.
	SkipFields bool `json:"skip_fields,omitempty"`
}

// IDDocument is one search hit.
type IDDocument struct {
	ID     int64            `json:"id"`
	Score  float64          `json:"score"`
	Fields []document.Field `json:"fields,omitempty"`
}

// Result is one page of hits and the generation of the snapshot it was read
// from.
type Result struct {
	Generation uint64       `json:"generation"`
	Hits       []IDDocument `json:"hits"`
}

type Searcher struct {
	engine   *indexer.Engine
	executor *executor.Executor
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// Open opens the index at path, creating it when path holds none. An empty
// path keeps the index in memory. Nil mappings reopen an existing index
// with its stored schema; otherwise mappings must match it.
func Open(path string, mappings []schema.FieldMapping, opts ...Option) (*Searcher, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.metrics == nil {
		o.metrics = metrics.New(nil)
	}

	var s *schema.Schema
	if mappings != nil {
		var err error
		if s, err = schema.New(mappings); err != nil {
			return nil, err
		}
	}
	var analyzer tokenizer.Analyzer
	if o.analyzer != "" {
		var err error
		if analyzer, err = tokenizer.ByName(o.analyzer); err != nil {
			return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "%v", err)
		}
	}
	codec, err := segment.ParseCodec(o.compression)
	if err != nil {
		return nil, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "%v", err)
	}

	engine, err := indexer.NewEngine(s, indexer.Options{
		Dir:            path,
		Analyzer:       analyzer,
		Codec:          codec,
		MaxPendingDocs: o.maxPendingDocs,
		Metrics:        o.metrics,
		Logger:         o.logger,
	})
	if err != nil {
		return nil, err
	}
	return &Searcher{
		engine:   engine,
		executor: executor.New(),
		metrics:  o.metrics,
		logger:   o.logger.With("component", "searcher"),
	}, nil
}

// CreateSearcher is Open under its historical name.
func CreateSearcher(path string, mappings []schema.FieldMapping, opts ...Option) (*Searcher, error) {
	return Open(path, mappings, opts...)
}

func (s *Searcher) Schema() *schema.Schema { return s.engine.Schema() }

func (s *Searcher) State() State { return s.engine.State() }

func (s *Searcher) Stats() Stats { return s.engine.Stats() }

// Generation is the generation of the published snapshot.
func (s *Searcher) Generation() uint64 { return s.engine.Snapshot().Generation }

// Exists reports whether id would be refused by an add without overwrite.
func (s *Searcher) Exists(id int64) bool { return s.engine.Exists(id) }

// AddDocuments admits batch to the pending buffer; see indexer.Engine.
func (s *Searcher) AddDocuments(ctx context.Context, batch []document.Document, overwriteExisting bool) error {
	return s.engine.AddDocuments(ctx, batch, overwriteExisting)
}

func (s *Searcher) DeleteDocuments(ctx context.Context, ids []int64, commitImmediately bool) error {
	return s.engine.DeleteDocuments(ctx, ids, commitImmediately)
}

func (s *Searcher) Commit(ctx context.Context) error {
	return s.engine.Commit(ctx)
}

// StartCommitLoop commits pending work every interval until ctx ends.
func (s *Searcher) StartCommitLoop(ctx context.Context, interval time.Duration, retry resilience.RetryConfig) {
	s.engine.StartCommitLoop(ctx, interval, retry)
}

// OnCommit calls fn with the new generation after every successful commit.
func (s *Searcher) OnCommit(fn func(generation uint64, docs uint64)) {
	s.engine.OnCommit(func(snap *snapshot.Snapshot) {
		fn(snap.Generation, snap.DocCount())
	})
}

// Closed reports whether Close has been called.
func (s *Searcher) Closed() bool { return s.engine.Closed() }

// Close discards uncommitted work. Searches after Close fail with
// ErrClosed.
func (s *Searcher) Close() error {
	return s.engine.Close()
}

// Search analyzes text and matches it, as a SHOULD of term queries, against
// fields. Nil fields means every text field of the schema.
func (s *Searcher) Search(ctx context.Context, text string, fields []string, param SearchParam) ([]IDDocument, error) {
	res, err := s.SearchWithGeneration(ctx, text, fields, param)
	return res.Hits, err
}

// SearchWithGeneration is Search, also reporting the generation searched.
func (s *Searcher) SearchWithGeneration(ctx context.Context, text string, fields []string, param SearchParam) (Result, error) {
	start := time.Now()
	q, err := s.textQuery(text, fields)
	if err == nil {
		var res Result
		res, err = s.search(ctx, q, param)
		if err == nil {
			s.observe("text", start, len(res.Hits))
			return res, nil
		}
	}
	s.metrics.SearchQueriesTotal.WithLabelValues("error").Inc()
	return Result{}, err
}

// SearchByQuery evaluates q against the snapshot current at call time.
func (s *Searcher) SearchByQuery(ctx context.Context, q query.Node, param SearchParam) ([]IDDocument, error) {
	res, err := s.SearchByQueryWithGeneration(ctx, q, param)
	return res.Hits, err
}

func (s *Searcher) SearchByQueryWithGeneration(ctx context.Context, q query.Node, param SearchParam) (Result, error) {
	start := time.Now()
	res, err := s.search(ctx, q, param)
	if err != nil {
		s.metrics.SearchQueriesTotal.WithLabelValues("error").Inc()
		return Result{}, err
	}
	s.observe("query", start, len(res.Hits))
	return res, nil
}

func (s *Searcher) observe(kind string, start time.Time, n int) {
	s.metrics.SearchLatency.WithLabelValues(kind).Observe(time.Since(start).Seconds())
	s.metrics.SearchResultsCount.Observe(float64(n))
	if n == 0 {
		s.metrics.SearchQueriesTotal.WithLabelValues("zero_result").Inc()
	} else {
		s.metrics.SearchQueriesTotal.WithLabelValues("hit").Inc()
	}
}

func (s *Searcher) search(ctx context.Context, q query.Node, param SearchParam) (Result, error) {
	if s.engine.Closed() {
		return Result{}, apperrors.ErrClosed
	}
	if param.Limit <= 0 {
		return Result{}, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "limit must be positive, got %d", param.Limit)
	}
	_, validate := tracing.Phase(ctx, "validate")
	err := s.validate(q, param.Fields)
	validate.End()
	if err != nil {
		return Result{}, err
	}

	snap := s.engine.Snapshot()
	_, evaluate := tracing.Phase(ctx, "evaluate")
	evaluate.Set("generation", snap.Generation)
	result, err := s.executor.Execute(ctx, snap, q, param.Limit)
	if err != nil {
		evaluate.End()
		return Result{}, fmt.Errorf("executing %s: %w", q, err)
	}
	evaluate.Set("matched", result.TotalHits)
	evaluate.End()

	_, fetch := tracing.Phase(ctx, "fetch")
	defer fetch.End()

	keep := func(string) bool { return true }
	if param.Fields != nil {
		wanted := make(map[string]struct{}, len(param.Fields))
		for _, name := range param.Fields {
			wanted[name] = struct{}{}
		}
		keep = func(name string) bool {
			_, ok := wanted[name]
			return ok
		}
	}
	docs := make([]IDDocument, len(result.Results))
	for i, hit := range result.Results {
		docs[i] = IDDocument{ID: hit.DocID, Score: hit.Score}
		if param.SkipFields {
			continue
		}
		if stored, ok := snap.Document(hit.DocID); ok {
			docs[i].Fields = stored.Project(keep).Fields
		}
	}
	l := s.logger
	if id := logger.RequestID(ctx); id != "" {
		l = l.With("request_id", id)
	}
	l.Debug("search complete",
		"query", q.String(),
		"generation", result.Generation,
		"total_hits", result.TotalHits,
		"returned", len(docs),
	)
	return Result{Generation: snap.Generation, Hits: docs}, nil
}

func (s *Searcher) validate(q query.Node, fields []string) error {
	sc := s.engine.Schema()
	for _, name := range fields {
		if _, err := sc.Lookup(name); err != nil {
			return err
		}
	}
	return query.Validate(q, sc)
}
