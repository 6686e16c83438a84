// Package indexer owns the mutable side of a search index: the pending
// document buffer, the tombstone set and the commit that turns both into a
// new published snapshot.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/RoaringBitmap/roaring/v2/roaring64"

	"github.com/Adithya-Monish-Kumar-K/embedsearch/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/internal/indexer/segment"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/internal/indexer/snapshot"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/document"
	apperrors "github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/schema"
)

// State is the lifecycle phase of the engine's write side.
type State int32

const (
	Idle State = iota
	Accumulating
	Committing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Accumulating:
		return "accumulating"
	case Committing:
		return "committing"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}

// Options configures an Engine. The zero value is an in-memory index using
// the standard analyzer.
type Options struct {
	// Dir is the index directory. Empty keeps the index in memory only.
	Dir      string
	Analyzer tokenizer.Analyzer
	Codec    segment.Codec
	// MaxPendingDocs commits as soon as this many documents are pending.
	// Zero disables the threshold.
	MaxPendingDocs int
	Metrics        *metrics.Metrics
	Logger         *slog.Logger
}

// Engine is a single-writer, many-reader index. Adds and deletes are
// serialised by one mutex that commit also holds for its whole duration.
// Readers only ever load the published snapshot pointer.
type Engine struct {
	mu         sync.Mutex
	pending    map[int64]index.Analyzed
	tombstones *roaring64.Bitmap
	closed     bool
	listeners  []func(*snapshot.Snapshot)

	current        atomic.Pointer[snapshot.Snapshot]
	state          atomic.Int32
	pendingCount   atomic.Int64
	tombstoneCount atomic.Uint64
	closedForReads atomic.Bool
	schema         *schema.Schema
	analyzer       tokenizer.Analyzer
	store          *segment.Store
	maxPending     int
	metrics        *metrics.Metrics
	logger         *slog.Logger
}

// NewEngine opens the index in opts.Dir, creating it when the directory
// holds no index yet. With an existing index, s must equal the stored
// schema or be nil to adopt it; anything else, or a corrupt directory,
// fails with ErrSchema.
func NewEngine(s *schema.Schema, opts Options) (*Engine, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "indexer")
	m := opts.Metrics
	if m == nil {
		m = metrics.New(nil)
	}
	e := &Engine{
		pending:    make(map[int64]index.Analyzed),
		tombstones: roaring64.New(),
		analyzer:   opts.Analyzer,
		maxPending: opts.MaxPendingDocs,
		metrics:    m,
		logger:     logger,
	}

	snap, err := e.open(s, opts)
	if err != nil {
		return nil, err
	}
	e.current.Store(snap)
	m.SnapshotGeneration.Set(float64(snap.Generation))
	m.SnapshotDocCount.Set(float64(snap.DocCount()))
	logger.Info("engine opened",
		"dir", opts.Dir,
		"analyzer", e.analyzer.Name(),
		"generation", snap.Generation,
		"docs", snap.DocCount(),
	)
	return e, nil
}

func (e *Engine) open(s *schema.Schema, opts Options) (*snapshot.Snapshot, error) {
	if opts.Dir == "" {
		if s == nil {
			return nil, apperrors.New(apperrors.ErrSchema, http.StatusBadRequest, "an in-memory index needs field mappings")
		}
		if e.analyzer == nil {
			e.analyzer = tokenizer.Standard{}
		}
		e.schema = s
		return snapshot.Empty(s), nil
	}

	store, err := segment.OpenStore(opts.Dir, opts.Codec)
	if err != nil {
		return nil, err
	}
	e.store = store
	meta, err := store.ReadMeta()
	if err != nil {
		return nil, schemaError(err)
	}
	if meta == nil {
		if s == nil {
			return nil, apperrors.Newf(apperrors.ErrSchema, http.StatusBadRequest,
				"%s holds no index and no field mappings were given", opts.Dir)
		}
		if e.analyzer == nil {
			e.analyzer = tokenizer.Standard{}
		}
		if err := store.WriteMeta(segment.IndexMeta{Analyzer: e.analyzer.Name(), Schema: s}); err != nil {
			return nil, fmt.Errorf("writing index metadata: %w", err)
		}
		e.schema = s
		return snapshot.Empty(s), nil
	}

	if s != nil && !s.Equal(meta.Schema) {
		return nil, apperrors.Newf(apperrors.ErrSchema, http.StatusBadRequest,
			"field mappings differ from the schema stored in %s", opts.Dir)
	}
	stored, err := tokenizer.ByName(meta.Analyzer)
	if err != nil {
		return nil, schemaError(err)
	}
	if e.analyzer == nil {
		e.analyzer = stored
	} else if e.analyzer.Name() != stored.Name() {
		return nil, apperrors.Newf(apperrors.ErrSchema, http.StatusBadRequest,
			"index in %s was built with the %q analyzer, not %q", opts.Dir, stored.Name(), e.analyzer.Name())
	}
	e.schema = meta.Schema
	snap, err := store.Load(meta.Schema)
	if err != nil {
		return nil, schemaError(err)
	}
	return snap, nil
}

func schemaError(err error) error {
	return fmt.Errorf("%w: %w", apperrors.ErrSchema, err)
}

func (e *Engine) Schema() *schema.Schema { return e.schema }

func (e *Engine) Analyzer() tokenizer.Analyzer { return e.analyzer }

// Snapshot returns the published snapshot. It never blocks.
func (e *Engine) Snapshot() *snapshot.Snapshot { return e.current.Load() }

func (e *Engine) State() State { return State(e.state.Load()) }

// Closed reports whether Close has been called.
func (e *Engine) Closed() bool { return e.closedForReads.Load() }

// OnCommit registers fn to run after every successful commit with the new
// snapshot. fn runs under the writer lock and must not call back into the
// engine's mutating methods.
func (e *Engine) OnCommit(fn func(*snapshot.Snapshot)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners = append(e.listeners, fn)
}

// AddDocuments validates and analyzes the batch, then admits it to the
// pending buffer as a unit. Without overwrite, an id that is live, pending
// or repeated within the batch fails the whole batch with
// ErrDocumentExists. With overwrite, the previous version is replaced at
// the next commit.
func (e *Engine) AddDocuments(ctx context.Context, docs []document.Document, overwrite bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	analyzed := make([]index.Analyzed, 0, len(docs))
	seen := make(map[int64]int, len(docs))
	for _, doc := range docs {
		if err := doc.Validate(e.schema); err != nil {
			return err
		}
		if i, dup := seen[doc.ID]; dup {
			if !overwrite {
				return apperrors.Newf(apperrors.ErrDocumentExists, http.StatusConflict,
					"document %d appears twice in the batch", doc.ID)
			}
			analyzed[i] = index.Analyze(doc, e.schema, e.analyzer)
			continue
		}
		seen[doc.ID] = len(analyzed)
		analyzed = append(analyzed, index.Analyze(doc, e.schema, e.analyzer))
	}
	if len(analyzed) == 0 {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return apperrors.ErrClosed
	}
	snap := e.current.Load()
	if !overwrite {
		for _, a := range analyzed {
			if e.existsLocked(snap, a.ID) {
				return apperrors.Newf(apperrors.ErrDocumentExists, http.StatusConflict,
					"document %d already exists", a.ID)
			}
		}
	}
	for _, a := range analyzed {
		if overwrite && snap.Contains(a.ID) {
			e.tombstones.Add(index.Key(a.ID))
		}
		e.pending[a.ID] = a
	}
	e.metrics.DocsAddedTotal.Add(float64(len(analyzed)))
	e.syncCountersLocked()
	e.logger.Debug("documents admitted",
		"count", len(analyzed),
		"overwrite", overwrite,
		"pending", len(e.pending),
	)

	if e.maxPending > 0 && len(e.pending) >= e.maxPending {
		e.logger.Info("pending buffer reached threshold, committing",
			"pending", len(e.pending),
			"threshold", e.maxPending,
		)
		if err := e.commitLocked(ctx); err != nil {
			e.logger.Error("threshold commit failed, documents stay pending", "error", err)
		}
	}
	return nil
}

// Exists reports whether id is live in the published snapshot or pending,
// and not tombstoned.
func (e *Engine) Exists(id int64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.existsLocked(e.current.Load(), id)
}

func (e *Engine) existsLocked(snap *snapshot.Snapshot, id int64) bool {
	if _, ok := e.pending[id]; ok {
		return true
	}
	return snap.Contains(id) && !e.tombstones.Contains(index.Key(id))
}

// DeleteDocuments tombstones ids and drops any pending add of them. Unknown
// ids are ignored. With commitNow the deletion is committed before
// returning.
func (e *Engine) DeleteDocuments(ctx context.Context, ids []int64, commitNow bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return apperrors.ErrClosed
	}
	snap := e.current.Load()
	deleted := 0
	for _, id := range ids {
		_, wasPending := e.pending[id]
		delete(e.pending, id)
		live := snap.Contains(id)
		if live {
			e.tombstones.Add(index.Key(id))
		}
		if live || wasPending {
			deleted++
		}
	}
	e.metrics.DocsDeletedTotal.Add(float64(deleted))
	e.syncCountersLocked()
	e.logger.Debug("documents deleted", "requested", len(ids), "deleted", deleted)
	if commitNow {
		return e.commitLocked(ctx)
	}
	return nil
}

// Commit publishes pending adds and deletes as a new snapshot. With nothing
// pending it does nothing. On failure the previous snapshot stays
// published, pending work is kept and the error wraps ErrCommitFailure.
func (e *Engine) Commit(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return apperrors.ErrClosed
	}
	return e.commitLocked(ctx)
}

func (e *Engine) commitLocked(ctx context.Context) error {
	if len(e.pending) == 0 && e.tombstones.IsEmpty() {
		e.metrics.CommitsTotal.WithLabelValues("noop").Inc()
		return nil
	}
	start := time.Now()
	e.state.Store(int32(Committing))

	prior := e.current.Load()
	next, err := e.buildLocked(ctx, prior)
	if err == nil && e.store != nil {
		err = e.store.Commit(next)
	}
	if err != nil {
		e.state.Store(int32(Accumulating))
		e.metrics.CommitsTotal.WithLabelValues("error").Inc()
		e.logger.Error("commit failed",
			"generation", prior.Generation,
			"pending", len(e.pending),
			"tombstones", e.tombstones.GetCardinality(),
			"error", err,
		)
		return fmt.Errorf("%w: %w", apperrors.ErrCommitFailure, err)
	}

	e.current.Store(next)
	added, removed := len(e.pending), e.tombstones.GetCardinality()
	e.pending = make(map[int64]index.Analyzed)
	e.tombstones = roaring64.New()
	e.syncCountersLocked()

	elapsed := time.Since(start)
	e.metrics.CommitsTotal.WithLabelValues("ok").Inc()
	e.metrics.CommitDuration.Observe(elapsed.Seconds())
	e.metrics.SnapshotGeneration.Set(float64(next.Generation))
	e.metrics.SnapshotDocCount.Set(float64(next.DocCount()))
	e.logger.Info("commit complete",
		"generation", next.Generation,
		"added", added,
		"tombstoned", removed,
		"docs", next.DocCount(),
		"duration_ms", elapsed.Milliseconds(),
	)
	for _, fn := range e.listeners {
		fn(next)
	}
	return nil
}

func (e *Engine) buildLocked(ctx context.Context, prior *snapshot.Snapshot) (*snapshot.Snapshot, error) {
	mem := index.NewMemoryIndex()
	for _, a := range e.pending {
		mem.AddDocument(a)
	}
	return snapshot.Next(ctx, prior, e.tombstones, mem.Snapshot())
}

func (e *Engine) syncCountersLocked() {
	e.pendingCount.Store(int64(len(e.pending)))
	e.tombstoneCount.Store(e.tombstones.GetCardinality())
	e.metrics.PendingDocs.Set(float64(len(e.pending)))
	if len(e.pending) > 0 || !e.tombstones.IsEmpty() {
		e.state.Store(int32(Accumulating))
	} else {
		e.state.Store(int32(Idle))
	}
}

// Stats describes the published snapshot and the pending write side.
type Stats struct {
	snapshot.Stats
	State      string `json:"state"`
	Pending    int64  `json:"pending"`
	Tombstones uint64 `json:"tombstones"`
	Analyzer   string `json:"analyzer"`
	Dir        string `json:"dir,omitempty"`
}

func (e *Engine) Stats() Stats {
	st := Stats{
		Stats:      e.Snapshot().Stats(),
		State:      e.State().String(),
		Pending:    e.pendingCount.Load(),
		Tombstones: e.tombstoneCount.Load(),
		Analyzer:   e.analyzer.Name(),
	}
	if e.store != nil {
		st.Dir = e.store.Dir()
	}
	return st
}

// StartCommitLoop commits every interval while there is pending work,
// retrying failed commits with backoff. When ctx is cancelled it performs
// a final commit and returns.
func (e *Engine) StartCommitLoop(ctx context.Context, interval time.Duration, retry resilience.RetryConfig) {
	if retry.Retryable == nil {
		retry.Retryable = func(err error) bool { return errors.Is(err, apperrors.ErrCommitFailure) }
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				e.logger.Info("commit loop stopping, performing final commit")
				if err := e.Commit(context.Background()); err != nil && !errors.Is(err, apperrors.ErrClosed) {
					e.logger.Error("final commit failed", "error", err)
				}
				return
			case <-ticker.C:
				if e.State() == Idle {
					continue
				}
				err := resilience.Retry(ctx, "commit", retry, func() error {
					return e.Commit(ctx)
				})
				if err != nil && !errors.Is(err, apperrors.ErrClosed) {
					e.logger.Error("periodic commit failed", "error", err)
				}
			}
		}
	}()
}

// Close stops accepting writes. Uncommitted work is discarded.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	e.closedForReads.Store(true)
	if len(e.pending) > 0 || !e.tombstones.IsEmpty() {
		e.logger.Warn("closing with uncommitted changes, discarding them",
			"pending", len(e.pending),
			"tombstones", e.tombstones.GetCardinality(),
		)
	}
	e.pending = make(map[int64]index.Analyzed)
	e.tombstones = roaring64.New()
	e.syncCountersLocked()
	e.logger.Info("engine closed", "generation", e.Snapshot().Generation)
	return nil
}
