package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/embedsearch/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/document"
	apperrors "github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/schema"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/searcher"
)

func encode(t *testing.T, e ingestion.IndexEvent) []byte {
	t.Helper()
	data, err := json.Marshal(e)
	require.NoError(t, err)
	return data
}

func openIndex(t *testing.T) *searcher.Searcher {
	t.Helper()
	s, err := searcher.Open("", []schema.FieldMapping{
		{Name: "title", Type: schema.TextAnalyzed, Stored: true},
		{Name: "year", Type: schema.Integer},
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestAddDeleteCommitEvents(t *testing.T) {
	ctx := context.Background()
	s := openIndex(t)
	handle := HandleMessage(s, Options{})

	add := ingestion.IndexEvent{
		EventID: "e1",
		Type:    ingestion.EventAdd,
		Documents: []document.Document{
			document.New(1, document.Text("title", "The Old Man and the Sea")),
			document.New(2, document.Text("title", "The Modern Prometheus")),
		},
		Commit: true,
	}
	require.NoError(t, handle(ctx, nil, encode(t, add)))
	assert.Equal(t, uint64(1), s.Generation())

	// Redelivery of an applied add is acknowledged.
	require.NoError(t, handle(ctx, nil, encode(t, add)))
	assert.Equal(t, uint64(1), s.Generation())

	require.NoError(t, handle(ctx, nil, encode(t, ingestion.IndexEvent{EventID: "e2", Type: ingestion.EventDelete, IDs: []int64{1}})))
	require.NoError(t, handle(ctx, nil, encode(t, ingestion.IndexEvent{EventID: "e3", Type: ingestion.EventCommit})))

	hits, err := s.Search(ctx, "sea prometheus", nil, searcher.SearchParam{Limit: 10})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, int64(2), hits[0].ID)
}

func TestPoisonEventsAreAcknowledged(t *testing.T) {
	ctx := context.Background()
	s := openIndex(t)
	handle := HandleMessage(s, Options{})

	assert.NoError(t, handle(ctx, nil, []byte("{not json")))
	assert.NoError(t, handle(ctx, nil, encode(t, ingestion.IndexEvent{Type: "upsert"})))
	assert.NoError(t, handle(ctx, nil, encode(t, ingestion.IndexEvent{
		Type:      ingestion.EventAdd,
		Documents: []document.Document{document.New(1, document.Text("author", "Hemingway"))},
	})))
	assert.Equal(t, int64(0), s.Stats().Pending)
}

func TestAddOverlappingCommittedDocuments(t *testing.T) {
	ctx := context.Background()
	s := openIndex(t)
	handle := HandleMessage(s, Options{})

	require.NoError(t, handle(ctx, nil, encode(t, ingestion.IndexEvent{
		EventID:   "e1",
		Type:      ingestion.EventAdd,
		Documents: []document.Document{document.New(1, document.Text("title", "The Old Man and the Sea"))},
		Commit:    true,
	})))
	require.NoError(t, handle(ctx, nil, encode(t, ingestion.IndexEvent{
		EventID: "e2",
		Type:    ingestion.EventAdd,
		Documents: []document.Document{
			document.New(1, document.Text("title", "The Old Man and the Sea")),
			document.New(2, document.Text("title", "The Sea Wolf")),
		},
		Commit: true,
	})))
	assert.Equal(t, uint64(2), s.Generation())

	hits, err := s.Search(ctx, "wolf", nil, searcher.SearchParam{Limit: 10})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, int64(2), hits[0].ID)

	hits, err = s.Search(ctx, "sea", nil, searcher.SearchParam{Limit: 10})
	require.NoError(t, err)
	assert.Len(t, hits, 2, "the already committed copy is kept once")
}

func TestRepeatedIDWithinEventIsAcknowledged(t *testing.T) {
	ctx := context.Background()
	s := openIndex(t)
	handle := HandleMessage(s, Options{})

	require.NoError(t, handle(ctx, nil, encode(t, ingestion.IndexEvent{
		EventID: "e1",
		Type:    ingestion.EventAdd,
		Documents: []document.Document{
			document.New(3, document.Text("title", "Moby Dick")),
			document.New(3, document.Text("title", "The Whale")),
		},
		Commit: true,
	})))
	assert.False(t, s.Exists(3))
	assert.Equal(t, uint64(0), s.Generation())
}

type flakyIndex struct {
	failures int
	commits  int
}

func (f *flakyIndex) AddDocuments(context.Context, []document.Document, bool) error { return nil }
func (f *flakyIndex) DeleteDocuments(context.Context, []int64, bool) error        { return nil }
func (f *flakyIndex) Exists(int64) bool                                           { return false }
func (f *flakyIndex) Commit(context.Context) error {
	f.commits++
	if f.commits <= f.failures {
		return fmt.Errorf("%w: disk full", apperrors.ErrCommitFailure)
	}
	return nil
}

func TestCommitIsRetried(t *testing.T) {
	ctx := context.Background()
	retry := resilience.RetryConfig{MaxAttempts: 3, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond}

	idx := &flakyIndex{failures: 2}
	handle := HandleMessage(idx, Options{Retry: retry})
	require.NoError(t, handle(ctx, nil, encode(t, ingestion.IndexEvent{Type: ingestion.EventCommit})))
	assert.Equal(t, 3, idx.commits)

	idx = &flakyIndex{failures: 5}
	handle = HandleMessage(idx, Options{Retry: retry})
	err := handle(ctx, nil, encode(t, ingestion.IndexEvent{Type: ingestion.EventCommit}))
	assert.ErrorIs(t, err, apperrors.ErrCommitFailure)
}

type closedIndex struct{ flakyIndex }

func (closedIndex) AddDocuments(context.Context, []document.Document, bool) error {
	return apperrors.ErrClosed
}

func TestEngineErrorsAreReturned(t *testing.T) {
	handle := HandleMessage(&closedIndex{}, Options{Timeout: time.Second})
	err := handle(context.Background(), nil, encode(t, ingestion.IndexEvent{
		Type:      ingestion.EventAdd,
		Documents: []document.Document{document.New(1)},
	}))
	assert.True(t, errors.Is(err, apperrors.ErrClosed))
}
