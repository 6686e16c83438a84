package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/embedsearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/schema"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/searcher"
)

func newServer(t *testing.T) (*searcher.Searcher, http.Handler) {
	t.Helper()
	s, err := searcher.Open("", []schema.FieldMapping{
		{Name: "title", Type: schema.TextAnalyzed, Stored: true},
		{Name: "year", Type: schema.Integer, Stored: true},
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	mux := http.NewServeMux()
	New(s, nil, config.SearchConfig{DefaultLimit: 10, MaxLimit: 2}).Register(mux)
	return s, mux
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(method, target, strings.NewReader(body)))
	return rec
}

const books = `{"documents":[
	{"id":1,"fields":[{"name":"title","type":"text","value":"The Old Man and the Sea"},{"name":"year","type":"integer","value":1952}]},
	{"id":2,"fields":[{"name":"title","type":"text","value":"The Modern Prometheus"},{"name":"year","type":"integer","value":1818}]},
	{"id":3,"fields":[{"name":"title","type":"text","value":"The Sea Wolf"},{"name":"year","type":"integer","value":1904}]}
]}`

func TestAddCommitSearch(t *testing.T) {
	_, h := newServer(t)

	rec := do(t, h, http.MethodPost, "/api/v1/documents", books)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	var mut mutationResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mut))
	assert.Equal(t, mutationResponse{Accepted: 3, Generation: 0, Pending: 3}, mut)

	rec = do(t, h, http.MethodPost, "/api/v1/commit", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/v1/search?q=sea&limit=50&return=year", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp searchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, uint64(1), resp.Generation)
	require.Len(t, resp.Results, 2, "limit is capped at the configured maximum")
	assert.Equal(t, int64(3), resp.Results[0].ID)
	require.Len(t, resp.Results[0].Fields, 1)
	assert.Equal(t, "year", resp.Results[0].Fields[0].Name)

	rec = do(t, h, http.MethodPost, "/api/v1/documents", books)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

// commitOnGet commits the searcher's pending work on the first cache lookup,
// so a new generation lands between the lookup and the search.
type commitOnGet struct {
	s    *searcher.Searcher
	once sync.Once
}

func (c *commitOnGet) Get(ctx context.Context, _ string) ([]byte, bool, error) {
	var err error
	c.once.Do(func() { err = c.s.Commit(ctx) })
	return nil, false, err
}

func (c *commitOnGet) Set(context.Context, string, []byte, time.Duration) error { return nil }

func (c *commitOnGet) FlushByPattern(context.Context, string) (int64, error) { return 0, nil }

func TestSearchReportsGenerationOfHits(t *testing.T) {
	s, err := searcher.Open("", []schema.FieldMapping{
		{Name: "title", Type: schema.TextAnalyzed, Stored: true},
		{Name: "year", Type: schema.Integer, Stored: true},
	})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	qc := cache.New(&commitOnGet{s: s}, time.Minute, s.Generation, nil, resilience.BreakerConfig{})
	mux := http.NewServeMux()
	New(s, qc, config.SearchConfig{DefaultLimit: 10, MaxLimit: 10}).Register(mux)

	require.Equal(t, http.StatusAccepted, do(t, mux, http.MethodPost, "/api/v1/documents", books).Code)
	require.Equal(t, http.StatusOK, do(t, mux, http.MethodPost, "/api/v1/commit", "").Code)
	rec := do(t, mux, http.MethodPost, "/api/v1/documents",
		`{"documents":[{"id":4,"fields":[{"name":"title","type":"text","value":"The Sea Around Us"}]}]}`)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())

	rec = do(t, mux, http.MethodGet, "/api/v1/search?q=sea", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp searchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, uint64(2), s.Generation())
	assert.Equal(t, uint64(2), resp.Generation)
	assert.Len(t, resp.Results, 3)
}

func TestQueryEndpoint(t *testing.T) {
	_, h := newServer(t)
	require.Equal(t, http.StatusAccepted, do(t, h, http.MethodPost, "/api/v1/documents?commit=true", books).Code)

	rec := do(t, h, http.MethodPost, "/api/v1/query", `{
		"query": {"bool": [
			{"occur": "must", "query": {"range_long": {"field": "year", "lower": {"kind": "included", "value": 1900}}}},
			{"occur": "must_not", "query": {"term": {"field": "title", "text": "old"}}}
		]},
		"skip_fields": true
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp searchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Results, 1)
	assert.Equal(t, int64(3), resp.Results[0].ID)
	assert.Equal(t, 1.0, resp.Results[0].Score)
	assert.Nil(t, resp.Results[0].Fields)

	rec = do(t, h, http.MethodPost, "/api/v1/query", `{"query": {"range_long": {"field": "title"}}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodPost, "/api/v1/query", `{"query": {"term": {"field": "author", "text": "x"}}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = do(t, h, http.MethodPost, "/api/v1/query", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteAndStats(t *testing.T) {
	s, h := newServer(t)
	require.Equal(t, http.StatusAccepted, do(t, h, http.MethodPost, "/api/v1/documents?commit=true", books).Code)

	rec := do(t, h, http.MethodDelete, "/api/v1/documents?commit=true", `{"ids":[1,2]}`)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, uint64(1), s.Stats().Documents)

	rec = do(t, h, http.MethodGet, "/api/v1/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.EqualValues(t, 1, stats["documents"])
	assert.EqualValues(t, 2, stats["generation"])
	assert.Equal(t, "standard", stats["analyzer"])
}

func TestBadRequests(t *testing.T) {
	s, h := newServer(t)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/v1/search", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/v1/search?q=sea&limit=-1", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/api/v1/search?q=sea&skip_fields=maybe", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/v1/documents", `{"documents":[{"id":1,"fields":[{"name":"author","type":"text","value":"x"}]}]}`).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/api/v1/documents", `{"docs":[]}`).Code)

	require.NoError(t, s.Close())
	assert.Equal(t, http.StatusServiceUnavailable, do(t, h, http.MethodGet, "/api/v1/search?q=sea", "").Code)
}
