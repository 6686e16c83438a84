// Package handler serves the searcher over HTTP with JSON bodies.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/embedsearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/document"
	apperrors "github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/query"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/searcher"
	"github.com/Adithya-Monish-Kumar-K/embedsearch/pkg/tracing"
)

const maxBodyBytes = 32 << 20

type Handler struct {
	searcher     *searcher.Searcher
	cache        *cache.QueryCache
	defaultLimit int
	maxLimit     int
	logger       *slog.Logger
}

// New returns a handler over s. queryCache may be nil.
func New(s *searcher.Searcher, queryCache *cache.QueryCache, cfg config.SearchConfig) *Handler {
	return &Handler{
		searcher:     s,
		cache:        queryCache,
		defaultLimit: cfg.DefaultLimit,
		maxLimit:     cfg.MaxLimit,
		logger:       slog.Default().With("component", "http-handler"),
	}
}

// Register mounts the API routes on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/documents", h.AddDocuments)
	mux.HandleFunc("DELETE /api/v1/documents", h.DeleteDocuments)
	mux.HandleFunc("POST /api/v1/commit", h.Commit)
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("POST /api/v1/query", h.Query)
	mux.HandleFunc("GET /api/v1/stats", h.Stats)
	mux.HandleFunc("GET /api/v1/schema", h.Schema)
}

type addRequest struct {
	Documents []document.Document `json:"documents"`
}

type deleteRequest struct {
	IDs []int64 `json:"ids"`
}

type queryRequest struct {
	Query      json.RawMessage `json:"query"`
	Limit      int             `json:"limit"`
	Fields     []string        `json:"fields,omitempty"`
	SkipFields bool            `json:"skip_fields,omitempty"`
}

type searchResponse struct {
	Generation uint64                `json:"generation"`
	Results    []searcher.IDDocument `json:"results"`
	CacheHit   bool                  `json:"cache_hit"`
	TookMs     int64                 `json:"took_ms"`
}

type mutationResponse struct {
	Accepted   int    `json:"accepted"`
	Generation uint64 `json:"generation"`
	Pending    int64  `json:"pending"`
}

// AddDocuments admits a batch. ?overwrite=true replaces existing ids and
// ?commit=true commits before answering.
func (h *Handler) AddDocuments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req addRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	overwrite, err := boolParam(r, "overwrite")
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	commit, err := boolParam(r, "commit")
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	if err := h.searcher.AddDocuments(ctx, req.Documents, overwrite); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	if commit {
		if err := h.searcher.Commit(ctx); err != nil {
			h.writeError(ctx, w, err)
			return
		}
	}
	logger.FromContext(ctx).Info("documents accepted", "count", len(req.Documents), "overwrite", overwrite, "commit", commit)
	h.writeJSON(w, http.StatusAccepted, h.mutation(len(req.Documents)))
}

func (h *Handler) DeleteDocuments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req deleteRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	commit, err := boolParam(r, "commit")
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	if err := h.searcher.DeleteDocuments(ctx, req.IDs, commit); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(w, http.StatusAccepted, h.mutation(len(req.IDs)))
}

func (h *Handler) Commit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if err := h.searcher.Commit(ctx); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, h.mutation(0))
}

func (h *Handler) mutation(accepted int) mutationResponse {
	st := h.searcher.Stats()
	return mutationResponse{Accepted: accepted, Generation: st.Generation, Pending: st.Pending}
}

// Search runs a text search: q is analyzed and matched against fields
// (comma separated, default every text field). return picks the stored
// fields to project.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.Start(r.Context(), "search", logger.RequestID(r.Context()))
	defer h.finish(ctx, span)
	params := r.URL.Query()
	text := params.Get("q")
	if strings.TrimSpace(text) == "" {
		h.writeError(ctx, w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "query parameter 'q' is required"))
		return
	}
	limit, err := h.limit(params.Get("limit"))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	skip, err := boolParam(r, "skip_fields")
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	fields := splitList(params.Get("fields"))
	param := searcher.SearchParam{Limit: limit, Fields: splitList(params.Get("return")), SkipFields: skip}

	h.run(ctx, w, cache.Request{Kind: "text", Text: text, Fields: fields, Param: param}, func() (searcher.Result, error) {
		return h.searcher.SearchWithGeneration(ctx, text, fields, param)
	})
}

// Query evaluates a JSON-encoded query tree.
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.Start(r.Context(), "query", logger.RequestID(r.Context()))
	defer h.finish(ctx, span)
	var req queryRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.writeError(ctx, w, err)
		return
	}
	if len(req.Query) == 0 {
		h.writeError(ctx, w, apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, `"query" is required`))
		return
	}
	q, err := query.Decode(req.Query)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	limit, err := h.limit(strconv.Itoa(req.Limit))
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	canonical, err := query.Encode(q)
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	param := searcher.SearchParam{Limit: limit, Fields: req.Fields, SkipFields: req.SkipFields}
	h.run(ctx, w, cache.Request{Kind: "query", Query: canonical, Param: param}, func() (searcher.Result, error) {
		return h.searcher.SearchByQueryWithGeneration(ctx, q, param)
	})
}

// run answers req from the cache or compute. The reported generation is the
// one the hits were read from.
func (h *Handler) run(ctx context.Context, w http.ResponseWriter, req cache.Request, compute func() (searcher.Result, error)) {
	start := time.Now()
	var (
		res      searcher.Result
		cacheHit bool
		err      error
	)
	if h.cache != nil {
		res, cacheHit, err = h.cache.GetOrCompute(ctx, req, compute)
	} else {
		res, err = compute()
	}
	if err != nil {
		h.writeError(ctx, w, err)
		return
	}
	generation, hits := res.Generation, res.Hits
	if hits == nil {
		hits = []searcher.IDDocument{}
	}
	took := time.Since(start)
	tracing.FromContext(ctx).Set("cache_hit", cacheHit)
	logger.FromContext(ctx).Info("search completed",
		"kind", req.Kind,
		"generation", generation,
		"returned", len(hits),
		"cache_hit", cacheHit,
		"latency_ms", took.Milliseconds(),
	)
	h.writeJSON(w, http.StatusOK, searchResponse{
		Generation: generation,
		Results:    hits,
		CacheHit:   cacheHit,
		TookMs:     took.Milliseconds(),
	})
}

func (h *Handler) finish(ctx context.Context, span *tracing.Span) {
	span.End()
	span.Log(ctx, logger.FromContext(ctx))
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.searcher.Stats())
}

func (h *Handler) Schema(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.searcher.Schema())
}

// limit parses raw, falling back to the default for "" or "0" and capping
// at the maximum.
func (h *Handler) limit(raw string) (int, error) {
	if raw == "" || raw == "0" {
		return h.defaultLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "limit must be a positive integer, got %q", raw)
	}
	return min(n, h.maxLimit), nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperrors.Newf(apperrors.ErrInvalidInput, http.StatusRequestEntityTooLarge, "body exceeds %d bytes", tooLarge.Limit)
		}
		return apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "decoding body: %v", err)
	}
	return nil
}

func boolParam(r *http.Request, name string) (bool, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return false, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "%s must be a boolean, got %q", name, raw)
	}
	return v, nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(ctx context.Context, w http.ResponseWriter, err error) {
	status := apperrors.HTTPStatusCode(err)
	log := logger.FromContext(ctx)
	if status >= http.StatusInternalServerError {
		log.Error("request failed", "status", status, "error", err)
	} else {
		log.Debug("request rejected", "status", status, "error", err)
	}
	h.writeJSON(w, status, map[string]string{"error": fmt.Sprint(err)})
}
