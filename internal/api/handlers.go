package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/mediatag/internal/apperr"
	"github.com/starford/mediatag/internal/library"
)

// Handler holds API route handlers.
type Handler struct {
	svc *library.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *library.Service) *Handler {
	return &Handler{svc: svc}
}

// recordPath extracts the record path from the URL (everything after /api/records/).
// Supports encoded slashes from OpenAPI clients (e.g. trips%2Fbeach.jpg).
func recordPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// writeError maps service errors onto HTTP statuses.
func writeError(w http.ResponseWriter, op, path string, err error) {
	var (
		pe *apperr.ParseError
		oe *apperr.OpenError
	)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody("fingerprint mismatch"))
	case errors.Is(err, apperr.ErrInvalid), errors.As(err, &pe):
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
	case errors.As(err, &oe):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody(oe.Error()))
	default:
		slog.Error(op+" failed", slog.String("path", path), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}

func writeRecord(w http.ResponseWriter, d *library.Detail) {
	if d.Fingerprint != "" {
		w.Header().Set("ETag", strconv.Quote(d.Fingerprint))
	}
	writeJSON(w, http.StatusOK, d)
}

// ListRecords handles GET /api/records.
//
//	@Summary		List cataloged records with optional pagination and tag filter
//	@Tags			records
//	@Produce		json
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Param			tag		query		string	false	"Filter by tag"
//	@Success		200		{object}	RecordListResponse
//	@Security		BearerAuth
//	@Router			/records [get]
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	items, total, err := h.svc.ListRecords(r.Context(), limit, offset, q.Get("tag"))
	if err != nil {
		slog.Error("list records failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, RecordListResponse{Records: items, Total: total})
}

// GetRecord handles GET /api/records/*.
//
//	@Summary		Read the metadata record of one media file
//	@Tags			records
//	@Produce		json
//	@Param			path	path		string	true	"Media path relative to the library root"
//	@Success		200		{object}	RecordDetail
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		422		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/records/{path} [get]
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	path := recordPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	d, err := h.svc.GetRecord(r.Context(), path)
	if err != nil {
		writeError(w, "get record", path, err)
		return
	}
	writeRecord(w, d)
}

// PutRecord handles PUT /api/records/*.
//
//	@Summary		Replace the tags (and optionally the date) of a record
//	@Tags			records
//	@Accept			json
//	@Produce		json
//	@Param			path		path	string				true	"Media path relative to the library root"
//	@Param			If-Match	header	string				false	"Fingerprint for optimistic concurrency"
//	@Param			body		body	PutRecordRequest	true	"New tags"
//	@Success		200		{object}	RecordDetail
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/records/{path} [put]
func (h *Handler) PutRecord(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	path := recordPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	var req PutRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Tags == nil {
		writeJSON(w, http.StatusBadRequest, errorBody("tags is required"))
		return
	}

	ch := library.Change{Tags: &req.Tags, Date: req.Date}
	d, err := h.svc.Apply(r.Context(), path, ch, ifMatch(r))
	if err != nil {
		writeError(w, "put record", path, err)
		return
	}
	writeRecord(w, d)
}

// PatchRecord handles PATCH /api/records/*.
//
//	@Summary		Add or remove individual tags and optionally set the date
//	@Tags			records
//	@Accept			json
//	@Produce		json
//	@Param			path		path	string				true	"Media path relative to the library root"
//	@Param			If-Match	header	string				false	"Fingerprint for optimistic concurrency"
//	@Param			body		body	PatchRecordRequest	true	"Tag changes"
//	@Success		200		{object}	RecordDetail
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/records/{path} [patch]
func (h *Handler) PatchRecord(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	path := recordPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	var req PatchRecordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}

	ch := library.Change{Add: req.Add, Remove: req.Remove, Date: req.Date}
	d, err := h.svc.Apply(r.Context(), path, ch, ifMatch(r))
	if err != nil {
		writeError(w, "patch record", path, err)
		return
	}
	writeRecord(w, d)
}

// ifMatch strips surrounding quotes if present (standard ETag format).
func ifMatch(r *http.Request) string {
	return strings.Trim(r.Header.Get("If-Match"), `"`)
}

// Search handles GET /api/search.
//
//	@Summary		Search cataloged paths and tags
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.SearchRecords(r.Context(), q, limit)
	if err != nil {
		slog.Error("search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if results == nil {
		results = []SearchResult{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// Tags handles GET /api/tags.
//
//	@Summary		Search the tag vocabulary (case-insensitive substring)
//	@Tags			tags
//	@Produce		json
//	@Param			q	query		string	false	"Substring to match; empty lists every tag"
//	@Success		200	{object}	TagsResponse
//	@Security		BearerAuth
//	@Router			/tags [get]
func (h *Handler) Tags(w http.ResponseWriter, r *http.Request) {
	tags := h.svc.SearchTags(r.Context(), r.URL.Query().Get("q"))
	writeJSON(w, http.StatusOK, TagsResponse{Tags: tags})
}

// Rescan handles POST /api/rescan.
//
//	@Summary		Reconcile the catalog with the library on disk
//	@Tags			library
//	@Produce		json
//	@Success		200	{object}	RescanResponse
//	@Security		BearerAuth
//	@Router			/rescan [post]
func (h *Handler) Rescan(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Rescan(r.Context())
	if err != nil {
		slog.Error("rescan failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, RescanResponse{
		Indexed:   st.Indexed,
		Unchanged: st.Unchanged,
		Removed:   st.Removed,
		Failed:    st.Failed,
	})
}
