package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/schema"
	"github.com/tabwell/tabsync/internal/importer"
	"github.com/tabwell/tabsync/internal/logging"
	"github.com/tabwell/tabsync/internal/mapping"
	"github.com/tabwell/tabsync/internal/query"
	"github.com/tabwell/tabsync/internal/source"
)

// paramDecoder decodes URL query parameters into structs. Shared and
// stateless; unknown keys are ignored so clients can add parameters freely.
var paramDecoder = func() *schema.Decoder {
	d := schema.NewDecoder()
	d.IgnoreUnknownKeys(true)
	return d
}()

const (
	defaultLimit = 100
	maxLimit     = 1000

	previewRows = 10
)

// writeJSON encodes v as JSON with the given status.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", "error", err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// sourceID extracts and parses the {sourceID} path parameter.
func sourceID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "sourceID"))
	if err != nil {
		return uuid.Nil, badRequest(fmt.Errorf("invalid source id: %w", err))
	}
	return id, nil
}

// --- Source configuration ---

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	status := source.Status(r.URL.Query().Get("status"))
	sources, err := s.sources.ListSources(r.Context(), status)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if sources == nil {
		sources = []*source.Source{}
	}
	writeJSON(w, http.StatusOK, sources)
}

func (s *Server) handleCreateSource(w http.ResponseWriter, r *http.Request) {
	var src source.Source
	if err := json.NewDecoder(r.Body).Decode(&src); err != nil {
		s.respondError(w, r, badRequest(fmt.Errorf("decode source: %w", err)))
		return
	}
	if err := src.Validate(); err != nil {
		s.respondError(w, r, badRequest(err))
		return
	}
	if err := s.sources.CreateSource(r.Context(), &src); err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("source created",
		"source_id", src.ID, "name", src.Name)
	writeJSON(w, http.StatusCreated, src)
}

func (s *Server) handleGetSource(w http.ResponseWriter, r *http.Request) {
	id, err := sourceID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	src, err := s.sources.GetSource(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, src)
}

func (s *Server) handleUpdateSource(w http.ResponseWriter, r *http.Request) {
	id, err := sourceID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	var src source.Source
	if err := json.NewDecoder(r.Body).Decode(&src); err != nil {
		s.respondError(w, r, badRequest(fmt.Errorf("decode source: %w", err)))
		return
	}
	src.ID = id
	if err := src.Validate(); err != nil {
		s.respondError(w, r, badRequest(err))
		return
	}
	if err := s.sources.UpdateSource(r.Context(), &src); err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("source updated",
		"source_id", src.ID, "name", src.Name)
	writeJSON(w, http.StatusOK, src)
}

func (s *Server) handleDeleteSource(w http.ResponseWriter, r *http.Request) {
	id, err := sourceID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if err := s.sources.DeleteSource(r.Context(), id); err != nil {
		s.respondError(w, r, err)
		return
	}

	logging.FromContext(r.Context()).Info("source deleted", "source_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// --- Sync triggers ---

func (s *Server) handleSyncSource(w http.ResponseWriter, r *http.Request) {
	id, err := sourceID(r)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	src, err := s.sources.GetSource(r.Context(), id)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	res := s.syncs.SyncNow(r.Context(), src)
	status := http.StatusOK
	if !res.Success {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, res)
}

func (s *Server) handleSyncDue(w http.ResponseWriter, r *http.Request) {
	summary, err := s.syncs.SyncDue(r.Context())
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// --- Mapping setup helpers ---

type previewRequest struct {
	URL         string             `json:"url"`
	ContentType source.ContentType `json:"content_type"`
}

type previewResponse struct {
	Headers []string   `json:"headers"`
	Rows    [][]string `json:"rows"`
}

// handlePreview downloads a candidate URL and returns the header row plus a
// sample of data rows so operators can configure the mapping before saving.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	var req previewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, r, badRequest(fmt.Errorf("decode preview request: %w", err)))
		return
	}
	if req.URL == "" {
		s.respondError(w, r, badRequest(errors.New("url is required")))
		return
	}
	if req.ContentType == "" {
		req.ContentType = source.ContentCSV
	}

	body, err := s.client.Download(r.Context(), importer.ResolveExportURL(req.URL, req.ContentType))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	headers, rows, err := importer.Preview(body, importer.Delimiter(req.ContentType), previewRows)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, previewResponse{Headers: headers, Rows: rows})
}

type allocateRequest struct {
	Columns []mapping.ColumnRequest `json:"columns"`
}

// handleAllocate assigns physical slots to a requested column list, returning
// ready-to-save mapping entries or a capacity error.
func (s *Server) handleAllocate(w http.ResponseWriter, r *http.Request) {
	var req allocateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, r, badRequest(fmt.Errorf("decode allocate request: %w", err)))
		return
	}

	entries, err := mapping.AssignSlots(req.Columns)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"mapping": entries})
}

// --- Record queries ---

// recordParams are the GET query parameters for record listing.
// cond is repeatable as "field:value"; field is repeatable.
type recordParams struct {
	Cond   []string `schema:"cond"`
	Field  []string `schema:"field"`
	Sort   string   `schema:"sort"`
	Desc   bool     `schema:"desc"`
	Offset int      `schema:"offset"`
	Limit  int      `schema:"limit"`
}

func (s *Server) handleGetRecords(w http.ResponseWriter, r *http.Request) {
	var params recordParams
	if err := paramDecoder.Decode(&params, r.URL.Query()); err != nil {
		s.respondError(w, r, badRequest(fmt.Errorf("decode query parameters: %w", err)))
		return
	}

	req := query.Request{
		Fields: params.Field,
		Offset: params.Offset,
		Limit:  clampLimit(params.Limit),
	}
	if params.Sort != "" {
		req.Sort = []query.Sort{{Field: params.Sort, Desc: params.Desc}}
	}
	if len(params.Cond) > 0 {
		req.Conditions = make(map[string]interface{}, len(params.Cond))
		for _, c := range params.Cond {
			name, value, ok := strings.Cut(c, ":")
			if !ok || name == "" {
				s.respondError(w, r, badRequest(fmt.Errorf("invalid condition %q, want field:value", c)))
				return
			}
			req.Conditions[name] = value
		}
	}

	rows, err := s.records.GetRecords(r.Context(), chi.URLParam(r, "shortID"), req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if rows == nil {
		rows = []map[string]interface{}{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"records": rows, "count": len(rows)})
}

type sortTerm struct {
	Field string `json:"field"`
	Desc  bool   `json:"desc"`
}

// selectRequest is a free-form predicate query. The where fragment references
// logical field names and numbered placeholders starting at $2.
type selectRequest struct {
	Where  string        `json:"where"`
	Params []interface{} `json:"params"`
	Fields []string      `json:"fields"`
	Sort   []sortTerm    `json:"sort"`
	Offset int           `json:"offset"`
	Limit  int           `json:"limit"`
}

func (s *Server) handleSelectRecords(w http.ResponseWriter, r *http.Request) {
	var body selectRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.respondError(w, r, badRequest(fmt.Errorf("decode select request: %w", err)))
		return
	}

	req := query.Request{
		Fields: body.Fields,
		Offset: body.Offset,
		Limit:  clampLimit(body.Limit),
	}
	for _, t := range body.Sort {
		req.Sort = append(req.Sort, query.Sort{Field: t.Field, Desc: t.Desc})
	}

	rows, err := s.records.GetRecordsSelect(r.Context(), chi.URLParam(r, "shortID"),
		body.Where, body.Params, req)
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	if rows == nil {
		rows = []map[string]interface{}{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"records": rows, "count": len(rows)})
}

// clampLimit applies the default and ceiling to a requested page size.
func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultLimit
	}
	if limit > maxLimit {
		return maxLimit
	}
	return limit
}
