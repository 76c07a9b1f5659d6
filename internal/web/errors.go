package web

// errors.go provides unified error response handling for the API.
//
// Handlers call respondError with the raw error; the technical detail is
// logged with the request ID for correlation, and the client receives a JSON
// body with a stable machine-readable code and an HTTP status derived from
// the error type.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/tabwell/tabsync/internal/importer"
	"github.com/tabwell/tabsync/internal/mapping"
	"github.com/tabwell/tabsync/internal/query"
	"github.com/tabwell/tabsync/internal/source"
	"github.com/tabwell/tabsync/internal/syncer"
)

// ErrorResponse is the JSON structure for API error responses.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// respondError logs the technical error and writes the mapped JSON response.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := classifyError(err)

	slog.Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", code,
		"request_id", chimw.GetReqID(r.Context()),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{Error: err.Error(), Code: code})
}

// classifyError maps domain errors to an HTTP status and a stable code.
func classifyError(err error) (int, string) {
	var (
		unknownField *query.UnknownFieldError
		capacity     *mapping.CapacityError
		httpErr      *importer.HTTPError
	)

	switch {
	case errors.Is(err, source.ErrSourceNotFound):
		return http.StatusNotFound, "SOURCE_NOT_FOUND"
	case errors.Is(err, source.ErrShortIDConflict):
		return http.StatusConflict, "SHORT_ID_CONFLICT"
	case errors.As(err, &unknownField):
		return http.StatusBadRequest, "UNKNOWN_FIELD"
	case errors.As(err, &capacity):
		return http.StatusBadRequest, "SLOT_CAPACITY_EXCEEDED"
	case errors.Is(err, mapping.ErrInvalidPattern):
		return http.StatusBadRequest, "INVALID_PATTERN"
	case errors.Is(err, source.ErrColumnsNotConfigured):
		return http.StatusConflict, "COLUMNS_NOT_CONFIGURED"
	case errors.Is(err, syncer.ErrSourceFrozen):
		return http.StatusConflict, "SOURCE_FROZEN"
	case errors.Is(err, syncer.ErrNoColumnsMapped):
		return http.StatusUnprocessableEntity, "NO_COLUMNS_MAPPED"
	case errors.Is(err, importer.ErrEmptyResponse):
		return http.StatusBadGateway, "EMPTY_RESPONSE"
	case errors.As(err, &httpErr):
		return http.StatusBadGateway, "UPSTREAM_ERROR"
	case errors.Is(err, errBadRequest):
		return http.StatusBadRequest, "BAD_REQUEST"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

// errBadRequest marks malformed client input (bad JSON, bad UUID, bad query
// parameters). Handlers wrap the underlying parse error with it.
var errBadRequest = errors.New("bad request")

// badRequest wraps a parse error so classifyError maps it to 400.
func badRequest(err error) error {
	if err == nil {
		return nil
	}
	return errors.Join(errBadRequest, err)
}
