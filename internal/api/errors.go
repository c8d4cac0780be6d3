package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/finboard-core/internal/acquisition"
	"github.com/nerrad567/finboard-core/internal/widget"
)

// Error is the body of an error response, wrapped as {"error": {...}}.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// errorResponse is the envelope for Error.
type errorResponse struct {
	Error Error `json:"error"`
}

// Common error codes.
const (
	ErrCodeBadRequest    = "bad_request"
	ErrCodeNotFound      = "not_found"
	ErrCodeConflict      = "conflict"
	ErrCodeInternal      = "internal_error"
	ErrCodeValidation    = "validation_error"
	ErrCodeAPITestFailed = "api_test_failed"
	ErrCodeImportFailed  = "import_failed"
	ErrCodeUnavailable   = "unavailable"
)

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: Error{
		Status:  status,
		Code:    code,
		Message: message,
	}})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeNotFound writes a 404 error response.
func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeDomainError maps store, document and engine errors to responses.
// Anything unrecognised is logged and reported as a 500 with fallback.
func (s *Server) writeDomainError(w http.ResponseWriter, err error, fallback string) {
	var verr *widget.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: Error{
			Status:  http.StatusBadRequest,
			Code:    ErrCodeValidation,
			Message: verr.Error(),
			Field:   verr.Field,
		}})
	case errors.Is(err, widget.ErrWidgetNotFound):
		writeNotFound(w, "widget not found")
	case errors.Is(err, widget.ErrTemplateNotFound):
		writeNotFound(w, "template not found")
	case errors.Is(err, widget.ErrWidgetExists):
		writeError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	case errors.Is(err, widget.ErrOrderMismatch):
		writeBadRequest(w, err.Error())
	case errors.Is(err, widget.ErrInvalidDocument), errors.Is(err, widget.ErrIncompatibleVersion):
		writeError(w, http.StatusBadRequest, ErrCodeImportFailed, "failed to import dashboard: "+err.Error())
	case errors.Is(err, acquisition.ErrEngineClosed):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "acquisition engine is shut down")
	default:
		s.logger.Error(fallback, "error", err)
		writeInternalError(w, fallback)
	}
}
