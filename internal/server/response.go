package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/orka-sh/orka-core/internal/orkaerr"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Error codes
const (
	ErrCodeInvalidRequest   = "INVALID_REQUEST"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodePermissionDenied = "PERMISSION_DENIED"
	ErrCodeProviderError    = "PROVIDER_ERROR"
	ErrCodeRateLimited      = "RATE_LIMITED"
	ErrCodeInternalError    = "INTERNAL_ERROR"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
		},
	})
}

// writeErrorWithDetails writes an error response with details.
func writeErrorWithDetails(w http.ResponseWriter, status int, code, message string, details map[string]any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error: ErrorDetail{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// writeSuccess writes a bare `true` body (matches the TypeScript SDK
// client's contract for acknowledgement-only endpoints).
func writeSuccess(w http.ResponseWriter) {
	writeJSON(w, http.StatusOK, true)
}

// writeErrorFromErr translates an orkaerr.Error into the HTTP status and
// body the control surface exposes (spec §7 "Error Handling Design": not
// found -> 404, precondition -> 409, external -> 502, corrupted -> 500).
// Any other error is treated as an internal error.
func writeErrorFromErr(w http.ResponseWriter, err error) {
	var oe *orkaerr.Error
	if !errors.As(err, &oe) {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}
	switch oe.Kind {
	case orkaerr.KindNotFound:
		writeError(w, http.StatusNotFound, ErrCodeNotFound, oe.Error())
	case orkaerr.KindPrecondition:
		writeError(w, http.StatusConflict, ErrCodeInvalidRequest, oe.Error())
	case orkaerr.KindExternal:
		writeError(w, http.StatusBadGateway, ErrCodeProviderError, oe.Error())
	case orkaerr.KindCorrupted:
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, oe.Error())
	case orkaerr.KindCancellation:
		w.WriteHeader(http.StatusOK)
	default:
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, oe.Error())
	}
}

// notImplemented writes a not implemented response.
func notImplemented(w http.ResponseWriter) {
	writeError(w, http.StatusNotImplemented, "NOT_IMPLEMENTED", "This endpoint is not yet implemented")
}
