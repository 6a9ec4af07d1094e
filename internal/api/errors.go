package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/opencadhq/cad-core/internal/auth"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Infrastructure error codes. Admission failures use their stable domain
// codes (UserNotFound, WhitelistPending, ...) instead.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeInternal     = "internal_error"
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
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

// writeBadRequest writes a 400 error response.
func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

// writeUnauthorized writes a 401 error response.
func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// writeInternalError writes a 500 error response.
func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// admissionStatus maps admission failures to HTTP status codes. The code
// field carries the stable kind name from the admission core.
func admissionStatus(err error) int {
	switch {
	case errors.Is(err, auth.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, auth.ErrPasswordIncorrect):
		return http.StatusUnauthorized
	case errors.Is(err, auth.ErrUserAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, auth.ErrWhitelistPending),
		errors.Is(err, auth.ErrWhitelistDeclined),
		errors.Is(err, auth.ErrUserBanned):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// writeAdmissionError writes an admission failure with its stable code,
// or a 500 when the error is a storage fault rather than a domain outcome.
func writeAdmissionError(w http.ResponseWriter, err error) {
	code := auth.FailureCode(err)
	if code == "" {
		writeInternalError(w, "internal server error")
		return
	}
	writeError(w, admissionStatus(err), code, err.Error())
}
