package web

// errors.go provides unified error responses for the API.
//
// Every hard failure is:
//   - logged with the technical error and request ID
//   - mapped through registry.MapError to a user message and code
//   - returned as {success:false, error, message, action, code}

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/registry/internal/registry"
)

var (
	errNoFile     = errors.New("no file provided")
	errFileTooBig = errors.New("file too large")
	errBadRequest = errors.New("invalid request")
)

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
}

// respondError logs err and writes its user-facing form with statusCode.
func respondError(w http.ResponseWriter, r *http.Request, err error, statusCode int) {
	userMsg := registry.MapError(err)

	level := slog.LevelWarn
	if statusCode >= 500 {
		level = slog.LevelError
	}
	slog.Log(r.Context(), level, "request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", statusCode,
		"error", err.Error(),
		"code", userMsg.Code,
		"request_id", middleware.GetReqID(r.Context()),
	)

	if errors.Is(err, registry.ErrTooManyImports) {
		w.Header().Set("Retry-After", "30")
	}
	writeJSON(w, statusCode, ErrorResponse{
		Error:   userMsg.Message,
		Message: userMsg.Message,
		Action:  userMsg.Action,
		Code:    userMsg.Code,
	})
}

// statusFor picks the HTTP status for a service error.
func statusFor(err error) int {
	switch {
	case errors.Is(err, registry.ErrEmptyImport),
		errors.Is(err, registry.ErrInvalidStatus),
		errors.Is(err, registry.ErrQueryTooShort):
		return http.StatusBadRequest
	case errors.Is(err, registry.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, registry.ErrTooManyImports),
		errors.Is(err, registry.ErrImportCancelled),
		errors.Is(err, registry.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
