package web

// errors.go maps errors to JSON responses. The technical error is logged with
// the request id; the client gets the coded message from core.MapError.

import (
	"context"
	"errors"
	"net"
	"net/http"

	"github.com/JonMunkholm/deliveryingest/internal/core"
	"github.com/JonMunkholm/deliveryingest/internal/logging"
)

// ErrorResponse is the body of every API error.
type ErrorResponse struct {
	Error  string `json:"error"`
	Action string `json:"action,omitempty"`
	Code   string `json:"code"`
}

// respondError logs err and writes its user-facing form.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := core.MapError(err)

	logging.FromContext(r.Context()).Error("request error",
		"path", r.URL.Path,
		"method", r.Method,
		"status", status,
		"error", err.Error(),
		"code", msg.Code,
	)

	if errors.Is(err, core.ErrIngestBusy) {
		w.Header().Set("Retry-After", "30")
	}
	writeJSON(w, status, ErrorResponse{Error: msg.Message, Action: msg.Action, Code: msg.Code})
}

// statusFor picks the HTTP status for an ingestion or query error.
func statusFor(err error) int {
	var (
		validation *core.ValidationError
		processing *core.ProcessingError
	)
	switch {
	case errors.Is(err, core.ErrIngestBusy):
		return http.StatusServiceUnavailable
	case errors.Is(err, core.ErrPathNotAllowed):
		return http.StatusForbidden
	case errors.Is(err, core.ErrFileNotFound), errors.Is(err, core.ErrIntegrationNotFound):
		return http.StatusNotFound
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &processing):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// writeError writes an error that did not come from core.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{Error: message, Code: code})
}

func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
