package httpapi

import (
	"errors"
	"net/http"

	"qms/admission-service/internal/session"
	"qms/admission-service/internal/telemetry"
	"qms/admission-service/internal/waitlist"
)

var errTableNotFound = errors.New("table size not found")

// mapError turns a domain error into status, code and message. Waitlist
// errors carry a readable message, so it is passed through.
func mapError(err error) (int, string, string) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound, "session_not_found", "session not found"
	case errors.Is(err, waitlist.ErrClientNotFound):
		return http.StatusNotFound, "client_not_found", err.Error()
	case errors.Is(err, errTableNotFound):
		return http.StatusNotFound, "table_not_found", err.Error()
	case errors.Is(err, waitlist.ErrWaitlistEmpty):
		return http.StatusConflict, "waitlist_empty", err.Error()
	case errors.Is(err, waitlist.ErrNoTableAvailable):
		return http.StatusConflict, "no_table_available", err.Error()
	default:
		return http.StatusInternalServerError, "internal_error", "internal server error"
	}
}

func writeMappedError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := mapError(err)
	if status >= http.StatusInternalServerError {
		telemetry.LoggerFromContext(r.Context()).Error().Err(err).
			Str("path", r.URL.Path).
			Str("request_id", requestID(r)).
			Msg("request failed")
	}
	writeError(w, requestID(r), status, code, message)
}
